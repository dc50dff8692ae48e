package events

import (
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/MrSnakeDoc/goesview/internal/logger"
	"github.com/MrSnakeDoc/goesview/internal/utils"
)

// HubConfig holds the SSE fan-out settings.
type HubConfig struct {
	KeepaliveInterval time.Duration // comment ping interval (default: 30s)
	MaxClients        int           // 0 = unlimited
	BufferSize        int           // per-client queue (default: 8)
	TrustProxy        bool          // log the X-Forwarded-For client, not the proxy
}

// Hub fans events out to every connected SSE client. A client that cannot
// keep up (full queue) is disconnected rather than slowing the others down.
type Hub struct {
	cfg HubConfig
	log logger.Logger

	mu      sync.Mutex
	clients map[*hubClient]struct{}
	closed  bool
	nextID  uint64
	sent    uint64
}

type hubClient struct {
	ch chan Event
	ip string
}

func NewHub(cfg HubConfig, log logger.Logger) *Hub {
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = 30 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 8
	}
	return &Hub{
		cfg:     cfg,
		log:     log,
		clients: make(map[*hubClient]struct{}),
	}
}

// Broadcast queues an event for every client and returns how many received it.
func (h *Hub) Broadcast(name, data string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	ev := Event{ID: strconv.FormatUint(h.nextID, 10), Name: name, Data: data}

	delivered := 0
	for c := range h.clients {
		select {
		case c.ch <- ev:
			delivered++
		default:
			h.log.Warn("sse client too slow, dropping",
				logger.String("remote_ip", c.ip))
			h.dropLocked(c)
		}
	}
	h.sent++
	return delivered
}

// Update broadcasts an update event stamped with t.
func (h *Hub) Update(t time.Time) int {
	return h.Broadcast(EventUpdate, strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', 3, 64))
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Sent returns the number of events broadcast so far.
func (h *Hub) Sent() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sent
}

// Close disconnects every client and refuses new ones. Call it before
// shutting the HTTP server down, since streams never end on their own.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
}

func (h *Hub) dropLocked(c *hubClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.ch)
}

func (h *Hub) register(ip string) (*hubClient, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, fmt.Errorf("hub closed")
	}
	if h.cfg.MaxClients > 0 && len(h.clients) >= h.cfg.MaxClients {
		return nil, fmt.Errorf("too many clients (%d)", len(h.clients))
	}
	c := &hubClient{ch: make(chan Event, h.cfg.BufferSize), ip: ip}
	h.clients[c] = struct{}{}
	return c, nil
}

func (h *Hub) unregister(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

// ServeHTTP streams events to one client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ip := utils.ClientIP(r, h.cfg.TrustProxy)
	c, err := h.register(ip)
	if err != nil {
		h.log.Warn("sse client rejected", logger.String("remote_ip", ip), logger.Error(err))
		w.Header().Set("Retry-After", "30")
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	defer h.unregister(c)

	start := time.Now()
	h.log.Info("sse client connected",
		logger.String("remote_ip", ip),
		logger.String("user_agent", r.UserAgent()))
	defer func() {
		h.log.Info("sse client disconnected",
			logger.String("remote_ip", ip),
			logger.Duration("duration", time.Since(start)))
	}()

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// The server WriteTimeout must not cut a long-lived stream.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.log.Debug("could not clear write deadline", logger.Error(err))
	}

	// Jittered retry hint (3-7s) spreads reconnects after a restart.
	retryMs := 3000 + rand.Intn(4000)
	if _, err := fmt.Fprintf(w, "retry: %d\n\n%s", retryMs, Event{Name: EventHello, Data: "connected"}.Encode()); err != nil {
		return
	}
	flusher.Flush()

	keepalive := time.NewTicker(h.cfg.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-c.ch:
			if !ok {
				return
			}
			if _, err := fmt.Fprint(w, ev.Encode()); err != nil {
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ":\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
