package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/MrSnakeDoc/goesview/internal/logger"
	"github.com/MrSnakeDoc/goesview/internal/utils"
)

// SubscriberConfig configures the SSE client.
type SubscriberConfig struct {
	URL        string
	EventName  string       // event that fires the callback (default: update)
	Client     *http.Client // must not carry a Timeout; streams are long-lived
	UserAgent  string
	MinBackoff time.Duration // used until the server announces retry:
	MaxBackoff time.Duration

	// OnReconnect runs after every reconnect instead of the trigger. Nothing
	// is known to have changed at that point, so it is the place for a
	// refresh that does not jump to the newest image. Defaults to the trigger.
	OnReconnect func()
}

// SubscriberStatus is a point-in-time view of the connection.
type SubscriberStatus struct {
	Connected   bool      `json:"connected"`
	Connects    int       `json:"connects"`
	Triggers    int       `json:"triggers"`
	LastEventID string    `json:"last_event_id,omitempty"`
	LastEventAt time.Time `json:"last_event_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Subscriber holds one SSE connection open and calls trigger for every
// matching event. It reconnects forever with exponential backoff until its
// context ends, and calls OnReconnect once after each reconnect to pick up
// anything missed while the stream was down.
type Subscriber struct {
	cfg     SubscriberConfig
	log     logger.Logger
	trigger func()

	mu     sync.RWMutex
	status SubscriberStatus
	retry  time.Duration
}

func NewSubscriber(cfg SubscriberConfig, log logger.Logger, trigger func()) (*Subscriber, error) {
	if cfg.URL == "" {
		return nil, errors.New("events URL is required")
	}
	if trigger == nil {
		return nil, errors.New("trigger callback is required")
	}
	if cfg.EventName == "" {
		cfg.EventName = EventUpdate
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 60 * time.Second
	}
	if cfg.OnReconnect == nil {
		cfg.OnReconnect = trigger
	}
	return &Subscriber{cfg: cfg, log: log, trigger: trigger}, nil
}

// Status returns a copy of the connection state.
func (s *Subscriber) Status() SubscriberStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Run blocks until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	b := s.newBackoff(s.cfg.MinBackoff)

	for attempt := 1; ; attempt++ {
		delivered, err := s.stream(ctx)
		if ctx.Err() != nil {
			return nil
		}

		s.mu.Lock()
		s.status.Connected = false
		if err != nil {
			s.status.LastError = err.Error()
		}
		hint := s.retry
		s.mu.Unlock()

		// A stream that delivered something was healthy: start over from
		// the server's hint instead of the escalated delay.
		if delivered {
			initial := s.cfg.MinBackoff
			if hint > 0 {
				initial = hint
			}
			b = s.newBackoff(initial)
			attempt = 0
		}

		wait := b.NextBackOff()
		s.log.Warn("event stream disconnected, reconnecting",
			logger.String("url", s.cfg.URL),
			logger.Int("attempt", attempt),
			logger.Duration("backoff", wait),
			logger.Error(err))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (s *Subscriber) newBackoff(initial time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = s.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// stream runs one connection. delivered reports whether at least one event
// (including hello) arrived before it ended.
func (s *Subscriber) stream(ctx context.Context) (delivered bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, http.NoBody)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
	}

	s.mu.RLock()
	lastID := s.status.LastEventID
	reconnect := s.status.Connects > 0
	s.mu.RUnlock()
	if lastID != "" {
		req.Header.Set("Last-Event-ID", lastID)
	}

	resp, err := s.cfg.Client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to connect: %w", err)
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("event stream returned status %d", resp.StatusCode)
	}
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt != "text/event-stream" {
		return false, fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	s.mu.Lock()
	s.status.Connected = true
	s.status.Connects++
	s.status.LastError = ""
	s.mu.Unlock()

	s.log.Info("event stream connected", logger.String("url", s.cfg.URL))
	if reconnect {
		s.fire(s.cfg.OnReconnect)
	}

	dec := NewDecoder(resp.Body)
	for {
		ev, err := dec.Next()

		s.mu.Lock()
		if r := dec.Retry(); r > 0 {
			s.retry = r
		}
		if id := dec.LastID(); id != "" {
			s.status.LastEventID = id
		}
		s.mu.Unlock()

		if err != nil {
			if errors.Is(err, io.EOF) {
				err = errors.New("stream closed by server")
			}
			return delivered, err
		}
		delivered = true

		if ev.Name != s.cfg.EventName {
			s.log.Debug("ignoring event", logger.String("event", ev.Name))
			continue
		}

		s.mu.Lock()
		s.status.LastEventAt = time.Now()
		s.mu.Unlock()
		s.fire(s.trigger)
	}
}

func (s *Subscriber) fire(fn func()) {
	s.mu.Lock()
	s.status.Triggers++
	s.mu.Unlock()
	fn()
}
