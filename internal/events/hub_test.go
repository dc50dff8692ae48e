package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrSnakeDoc/goesview/internal/logger"
)

func connect(t *testing.T, url string) (*Decoder, *http.Response) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return NewDecoder(resp.Body), resp
}

func TestHubStreamsHelloAndUpdates(t *testing.T) {
	hub := NewHub(HubConfig{}, logger.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	dec, resp := connect(t, srv.URL)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q", ct)
	}
	if resp.Header.Get("X-Accel-Buffering") != "no" {
		t.Error("missing X-Accel-Buffering: no")
	}

	hello, err := dec.Next()
	if err != nil || hello.Name != EventHello || hello.Data != "connected" {
		t.Fatalf("first event = %+v (err %v), want hello", hello, err)
	}
	if r := dec.Retry(); r < 3*time.Second || r >= 7*time.Second {
		t.Errorf("retry hint = %v, want within [3s, 7s)", r)
	}

	at := time.Unix(1704067200, 500_000_000)
	if n := hub.Update(at); n != 1 {
		t.Fatalf("Update() delivered to %d clients, want 1", n)
	}

	ev, err := dec.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if ev.Name != EventUpdate || ev.ID != "1" || ev.Data != "1704067200.500" {
		t.Errorf("update = %+v", ev)
	}
	if hub.Sent() != 1 {
		t.Errorf("Sent() = %d, want 1", hub.Sent())
	}
}

func TestHubKeepalive(t *testing.T) {
	hub := NewHub(HubConfig{KeepaliveInterval: 10 * time.Millisecond}, logger.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	_, resp := connect(t, srv.URL)

	buf := make([]byte, 4096)
	var got strings.Builder
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(got.String(), "connected\n\n:\n\n") && time.Now().Before(deadline) {
		n, err := resp.Body.Read(buf)
		got.Write(buf[:n])
		if err != nil {
			break
		}
	}
	if !strings.Contains(got.String(), ":\n\n") {
		t.Errorf("no keepalive comment in %q", got.String())
	}
}

func TestHubMaxClients(t *testing.T) {
	hub := NewHub(HubConfig{MaxClients: 1}, logger.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	dec, _ := connect(t, srv.URL)
	if _, err := dec.Next(); err != nil {
		t.Fatalf("first client: %v", err)
	}

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("second client: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub(HubConfig{BufferSize: 1}, logger.NewNop())
	c, err := hub.register("192.0.2.1:1234")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if n := hub.Broadcast(EventUpdate, "1"); n != 1 {
		t.Fatalf("first broadcast delivered to %d, want 1", n)
	}
	if n := hub.Broadcast(EventUpdate, "2"); n != 0 {
		t.Fatalf("second broadcast delivered to %d, want 0", n)
	}
	if hub.Clients() != 0 {
		t.Errorf("Clients() = %d, slow client should be dropped", hub.Clients())
	}

	<-c.ch
	if _, ok := <-c.ch; ok {
		t.Error("dropped client channel should be closed")
	}
}

func TestHubCloseEndsStreams(t *testing.T) {
	hub := NewHub(HubConfig{}, logger.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	dec, _ := connect(t, srv.URL)
	if _, err := dec.Next(); err != nil {
		t.Fatalf("hello: %v", err)
	}

	hub.Close()
	if _, err := dec.Next(); err == nil {
		t.Error("stream should end after Close")
	}

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status after Close = %d, want 503", resp.StatusCode)
	}
}

func TestHubClientIP(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		want       string
	}{
		{"direct", false, "127.0.0.1"},
		{"behind proxy", true, "203.0.113.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := NewHub(HubConfig{TrustProxy: tt.trustProxy}, logger.NewNop())
			srv := httptest.NewServer(hub)
			defer srv.Close()
			defer hub.Close()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, http.NoBody)
			req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("connect: %v", err)
			}
			defer func() { _ = resp.Body.Close() }()
			if _, err := NewDecoder(resp.Body).Next(); err != nil {
				t.Fatalf("hello: %v", err)
			}

			hub.mu.Lock()
			var got []string
			for c := range hub.clients {
				got = append(got, c.ip)
			}
			hub.mu.Unlock()
			if len(got) != 1 || got[0] != tt.want {
				t.Errorf("client ips = %v, want [%s]", got, tt.want)
			}
		})
	}
}
