package app

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrSnakeDoc/goesview/internal/config"
	"github.com/MrSnakeDoc/goesview/internal/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		ListenAddr:      "127.0.0.1:0",
		ShutdownTimeout: 2 * time.Second,
		LogLevel:        "info",
		EventName:       "update",
		ListingParser:   "anchor",
		HTTPTimeout:     2 * time.Second,
		CycleTimeout:    5 * time.Second,
		TriggerFile:     filepath.Join(t.TempDir(), ".trigger"),
		TriggerPoll:     20 * time.Millisecond,
		SSEKeepalive:    time.Minute,
		RateBurst:       20,
		RatePerMin:      60,
	}
}

func newListingServer(t *testing.T) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/goes/current/":         `<pre><a href="../">../</a><a href="GOES-16/">GOES-16/</a></pre>`,
		"/goes/current/GOES-16/": `<pre><a href="G16_fd_20240101T001000Z.png">G16_fd_20240101T001000Z.png</a></pre>`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(page))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func runInBackground(t *testing.T, run func(context.Context) error) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run did not return after cancel")
		}
	})
	return cancel
}

func TestViewerRunReconcilesAndStops(t *testing.T) {
	cfg := testConfig(t)
	cfg.BaseURL = newListingServer(t).URL
	cfg.OutputDir = t.TempDir()

	v, err := NewViewer(context.Background(), cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("NewViewer() error: %v", err)
	}
	runInBackground(t, v.Run)

	deadline := time.Now().Add(3 * time.Second)
	for !v.loop.Status().Ready {
		if time.Now().After(deadline) {
			t.Fatalf("viewer never became ready: %+v", v.loop.Status())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewViewerRejectsBadConventions(t *testing.T) {
	cfg := testConfig(t)
	cfg.BaseURL = "http://listing.invalid"
	cfg.ConventionsFile = filepath.Join(t.TempDir(), "missing.yaml")

	if _, err := NewViewer(context.Background(), cfg, logger.NewNop()); err == nil {
		t.Fatal("expected error for a missing conventions file")
	}
}

func TestEventsBroadcastsTriggerChanges(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(cfg.TriggerFile, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	e, err := NewEvents(context.Background(), cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("NewEvents() error: %v", err)
	}

	// The daemon listens on a kernel-chosen port; serve its hub on a test
	// listener instead.
	srv := httptest.NewServer(e.hub)
	t.Cleanup(srv.Close)
	runInBackground(t, e.Run)

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	lines := make(chan string, 64)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	waitLine := func(want string) {
		t.Helper()
		timeout := time.After(3 * time.Second)
		for {
			select {
			case l, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed before %q", want)
				}
				if strings.HasPrefix(l, want) {
					return
				}
			case <-timeout:
				t.Fatalf("timed out waiting for %q", want)
			}
		}
	}
	waitLine("event: hello")

	// Give the watcher time to record the startup mtime.
	time.Sleep(100 * time.Millisecond)
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(cfg.TriggerFile, future, future); err != nil {
		t.Fatal(err)
	}
	waitLine("event: update")
}
