package events

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrSnakeDoc/goesview/internal/logger"
)

func TestWatcherFiresOnMtimeAdvance(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".trigger")

	// Present at startup: taken as already seen.
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	base := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, base, base); err != nil {
		t.Fatal(err)
	}

	changes := make(chan time.Time, 16)
	w, err := NewWatcher(path, 20*time.Millisecond, logger.NewNop(), func(m time.Time) { changes <- m })
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	select {
	case m := <-changes:
		t.Fatalf("unexpected change at startup: %v", m)
	case <-time.After(100 * time.Millisecond):
	}

	touched := base.Add(30 * time.Minute)
	if err := os.Chtimes(path, touched, touched); err != nil {
		t.Fatal(err)
	}

	select {
	case m := <-changes:
		if !m.Equal(touched) {
			t.Errorf("mtime = %v, want %v", m, touched)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no change reported")
	}

	// Moving the mtime backwards is not a change.
	if err := os.Chtimes(path, base, base); err != nil {
		t.Fatal(err)
	}
	select {
	case m := <-changes:
		t.Errorf("unexpected change for older mtime: %v", m)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcherMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".trigger")
	changes := make(chan time.Time, 16)
	w, err := NewWatcher(path, 20*time.Millisecond, logger.NewNop(), func(m time.Time) { changes <- m })
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changes:
	case <-time.After(3 * time.Second):
		t.Fatal("creating the trigger file was not reported")
	}
}

func TestNewWatcherValidates(t *testing.T) {
	if _, err := NewWatcher("", 0, logger.NewNop(), func(time.Time) {}); err == nil {
		t.Error("empty path should fail")
	}
	if _, err := NewWatcher("/tmp/x", 0, logger.NewNop(), nil); err == nil {
		t.Error("nil callback should fail")
	}
}
