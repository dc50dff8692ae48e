package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrSnakeDoc/goesview/internal/logger"
)

func TestResyncer_Fires(t *testing.T) {
	var calls atomic.Int32
	r := NewResyncer(func() bool { calls.Add(1); return true }, logger.NewNop(), 10*time.Millisecond)

	r.Start(context.Background())
	deadline := time.Now().Add(3 * time.Second)
	for calls.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("resyncer fired %d times, want at least 2", calls.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	r.Stop()
	after := calls.Load()
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != after {
		t.Error("resyncer kept firing after Stop")
	}

	// Stop is idempotent.
	r.Stop()
}

func TestResyncer_Disabled(t *testing.T) {
	var calls atomic.Int32
	r := NewResyncer(func() bool { calls.Add(1); return true }, logger.NewNop(), 0)

	r.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	r.Stop()

	if calls.Load() != 0 {
		t.Errorf("disabled resyncer fired %d times", calls.Load())
	}
}

func TestResyncer_StopsWithContext(t *testing.T) {
	var calls atomic.Int32
	r := NewResyncer(func() bool { calls.Add(1); return false }, logger.NewNop(), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() { r.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return after context cancellation")
	}
}
