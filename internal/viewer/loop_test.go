package viewer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// gatedSource blocks every satellite listing until the test releases it.
type gatedSource struct {
	entered chan struct{}
	gate    chan struct{}
	calls   atomic.Int32
	fail    atomic.Bool
}

func newGatedSource() *gatedSource {
	return &gatedSource{
		entered: make(chan struct{}, 16),
		gate:    make(chan struct{}),
	}
}

func (g *gatedSource) ListSatellites(ctx context.Context) ([]string, error) {
	g.calls.Add(1)
	g.entered <- struct{}{}
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if g.fail.Load() {
		return nil, errors.New("listing unavailable")
	}
	return []string{"GOES-16"}, nil
}

func (g *gatedSource) ListImages(context.Context, string) ([]string, error) {
	return []string{"G16_a_20240101T000000Z.png", "G16_a_20240101T001000Z.png"}, nil
}

func (g *gatedSource) ImageURL(sat, file string) string { return "/" + sat + "/" + file }

type syncRecorder struct {
	mu    sync.Mutex
	views []View
}

func (r *syncRecorder) Render(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *syncRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

func waitEntered(t *testing.T, g *gatedSource) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a reconcile cycle")
	}
}

func startLoop(t *testing.T, src Source, display Display) *Loop {
	t.Helper()
	session := NewSession(SessionOptions{Source: src, Display: display})
	loop := NewLoop(session, nil, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return loop
}

func waitCycles(t *testing.T, loop *Loop, n int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for loop.Status().Cycles < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d cycles, status %+v", n, loop.Status())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLoopCoalescesTriggers(t *testing.T) {
	src := newGatedSource()
	rec := &syncRecorder{}
	loop := startLoop(t, src, rec)

	// Initial cycle is in flight.
	waitEntered(t, src)

	if !loop.Notify() {
		t.Error("first Notify() during a cycle = false, want true")
	}
	if loop.Notify() || loop.Notify() {
		t.Error("extra Notify() calls should be coalesced")
	}

	src.gate <- struct{}{}
	waitEntered(t, src)
	src.gate <- struct{}{}
	waitCycles(t, loop, 2)

	// A third cycle would show up here if the triggers were not merged.
	select {
	case <-src.entered:
		t.Fatal("unexpected third reconcile cycle")
	case <-time.After(50 * time.Millisecond):
	}

	if got := src.calls.Load(); got != 2 {
		t.Errorf("satellite listings = %d, want 2 (initial + one coalesced)", got)
	}
	st := loop.Status()
	if st.Coalesced != 2 {
		t.Errorf("Status.Coalesced = %d, want 2", st.Coalesced)
	}
	if !st.Ready || st.Cycles != 2 {
		t.Errorf("Status = %+v, want ready after 2 cycles", st)
	}
	if rec.count() != 2 {
		t.Errorf("rendered %d views, want 2", rec.count())
	}
}

func TestLoopFailureKeepsView(t *testing.T) {
	src := newGatedSource()
	rec := &syncRecorder{}
	loop := startLoop(t, src, rec)

	waitEntered(t, src)
	src.gate <- struct{}{}
	waitCycles(t, loop, 1)

	src.fail.Store(true)
	loop.Notify()
	waitEntered(t, src)
	src.gate <- struct{}{}
	waitCycles(t, loop, 2)

	st := loop.Status()
	if st.Failures != 1 || st.LastError == "" {
		t.Errorf("Status = %+v, want one recorded failure", st)
	}
	if !st.Ready {
		t.Error("Status.Ready = false, want true after an earlier success")
	}
	if rec.count() != 1 {
		t.Errorf("rendered %d views, want 1 (nothing for the failure)", rec.count())
	}
}

func TestLoopNotReadyUntilFirstSuccess(t *testing.T) {
	src := newGatedSource()
	src.fail.Store(true)
	loop := startLoop(t, src, &syncRecorder{})

	waitEntered(t, src)
	src.gate <- struct{}{}
	waitCycles(t, loop, 1)

	if st := loop.Status(); st.Ready || st.Failures != 1 {
		t.Errorf("Status = %+v, want not ready with one failure", st)
	}
}
