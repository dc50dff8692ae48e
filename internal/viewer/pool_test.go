package viewer

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestPool(src Source, opts PoolOptions) *Pool {
	opts.Source = src
	opts.Root = "/goes/current/"
	return NewPool(opts)
}

func mustState(t *testing.T, p *Pool, id string) View {
	t.Helper()
	v, err := p.State(context.Background(), id)
	if err != nil {
		t.Fatalf("State(%q) error = %v", id, err)
	}
	return v
}

func TestPoolSessionsAreIndependent(t *testing.T) {
	p := newTestPool(scenarioSource(), PoolOptions{})
	ctx := context.Background()

	mustState(t, p, "a")
	mustState(t, p, "b")

	if _, err := p.SelectSatellite(ctx, "a", "GOES-18"); err != nil {
		t.Fatalf("SelectSatellite() error = %v", err)
	}

	a := mustState(t, p, "a")
	b := mustState(t, p, "b")

	if want := (Selection{Satellite: "GOES-18", Image: "G18_a_20240101T001000Z.png"}); a.Selection != want {
		t.Errorf("session a selection = %+v, want %+v", a.Selection, want)
	}
	if want := (Selection{Satellite: "GOES-16", Image: "G16_foo_20240101T000000Z.png"}); b.Selection != want {
		t.Errorf("session b selection = %+v, want %+v", b.Selection, want)
	}

	if _, err := p.SelectImage(ctx, "b", "G16_bar_20240101T010000Z.png"); err != nil {
		t.Fatalf("SelectImage() error = %v", err)
	}
	if got := mustState(t, p, "a").Selection.Image; got != "G18_a_20240101T001000Z.png" {
		t.Errorf("session a image = %q after b picked an image", got)
	}
}

func TestPoolStateScrapesOnlyWhenMarked(t *testing.T) {
	src := scenarioSource()
	p := newTestPool(src, PoolOptions{})

	mustState(t, p, "a")
	mustState(t, p, "a")
	if src.satCalls != 1 {
		t.Fatalf("satellite listings = %d, want 1", src.satCalls)
	}

	if n := p.Notify(); n != 1 {
		t.Errorf("Notify() marked %d sessions, want 1", n)
	}
	p.Notify()
	p.Refresh()

	mustState(t, p, "a")
	mustState(t, p, "a")
	if src.satCalls != 2 {
		t.Errorf("satellite listings = %d, want 2 (marks are merged)", src.satCalls)
	}
}

func TestPoolNotifyJumpsToNewest(t *testing.T) {
	src := scenarioSource()
	p := newTestPool(src, PoolOptions{})
	ctx := context.Background()

	mustState(t, p, "a")
	if _, err := p.SelectImage(ctx, "a", "G16_bar_20240101T010000Z.png"); err != nil {
		t.Fatalf("SelectImage() error = %v", err)
	}

	src.images["GOES-16"] = append(src.images["GOES-16"], "G16_zed_20240101T020000Z.png")
	p.Notify()

	if got := mustState(t, p, "a").Selection.Image; got != "G16_zed_20240101T020000Z.png" {
		t.Errorf("image after new capture = %q, want the newest", got)
	}
}

func TestPoolRefreshKeepsPinnedImage(t *testing.T) {
	src := scenarioSource()
	p := newTestPool(src, PoolOptions{})
	ctx := context.Background()

	mustState(t, p, "pinned")
	mustState(t, p, "follower")
	if _, err := p.SelectImage(ctx, "pinned", "G16_bar_20240101T010000Z.png"); err != nil {
		t.Fatalf("SelectImage() error = %v", err)
	}

	src.images["GOES-16"] = append(src.images["GOES-16"], "G16_zed_20240101T020000Z.png")
	p.Refresh()

	pinned := mustState(t, p, "pinned")
	if pinned.Selection.Image != "G16_bar_20240101T010000Z.png" {
		t.Errorf("pinned image after refresh = %q, want it kept", pinned.Selection.Image)
	}
	if len(pinned.Images) != 3 {
		t.Errorf("pinned session listing has %d images, want the refreshed 3", len(pinned.Images))
	}
	if got := mustState(t, p, "follower").Selection.Image; got != "G16_zed_20240101T020000Z.png" {
		t.Errorf("follower image after refresh = %q, want the newest", got)
	}
}

func TestPoolSelectSatelliteUnknown(t *testing.T) {
	p := newTestPool(scenarioSource(), PoolOptions{})
	if _, err := p.SelectSatellite(context.Background(), "a", "GOES-99"); !errors.Is(err, ErrUnknownSatellite) {
		t.Errorf("SelectSatellite() error = %v, want ErrUnknownSatellite", err)
	}
}

func TestPoolSeedAvoidsScraping(t *testing.T) {
	src := scenarioSource()
	seed := View{
		State:      StateShowing,
		Satellites: []string{"GOES-16", "GOES-18"},
		Images:     []string{"G16_foo_20240101T000000Z.png", "G16_bar_20240101T010000Z.png"},
		Selection:  Selection{Satellite: "GOES-16", Image: "G16_foo_20240101T000000Z.png"},
		ImageURL:   "/goes/current/GOES-16/G16_foo_20240101T000000Z.png?t=1",
	}
	p := newTestPool(src, PoolOptions{Seed: func() (View, bool) { return seed, true }})

	v := mustState(t, p, "a")
	if v.Selection != seed.Selection || src.satCalls != 0 {
		t.Errorf("State() = %+v after %d listings, want the seed without scraping", v.Selection, src.satCalls)
	}

	if _, err := p.SelectImage(context.Background(), "a", "G16_bar_20240101T010000Z.png"); err != nil {
		t.Errorf("SelectImage() on seeded listing error = %v", err)
	}
	seed.Images[0] = "mutated"
	if got := mustState(t, p, "a").Images[0]; got != "G16_foo_20240101T000000Z.png" {
		t.Errorf("seeded listing shares memory with the seed: %q", got)
	}
}

func TestPoolNotReadyWithoutView(t *testing.T) {
	src := scenarioSource()
	src.satErr = errors.New("connection refused")
	p := newTestPool(src, PoolOptions{})

	if _, err := p.State(context.Background(), "a"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("State() error = %v, want ErrNotReady", err)
	}

	src.satErr = nil
	if v := mustState(t, p, "a"); v.State != StateShowing {
		t.Errorf("State() after recovery = %q, want showing", v.State)
	}
}

func TestPoolRefreshFailureKeepsView(t *testing.T) {
	src := scenarioSource()
	p := newTestPool(src, PoolOptions{})

	first := mustState(t, p, "a")

	src.satErr = errors.New("connection refused")
	p.Notify()
	if v := mustState(t, p, "a"); v.ImageURL != first.ImageURL {
		t.Errorf("view changed on a failed refresh: %q -> %q", first.ImageURL, v.ImageURL)
	}

	// The mark survives the failure and is retried on the next read.
	src.satErr = nil
	calls := src.satCalls
	mustState(t, p, "a")
	if src.satCalls != calls+1 {
		t.Errorf("satellite listings = %d, want a retry after the failure", src.satCalls-calls)
	}
}

func TestPoolSweepAndEviction(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := newTestPool(scenarioSource(), PoolOptions{
		IdleTTL:     time.Minute,
		MaxSessions: 2,
		Now:         func() time.Time { return now },
	})

	mustState(t, p, "a")
	now = now.Add(time.Second)
	mustState(t, p, "b")
	now = now.Add(time.Second)
	mustState(t, p, "c")

	if p.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", p.Len())
	}
	p.mu.Lock()
	_, hasA := p.tabs["a"]
	p.mu.Unlock()
	if hasA {
		t.Error("least recently seen session was not evicted")
	}

	if n := p.Sweep(now.Add(30 * time.Second)); n != 0 {
		t.Errorf("Sweep() before TTL removed %d", n)
	}
	if n := p.Sweep(now.Add(2 * time.Minute)); n != 2 {
		t.Errorf("Sweep() after TTL removed %d, want 2", n)
	}
	if p.Len() != 0 {
		t.Errorf("Len() = %d after sweep, want 0", p.Len())
	}
}
