package viewer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/goesview/internal/logger"
)

const (
	DefaultSessionIdleTTL = 30 * time.Minute
	DefaultMaxSessions    = 1024
)

// refresh levels, ordered: a newest request absorbs a pending keep request.
const (
	refreshNone int32 = iota
	refreshKeep
	refreshNewest
)

// PoolOptions configures a Pool.
type PoolOptions struct {
	Source       Source
	Logger       logger.Logger
	Root         string
	CycleTimeout time.Duration       // bound on one reconcile (default: DefaultCycleTimeout)
	IdleTTL      time.Duration       // sessions unseen for longer are swept (default: 30m)
	MaxSessions  int                 // oldest session is evicted beyond this (default: 1024)
	Seed         func() (View, bool) // optional, first view of a new session
	Now          func() time.Time    // for testing, defaults to time.Now
}

// Pool keeps one Session per browser, keyed by an opaque id. Sessions are
// independent: a selection made in one never shows up in another.
//
// Sessions reconcile lazily. Notify and Refresh only mark every session, and
// the next read or selection on a marked session scrapes once, however many
// marks piled up in between.
type Pool struct {
	opts PoolOptions
	log  logger.Logger

	mu   sync.Mutex
	tabs map[string]*tab
}

type tab struct {
	mu      sync.Mutex
	session *Session
	pinned  bool // the user picked an image by hand

	pending  atomic.Int32
	lastSeen time.Time // guarded by Pool.mu
}

// raise records a pending refresh unless a stronger one is already queued.
func (t *tab) raise(level int32) {
	for {
		cur := t.pending.Load()
		if cur >= level || t.pending.CompareAndSwap(cur, level) {
			return
		}
	}
}

// NewPool returns an empty pool.
func NewPool(opts PoolOptions) *Pool {
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = DefaultCycleTimeout
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultSessionIdleTTL
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Pool{
		opts: opts,
		log:  opts.Logger,
		tabs: make(map[string]*tab),
	}
}

// Len returns the number of live sessions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tabs)
}

// Notify marks every session to jump to the newest image on its next read: a
// new capture has arrived.
func (p *Pool) Notify() int { return p.mark(refreshNewest) }

// Refresh marks every session for a re-scrape that keeps an image the user
// picked by hand. Sessions that never picked one still follow the newest.
func (p *Pool) Refresh() int { return p.mark(refreshKeep) }

func (p *Pool) mark(level int32) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.tabs {
		t.raise(level)
	}
	return len(p.tabs)
}

// State returns the session's current view, reconciling first when a refresh
// is pending. When that reconcile fails the previous view is returned; only a
// session without any view reports ErrNotReady.
func (p *Pool) State(ctx context.Context, id string) (View, error) {
	t := p.get(id)
	t.mu.Lock()
	defer t.mu.Unlock()
	return p.sync(ctx, id, t)
}

// SelectSatellite switches the session to sat.
func (p *Pool) SelectSatellite(ctx context.Context, id, sat string) (View, error) {
	t := p.get(id)
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := p.sync(ctx, id, t); err != nil {
		return View{}, err
	}
	prev := t.session.Selection().Satellite

	cctx, cancel := context.WithTimeout(ctx, p.opts.CycleTimeout)
	defer cancel()
	v, err := t.session.SelectSatellite(cctx, sat)
	if err != nil {
		return View{}, err
	}
	if sat != prev {
		t.pinned = false
	}
	return v, nil
}

// SelectImage shows file in the session and pins it against safety-net
// refreshes until the next new capture.
func (p *Pool) SelectImage(ctx context.Context, id, file string) (View, error) {
	t := p.get(id)
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := p.sync(ctx, id, t); err != nil {
		return View{}, err
	}
	v, err := t.session.SelectImage(file)
	if err != nil {
		return View{}, err
	}
	t.pinned = true
	return v, nil
}

// Sweep drops sessions idle for longer than IdleTTL and reports how many went.
func (p *Pool) Sweep(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for id, t := range p.tabs {
		if now.Sub(t.lastSeen) > p.opts.IdleTTL {
			delete(p.tabs, id)
			n++
		}
	}
	return n
}

func (p *Pool) get(id string) *tab {
	now := p.opts.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tabs[id]
	if !ok {
		if len(p.tabs) >= p.opts.MaxSessions {
			p.evictOldestLocked()
		}
		t = p.newTab()
		p.tabs[id] = t
	}
	t.lastSeen = now
	return t
}

func (p *Pool) newTab() *tab {
	t := &tab{session: NewSession(SessionOptions{
		Source: p.opts.Source,
		Logger: p.log,
		Root:   p.opts.Root,
		Now:    p.opts.Now,
	})}
	if p.opts.Seed != nil {
		if v, ok := p.opts.Seed(); ok {
			t.session.Seed(v)
		}
	}
	return t
}

func (p *Pool) evictOldestLocked() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, t := range p.tabs {
		if oldestID == "" || t.lastSeen.Before(oldest) {
			oldestID, oldest = id, t.lastSeen
		}
	}
	delete(p.tabs, oldestID)
	p.log.Debug("viewer session evicted", logger.Int("max_sessions", p.opts.MaxSessions))
}

// sync runs the pending refresh, if any. Caller holds t.mu.
func (p *Pool) sync(ctx context.Context, id string, t *tab) (View, error) {
	last, has := t.session.Current()
	want := t.pending.Swap(refreshNone)
	if !has {
		want = refreshNewest
	}
	if want == refreshNone {
		return last, nil
	}

	autoPick := want == refreshNewest || !t.pinned

	cctx, cancel := context.WithTimeout(ctx, p.opts.CycleTimeout)
	defer cancel()
	v, err := t.session.Reconcile(cctx, autoPick)
	if err != nil {
		t.raise(want)
		if has {
			p.log.Warn("session refresh failed, keeping previous view",
				logger.String("session", shortID(id)),
				logger.Error(err))
			return last, nil
		}
		return View{}, fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	if autoPick {
		t.pinned = false
	}
	return v, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
