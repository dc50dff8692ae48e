package viewer

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/goesview/internal/logger"
)

// DefaultCycleTimeout bounds one push-triggered reconcile cycle.
const DefaultCycleTimeout = 30 * time.Second

// Loop owns the daemon's own Session and runs every reconcile on it from a
// single goroutine, so a cycle never mixes listings from two different
// triggers. Its session always follows the newest image; browsers get their
// own sessions from a Pool.
//
// Triggers are coalesced: while a cycle is running, any number of Notify calls
// collapse into one pending follow-up cycle.
type Loop struct {
	session      *Session
	log          logger.Logger
	cycleTimeout time.Duration

	notify chan struct{}

	mu     sync.RWMutex
	status Status
}

// Status reports the health of the reconcile loop.
type Status struct {
	Ready       bool      `json:"ready"`
	Cycles      int64     `json:"cycles"`
	Failures    int64     `json:"failures"`
	Coalesced   int64     `json:"coalesced"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitempty"`
}

// NewLoop wraps session. cycleTimeout <= 0 uses DefaultCycleTimeout.
func NewLoop(session *Session, log logger.Logger, cycleTimeout time.Duration) *Loop {
	if cycleTimeout <= 0 {
		cycleTimeout = DefaultCycleTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Loop{
		session:      session,
		log:          log,
		cycleTimeout: cycleTimeout,
		notify:       make(chan struct{}, 1),
	}
}

// Notify schedules a reconcile that jumps to the newest image. It never
// blocks and reports false when a cycle was already pending.
func (l *Loop) Notify() bool {
	select {
	case l.notify <- struct{}{}:
		return true
	default:
		l.mu.Lock()
		l.status.Coalesced++
		l.mu.Unlock()
		return false
	}
}

// Status returns a copy of the loop status.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// Run performs the initial reconcile and then serves triggers until ctx is
// done.
func (l *Loop) Run(ctx context.Context) error {
	l.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.notify:
			l.cycle(ctx)
		}
	}
}

func (l *Loop) cycle(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, l.cycleTimeout)
	defer cancel()

	start := time.Now()
	v, err := l.session.Reconcile(cctx, true)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		l.recordFailure(err)
		l.log.Error("reconcile failed, keeping previous view",
			logger.Duration("elapsed", time.Since(start)),
			logger.Error(err))
		return
	}

	l.recordSuccess()
	l.log.Info("reconciled",
		logger.String("state", string(v.State)),
		logger.String("satellite", v.Selection.Satellite),
		logger.String("image", v.Selection.Image),
		logger.Duration("elapsed", time.Since(start)))
}

func (l *Loop) recordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status.Ready = true
	l.status.Cycles++
	l.status.LastSuccess = time.Now()
}

func (l *Loop) recordFailure(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status.Cycles++
	l.status.Failures++
	l.status.LastError = err.Error()
	l.status.LastErrorAt = time.Now()
}
