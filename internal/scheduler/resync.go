package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/goesview/internal/logger"
)

// Resyncer fires a reconcile on a fixed interval so a silently broken push
// channel cannot freeze the display.
type Resyncer struct {
	notify   func() bool
	logger   logger.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewResyncer creates a resyncer. notify reports false when the trigger was
// merged into one already pending.
func NewResyncer(notify func() bool, log logger.Logger, interval time.Duration) *Resyncer {
	return &Resyncer{
		notify:   notify,
		logger:   log,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic resync. A zero interval disables it.
func (r *Resyncer) Start(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Info("periodic resync disabled")
		return
	}

	r.logger.Info("periodic resync enabled", logger.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !r.notify() {
					r.logger.Debug("resync merged into pending reconcile")
				}
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the resyncer and waits for its goroutine to exit.
func (r *Resyncer) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}
