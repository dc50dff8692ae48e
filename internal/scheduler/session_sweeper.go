package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/goesview/internal/logger"
)

const DefaultSweepInterval = time.Minute

// SessionSweeper periodically drops viewer sessions whose browser went away.
type SessionSweeper struct {
	sweep    func(now time.Time) int
	logger   logger.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSessionSweeper creates a sweeper. sweep reports how many sessions it
// removed.
func NewSessionSweeper(sweep func(now time.Time) int, log logger.Logger, interval time.Duration) *SessionSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &SessionSweeper{
		sweep:    sweep,
		logger:   log,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins sweeping in the background.
func (s *SessionSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				if n := s.sweep(now); n > 0 {
					s.logger.Info("idle viewer sessions removed", logger.Int("count", n))
				}
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the sweeper and waits for its goroutine to exit.
func (s *SessionSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}
