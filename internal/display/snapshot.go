// Package display implements the surfaces a viewer session renders to.
package display

import (
	"sync"

	"github.com/MrSnakeDoc/goesview/internal/viewer"
)

// Snapshot keeps the latest view for concurrent readers such as HTTP handlers
// and notifies subscribers after every render.
type Snapshot struct {
	mu      sync.RWMutex
	view    viewer.View
	has     bool
	renders int64
	subs    []func(viewer.View)
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{}
}

// OnRender registers fn to be called after each render. Register before the
// viewer loop starts.
func (s *Snapshot) OnRender(fn func(viewer.View)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Snapshot) Render(v viewer.View) {
	s.mu.Lock()
	s.view = v
	s.has = true
	s.renders++
	subs := s.subs
	s.mu.Unlock()

	for _, fn := range subs {
		fn(v)
	}
}

// Get returns the latest view and the number of renders so far.
func (s *Snapshot) Get() (viewer.View, int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view, s.renders, s.has
}

// Multi fans one view out to several displays, in order.
type Multi []viewer.Display

func (m Multi) Render(v viewer.View) {
	for _, d := range m {
		if d != nil {
			d.Render(v)
		}
	}
}
