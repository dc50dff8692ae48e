package events

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/MrSnakeDoc/goesview/internal/logger"
)

// Watcher reports changes of the trigger file touched by the ingestion
// pipeline. Filesystem notifications give low latency; the poll ticker
// covers filesystems where inotify does not fire (NFS, some bind mounts).
type Watcher struct {
	path     string
	poll     time.Duration
	log      logger.Logger
	onChange func(time.Time)

	last time.Time
}

func NewWatcher(path string, poll time.Duration, log logger.Logger, onChange func(time.Time)) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("trigger file path is required")
	}
	if onChange == nil {
		return nil, errors.New("change callback is required")
	}
	if poll <= 0 {
		poll = time.Second
	}
	return &Watcher{
		path:     filepath.Clean(path),
		poll:     poll,
		log:      log,
		onChange: onChange,
	}, nil
}

// Run blocks until ctx is cancelled. The mtime present at startup is taken
// as already seen.
func (w *Watcher) Run(ctx context.Context) error {
	if m, ok := w.mtime(); ok {
		w.last = m
	}

	var (
		fsEvents <-chan fsnotify.Event
		fsErrors <-chan error
	)
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Warn("fsnotify unavailable, polling only", logger.Error(err))
	} else {
		defer func() { _ = fsw.Close() }()
		if err := fsw.Add(filepath.Dir(w.path)); err != nil {
			w.log.Warn("cannot watch trigger directory, polling only",
				logger.String("dir", filepath.Dir(w.path)),
				logger.Error(err))
		} else {
			fsEvents, fsErrors = fsw.Events, fsw.Errors
		}
	}

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	w.log.Info("watching trigger file",
		logger.String("path", w.path),
		logger.Duration("poll", w.poll))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsEvents:
			if !ok {
				fsEvents = nil
				continue
			}
			if filepath.Clean(ev.Name) == w.path {
				w.check()
			}
		case err, ok := <-fsErrors:
			if !ok {
				fsErrors = nil
				continue
			}
			w.log.Warn("fsnotify error", logger.Error(err))
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	m, ok := w.mtime()
	if !ok || !m.After(w.last) {
		return
	}
	w.last = m
	w.log.Debug("trigger file changed", logger.Time("mtime", m))
	w.onChange(m)
}

func (w *Watcher) mtime() (time.Time, bool) {
	fi, err := os.Stat(w.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.log.Warn("failed to stat trigger file", logger.Error(err))
		}
		return time.Time{}, false
	}
	return fi.ModTime(), true
}
