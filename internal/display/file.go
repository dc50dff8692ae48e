package display

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/MrSnakeDoc/goesview/internal/logger"
	"github.com/MrSnakeDoc/goesview/internal/utils"
	"github.com/MrSnakeDoc/goesview/internal/viewer"
)

const (
	ImageFile = "current.png"
	TextFile  = "current.txt"

	maxImageBytes = 256 << 20
)

// File mirrors the display into a directory: the shown image as current.png
// and the timestamp line (or empty-state message) as current.txt. Both are
// replaced atomically so readers never see a partial file.
//
// Image downloads are fire-and-forget. A newer render cancels the running
// download, and a download only lands on disk if no newer render started in
// the meantime.
type File struct {
	dir    string
	client *http.Client
	log    logger.Logger
	base   context.Context

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFile creates dir if needed. Downloads stop when ctx is done.
func NewFile(ctx context.Context, dir string, client *http.Client, log logger.Logger) (*File, error) {
	if dir == "" {
		return nil, errors.New("output directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &File{
		dir:    dir,
		client: client,
		log:    log,
		base:   ctx,
	}, nil
}

func (f *File) Render(v viewer.View) {
	if err := atomic.WriteFile(filepath.Join(f.dir, TextFile), strings.NewReader(v.Text+"\n")); err != nil {
		f.log.Warn("failed to write timestamp file", logger.Error(err))
	}

	f.mu.Lock()
	f.gen++
	gen := f.gen
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}

	if v.State != viewer.StateShowing || v.ImageURL == "" {
		err := os.Remove(filepath.Join(f.dir, ImageFile))
		f.mu.Unlock()
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			f.log.Warn("failed to clear image file", logger.Error(err))
		}
		return
	}

	ctx, cancel := context.WithCancel(f.base)
	f.cancel = cancel
	f.mu.Unlock()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer cancel()
		if err := f.download(ctx, gen, v.ImageURL); err != nil {
			if ctx.Err() != nil {
				f.log.Debug("image download superseded", logger.String("url", v.ImageURL))
				return
			}
			f.log.Warn("image download failed",
				logger.String("url", v.ImageURL),
				logger.Error(err))
		}
	}()
}

// Wait blocks until all running downloads have finished.
func (f *File) Wait() {
	f.wg.Wait()
}

func (f *File) download(ctx context.Context, gen uint64, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch image: %w", err)
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("image server returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen {
		return context.Canceled
	}
	if err := atomic.WriteFile(filepath.Join(f.dir, ImageFile), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	return nil
}
