package viewer

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/MrSnakeDoc/goesview/internal/listing"
	"github.com/MrSnakeDoc/goesview/internal/logger"
)

// SessionOptions configures a Session.
type SessionOptions struct {
	Source  Source
	Display Display
	Logger  logger.Logger
	Root    string           // listing root shown in the empty-state message
	Now     func() time.Time // for testing, defaults to time.Now
}

// Session holds the previous Selection and the listings of the last completed
// cycle. It is not safe for concurrent use; Loop serializes access.
type Session struct {
	src     Source
	display Display
	log     logger.Logger
	root    string
	now     func() time.Time
	nonce   nonceSource

	selection  Selection
	satellites []string
	images     []string
	last       View
	hasView    bool
}

// NewSession creates a session with an empty Selection.
func NewSession(opts SessionOptions) *Session {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	root := opts.Root
	if root == "" {
		root = listing.DefaultRoot
	}
	return &Session{
		src:     opts.Source,
		display: opts.Display,
		log:     log,
		root:    root,
		now:     now,
		nonce:   nonceSource{now: now},
	}
}

// Selection returns the current selection.
func (s *Session) Selection() Selection { return s.selection }

// Current returns the last rendered view, if any.
func (s *Session) Current() (View, bool) { return s.last, s.hasView }

// Seed adopts a view rendered by another session, listings included, so a new
// session can start without scraping. Nothing is rendered.
func (s *Session) Seed(v View) {
	v.Satellites = slices.Clone(v.Satellites)
	v.Images = slices.Clone(v.Images)
	s.commit(v.Selection, v.Satellites, v.Images)
	s.last = v
	s.hasView = true
}

// Reconcile re-scrapes the listings and recomputes the selection.
//
// The previously selected satellite is kept while it is still listed, else the
// first satellite wins. With autoPickNewest the newest image is always chosen;
// otherwise the previous image is kept while listed, else the newest remaining
// one is shown. On error nothing is rendered and the selection is unchanged.
func (s *Session) Reconcile(ctx context.Context, autoPickNewest bool) (View, error) {
	sats, err := s.src.ListSatellites(ctx)
	if err != nil {
		return View{}, fmt.Errorf("failed to list satellites: %w", err)
	}

	if len(sats) == 0 {
		s.commit(Selection{}, nil, nil)
		return s.publish(View{
			State: StateNoSatellites,
			Text:  fmt.Sprintf("No satellites detected under %s", s.root),
		}), nil
	}

	sat := s.selection.Satellite
	if !slices.Contains(sats, sat) {
		sat = sats[0]
	}

	images, err := s.src.ListImages(ctx, sat)
	if err != nil {
		return View{}, fmt.Errorf("failed to list images for %s: %w", sat, err)
	}

	if len(images) == 0 {
		s.commit(Selection{Satellite: sat}, sats, nil)
		return s.publish(View{
			State:      StateNoImages,
			Satellites: sats,
			Selection:  s.selection,
			Text:       fmt.Sprintf("No images found for %s", sat),
		}), nil
	}

	file := s.selection.Image
	if autoPickNewest || !slices.Contains(images, file) {
		file, _ = listing.Newest(images)
	}

	s.commit(Selection{Satellite: sat, Image: file}, sats, images)
	return s.render(), nil
}

// SelectSatellite switches to sat and reconciles without jumping to the newest
// image. sat must be part of the last satellite listing.
func (s *Session) SelectSatellite(ctx context.Context, sat string) (View, error) {
	if !slices.Contains(s.satellites, sat) {
		return View{}, fmt.Errorf("%w: %q", ErrUnknownSatellite, sat)
	}

	prev := s.selection
	s.selection = Selection{Satellite: sat}
	if sat == prev.Satellite {
		s.selection.Image = prev.Image
	}

	v, err := s.Reconcile(ctx, false)
	if err != nil {
		s.selection = prev
		return View{}, err
	}
	return v, nil
}

// SelectImage shows file without scraping. file must be part of the image
// listing of the current satellite.
func (s *Session) SelectImage(file string) (View, error) {
	if s.selection.Satellite == "" || !slices.Contains(s.images, file) {
		return View{}, fmt.Errorf("%w: %q", ErrUnknownImage, file)
	}
	s.selection.Image = file
	return s.render(), nil
}

func (s *Session) commit(sel Selection, sats, images []string) {
	s.selection = sel
	s.satellites = sats
	s.images = images
}

func (s *Session) publish(v View) View {
	v.RenderedAt = s.now()
	if v.Satellites == nil {
		v.Satellites = []string{}
	}
	if v.Images == nil {
		v.Images = []string{}
	}
	s.last = v
	s.hasView = true
	if s.display != nil {
		s.display.Render(v)
	}
	s.log.Debug("view rendered",
		logger.String("state", string(v.State)),
		logger.String("satellite", v.Selection.Satellite),
		logger.String("image", v.Selection.Image))
	return v
}
