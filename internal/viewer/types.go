// Package viewer keeps viewer sessions in sync with the image server: each
// session reconciles its selected satellite and image against freshly scraped
// listings and pushes the result to a display surface. Sessions share nothing.
package viewer

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUnknownSatellite = errors.New("satellite not in current listing")
	ErrUnknownImage     = errors.New("image not in current listing")
	ErrNotReady         = errors.New("no view available yet")
)

// State is the outcome of one reconcile cycle.
type State string

const (
	StateShowing      State = "showing"
	StateNoSatellites State = "no_satellites"
	StateNoImages     State = "no_images"
)

// Selection is the satellite and image currently on screen. Either field may be
// empty.
type Selection struct {
	Satellite string `json:"satellite"`
	Image     string `json:"image"`
}

// View is everything a display surface needs to draw one frame. It is derived
// from the Selection and the listings of a single cycle and never stored
// server side.
type View struct {
	State      State     `json:"state"`
	Satellites []string  `json:"satellites"`
	Images     []string  `json:"images"`
	Selection  Selection `json:"selection"`
	ImageURL   string    `json:"image_url,omitempty"`
	Text       string    `json:"text"`
	RenderedAt time.Time `json:"rendered_at"`
}

// Source lists satellites and images. listing.Client implements it.
type Source interface {
	ListSatellites(ctx context.Context) ([]string, error)
	ListImages(ctx context.Context, sat string) ([]string, error)
	ImageURL(sat, file string) string
}

// Display receives every rendered View. Implementations must not block for
// long; slow work such as downloading the image belongs in a goroutine.
type Display interface {
	Render(v View)
}

// DisplayFunc adapts a function to the Display interface.
type DisplayFunc func(View)

func (f DisplayFunc) Render(v View) { f(v) }
