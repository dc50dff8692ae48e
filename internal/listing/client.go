// Package listing scrapes the satellite and image directory listings served
// by the image web server. There is no structured API: every call downloads
// an HTML index page and extracts tokens from it.
package listing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/MrSnakeDoc/goesview/internal/utils"
)

// maxListingBytes bounds how much of a listing page is read.
const maxListingBytes = 32 << 20

// StatusError is returned when the listing server answers with a non-2xx status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("listing %s returned status %d", e.URL, e.Code)
}

// Options configures a Client.
type Options struct {
	BaseURL     string // ex: "https://wx.example.org"
	Conventions *Conventions
	Extractor   Extractor
	Timeout     time.Duration
	UserAgent   string
	HTTPClient  *http.Client // optional, overrides Timeout
}

// Client lists satellites and images from the directory-listing server.
type Client struct {
	base      *url.URL
	conv      *Conventions
	extractor Extractor
	http      *http.Client
	userAgent string
}

// NewClient validates the options and builds a Client.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("listing base URL is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid listing base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("listing base URL must be http or https, got %q", opts.BaseURL)
	}

	conv := opts.Conventions
	if conv == nil {
		conv = DefaultConventions()
	}
	ex := opts.Extractor
	if ex == nil {
		ex = AnchorExtractor{}
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		base:      base,
		conv:      conv,
		extractor: ex,
		http:      hc,
		userAgent: opts.UserAgent,
	}, nil
}

// Conventions returns the naming conventions in use.
func (c *Client) Conventions() *Conventions { return c.conv }

// RootURL returns the URL of the satellite listing.
func (c *Client) RootURL() string { return c.urlFor(true) }

// ListSatellites returns the deduplicated, ascending list of satellites found
// in the root listing. An empty listing is not an error.
func (c *Client) ListSatellites(ctx context.Context) ([]string, error) {
	body, err := c.fetch(ctx, c.urlFor(true))
	if err != nil {
		return nil, err
	}
	sats := Dedupe(c.extractor.Satellites(body, c.conv))
	sort.Strings(sats)
	return sats, nil
}

// ListImages returns the deduplicated image filenames of one satellite in the
// order they first appear in its listing.
func (c *Client) ListImages(ctx context.Context, sat string) ([]string, error) {
	body, err := c.fetch(ctx, c.urlFor(true, sat))
	if err != nil {
		return nil, err
	}
	return Dedupe(c.extractor.Images(body, c.conv)), nil
}

// ImageURL returns the plain URL of one image, without any cache-busting query.
func (c *Client) ImageURL(sat, file string) string {
	return c.urlFor(false, sat, file)
}

func (c *Client) urlFor(dir bool, segments ...string) string {
	u := *c.base
	parts := append([]string{"/", c.base.Path, c.conv.Root}, segments...)
	p := path.Join(parts...)
	if dir && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	u.Path = p
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func (c *Client) fetch(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html,*/*;q=0.5")
	req.Header.Set("Cache-Control", "no-cache")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing %s: %w", u, err)
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{URL: u, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListingBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read listing %s: %w", u, err)
	}
	return body, nil
}

// Dedupe drops repeated tokens, keeping the first occurrence of each.
func Dedupe(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Newest returns the lexicographically greatest filename. Because the embedded
// timestamps are fixed-width and zero-padded this is the most recent capture
// for names sharing a prefix.
func Newest(images []string) (string, bool) {
	if len(images) == 0 {
		return "", false
	}
	newest := images[0]
	for _, f := range images[1:] {
		if f > newest {
			newest = f
		}
	}
	return newest, true
}
