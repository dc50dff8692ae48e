package listing

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
)

// Extractor pulls raw satellite and image tokens out of a listing page.
// Results may contain duplicates; the Client dedupes them.
type Extractor interface {
	Satellites(body []byte, c *Conventions) []string
	Images(body []byte, c *Conventions) []string
}

// NewExtractor returns the extractor registered under name ("anchor" or
// "pattern").
func NewExtractor(name string) (Extractor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "anchor":
		return AnchorExtractor{}, nil
	case "pattern":
		return PatternExtractor{}, nil
	default:
		return nil, fmt.Errorf("unknown listing parser %q (want anchor or pattern)", name)
	}
}

// PatternExtractor scans the raw page text. It works on any markup, well-formed
// or not, as long as the expected substrings are present.
type PatternExtractor struct{}

func (PatternExtractor) Satellites(body []byte, c *Conventions) []string {
	idx := c.satHref.SubexpIndex("sat")
	matches := c.satHref.FindAllSubmatch(body, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, string(m[idx]))
	}
	return out
}

func (PatternExtractor) Images(body []byte, c *Conventions) []string {
	matches := c.imageFind.FindAll(body, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, string(m))
	}
	return out
}

// AnchorExtractor tokenizes the page and only looks at href attributes and
// text nodes. The html tokenizer never fails on broken markup; it stops at EOF.
type AnchorExtractor struct{}

func (AnchorExtractor) Satellites(body []byte, c *Conventions) []string {
	var out []string
	walk(body, func(href string) {
		if sat, ok := directoryName(href); ok && c.IsSatellite(sat) {
			out = append(out, sat)
		}
	}, nil)
	return out
}

func (AnchorExtractor) Images(body []byte, c *Conventions) []string {
	var out []string
	collect := func(s string) {
		out = append(out, c.imageFind.FindAllString(s, -1)...)
	}
	walk(body, func(href string) {
		if u, err := url.PathUnescape(href); err == nil {
			href = u
		}
		collect(href)
	}, collect)
	return out
}

// walk calls onHref for every href attribute and onText for every text node,
// in document order. Either callback may be nil.
func walk(body []byte, onHref, onText func(string)) {
	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return
		case html.StartTagToken, html.SelfClosingTagToken:
			if onHref == nil {
				continue
			}
			_, hasAttr := z.TagName()
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) == "href" {
					onHref(string(val))
				}
			}
		case html.TextToken:
			if onText != nil {
				onText(string(z.Text()))
			}
		}
	}
}

// directoryName returns the last path segment of a directory link such as
// "GOES-16/", "./GOES-16/" or "/goes/current/GOES-16/".
func directoryName(href string) (string, bool) {
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	if !strings.HasSuffix(href, "/") || href == "/" {
		return "", false
	}
	if u, err := url.PathUnescape(href); err == nil {
		href = u
	}
	name := path.Base(strings.TrimSuffix(href, "/"))
	if name == "." || name == ".." || name == "/" {
		return "", false
	}
	return name, true
}
