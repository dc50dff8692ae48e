package viewer

import (
	"strconv"
	"strings"
	"time"

	"github.com/MrSnakeDoc/goesview/internal/filename"
)

// render publishes the current selection. The image URL carries a nonce that
// differs on every call so neither the browser nor an intermediate proxy can
// serve a stale copy.
func (s *Session) render() View {
	sel := s.selection
	return s.publish(View{
		State:      StateShowing,
		Satellites: s.satellites,
		Images:     s.images,
		Selection:  sel,
		ImageURL:   bust(s.src.ImageURL(sel.Satellite, sel.Image), s.nonce.next()),
		Text:       filename.Format(sel.Image),
	})
}

func bust(u string, nonce int64) string {
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "t=" + strconv.FormatInt(nonce, 10)
}

// nonceSource hands out wall-clock milliseconds, bumped when the clock has not
// moved so that two renders never share a value.
type nonceSource struct {
	now  func() time.Time
	last int64
}

func (n *nonceSource) next() int64 {
	v := n.now().UnixMilli()
	if v <= n.last {
		v = n.last + 1
	}
	n.last = v
	return v
}
