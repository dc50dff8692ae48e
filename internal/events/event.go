// Package events carries the one-way "something changed" signal from the
// ingestion host to viewers over Server-Sent Events.
//
// Wire format (text/event-stream):
//
//	retry: 3000
//
//	event: hello
//	data: connected
//
//	id: 42
//	event: update
//	data: 1704067200.123
//
// Comment lines (":") are keep-alives. The update payload carries the trigger
// time but receivers treat the event as a pure trigger.
package events

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	EventHello   = "hello"
	EventUpdate  = "update"
	eventMessage = "message"
)

// Event is one dispatched SSE event.
type Event struct {
	ID   string
	Name string
	Data string
}

// Encode returns the wire form of e, terminated by a blank line.
func (e Event) Encode() string {
	var b strings.Builder
	if e.ID != "" {
		b.WriteString("id: " + e.ID + "\n")
	}
	if e.Name != "" {
		b.WriteString("event: " + e.Name + "\n")
	}
	for _, line := range strings.Split(e.Data, "\n") {
		b.WriteString("data: " + line + "\n")
	}
	b.WriteString("\n")
	return b.String()
}

// Decoder reads events from a text/event-stream body.
type Decoder struct {
	r      *bufio.Reader
	lastID string
	retry  time.Duration
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Retry returns the last reconnection delay announced by the server, or 0.
func (d *Decoder) Retry() time.Duration { return d.retry }

// LastID returns the last event id seen on the stream.
func (d *Decoder) LastID() string { return d.lastID }

// Next blocks until a complete event has been read. Blocks carrying neither
// data nor an event name are skipped. A partial event at EOF is discarded.
func (d *Decoder) Next() (Event, error) {
	var (
		ev      Event
		data    []string
		hasData bool
	)

	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			return Event{}, err
		}
		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")

		if line == "" {
			if !hasData && ev.Name == "" {
				ev = Event{}
				continue
			}
			if ev.Name == "" {
				ev.Name = eventMessage
			}
			ev.Data = strings.Join(data, "\n")
			ev.ID = d.lastID
			return ev, nil
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			ev.Name = value
		case "data":
			data = append(data, value)
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				d.lastID = value
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				d.retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
}
