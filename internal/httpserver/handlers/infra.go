package handlers

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/MrSnakeDoc/goesview/internal/httpserver/deps"
)

type componentStatus struct {
	OK       bool   `json:"ok"`
	Mode     string `json:"mode,omitempty"`
	Target   string `json:"target,omitempty"`
	Last     string `json:"last,omitempty"`
	Clients  *int   `json:"clients,omitempty"`
	Counter  *int64 `json:"counter,omitempty"`
	Impact   string `json:"impact,omitempty"`
	Error    string `json:"error,omitempty"`
	Critical bool   `json:"-"`
}

type infraResponse struct {
	Role       string                     `json:"role"`
	Mode       string                     `json:"mode"`
	Components map[string]componentStatus `json:"components"`
}

// Infra reports every component this daemon runs.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components := make(map[string]componentStatus)

		if d.Loop != nil {
			components["listing"] = checkListing(d)
			components["push"] = checkSubscriber(d)
		}
		if d.Sessions != nil {
			sessions := d.Sessions.Len()
			components["sessions"] = componentStatus{OK: true, Clients: &sessions}
		}
		if d.Hub != nil {
			components["sse"] = checkHub(d)
		}
		if d.TriggerFile != "" {
			components["trigger"] = checkTrigger(d.TriggerFile)
		}
		components["redis"] = checkRedis(r.Context(), d)

		writeJSON(w, d.Logger, http.StatusOK, infraResponse{
			Role:       d.Role,
			Mode:       determineMode(components),
			Components: components,
		})
	}
}

// determineMode is "critical" when a critical component is down, "degraded"
// when anything else is, and "live" otherwise.
func determineMode(components map[string]componentStatus) string {
	mode := "live"
	for _, c := range components {
		if c.OK {
			continue
		}
		if c.Critical {
			return "critical"
		}
		mode = "degraded"
	}
	return mode
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}

func checkListing(d deps.Deps) componentStatus {
	st := d.Loop.Status()
	failures := st.Failures
	c := componentStatus{
		OK:       st.Ready && (st.LastErrorAt.IsZero() || st.LastSuccess.After(st.LastErrorAt)),
		Target:   d.ListingURL,
		Last:     formatTime(st.LastSuccess),
		Counter:  &failures,
		Critical: !st.Ready,
	}
	if !c.OK {
		c.Error = st.LastError
		c.Impact = "display frozen on last good view"
	}
	return c
}

func checkSubscriber(d deps.Deps) componentStatus {
	if d.Subscriber == nil {
		return componentStatus{OK: true, Mode: "disabled", Impact: "updates only via resync and /reload"}
	}
	st := d.Subscriber.Status()
	triggers := int64(st.Triggers)
	c := componentStatus{
		OK:      st.Connected,
		Mode:    "sse",
		Last:    formatTime(st.LastEventAt),
		Counter: &triggers,
	}
	if !st.Connected {
		c.Error = st.LastError
		c.Impact = "new images wait for the next resync"
	}
	return c
}

func checkHub(d deps.Deps) componentStatus {
	clients := d.Hub.Clients()
	sent := int64(d.Hub.Sent())
	return componentStatus{OK: true, Clients: &clients, Counter: &sent}
}

func checkTrigger(path string) componentStatus {
	fi, err := os.Stat(path)
	switch {
	case err == nil:
		return componentStatus{OK: true, Target: path, Last: formatTime(fi.ModTime())}
	case errors.Is(err, os.ErrNotExist):
		return componentStatus{OK: true, Target: path, Last: "never", Impact: "waiting for first ingest"}
	default:
		return componentStatus{OK: false, Target: path, Error: err.Error(), Critical: true}
	}
}

func checkRedis(ctx context.Context, d deps.Deps) componentStatus {
	if d.RedisClient == nil {
		return componentStatus{OK: true, Mode: "disabled"}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.RedisClient.Ping(ctx).Err(); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "relay",
			Impact: "updates from other instances are not relayed",
			Error:  err.Error(),
		}
	}
	return componentStatus{OK: true, Mode: "relay"}
}
