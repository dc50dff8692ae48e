package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/goesview/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}

// Readyz reports whether the viewer has completed one successful reconcile.
// The broadcaster is ready as soon as it serves.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Loop != nil && !d.Loop.Status().Ready {
			writeJSON(w, d.Logger, http.StatusServiceUnavailable, readyzResponse{
				Ready:  false,
				Reason: "no successful reconcile yet",
			})
			return
		}
		writeJSON(w, d.Logger, http.StatusOK, readyzResponse{Ready: true})
	}
}
