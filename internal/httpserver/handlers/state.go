package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MrSnakeDoc/goesview/internal/filename"
	"github.com/MrSnakeDoc/goesview/internal/httpserver/deps"
	"github.com/MrSnakeDoc/goesview/internal/logger"
	"github.com/MrSnakeDoc/goesview/internal/viewer"
)

const maxSelectionBody = 4 << 10

type stateResponse struct {
	viewer.View
	CapturedAt *time.Time `json:"captured_at,omitempty"`
}

func newStateResponse(v viewer.View) stateResponse {
	resp := stateResponse{View: v}
	if t, ok := filename.Parse(v.Selection.Image); ok {
		resp.CapturedAt = &t
	}
	return resp
}

// State returns the caller's view, refreshed first if an update arrived since
// the last read.
func State(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := viewerSession(w, r)
		v, err := d.Sessions.State(r.Context(), id)
		respondSelection(w, r, d, v, err)
	}
}

type satelliteRequest struct {
	Satellite string `json:"satellite"`
}

type imageRequest struct {
	Image string `json:"image"`
}

// SelectSatellite switches the caller's session to another satellite.
func SelectSatellite(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := viewerSession(w, r)
		var req satelliteRequest
		if !decodeSelection(w, r, d, &req) {
			return
		}
		sat := strings.TrimSpace(req.Satellite)
		if sat == "" {
			writeError(w, d.Logger, http.StatusBadRequest, "satellite is required")
			return
		}

		v, err := d.Sessions.SelectSatellite(r.Context(), id, sat)
		respondSelection(w, r, d, v, err)
	}
}

// SelectImage shows another image of the current satellite in the caller's
// session.
func SelectImage(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := viewerSession(w, r)
		var req imageRequest
		if !decodeSelection(w, r, d, &req) {
			return
		}
		file := strings.TrimSpace(req.Image)
		if file == "" {
			writeError(w, d.Logger, http.StatusBadRequest, "image is required")
			return
		}

		v, err := d.Sessions.SelectImage(r.Context(), id, file)
		respondSelection(w, r, d, v, err)
	}
}

func decodeSelection(w http.ResponseWriter, r *http.Request, d deps.Deps, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSelectionBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, d.Logger, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func respondSelection(w http.ResponseWriter, r *http.Request, d deps.Deps, v viewer.View, err error) {
	if err == nil {
		writeJSON(w, d.Logger, http.StatusOK, newStateResponse(v))
		return
	}

	status := selectionStatus(err)
	if status >= http.StatusInternalServerError {
		d.Logger.Warn("selection failed",
			logger.String("path", r.URL.Path),
			logger.Int("status", status),
			logger.Error(err))
	}
	writeError(w, d.Logger, status, err.Error())
}

func selectionStatus(err error) int {
	switch {
	case errors.Is(err, viewer.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, viewer.ErrUnknownSatellite), errors.Is(err, viewer.ErrUnknownImage):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
