package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/goesview/internal/httpserver/deps"
	"github.com/MrSnakeDoc/goesview/internal/logger"
	"github.com/MrSnakeDoc/goesview/internal/utils"
)

type reloadResponse struct {
	Triggered bool   `json:"triggered"`
	Message   string `json:"message"`
}

// Reload pushes a manual trigger. Triggers that arrive while one is pending
// are merged into it, so the call is always accepted.
func Reload(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := utils.ClientIP(r, d.TrustProxy)

		if d.Reload() {
			d.Logger.Info("manual reload triggered via endpoint", logger.String("remote_ip", ip))
			writeJSON(w, d.Logger, http.StatusAccepted, reloadResponse{Triggered: true, Message: "reload triggered"})
			return
		}

		d.Logger.Info("manual reload merged into pending one", logger.String("remote_ip", ip))
		writeJSON(w, d.Logger, http.StatusAccepted, reloadResponse{Triggered: false, Message: "reload already pending"})
	}
}
