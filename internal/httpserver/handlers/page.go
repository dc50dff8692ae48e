package handlers

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/MrSnakeDoc/goesview/internal/filename"
	"github.com/MrSnakeDoc/goesview/internal/httpserver/deps"
	"github.com/MrSnakeDoc/goesview/internal/logger"
	"github.com/MrSnakeDoc/goesview/internal/viewer"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTmpl = template.Must(template.New("index.html").Funcs(template.FuncMap{
	"stamp": filename.Format,
}).ParseFS(templateFS, "templates/index.html"))

type pageData struct {
	View       viewer.View
	Ready      bool
	Showing    bool
	ListingURL string
	Version    string
}

// Page serves the viewer UI for the caller's session. The server-side render
// is the first frame; the page then follows /events and /api/state on its own.
func Page(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := d.Sessions.State(r.Context(), viewerSession(w, r))
		ready := err == nil
		data := pageData{
			View:       v,
			Ready:      ready,
			Showing:    ready && v.State == viewer.StateShowing,
			ListingURL: d.ListingURL,
			Version:    d.Version,
		}

		var buf bytes.Buffer
		if err := pageTmpl.Execute(&buf, data); err != nil {
			d.Logger.Error("failed to render page", logger.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if _, err := buf.WriteTo(w); err != nil {
			d.Logger.Debug("failed to write page", logger.Error(err))
		}
	}
}
