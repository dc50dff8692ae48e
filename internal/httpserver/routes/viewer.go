package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/goesview/internal/httpserver/deps"
	"github.com/MrSnakeDoc/goesview/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/goesview/internal/httpserver/mw"
)

func init() { Register(registerViewer) }

func registerViewer(r chi.Router, d deps.Deps) {
	if d.Sessions == nil {
		return
	}

	r.With(timeout(d)).Get("/", handlers.Page(d))

	r.Route("/api", func(api chi.Router) {
		api.Use(timeout(d))
		api.Get("/state", handlers.State(d))

		api.Group(func(sel chi.Router) {
			sel.Use(
				mw.EnforceHost(d.AllowedHosts, d.Logger),
				mw.RateLimit(mw.RateLimitConfig{
					Burst:      d.RateBurst,
					PerMinute:  d.RatePerMin,
					MaxEntries: 4096,
					TrustProxy: d.TrustProxy,
				}),
			)
			sel.Post("/satellite", handlers.SelectSatellite(d))
			sel.Post("/image", handlers.SelectImage(d))
		})
	})
}
