package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/goesview/internal/httpserver/deps"
	"github.com/MrSnakeDoc/goesview/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/goesview/internal/httpserver/mw"
)

func init() { Register(registerProbes) }

func registerProbes(r chi.Router, d deps.Deps) {
	r.With(timeout(d)).Get("/healthz", handlers.Healthz(d))

	restricted := r.With(timeout(d), mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
	restricted.Get("/readyz", handlers.Readyz(d))
	restricted.Get("/infra", handlers.Infra(d))
}
