package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/goesview/internal/httpserver/deps"
	"github.com/MrSnakeDoc/goesview/internal/httpserver/mw"
)

func init() { Register(registerEvents) }

// The limiter only guards connection attempts; an open stream costs nothing.
func registerEvents(r chi.Router, d deps.Deps) {
	if d.Hub == nil {
		return
	}
	r.With(mw.RateLimit(mw.RateLimitConfig{
		Burst:      d.RateBurst,
		PerMinute:  d.RatePerMin,
		MaxEntries: 4096,
		TrustProxy: d.TrustProxy,
	})).Get("/events", d.Hub.ServeHTTP)
}
