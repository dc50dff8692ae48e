package deps

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/goesview/internal/events"
	"github.com/MrSnakeDoc/goesview/internal/logger"
	"github.com/MrSnakeDoc/goesview/internal/viewer"
)

const (
	RoleViewer = "viewer"
	RoleEvents = "events"
)

// Deps is shared by every route. Components a daemon does not run are nil and
// the routes that need them are not registered.
type Deps struct {
	Role      string // RoleViewer | RoleEvents
	Logger    logger.Logger
	StartTime time.Time
	Version   string
	Commit    string
	BuildDate string
	GoVersion string
	TimeNow   func() time.Time // for testing, defaults to time.Now

	AllowedCIDRS   []string      // IPs allowed on /reload and the probes
	AllowedHosts   []string      // Host headers allowed on state-changing routes
	TrustProxy     bool          // true if running behind a trusted reverse proxy
	RateBurst      int           // per-IP burst on POST routes and /events
	RatePerMin     int           // per-IP refill
	RequestTimeout time.Duration // non-streaming routes

	Hub         *events.Hub   // SSE fan-out (/events)
	Reload      func() bool   // POST /reload; false when merged into a pending one
	RedisClient *redis.Client // nil when the relay is disabled

	// viewer
	Loop       *viewer.Loop       // the daemon's own session (mirror, readiness)
	Sessions   *viewer.Pool       // one session per browser
	Subscriber *events.Subscriber // nil without a push channel
	ListingURL string

	// events
	TriggerFile string
}

// Now returns the configured clock.
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
