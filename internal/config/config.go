package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrSnakeDoc/goesview/internal/logger"
)

const (
	DefaultViewerAddr = ":8080"
	DefaultEventsAddr = ":8090"
)

type Config struct {
	ListenAddr      string        // ex: ":8080" (empty = command default)
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Viewer
	BaseURL         string        // scheme+host serving the listing root (required for viewer)
	EventsURL       string        // SSE endpoint of the broadcaster (empty = polling only)
	EventName       string        // event that triggers a reconcile (default: update)
	ConventionsFile string        // optional yaml overriding root and filename patterns
	ListingParser   string        // "anchor" | "pattern"
	HTTPTimeout     time.Duration // per listing request
	CycleTimeout    time.Duration // upper bound for one reconcile cycle
	UserAgent       string
	OutputDir       string        // optional, mirrors current.png/current.txt
	ResyncInterval  time.Duration // safety-net reconcile (0 = disabled)
	SessionIdleTTL  time.Duration // browser sessions unseen for longer are dropped (0 = 30m)
	MaxSessions     int           // live browser sessions, oldest evicted beyond (0 = 1024)

	// Broadcaster
	TriggerFile   string        // touched by the ingestion pipeline
	TriggerPoll   time.Duration // mtime poll interval
	SSEKeepalive  time.Duration // comment ping interval
	SSEMaxClients int           // 0 = unlimited

	// Access restrictions
	AllowedCIDRS []string // optional, restricts POST /reload and the probes
	AllowedHosts []string // optional, Host headers accepted on state-changing routes
	TrustProxy   bool     // true => trust X-Forwarded-For headers
	RateBurst    int      // per-IP burst on POST routes and /events
	RatePerMin   int      // per-IP refill rate

	// Redis relay (optional, empty address = disabled)
	RedisAddr           string
	RedisUser           string
	RedisPassword       string
	RedisDB             int
	RedisDT             time.Duration // dial timeout
	RedisRT             time.Duration // read timeout
	RedisWT             time.Duration // write timeout
	RedisMaxWait        time.Duration // max wait between retries
	RedisPingTimeout    time.Duration // timeout for each ping attempt
	RedisPoolSize       int
	RedisConnectTimeout time.Duration // total time to retry connecting
	RedisRetryInterval  time.Duration // initial wait between retries
	RedisWarnThreshold  int           // warn after this many attempts
	RelayOrigin         string        // instance id on the relay (default: hostname:pid)
}

// Load reads the configuration from the environment. It never fails; call
// ValidateViewer or ValidateEvents before use.
func Load() *Config {
	return &Config{
		ListenAddr:      getenv("GOESVIEW_LISTEN_ADDR", ""),
		ShutdownTimeout: mustDuration("GOESVIEW_SHUTDOWN_TIMEOUT", 5*time.Second),

		LogLevel:  getenv("GOESVIEW_LOG_LEVEL", "info"),
		PrettyLog: mustBool("GOESVIEW_PRETTY_LOG", false),

		BaseURL:         strings.TrimRight(getenv("GOESVIEW_BASE_URL", ""), "/"),
		EventsURL:       getenv("GOESVIEW_EVENTS_URL", ""),
		EventName:       getenv("GOESVIEW_EVENT_NAME", "update"),
		ConventionsFile: getenv("GOESVIEW_CONVENTIONS_FILE", ""),
		ListingParser:   getenv("GOESVIEW_LISTING_PARSER", "anchor"),
		HTTPTimeout:     mustDuration("GOESVIEW_HTTP_TIMEOUT", 10*time.Second),
		CycleTimeout:    mustDuration("GOESVIEW_CYCLE_TIMEOUT", 30*time.Second),
		UserAgent:       getenv("GOESVIEW_USER_AGENT", ""),
		OutputDir:       getenv("GOESVIEW_OUTPUT_DIR", ""),
		ResyncInterval:  mustDuration("GOESVIEW_RESYNC_INTERVAL", 5*time.Minute),
		SessionIdleTTL:  mustDuration("GOESVIEW_SESSION_IDLE_TTL", 30*time.Minute),
		MaxSessions:     getenvInt("GOESVIEW_MAX_SESSIONS", 1024),

		TriggerFile:   getenv("GOESVIEW_TRIGGER_FILE", "/var/www/goes/.trigger"),
		TriggerPoll:   mustDuration("GOESVIEW_TRIGGER_POLL", time.Second),
		SSEKeepalive:  mustDuration("GOESVIEW_SSE_KEEPALIVE", 30*time.Second),
		SSEMaxClients: getenvInt("GOESVIEW_SSE_MAX_CLIENTS", 256),

		AllowedCIDRS: splitAndTrim(getenv("GOESVIEW_ALLOWED_CIDRS", "")),
		AllowedHosts: splitAndTrim(getenv("GOESVIEW_ALLOWED_HOSTS", "")),
		TrustProxy:   mustBool("GOESVIEW_TRUST_PROXY", false),
		RateBurst:    getenvInt("GOESVIEW_RATE_BURST", 20),
		RatePerMin:   getenvInt("GOESVIEW_RATE_PER_MIN", 60),

		RedisAddr:           getenv("GOESVIEW_REDIS_ADDR", ""),
		RedisUser:           getenv("GOESVIEW_REDIS_USERNAME", ""),
		RedisPassword:       getenv("GOESVIEW_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("GOESVIEW_REDIS_DB", 0),
		RedisDT:             mustDuration("GOESVIEW_REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("GOESVIEW_REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("GOESVIEW_REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        mustDuration("GOESVIEW_REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("GOESVIEW_REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       getenvInt("GOESVIEW_REDIS_POOL_SIZE", 4),
		RedisConnectTimeout: mustDuration("GOESVIEW_REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("GOESVIEW_REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:  getenvInt("GOESVIEW_REDIS_WARN_THRESHOLD", 3),
		RelayOrigin:         getenv("GOESVIEW_RELAY_ORIGIN", ""),
	}
}

// ValidateViewer checks the settings the viewer daemon needs.
func (c *Config) ValidateViewer() error {
	errs := c.validateCommon()

	if c.BaseURL == "" {
		errs = append(errs, errors.New("GOESVIEW_BASE_URL is required"))
	} else if err := validateHTTPURL(c.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("GOESVIEW_BASE_URL: %w", err))
	}
	if c.EventsURL != "" {
		if err := validateHTTPURL(c.EventsURL); err != nil {
			errs = append(errs, fmt.Errorf("GOESVIEW_EVENTS_URL: %w", err))
		}
	}
	switch c.ListingParser {
	case "anchor", "pattern":
	default:
		errs = append(errs, fmt.Errorf("GOESVIEW_LISTING_PARSER must be anchor or pattern, got %q", c.ListingParser))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("GOESVIEW_HTTP_TIMEOUT must be > 0, got %v", c.HTTPTimeout))
	}
	if c.SessionIdleTTL < 0 {
		errs = append(errs, fmt.Errorf("GOESVIEW_SESSION_IDLE_TTL must be >= 0, got %v", c.SessionIdleTTL))
	}
	if c.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("GOESVIEW_MAX_SESSIONS must be >= 0, got %d", c.MaxSessions))
	}
	if c.CycleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("GOESVIEW_CYCLE_TIMEOUT must be > 0, got %v", c.CycleTimeout))
	}
	if c.ResyncInterval < 0 {
		errs = append(errs, fmt.Errorf("GOESVIEW_RESYNC_INTERVAL must be >= 0, got %v", c.ResyncInterval))
	}

	return errors.Join(errs...)
}

// ValidateEvents checks the settings the broadcaster daemon needs.
func (c *Config) ValidateEvents() error {
	errs := c.validateCommon()

	if c.TriggerFile == "" {
		errs = append(errs, errors.New("GOESVIEW_TRIGGER_FILE is required"))
	}
	if c.TriggerPoll <= 0 {
		errs = append(errs, fmt.Errorf("GOESVIEW_TRIGGER_POLL must be > 0, got %v", c.TriggerPoll))
	}

	return errors.Join(errs...)
}

func (c *Config) validateCommon() []error {
	var errs []error
	if _, ok := logger.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("GOESVIEW_LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("GOESVIEW_SHUTDOWN_TIMEOUT must be > 0, got %v", c.ShutdownTimeout))
	}
	if c.SSEKeepalive <= 0 {
		errs = append(errs, fmt.Errorf("GOESVIEW_SSE_KEEPALIVE must be > 0, got %v", c.SSEKeepalive))
	}
	if c.RateBurst < 1 || c.RatePerMin < 1 {
		errs = append(errs, fmt.Errorf("GOESVIEW_RATE_BURST and GOESVIEW_RATE_PER_MIN must be >= 1, got %d and %d", c.RateBurst, c.RatePerMin))
	}
	if c.SSEMaxClients < 0 {
		errs = append(errs, fmt.Errorf("GOESVIEW_SSE_MAX_CLIENTS must be >= 0, got %d", c.SSEMaxClients))
	}
	for _, cidr := range c.AllowedCIDRS {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			if _, err := netip.ParseAddr(cidr); err != nil {
				errs = append(errs, fmt.Errorf("GOESVIEW_ALLOWED_CIDRS: invalid entry %q", cidr))
			}
		}
	}
	return errs
}

// RedisEnabled reports whether the update relay is configured.
func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }

// Redacted returns a copy safe to log.
func (c *Config) Redacted() Config {
	cp := *c
	if cp.RedisPassword != "" {
		cp.RedisPassword = "***REDACTED***"
	}
	if cp.RedisUser != "" {
		cp.RedisUser = "***REDACTED***"
	}
	return cp
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
