package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/goesview/internal/config"
	"github.com/MrSnakeDoc/goesview/internal/events"
	"github.com/MrSnakeDoc/goesview/internal/httpserver"
	"github.com/MrSnakeDoc/goesview/internal/httpserver/deps"
	"github.com/MrSnakeDoc/goesview/internal/logger"
	"github.com/MrSnakeDoc/goesview/internal/redis"
)

const publishTimeout = 2 * time.Second

// Events is the broadcaster daemon: it watches the trigger file and pushes an
// update to every SSE client when it changes.
type Events struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	hub         *events.Hub
	watcher     *events.Watcher
	relay       *redis.Relay
	redisClient *goredis.Client
}

// NewEvents builds the broadcaster. ctx bounds the Redis connection attempts.
func NewEvents(ctx context.Context, cfg *config.Config, log logger.Logger) (*Events, error) {
	hub := events.NewHub(events.HubConfig{
		KeepaliveInterval: cfg.SSEKeepalive,
		MaxClients:        cfg.SSEMaxClients,
		TrustProxy:        cfg.TrustProxy,
	}, log)

	redisClient, err := connectRedis(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	e := &Events{
		cfg:         cfg,
		logger:      log,
		hub:         hub,
		redisClient: redisClient,
	}
	if redisClient != nil {
		e.relay = redis.NewRelay(redisClient, cfg.RelayOrigin, log)
	}

	e.watcher, err = events.NewWatcher(cfg.TriggerFile, cfg.TriggerPoll, log, func(mtime time.Time) {
		e.announce(mtime, "trigger")
	})
	if err != nil {
		closeRedis(log, redisClient)
		return nil, err
	}

	d := baseDeps(cfg, log, deps.RoleEvents)
	d.Hub = hub
	d.Reload = func() bool {
		e.announce(time.Now(), "manual")
		return true
	}
	d.RedisClient = redisClient
	d.TriggerFile = cfg.TriggerFile

	e.server = httpserver.New(cfg.ListenAddr, log, d)
	return e, nil
}

// announce broadcasts locally and, with a relay, to the other instances.
func (e *Events) announce(at time.Time, source string) {
	n := e.hub.Update(at)
	e.logger.Info("update broadcast",
		logger.String("source", source),
		logger.Time("at", at),
		logger.Int("clients", n))

	if e.relay == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := e.relay.Publish(ctx, at); err != nil {
		e.logger.Warn("failed to relay update", logger.Error(err))
	}
}

// Run blocks until ctx is cancelled or a component fails.
func (e *Events) Run(ctx context.Context) error {
	logStartup(e.logger, deps.RoleEvents, e.cfg)
	defer closeRedis(e.logger, e.redisClient)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return e.watcher.Run(gctx) })

	if e.relay != nil {
		g.Go(func() error {
			err := e.relay.Subscribe(gctx, func(u redis.Update) {
				n := e.hub.Update(u.At)
				e.logger.Info("update broadcast",
					logger.String("source", "relay"),
					logger.String("origin", u.Origin),
					logger.Int("clients", n))
			})
			if err != nil {
				e.logger.Warn("redis relay stopped, relayed updates disabled", logger.Error(err))
			}
			return nil
		})
	}

	g.Go(func() error {
		if err := e.server.Start(); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		e.logger.Info("Shutting down gracefully...")
		return stopServer(e.cfg, e.logger, e.server, e.hub.Close)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	e.logger.Info("goesview events stopped cleanly")
	return nil
}
