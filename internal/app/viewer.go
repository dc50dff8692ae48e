package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/goesview/internal/config"
	"github.com/MrSnakeDoc/goesview/internal/display"
	"github.com/MrSnakeDoc/goesview/internal/events"
	"github.com/MrSnakeDoc/goesview/internal/httpserver"
	"github.com/MrSnakeDoc/goesview/internal/httpserver/deps"
	"github.com/MrSnakeDoc/goesview/internal/listing"
	"github.com/MrSnakeDoc/goesview/internal/logger"
	"github.com/MrSnakeDoc/goesview/internal/redis"
	"github.com/MrSnakeDoc/goesview/internal/scheduler"
	"github.com/MrSnakeDoc/goesview/internal/version"
	"github.com/MrSnakeDoc/goesview/internal/viewer"
)

// Viewer is the image viewer daemon. Its own session always follows the newest
// image and drives the mirror and readiness; every browser gets a session of
// its own from the pool. Both are fed by the push channel, the resync ticker,
// the relay and /reload.
type Viewer struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	loop        *viewer.Loop
	sessions    *viewer.Pool
	hub         *events.Hub
	subscriber  *events.Subscriber
	resyncer    *scheduler.Resyncer
	sweeper     *scheduler.SessionSweeper
	file        *display.File
	relay       *redis.Relay
	redisClient *goredis.Client
}

// NewViewer builds every viewer component. ctx bounds the Redis connection
// attempts and the lifetime of image downloads.
func NewViewer(ctx context.Context, cfg *config.Config, log logger.Logger) (*Viewer, error) {
	client, err := newListingClient(cfg)
	if err != nil {
		return nil, err
	}
	log.Info("listing source configured",
		logger.String("root", client.RootURL()),
		logger.String("parser", cfg.ListingParser))

	// Browsers follow the viewer through its own stream: one update per render.
	hub := events.NewHub(events.HubConfig{
		KeepaliveInterval: cfg.SSEKeepalive,
		MaxClients:        cfg.SSEMaxClients,
		TrustProxy:        cfg.TrustProxy,
	}, log)
	snapshot := display.NewSnapshot()
	snapshot.OnRender(func(v viewer.View) { hub.Update(v.RenderedAt) })

	surfaces := display.Multi{snapshot, display.NewLog(log)}
	var file *display.File
	if cfg.OutputDir != "" {
		file, err = display.NewFile(ctx, cfg.OutputDir, &http.Client{Timeout: cfg.HTTPTimeout}, log)
		if err != nil {
			return nil, err
		}
		surfaces = append(surfaces, file)
		log.Info("mirroring current image", logger.String("dir", cfg.OutputDir))
	}

	session := viewer.NewSession(viewer.SessionOptions{
		Source:  client,
		Display: surfaces,
		Logger:  log,
		Root:    client.Conventions().Root,
	})
	loop := viewer.NewLoop(session, log, cfg.CycleTimeout)
	sessions := viewer.NewPool(viewer.PoolOptions{
		Source:       client,
		Logger:       log,
		Root:         client.Conventions().Root,
		CycleTimeout: cfg.CycleTimeout,
		IdleTTL:      cfg.SessionIdleTTL,
		MaxSessions:  cfg.MaxSessions,
		Seed: func() (viewer.View, bool) {
			v, _, ok := snapshot.Get()
			return v, ok
		},
	})

	// A new capture moves everyone to the newest image. Reconnects and resyncs
	// only catch up on what may have been missed and keep an image a browser
	// picked by hand.
	newCapture := func() bool {
		sessions.Notify()
		return loop.Notify()
	}
	catchUp := func() bool {
		sessions.Refresh()
		return loop.Notify()
	}

	var subscriber *events.Subscriber
	if cfg.EventsURL != "" {
		subscriber, err = events.NewSubscriber(events.SubscriberConfig{
			URL:         cfg.EventsURL,
			EventName:   cfg.EventName,
			UserAgent:   userAgent(cfg),
			OnReconnect: func() { catchUp() },
		}, log, func() { newCapture() })
		if err != nil {
			return nil, err
		}
	} else {
		log.Warn("no events URL configured, new images only show up on resync or /reload")
	}

	redisClient, err := connectRedis(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	var relay *redis.Relay
	if redisClient != nil {
		relay = redis.NewRelay(redisClient, cfg.RelayOrigin, log)
	}

	d := baseDeps(cfg, log, deps.RoleViewer)
	d.RequestTimeout = cfg.CycleTimeout + 5*time.Second
	d.Hub = hub
	d.Reload = newCapture
	d.RedisClient = redisClient
	d.Loop = loop
	d.Sessions = sessions
	d.Subscriber = subscriber
	d.ListingURL = client.RootURL()

	return &Viewer{
		cfg:         cfg,
		logger:      log,
		server:      httpserver.New(cfg.ListenAddr, log, d),
		loop:        loop,
		sessions:    sessions,
		hub:         hub,
		subscriber:  subscriber,
		resyncer:    scheduler.NewResyncer(catchUp, log, cfg.ResyncInterval),
		sweeper:     scheduler.NewSessionSweeper(sessions.Sweep, log, scheduler.DefaultSweepInterval),
		file:        file,
		relay:       relay,
		redisClient: redisClient,
	}, nil
}

func newListingClient(cfg *config.Config) (*listing.Client, error) {
	conv := listing.DefaultConventions()
	if cfg.ConventionsFile != "" {
		c, err := listing.LoadConventions(cfg.ConventionsFile)
		if err != nil {
			return nil, err
		}
		conv = c
	}
	extractor, err := listing.NewExtractor(cfg.ListingParser)
	if err != nil {
		return nil, err
	}
	return listing.NewClient(listing.Options{
		BaseURL:     cfg.BaseURL,
		Conventions: conv,
		Extractor:   extractor,
		Timeout:     cfg.HTTPTimeout,
		UserAgent:   userAgent(cfg),
	})
}

func userAgent(cfg *config.Config) string {
	if cfg.UserAgent != "" {
		return cfg.UserAgent
	}
	return version.UserAgent()
}

// Run blocks until ctx is cancelled or a component fails, then shuts
// everything down.
func (v *Viewer) Run(ctx context.Context) error {
	logStartup(v.logger, deps.RoleViewer, v.cfg)
	defer closeRedis(v.logger, v.redisClient)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return v.loop.Run(gctx) })

	if v.subscriber != nil {
		g.Go(func() error {
			v.logger.Info("subscribing to push channel", logger.String("url", v.cfg.EventsURL))
			return v.subscriber.Run(gctx)
		})
	}

	if v.relay != nil {
		g.Go(func() error {
			err := v.relay.Subscribe(gctx, func(redis.Update) {
				v.sessions.Notify()
				v.loop.Notify()
			})
			if err != nil {
				v.logger.Warn("redis relay stopped, relayed updates disabled", logger.Error(err))
			}
			return nil
		})
	}

	v.resyncer.Start(gctx)
	v.sweeper.Start(gctx)

	g.Go(func() error {
		if err := v.server.Start(); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		v.logger.Info("Shutting down gracefully...")
		v.resyncer.Stop()
		v.sweeper.Stop()
		return stopServer(v.cfg, v.logger, v.server, v.hub.Close)
	})

	err := g.Wait()
	if v.file != nil {
		v.file.Wait()
	}
	if err != nil {
		return err
	}
	v.logger.Info("goesview viewer stopped cleanly")
	return nil
}
