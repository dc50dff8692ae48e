// Package app wires the viewer and events daemons from a validated Config.
package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/goesview/internal/config"
	"github.com/MrSnakeDoc/goesview/internal/httpserver"
	"github.com/MrSnakeDoc/goesview/internal/httpserver/deps"
	"github.com/MrSnakeDoc/goesview/internal/logger"
	"github.com/MrSnakeDoc/goesview/internal/redis"
	"github.com/MrSnakeDoc/goesview/internal/version"
)

// connectRedis returns nil, nil when the relay is not configured. When it is,
// Redis must answer within RedisConnectTimeout or startup fails.
func connectRedis(ctx context.Context, cfg *config.Config, log logger.Logger) (*goredis.Client, error) {
	if !cfg.RedisEnabled() {
		log.Info("redis relay disabled")
		return nil, nil
	}

	log.Infof("Connecting to Redis at %s", cfg.RedisAddr)
	client, err := redis.Connect(ctx, redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		DB:             cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("Redis initialized successfully")
	return client, nil
}

// baseDeps fills the fields both daemons share.
func baseDeps(cfg *config.Config, log logger.Logger, role string) deps.Deps {
	return deps.Deps{
		Role:         role,
		Logger:       log,
		StartTime:    time.Now(),
		Version:      version.Version,
		Commit:       version.Commit,
		BuildDate:    version.BuildDate,
		GoVersion:    version.GoVersion,
		TimeNow:      time.Now,
		AllowedCIDRS: cfg.AllowedCIDRS,
		AllowedHosts: cfg.AllowedHosts,
		TrustProxy:   cfg.TrustProxy,
		RateBurst:    cfg.RateBurst,
		RatePerMin:   cfg.RatePerMin,
	}
}

func logStartup(log logger.Logger, role string, cfg *config.Config) {
	log.Infof("Starting goesview %s v%s on %s", role, version.Version, cfg.ListenAddr)
	log.Infof("goesview %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)
	log.Debug("effective configuration", logger.Any("config", cfg.Redacted()))
}

// stopServer closes the SSE streams first so Shutdown does not wait on them.
func stopServer(cfg *config.Config, log logger.Logger, server *httpserver.Server, closeStreams func()) error {
	closeStreams()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	return nil
}

func closeRedis(log logger.Logger, client *goredis.Client) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		log.Warnf("failed to close redis: %v", err)
		return
	}
	log.Info("Redis closed cleanly")
}
