package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/goesview/internal/logger"
)

// UpdateChannel is the pub/sub channel shared by broadcaster instances.
const UpdateChannel = "goesview:events:update"

// Update is the relayed message.
type Update struct {
	Origin string    `json:"origin"`
	At     time.Time `json:"at"`
}

// Relay shares trigger-file updates between broadcaster instances. Each
// instance publishes what its own watcher sees and rebroadcasts what the
// others publish; its own messages come back on the channel and are skipped.
// Viewers sharing the Redis instance may subscribe as well and reconcile on
// every update they receive.
type Relay struct {
	client  *redis.Client
	origin  string
	channel string
	log     logger.Logger
}

// NewRelay builds a relay. An empty origin defaults to hostname:pid.
func NewRelay(client *redis.Client, origin string, log logger.Logger) *Relay {
	if origin == "" {
		origin = DefaultOrigin()
	}
	return &Relay{
		client:  client,
		origin:  origin,
		channel: UpdateChannel,
		log:     log.With(logger.String("origin", origin)),
	}
}

func DefaultOrigin() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return host + ":" + strconv.Itoa(os.Getpid())
}

func (r *Relay) Origin() string { return r.origin }

// Publish announces an update observed at the given time.
func (r *Relay) Publish(ctx context.Context, at time.Time) error {
	payload, err := json.Marshal(Update{Origin: r.origin, At: at.UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode update: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish update: %w", err)
	}
	return nil
}

// Subscribe calls fn for every update published by another origin. It
// blocks until ctx is cancelled or the subscription fails.
func (r *Relay) Subscribe(ctx context.Context, fn func(Update)) error {
	ps := r.client.Subscribe(ctx, r.channel)
	defer func() { _ = ps.Close() }()

	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	r.log.Info("subscribed to update relay", logger.String("channel", r.channel))

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("relay subscription closed")
			}
			r.handle(msg.Payload, fn)
		}
	}
}

func (r *Relay) handle(payload string, fn func(Update)) {
	var u Update
	if err := json.Unmarshal([]byte(payload), &u); err != nil {
		r.log.Warn("ignoring malformed relay message", logger.Error(err))
		return
	}
	if u.Origin == r.origin {
		return
	}
	r.log.Debug("relayed update", logger.String("from", u.Origin), logger.Time("at", u.At))
	fn(u)
}
