// Package notify pushes detected cycles to external consumers over
// Redis: a Pub/Sub channel for live listeners and a capped stream for
// consumers that poll.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/tokenarb/cyclescan/internal/domain"
)

// streamMaxLen is the approximate maximum stream length, enforced via
// XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// Config holds Redis connection and naming parameters.
type Config struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	Stream   string
}

// Publisher sends cycle notifications through a Redis client.
type Publisher struct {
	rdb     *redis.Client
	channel string
	stream  string
	logger  *slog.Logger
}

// NewPublisher connects to Redis, verifies the connection with a ping,
// and returns a Publisher.
func NewPublisher(ctx context.Context, cfg Config, logger *slog.Logger) (*Publisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("notify: ping %s: %w", cfg.Addr, err)
	}

	return &Publisher{
		rdb:     rdb,
		channel: cfg.Channel,
		stream:  cfg.Stream,
		logger:  logger.With(slog.String("component", "cycle_publisher")),
	}, nil
}

// Publish encodes the cycle as JSON, publishes it to the Pub/Sub
// channel, and appends it to the stream when one is configured.
func (p *Publisher) Publish(ctx context.Context, c domain.Cycle) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("notify: encode cycle %s: %w", c.ID, err)
	}

	if p.channel != "" {
		if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
			return fmt.Errorf("notify: publish %s: %w", p.channel, err)
		}
	}

	if p.stream != "" {
		args := &redis.XAddArgs{
			Stream: p.stream,
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"payload": payload},
		}
		if err := p.rdb.XAdd(ctx, args).Err(); err != nil {
			return fmt.Errorf("notify: stream append %s: %w", p.stream, err)
		}
	}

	p.logger.Debug("cycle published",
		slog.String("cycle_id", c.ID),
		slog.Float64("profit", c.Profit),
	)
	return nil
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}
