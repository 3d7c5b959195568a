// Package redisbus propagates cache invalidations between instances over
// Redis pub/sub.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultChannel is the pub/sub channel used when none is configured
const DefaultChannel = "shortlink:invalidations"

// Message operations
const (
	OpInvalidate = "invalidate"
	OpClear      = "clear"
)

// Message is the payload published on the channel
type Message struct {
	Origin string   `json:"origin"`
	Op     string   `json:"op"`
	Keys   []string `json:"keys,omitempty"`
}

// Handler applies invalidations received from other instances
type Handler interface {
	ApplyInvalidate(shortKeys []string)
	ApplyClear()
}

// Bus publishes local invalidations and delivers remote ones to a Handler
type Bus struct {
	client  redis.UniversalClient
	channel string
	origin  string
	logger  zerolog.Logger
}

// New creates a bus on channel with a fresh origin id
func New(client redis.UniversalClient, channel string, logger zerolog.Logger) *Bus {
	if channel == "" {
		channel = DefaultChannel
	}
	origin := uuid.NewString()

	return &Bus{
		client:  client,
		channel: channel,
		origin:  origin,
		logger:  logger.With().Str("component", "redisbus").Str("origin", origin).Logger(),
	}
}

// Origin returns the id stamped on messages from this instance
func (b *Bus) Origin() string {
	return b.origin
}

// PublishInvalidate announces that shortKeys changed
func (b *Bus) PublishInvalidate(ctx context.Context, shortKeys []string) error {
	return b.publish(ctx, Message{Origin: b.origin, Op: OpInvalidate, Keys: shortKeys})
}

// PublishClear announces a bulk change that requires clearing every cache
func (b *Bus) PublishClear(ctx context.Context) error {
	return b.publish(ctx, Message{Origin: b.origin, Op: OpClear})
}

func (b *Bus) publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode invalidation: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	return nil
}

// Run subscribes to the channel and applies remote messages to handler until ctx is done
func (b *Bus) Run(ctx context.Context, handler Handler) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	// Wait for confirmation that the subscription is created
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	b.logger.Info().Str("channel", b.channel).Msg("Listening for cache invalidations")

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			b.handle(msg.Payload, handler)
		}
	}
}

func (b *Bus) handle(payload string, handler Handler) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		b.logger.Warn().Err(err).Msg("Ignoring malformed invalidation")
		return
	}
	if msg.Origin == b.origin {
		return
	}

	switch msg.Op {
	case OpInvalidate:
		handler.ApplyInvalidate(msg.Keys)
	case OpClear:
		handler.ApplyClear()
	default:
		b.logger.Warn().Str("op", msg.Op).Msg("Ignoring unknown invalidation op")
		return
	}

	b.logger.Debug().Str("from", msg.Origin).Str("op", msg.Op).Strs("keys", msg.Keys).Msg("Applied remote invalidation")
}
