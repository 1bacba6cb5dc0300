// SPDX-License-Identifier: MIT

package hub

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/UnknownEngineOfficial/XTeam/internal/event"
	"github.com/UnknownEngineOfficial/XTeam/internal/log"
)

// Bridge subscribes to a Redis pub/sub channel carrying JSON-encoded
// events from pipeline workers and republishes them into the hub. It lets
// a multi-process deployment share one event stream.
type Bridge struct {
	client  *redis.Client
	channel string
	hub     *Hub
}

// NewBridge wires a Redis client to the hub.
func NewBridge(client *redis.Client, channel string, h *Hub) *Bridge {
	return &Bridge{client: client, channel: channel, hub: h}
}

// Run consumes the channel until ctx is cancelled. Messages that fail to
// parse or validate are logged and skipped; the subscription itself is
// retried internally by go-redis.
func (b *Bridge) Run(ctx context.Context) error {
	logger := log.WithComponent("bridge")

	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed before reporting ready.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	logger.Info().Str("channel", b.channel).Msg("subscribed to event channel")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev event.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warn().Err(err).Msg("invalid event payload, skipped")
				continue
			}
			if err := ev.Validate(); err != nil {
				logger.Warn().
					Err(err).
					Str(log.FieldEventType, string(ev.Type)).
					Msg("malformed event, skipped")
				continue
			}
			b.hub.Publish(ev)
		}
	}
}
