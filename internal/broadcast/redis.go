package broadcast

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "contentplane:events:"

// RedisBridge relays progress events through a Redis pub/sub channel so that
// SSE subscribers connected to one controller replica still see events
// published by another. Publish goes to Redis only; the Run loop injects
// every received event (including this replica's own) into the local hub,
// giving each subscriber a single, consistent delivery path.
type RedisBridge struct {
	client *redis.Client
	hub    *Hub
}

// NewRedisBridge creates a bridge over an existing client and local hub.
func NewRedisBridge(client *redis.Client, hub *Hub) *RedisBridge {
	return &RedisBridge{client: client, hub: hub}
}

// Publish sends the event to the tenant's Redis channel. Failures are
// logged, not returned: event delivery is best-effort and must never fail a
// pipeline.
func (b *RedisBridge) Publish(ev ProgressEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("broadcast: failed to marshal event for pipeline %s: %v", ev.PipelineID, err)
		return
	}
	channel := channelPrefix + ev.TenantID.String()
	if err := b.client.Publish(context.Background(), channel, payload).Err(); err != nil {
		log.Printf("broadcast: redis publish failed for pipeline %s: %v", ev.PipelineID, err)
	}
}

// Run subscribes to every tenant channel and feeds received events into the
// local hub. It blocks until the context is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(msg.Channel, channelPrefix) {
				continue
			}
			var ev ProgressEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("broadcast: dropping malformed event on %s: %v", msg.Channel, err)
				continue
			}
			b.hub.Publish(ev)
		}
	}
}
