package bus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ridha-boughediri/mys3/pkg/model"
)

// OriginRemote tags events that reached the channel without an origin, such as
// bare details published by external tools.
const OriginRemote = "remote"

// RedisBridge mirrors request-finished events between a LocalBus and a Redis
// pub/sub channel so every instance behind a load balancer sees every completion.
type RedisBridge struct {
	client   *redis.Client
	local    *LocalBus
	channel  string
	instance string
	log      *slog.Logger
}

func NewRedisBridge(client *redis.Client, local *LocalBus, channel string, log *slog.Logger) *RedisBridge {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBridge{
		client:   client,
		local:    local,
		channel:  channel,
		instance: uuid.NewString(),
		log:      log,
	}
}

// Instance is the origin tag stamped on events this bridge forwards.
func (r *RedisBridge) Instance() string {
	return r.instance
}

// Forward publishes locally-originated events to Redis. Events that arrived
// from another instance are not sent back out.
func (r *RedisBridge) Forward() (*Subscription, error) {
	return r.local.Subscribe(EventRequestFinished, func(ctx context.Context, evt *model.CompletionEvent) {
		if evt == nil || (evt.Origin != "" && evt.Origin != r.instance) {
			return
		}
		if err := r.PublishRemote(ctx, evt); err != nil {
			r.log.WarnContext(ctx, "forward to redis failed",
				"operation", "bridge_forward",
				"outcome", "failure",
				"event_id", evt.ID,
				"error", err,
			)
		}
	})
}

// PublishRemote sends evt on the Redis channel, tagged with this instance.
func (r *RedisBridge) PublishRemote(ctx context.Context, evt *model.CompletionEvent) error {
	out := *evt
	if out.Origin == "" {
		out.Origin = r.instance
	}
	payload, err := out.Encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run relays events from Redis onto the local bus until ctx is done.
// It blocks; callers usually start it in its own goroutine.
func (r *RedisBridge) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// wait for the subscription to be confirmed before reporting ready
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}
	r.log.InfoContext(ctx, "redis bridge subscribed", "channel", r.channel, "instance", r.instance)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.relay(ctx, msg.Payload)
		}
	}
}

func (r *RedisBridge) relay(ctx context.Context, payload string) {
	evt, err := model.DecodeCompletionEvent([]byte(payload))
	if err != nil {
		r.log.WarnContext(ctx, "dropping malformed remote event",
			"operation", "bridge_relay",
			"outcome", "failure",
			"error", err,
		)
		return
	}
	if evt.Origin == r.instance {
		return
	}
	// Forward only re-sends events without an origin, so a relayed event
	// must always carry one.
	if evt.Origin == "" {
		evt.Origin = OriginRemote
	}
	if err := r.local.Publish(ctx, EventRequestFinished, evt); err != nil {
		r.log.WarnContext(ctx, "local publish failed",
			"operation", "bridge_relay",
			"outcome", "failure",
			"event_id", evt.ID,
			"error", err,
		)
	}
}
