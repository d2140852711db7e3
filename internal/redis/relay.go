package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"delivery/internal/domain"
	"delivery/internal/logging"
)

// RelayChannel is the pub/sub channel shared by every hub instance.
const RelayChannel = "tracking:events"

// relayEnvelope tags an event with the instance that produced it.
type relayEnvelope struct {
	Origin string               `json:"origin"`
	Event  domain.TrackingEvent `json:"event"`
}

// Relay forwards tracking events between hub instances over Redis pub/sub.
type Relay struct {
	client  *redis.Client
	origin  string
	channel string
	logger  *slog.Logger
}

// NewRelay creates a relay that tags outgoing events with origin.
func NewRelay(client *redis.Client, origin string, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Relay{client: client, origin: origin, channel: RelayChannel, logger: logger}
}

// Publish sends a locally produced event to peers.
func (r *Relay) Publish(ctx context.Context, ev domain.TrackingEvent) error {
	data, err := json.Marshal(relayEnvelope{Origin: r.origin, Event: ev})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

// Listen delivers events published by other instances to deliver until ctx
// is done. Events from this instance are skipped.
func (r *Relay) Listen(ctx context.Context, deliver func(domain.TrackingEvent)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			ev, remote, err := r.decode([]byte(msg.Payload))
			if err != nil {
				r.logger.Warn("dropping malformed relay message", "error", err)
				continue
			}
			if remote {
				deliver(ev)
			}
		}
	}
}

func (r *Relay) decode(payload []byte) (domain.TrackingEvent, bool, error) {
	var env relayEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return domain.TrackingEvent{}, false, err
	}
	return env.Event, env.Origin != r.origin, nil
}
