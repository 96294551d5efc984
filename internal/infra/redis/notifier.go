package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"vocab-battle/internal/domain"
)

const updateBuffer = 8

// PubSubNotifier publishes room updates on a Redis channel per room.
type PubSubNotifier struct {
	client *redis.Client
}

func NewPubSubNotifier(client *redis.Client) *PubSubNotifier {
	return &PubSubNotifier{client: client}
}

func (n *PubSubNotifier) Publish(ctx context.Context, update domain.RoomUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}
	return n.client.Publish(ctx, channel(update.Code), payload).Err()
}

// Subscribe returns once the subscription is confirmed by the server.
func (n *PubSubNotifier) Subscribe(ctx context.Context, code string) (<-chan domain.RoomUpdate, func(), error) {
	pubsub := n.client.Subscribe(ctx, channel(code))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe room %s: %w", code, err)
	}

	out := make(chan domain.RoomUpdate, updateBuffer)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var update domain.RoomUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
				log.Warn().Err(err).Str("room", code).Msg("dropping malformed room update")
				continue
			}
			forward(out, update)
			if update.Deleted {
				return
			}
		}
	}()
	return out, func() { _ = pubsub.Close() }, nil
}

func channel(code string) string {
	return "battle:room:" + code + ":updates"
}

// forward never blocks: when the subscriber lags it loses the oldest pending update.
func forward(out chan domain.RoomUpdate, update domain.RoomUpdate) {
	select {
	case out <- update:
	default:
		select {
		case <-out:
		default:
		}
		out <- update
	}
}

// prepend yields first, then everything from changes, closing when changes closes.
func prepend(first domain.RoomUpdate, changes <-chan domain.RoomUpdate, stop func()) (<-chan domain.RoomUpdate, func(), error) {
	out := make(chan domain.RoomUpdate, updateBuffer)
	out <- first
	go func() {
		defer close(out)
		for update := range changes {
			forward(out, update)
		}
	}()
	return out, stop, nil
}
