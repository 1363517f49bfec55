// Package eventbus fans auction notifications out across replicas using
// Redis Pub/Sub for live delivery and a Redis Stream for durable replay.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/auction-engine/internal/model"
)

// streamMaxLen is the approximate maximum stream length, enforced via
// XADD MAXLEN ~.
const streamMaxLen int64 = 10000

func Channel(auctionID string) string { return "auction:" + auctionID + ":events" }
func Stream(auctionID string) string  { return "auction:" + auctionID + ":stream" }

// Redis publishes notifications to a per-auction channel and stream.
type Redis struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewRedis(rdb *redis.Client, logger *slog.Logger) *Redis {
	return &Redis{rdb: rdb, logger: logger.With("component", "eventbus")}
}

// Publish sends ev on the live channel and appends it to the stream in one
// pipeline round trip.
func (b *Redis) Publish(ctx context.Context, ev model.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event %d: %w", ev.Seq, err)
	}

	pipe := b.rdb.Pipeline()
	pipe.Publish(ctx, Channel(ev.AuctionID), payload)
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: Stream(ev.AuctionID),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"seq":     ev.Seq,
			"kind":    string(ev.Kind),
			"payload": payload,
		},
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("eventbus: publish %s/%d: %w", ev.AuctionID, ev.Seq, err)
	}
	return nil
}

// Subscribe returns notifications published for auctionID by any replica.
// The channel is closed when ctx is cancelled.
func (b *Redis) Subscribe(ctx context.Context, auctionID string) (<-chan model.Event, error) {
	pubsub := b.rdb.Subscribe(ctx, Channel(auctionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("eventbus: subscribe %s: %w", auctionID, err)
	}

	out := make(chan model.Event, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev model.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.logger.Warn("dropping malformed event", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
