package feed

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const channelPrefix = "invoicedesk:changes:"

// RedisBroker shares changes between server instances over Redis pub/sub.
type RedisBroker struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewRedisBroker(addr string, password string, db int, log zerolog.Logger) *RedisBroker {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisBroker{client: client, log: log}
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

func channelFor(userID string) string {
	return channelPrefix + userID
}

func (b *RedisBroker) Publish(ctx context.Context, change Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelFor(change.UserID), payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, userID string) (<-chan Change, error) {
	pubsub := b.client.Subscribe(ctx, channelFor(userID))
	// Receive blocks until the subscription is confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", userID, err)
	}

	out := make(chan Change, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					b.log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed change")
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
