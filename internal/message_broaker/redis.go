package message_broaker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPubSub relays messages over Redis PUBLISH/SUBSCRIBE.
type RedisPubSub struct {
	rdb *redis.Client
}

func NewRedisPubSub(ctx context.Context, address, password string, db int) (*RedisPubSub, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        address,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisPubSub{rdb: rdb}, nil
}

// NewRedisPubSubFromClient wraps an existing client; Close closes it.
func NewRedisPubSubFromClient(rdb *redis.Client) *RedisPubSub {
	return &RedisPubSub{rdb: rdb}
}

func (r *RedisPubSub) Publish(topic string, message []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return r.rdb.Publish(ctx, topic, message).Err()
}

func (r *RedisPubSub) Consume(ctx context.Context, topic string) (<-chan []byte, error) {
	sub := r.rdb.Subscribe(ctx, topic)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan []byte, 1000)
	go func() {
		defer close(out)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				select {
				case out <- []byte(m.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (r *RedisPubSub) Close() error {
	return r.rdb.Close()
}
