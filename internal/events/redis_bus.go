package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	redis "github.com/redis/go-redis/v9"
)

// RedisBus broadcasts events over a Redis pub/sub channel so that multiple
// backend instances invalidate their open dashboards together.
type RedisBus struct {
	client  *redis.Client
	channel string

	mu   sync.Mutex
	subs []*redis.PubSub
}

func NewRedisBus(addr string, password string, db int, channel string) *RedisBus {
	if channel == "" {
		channel = "ledgerdesk:events"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisBus{client: client, channel: channel}
}

func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

func (b *RedisBus) Subscribe(handler Handler) func() {
	sub := b.client.Subscribe(context.Background(), b.channel)

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go func() {
		for msg := range sub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("[events] WARN: dropping malformed event payload: %v", err)
				continue
			}
			handler(event)
		}
	}()

	return func() {
		_ = sub.Close()
	}
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	for _, sub := range b.subs {
		_ = sub.Close()
	}
	b.subs = nil
	b.mu.Unlock()
	return b.client.Close()
}
