package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"towerd/internal/tower"
)

// Publisher pushes notable-win summaries onto a Redis channel for public
// display. It also backs the per-player bet rate limiter; both concerns
// share the one client.
type Publisher struct {
	client  *redis.Client
	channel string
}

func NewPublisher(ctx context.Context, addr, password string, db int, channel string) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &Publisher{client: client, channel: channel}, nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}

func (p *Publisher) PublishNotableWin(ctx context.Context, ev tower.WinEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}

// Allow implements tower.RateLimiter with a counter keyed per player and
// action, expiring after the window.
func (p *Publisher) Allow(ctx context.Context, playerID, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", playerID, action)
	count, err := p.client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		p.client.Expire(ctx, key, window)
	}
	return count <= int64(limit), nil
}

// Subscribe hands every feed message to fn until the context ends.
func (p *Publisher) Subscribe(ctx context.Context, fn func([]byte)) error {
	sub := p.client.Subscribe(ctx, p.channel)
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
			fn([]byte(msg.Payload))
		}
	}
}
