package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"chatdesk-backend/internal/env"

	"github.com/go-redis/redis/v8"
)

// Publisher sends events to the redis channel behind a room. Every
// ws-server instance subscribed to the room relays them.
type Publisher struct {
	redisClient *redis.Client
}

func NewPublisher(redisClient *redis.Client) *Publisher {
	return &Publisher{redisClient: redisClient}
}

func (p *Publisher) Publish(ctx context.Context, roomID string, payload any) error {
	if roomID == "" {
		return fmt.Errorf("websocket publish: roomID required")
	}
	if p == nil || p.redisClient == nil {
		return fmt.Errorf("websocket publish: redis client not initialised")
	}

	messageJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("websocket publish: marshal payload: %w", err)
	}

	if err := p.redisClient.Publish(ctx, roomID, string(messageJSON)).Err(); err != nil {
		return fmt.Errorf("websocket publish: redis publish: %w", err)
	}
	return nil
}

// NewRedisClient accepts either host:port or a redis:// URL.
func NewRedisClient(cfg env.RedisConfig) (*redis.Client, error) {
	if strings.HasPrefix(cfg.URL, "redis://") || strings.HasPrefix(cfg.URL, "rediss://") {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		if cfg.Password != "" {
			opts.Password = cfg.Password
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.URL,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}
