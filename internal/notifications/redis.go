package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"archivist/internal/config"
)

// redisMessage is published on <prefix><event> for cross-process listeners.
type redisMessage struct {
	Event   Event   `json:"event"`
	RoomID  int64   `json:"roomId"`
	Payload Payload `json:"payload"`
	At      int64   `json:"at"`
}

type redisService struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
	now     func() time.Time
}

func newRedisService(ctx context.Context, cfg config.Notifications, timeout time.Duration) (*redisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisService{client: client, prefix: cfg.RedisChannelPrefix, timeout: timeout, now: time.Now}, nil
}

// Channel returns the pub/sub channel an event is published on.
func Channel(prefix string, event Event) string {
	return prefix + string(event)
}

func (r *redisService) Publish(ctx context.Context, room config.Room, event Event, payload Payload) error {
	body, err := json.Marshal(redisMessage{Event: event, RoomID: room.ID, Payload: payload, At: r.now().Unix()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.client.Publish(ctx, Channel(r.prefix, event), body).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (r *redisService) Close() error {
	return r.client.Close()
}
