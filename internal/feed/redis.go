package feed

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisClient go-redis 客戶端的子集，便於測試
type redisClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// RedisPublisher 以 Redis PUBLISH 發佈
type RedisPublisher struct {
	client redisClient
}

// DialRedis 建立 Redis 客戶端並驗證連線
func DialRedis(ctx context.Context, addr, password string, db int) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("連接 Redis 失敗: %w", err)
	}
	return NewRedisPublisher(client), nil
}

// NewRedisPublisher 使用既有客戶端
func NewRedisPublisher(client redisClient) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, subject string, payload []byte) error {
	if err := p.client.Publish(ctx, subject, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", subject, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
