package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// TokenBlacklist 保存已登出的 token，过期时间与 token 剩余有效期一致。
type TokenBlacklist interface {
	Add(ctx context.Context, token string, ttl time.Duration) error
	Contains(ctx context.Context, token string) (bool, error)
}

type redisTokenBlacklist struct {
	redisClient *redis.Client
}

// NewTokenBlacklist 创建一个新的 TokenBlacklist 实例。
func NewTokenBlacklist(redisClient *redis.Client) TokenBlacklist {
	return &redisTokenBlacklist{redisClient: redisClient}
}

func (r *redisTokenBlacklist) Add(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.redisClient.Set(ctx, "blacklist:"+token, "true", ttl).Err(); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}

func (r *redisTokenBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	n, err := r.redisClient.Exists(ctx, "blacklist:"+token).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	return n > 0, nil
}
