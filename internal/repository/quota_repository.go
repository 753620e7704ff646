package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// QuotaRepository 用 Redis 有序集合记录每个用户的对话轮次，score 为毫秒时间戳。
type QuotaRepository interface {
	// Reserve 原子地清理窗口外的旧记录、计数，并在未超过 limit 时登记本轮。
	// limit <= 0 表示不限制。返回是否登记成功。
	Reserve(ctx context.Context, userID uint, turnID string, at time.Time, window time.Duration, limit int) (bool, error)
	// Release 撤销一次登记，用于轮次在准入阶段被拒绝的情况。
	Release(ctx context.Context, userID uint, turnID string) error
}

type redisQuotaRepository struct {
	redisClient *redis.Client
}

// NewQuotaRepository 创建一个新的 QuotaRepository 实例。
func NewQuotaRepository(redisClient *redis.Client) QuotaRepository {
	return &redisQuotaRepository{redisClient: redisClient}
}

func quotaKey(userID uint) string {
	return fmt.Sprintf("quota:turns:%d", userID)
}

// KEYS[1] 配额集合；ARGV: 窗口起点, 当前时间, turnID, 上限, 过期毫秒数
var reserveScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
local limit = tonumber(ARGV[4])
if limit > 0 and redis.call('ZCARD', KEYS[1]) >= limit then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

func (r *redisQuotaRepository) Reserve(ctx context.Context, userID uint, turnID string, at time.Time, window time.Duration, limit int) (bool, error) {
	cutoff := at.Add(-window).UnixMilli()
	ok, err := reserveScript.Run(ctx, r.redisClient, []string{quotaKey(userID)},
		strconv.FormatInt(cutoff, 10),
		strconv.FormatInt(at.UnixMilli(), 10),
		turnID,
		limit,
		window.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to reserve turn: %w", err)
	}
	return ok == 1, nil
}

func (r *redisQuotaRepository) Release(ctx context.Context, userID uint, turnID string) error {
	if err := r.redisClient.ZRem(ctx, quotaKey(userID), turnID).Err(); err != nil {
		return fmt.Errorf("failed to release turn: %w", err)
	}
	return nil
}
