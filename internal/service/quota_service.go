package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"wet-coach-go/internal/config"
	"wet-coach-go/internal/model"
	"wet-coach-go/internal/repository"
	"wet-coach-go/pkg/log"
)

// QuotaService 限制每个用户在滚动窗口内可提交的对话轮数，上限按角色配置。
type QuotaService interface {
	// Reserve 原子地占用一轮配额，超出上限时返回 ErrRateLimited。
	// 轮次随后在准入阶段被拒绝时，调用返回的 release 归还配额。
	Reserve(ctx context.Context, user *model.User) (release func(), err error)
	Limit(role string) int
}

type quotaService struct {
	quotaRepo repository.QuotaRepository
	window    time.Duration
	limits    map[string]int
	now       func() time.Time
}

// NewQuotaService 创建一个新的 QuotaService 实例。
func NewQuotaService(quotaRepo repository.QuotaRepository, cfg config.QuotaConfig) QuotaService {
	window := time.Duration(cfg.WindowHours) * time.Hour
	if window <= 0 {
		window = 24 * time.Hour
	}
	// viper 会把 map 的键转为小写，这里统一按大写角色名查找
	limits := make(map[string]int, len(cfg.MaxTurnsPerRole))
	for role, n := range cfg.MaxTurnsPerRole {
		limits[strings.ToUpper(role)] = n
	}
	return &quotaService{quotaRepo: quotaRepo, window: window, limits: limits, now: time.Now}
}

// Limit 返回角色的轮数上限，未配置（或配置为非正数）时返回 0 表示不限制。
func (s *quotaService) Limit(role string) int {
	return s.limits[strings.ToUpper(role)]
}

func (s *quotaService) Reserve(ctx context.Context, user *model.User) (func(), error) {
	turnID := uuid.NewString()
	ok, err := s.quotaRepo.Reserve(ctx, user.ID, turnID, s.now(), s.window, s.Limit(user.Role))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRateLimited
	}
	release := func() {
		if err := s.quotaRepo.Release(context.WithoutCancel(ctx), user.ID, turnID); err != nil {
			log.Warnw("归还轮次配额失败", "user_id", user.ID, "error", err)
		}
	}
	return release, nil
}
