// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"wet-coach-go/internal/model"
	"wet-coach-go/internal/repository"
	"wet-coach-go/pkg/hash"
	"wet-coach-go/pkg/log"
	"wet-coach-go/pkg/token"
)

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	Register(username, password string) (*model.User, error)
	Login(username, password string) (accessToken, refreshToken string, err error)
	Guest() (user *model.User, accessToken, refreshToken string, err error)
	GetProfile(username string) (*model.User, error)
	Logout(ctx context.Context, tokenString string) error
	IsRevoked(ctx context.Context, tokenString string) (bool, error)
	RefreshToken(refreshTokenString string) (newAccessToken, newRefreshToken string, err error)
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo   repository.UserRepository
	blacklist  repository.TokenBlacklist
	jwtManager *token.JWTManager
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, blacklist repository.TokenBlacklist, jwtManager *token.JWTManager) UserService {
	return &userService{
		userRepo:   userRepo,
		blacklist:  blacklist,
		jwtManager: jwtManager,
	}
}

// Register 处理用户注册的业务逻辑。
func (s *userService) Register(username, password string) (*model.User, error) {
	// 1. 检查用户名是否已存在
	_, err := s.userRepo.FindByUsername(username)
	if err == nil {
		return nil, ErrUsernameTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// 2. 对密码进行哈希处理
	hashedPassword, err := hash.HashPassword(password)
	if err != nil {
		return nil, err
	}

	// 3. 创建新用户
	newUser := &model.User{
		Username: username,
		Password: hashedPassword,
		Role:     model.RoleUser,
	}
	if err := s.userRepo.Create(newUser); err != nil {
		return nil, err
	}
	return newUser, nil
}

// Login 处理用户登录的业务逻辑。
func (s *userService) Login(username, password string) (accessToken, refreshToken string, err error) {
	// 1. 查找用户
	user, err := s.userRepo.FindByUsername(username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", ErrInvalidCredentials
		}
		return "", "", err
	}

	// 2. 验证密码
	if !hash.CheckPasswordHash(password, user.Password) {
		return "", "", ErrInvalidCredentials
	}

	// 3. 生成 access token 和 refresh token
	return s.issue(user)
}

// Guest 创建一个随机用户名的访客账号并直接登录。访客没有可用的密码。
func (s *userService) Guest() (*model.User, string, string, error) {
	hashedPassword, err := hash.HashPassword(token.GenerateRandomString(32))
	if err != nil {
		return nil, "", "", err
	}
	user := &model.User{
		Username: "guest-" + token.GenerateRandomString(10),
		Password: hashedPassword,
		Role:     model.RoleGuest,
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, "", "", fmt.Errorf("创建访客失败: %w", err)
	}
	log.Infof("[UserService] 创建访客账号 %s", user.Username)

	accessToken, refreshToken, err := s.issue(user)
	if err != nil {
		return nil, "", "", err
	}
	return user, accessToken, refreshToken, nil
}

// GetProfile 根据用户名获取用户详细信息。
func (s *userService) GetProfile(username string) (*model.User, error) {
	return s.userRepo.FindByUsername(username)
}

// Logout 将 token 加入黑名单，过期时间为 token 的剩余有效期。
func (s *userService) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return err
	}
	return s.blacklist.Add(ctx, tokenString, time.Until(claims.ExpiresAt.Time))
}

// IsRevoked 判断 token 是否已登出。
func (s *userService) IsRevoked(ctx context.Context, tokenString string) (bool, error) {
	return s.blacklist.Contains(ctx, tokenString)
}

// RefreshToken 验证 refresh token 并签发新的 access token 和 refresh token。
func (s *userService) RefreshToken(refreshTokenString string) (newAccessToken, newRefreshToken string, err error) {
	// 1. 验证 refresh token 是否有效
	claims, err := s.jwtManager.VerifyToken(refreshTokenString)
	if err != nil {
		return "", "", errors.New("invalid refresh token")
	}

	// 2. 检查用户是否存在
	user, err := s.userRepo.FindByUsername(claims.Username)
	if err != nil {
		return "", "", errors.New("user not found")
	}

	// 3. 签发新的 token
	return s.issue(user)
}

func (s *userService) issue(user *model.User) (string, string, error) {
	accessToken, err := s.jwtManager.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		return "", "", err
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID, user.Username, user.Role)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}
