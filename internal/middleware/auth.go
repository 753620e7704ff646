// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"wet-coach-go/internal/model"
	"wet-coach-go/internal/service"
	"wet-coach-go/pkg/log"
	"wet-coach-go/pkg/token"
)

// ErrUnauthenticated 表示 token 缺失、无效、已过期或已登出。
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticate 校验 token 并加载对应的用户。HTTP 中间件与 WebSocket 握手共用。
func Authenticate(ctx context.Context, jwtManager *token.JWTManager, userService service.UserService, tokenString string) (*model.User, *token.CustomClaims, error) {
	if tokenString == "" {
		return nil, nil, ErrUnauthenticated
	}
	claims, err := jwtManager.VerifyToken(tokenString)
	if err != nil {
		return nil, nil, ErrUnauthenticated
	}

	revoked, err := userService.IsRevoked(ctx, tokenString)
	if err != nil {
		// 黑名单不可用时拒绝请求
		log.Error("检查 token 黑名单失败", err)
		return nil, nil, ErrUnauthenticated
	}
	if revoked {
		return nil, nil, ErrUnauthenticated
	}

	// 根据 token 中的用户名加载完整的用户信息，用户可能已被删除
	user, err := userService.GetProfile(claims.Username)
	if err != nil {
		return nil, nil, ErrUnauthenticated
	}
	return user, claims, nil
}

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 它会从请求头中提取 token，验证其有效性，并将完整的 User 对象存入 Gin 的上下文中。
func AuthMiddleware(jwtManager *token.JWTManager, userService service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未包含授权头"})
			return
		}

		// Token 以 "Bearer <token>" 的形式提供
		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的授权头格式"})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)

		user, claims, err := Authenticate(c.Request.Context(), jwtManager, userService, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token"})
			return
		}

		c.Set("user", user)
		c.Set("claims", claims)
		c.Set("token", tokenString)
		c.Next()
	}
}

// SupervisorOnly 只允许督导访问。必须在 AuthMiddleware 之后使用。
func SupervisorOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, exists := c.Get("user")
		if !exists {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息"})
			return
		}
		currentUser, ok := user.(*model.User)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "用户数据类型错误"})
			return
		}
		if !currentUser.IsSupervisor() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "权限不足，需要督导权限"})
			return
		}
		c.Next()
	}
}
