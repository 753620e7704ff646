package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"wet-coach-go/internal/model"
	"wet-coach-go/internal/service"
	"wet-coach-go/pkg/log"
)

// statusFor 把业务错误映射为 HTTP 状态码与提示信息。
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidTurn),
		errors.Is(err, service.ErrInvalidNote):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "无权访问该会话"
	case errors.Is(err, service.ErrConversationNotFound):
		return http.StatusNotFound, "会话不存在"
	case errors.Is(err, service.ErrNoteNotFound):
		return http.StatusNotFound, "笔记不存在"
	case errors.Is(err, service.ErrTurnInFlight):
		return http.StatusConflict, "该会话已有进行中的轮次"
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests, "已达到当前时段的对话轮数上限"
	case errors.Is(err, service.ErrSearchUnavailable),
		errors.Is(err, service.ErrArchiveUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	}
	return http.StatusInternalServerError, "服务器内部错误"
}

// respondError 以统一的响应结构返回错误，5xx 错误会记录日志。
func respondError(c *gin.Context, op string, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(op, err)
	} else {
		log.Warnf("%s: %v", op, err)
	}
	c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": message, "data": nil})
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": data})
}

// currentUser 返回由 AuthMiddleware 注入的用户。
func currentUser(c *gin.Context) *model.User {
	v, exists := c.Get("user")
	if !exists {
		return nil
	}
	user, _ := v.(*model.User)
	return user
}
