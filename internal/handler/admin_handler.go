package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"wet-coach-go/internal/service"
	"wet-coach-go/pkg/log"
)

// AdminHandler 负责处理督导相关的 API 请求。
type AdminHandler struct {
	adminService service.AdminService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// ListUsers 处理分页获取用户列表的请求。
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))

	userList, err := h.adminService.ListUsers(page, size)
	if err != nil {
		log.Error("ListUsers: Failed to list users", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取用户列表失败", "data": nil})
		return
	}
	ok(c, userList)
}

// ListConversations 按用户与日期范围检索所有练习会话。
func (h *AdminHandler) ListConversations(c *gin.Context) {
	var userID *uint
	if userIDStr := c.Query("userid"); userIDStr != "" {
		id, err := strconv.ParseUint(userIDStr, 10, 32)
		if err != nil {
			badRequest(c, "Invalid user ID format")
			return
		}
		uid := uint(id)
		userID = &uid
	}

	var startTime, endTime *time.Time
	timeLayout := "2006-01-02"
	if startDateStr := c.Query("start_date"); startDateStr != "" {
		t, err := time.Parse(timeLayout, startDateStr)
		if err != nil {
			badRequest(c, "Invalid start_date format, use YYYY-MM-DD")
			return
		}
		startTime = &t
	}
	if endDateStr := c.Query("end_date"); endDateStr != "" {
		t, err := time.Parse(timeLayout, endDateStr)
		if err != nil {
			badRequest(c, "Invalid end_date format, use YYYY-MM-DD")
			return
		}
		// 包含当天
		t = t.Add(24*time.Hour - time.Second)
		endTime = &t
	}

	conversations, err := h.adminService.ListConversations(c.Request.Context(), userID, startTime, endTime)
	if err != nil {
		respondError(c, "ListConversations", err)
		return
	}
	ok(c, conversations)
}
