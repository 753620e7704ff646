package handler

import (
	"github.com/gin-gonic/gin"

	"wet-coach-go/internal/consultant"
	"wet-coach-go/internal/model"
	"wet-coach-go/internal/orchestrator"
)

// FeedbackHandler 对任意一段对话按需生成督导反馈，不写入笔记。
type FeedbackHandler struct {
	generator orchestrator.FeedbackGenerator
}

// NewFeedbackHandler 创建一个新的 FeedbackHandler。
func NewFeedbackHandler(generator orchestrator.FeedbackGenerator) *FeedbackHandler {
	return &FeedbackHandler{generator: generator}
}

// HistoryEntry 是请求中的一条对话记录。
type HistoryEntry struct {
	Role string `json:"role" binding:"required,oneof=user assistant"`
	Text string `json:"text"`
}

// FeedbackRequest 定义了反馈 API 的请求体结构。
type FeedbackRequest struct {
	ConversationHistory []HistoryEntry `json:"conversationHistory" binding:"required,dive"`
	MemorySummary       string         `json:"memorySummary"`
}

// Generate 生成一条反馈草稿。模型失败时返回回退草稿，kind 为 fallback。
func (h *FeedbackHandler) Generate(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载")
		return
	}

	transcript := make([]consultant.Entry, 0, len(req.ConversationHistory))
	for _, e := range req.ConversationHistory {
		role := model.RoleTherapist
		if e.Role == model.RolePatient {
			role = model.RolePatient
		}
		transcript = append(transcript, consultant.Entry{Role: role, Text: e.Text})
	}

	res := h.generator.Generate(c.Request.Context(), transcript, req.MemorySummary)
	ok(c, gin.H{
		"consultantNote": res.Draft,
		"kind":           res.Kind.String(),
	})
}
