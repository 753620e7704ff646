package handler

import (
	"github.com/gin-gonic/gin"

	"wet-coach-go/internal/persona"
	"wet-coach-go/internal/service"
)

// ConversationHandler 处理与会话历史相关的 API 请求。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// GetConversations 返回当前用户的会话列表，最新在前。
func (h *ConversationHandler) GetConversations(c *gin.Context) {
	convs, err := h.service.List(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, "GetConversations", err)
		return
	}
	ok(c, convs)
}

// GetMessages 返回会话的全部消息。
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	msgs, err := h.service.Messages(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, "GetMessages", err)
		return
	}
	ok(c, msgs)
}

// GetTranscript 返回归档逐字稿的临时下载地址。
func (h *ConversationHandler) GetTranscript(c *gin.Context) {
	url, err := h.service.TranscriptURL(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, "GetTranscript", err)
		return
	}
	ok(c, gin.H{"url": url})
}

// ListPersonas 返回可选的模拟病人。
func ListPersonas(c *gin.Context) {
	ok(c, persona.All())
}
