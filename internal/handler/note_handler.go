package handler

import (
	"github.com/gin-gonic/gin"

	"wet-coach-go/internal/model"
	"wet-coach-go/internal/service"
)

// NoteHandler 处理督导笔记与投票相关的 API 请求。
type NoteHandler struct {
	conversations service.ConversationService
	notes         service.NoteService
}

// NewNoteHandler 创建一个新的 NoteHandler。
func NewNoteHandler(conversations service.ConversationService, notes service.NoteService) *NoteHandler {
	return &NoteHandler{conversations: conversations, notes: notes}
}

// CreateNoteRequest 定义了追加笔记 API 的请求体结构。
type CreateNoteRequest struct {
	ConversationID string `json:"conversationId" binding:"required"`
	Title          string `json:"title" binding:"required"`
	Summary        string `json:"summary" binding:"required"`
	Details        string `json:"details"`
	Priority       string `json:"priority" binding:"required"`
}

// CreateNote 追加一条笔记。
func (h *NoteHandler) CreateNote(c *gin.Context) {
	var req CreateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载")
		return
	}
	ctx := c.Request.Context()
	if _, err := h.conversations.Authorize(ctx, currentUser(c), req.ConversationID, service.AccessOwner); err != nil {
		respondError(c, "CreateNote", err)
		return
	}

	note, err := h.notes.Append(ctx, req.ConversationID, model.NoteDraft{
		Title:    req.Title,
		Summary:  req.Summary,
		Details:  req.Details,
		Priority: model.Priority(req.Priority),
	})
	if err != nil {
		respondError(c, "CreateNote", err)
		return
	}
	ok(c, note)
}

// authorizedConversation 读取 conversationId 查询参数并校验权限，失败时已写入响应。
func (h *NoteHandler) authorizedConversation(c *gin.Context, op string) (string, bool) {
	conversationID := c.Query("conversationId")
	if conversationID == "" {
		badRequest(c, "缺少 conversationId 参数")
		return "", false
	}
	if _, err := h.conversations.Authorize(c.Request.Context(), currentUser(c), conversationID, service.AccessOwner); err != nil {
		respondError(c, op, err)
		return "", false
	}
	return conversationID, true
}

// ListNotes 按插入顺序返回会话的笔记。
func (h *NoteHandler) ListNotes(c *gin.Context) {
	conversationID, allowed := h.authorizedConversation(c, "ListNotes")
	if !allowed {
		return
	}
	notes, err := h.notes.ListByConversation(c.Request.Context(), conversationID)
	if err != nil {
		respondError(c, "ListNotes", err)
		return
	}
	ok(c, gin.H{"notes": notes})
}

// Panel 返回反馈面板视图。
func (h *NoteHandler) Panel(c *gin.Context) {
	conversationID, allowed := h.authorizedConversation(c, "Panel")
	if !allowed {
		return
	}
	panel, err := h.notes.Panel(c.Request.Context(), conversationID)
	if err != nil {
		respondError(c, "Panel", err)
		return
	}
	ok(c, gin.H{"notes": panel})
}

// Search 全文检索当前用户的笔记。
func (h *NoteHandler) Search(c *gin.Context) {
	hits, err := h.notes.Search(c.Request.Context(), currentUser(c), c.Query("q"), c.Query("priority"))
	if err != nil {
		respondError(c, "Search", err)
		return
	}
	ok(c, hits)
}

// VoteRequest 定义了投票 API 的请求体结构。
type VoteRequest struct {
	ConversationID string `json:"conversationId" binding:"required"`
	NoteID         uint   `json:"noteId" binding:"required"`
	Type           string `json:"type" binding:"required,oneof=up down"`
}

// Vote 记录或覆盖对笔记的投票。
func (h *NoteHandler) Vote(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载：type 必须是 up 或 down")
		return
	}
	ctx := c.Request.Context()
	if _, err := h.conversations.Authorize(ctx, currentUser(c), req.ConversationID, service.AccessOwner); err != nil {
		respondError(c, "Vote", err)
		return
	}
	if err := h.notes.RecordVote(ctx, req.ConversationID, req.NoteID, req.Type == service.VoteUp); err != nil {
		respondError(c, "Vote", err)
		return
	}
	ok(c, nil)
}

// ListVotes 返回会话内的全部投票。
func (h *NoteHandler) ListVotes(c *gin.Context) {
	conversationID, allowed := h.authorizedConversation(c, "ListVotes")
	if !allowed {
		return
	}
	votes, err := h.notes.ListVotes(c.Request.Context(), conversationID)
	if err != nil {
		respondError(c, "ListVotes", err)
		return
	}
	ok(c, votes)
}
