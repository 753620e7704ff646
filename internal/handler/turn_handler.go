package handler

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"wet-coach-go/internal/model"
	"wet-coach-go/internal/orchestrator"
	"wet-coach-go/internal/service"
)

// TurnHandler 以 SSE 方式执行一轮训练对话。
type TurnHandler struct {
	turns service.TurnService
}

// NewTurnHandler 创建一个新的 TurnHandler。
func NewTurnHandler(turns service.TurnService) *TurnHandler {
	return &TurnHandler{turns: turns}
}

// sseSink 把轮次事件写成 SSE。第一个事件写出之前，错误仍可以普通 JSON 返回。
type sseSink struct {
	mu      sync.Mutex
	c       *gin.Context
	started bool
}

func (s *sseSink) emit(event string, data interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.started = true
		h := s.c.Writer.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.c.Status(http.StatusOK)
	}
	s.c.SSEvent(event, data)
	s.c.Writer.Flush()
}

func (s *sseSink) Delta(text string) {
	s.emit("delta", gin.H{"text": text})
}

func (s *sseSink) PatientDone(reply orchestrator.PatientReply) {
	s.emit("done", reply)
}

func (s *sseSink) Note(note *model.FeedbackNote) {
	s.emit("note", note)
}

func (s *sseSink) Error(message string) {
	s.emit("error", gin.H{"message": message})
}

func (s *sseSink) hasStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Submit 提交治疗师发言并以 SSE 流式返回病人回复与督导笔记。
func (h *TurnHandler) Submit(c *gin.Context) {
	var req service.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载")
		return
	}

	sink := &sseSink{c: c}
	res, err := h.turns.Submit(c.Request.Context(), currentUser(c), req, sink)
	if err != nil {
		if !sink.hasStarted() {
			respondError(c, "SubmitTurn", err)
			return
		}
		status, message := statusFor(err)
		sink.emit("error", gin.H{"code": status, "message": message})
		return
	}
	if c.Request.Context().Err() != nil {
		return
	}
	sink.emit("end", turnSummary(res))
}

// StopRequest 定义了停止 API 的请求体结构。
type StopRequest struct {
	ConversationID string `json:"conversationId" binding:"required"`
}

// Stop 截断正在进行的病人回复，已收到的部分作为完整回复保存。
func (h *TurnHandler) Stop(c *gin.Context) {
	var req StopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载：conversationId 不能为空")
		return
	}
	stopped, err := h.turns.Stop(c.Request.Context(), currentUser(c), req.ConversationID)
	if err != nil {
		respondError(c, "StopTurn", err)
		return
	}
	ok(c, gin.H{"stopped": stopped})
}

// turnSummary 是轮次结束时发送给客户端的概要。
func turnSummary(res orchestrator.TurnResult) gin.H {
	summary := gin.H{
		"conversationId": res.ConversationID,
		"memoryDigest":   res.Digest,
		"truncated":      res.Truncated,
		"patientFailed":  res.PatientErr != nil,
		"noteSkipped":    res.NoteSkipped,
	}
	// 没有病人消息的轮次不会请求反馈
	if res.PatientMessageID != "" {
		summary["feedback"] = res.FeedbackKind.String()
	}
	return summary
}

// 确保 sseSink 实现了 FragmentSink
var _ orchestrator.FragmentSink = (*sseSink)(nil)
