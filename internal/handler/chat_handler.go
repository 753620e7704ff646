package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"wet-coach-go/internal/memory"
	"wet-coach-go/internal/middleware"
	"wet-coach-go/internal/model"
	"wet-coach-go/internal/orchestrator"
	"wet-coach-go/internal/persona"
	"wet-coach-go/internal/service"
	"wet-coach-go/pkg/log"
	"wet-coach-go/pkg/token"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// ChatHandler 通过 WebSocket 承载与 SSE 相同的轮次流程，并支持 {"type":"stop"} 指令。
type ChatHandler struct {
	turns       service.TurnService
	userService service.UserService
	jwtManager  *token.JWTManager
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(turns service.TurnService, userService service.UserService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		turns:       turns,
		userService: userService,
		jwtManager:  jwtManager,
	}
}

// clientFrame 是客户端发来的一帧。type 取 turn 或 stop。
type clientFrame struct {
	Type           string        `json:"type"`
	ConversationID string        `json:"conversationId"`
	Text           string        `json:"text"`
	Persona        persona.Key   `json:"persona"`
	Visibility     string        `json:"visibility"`
	MemoryDigest   memory.Digest `json:"memoryDigest"`
}

// wsConn 串行化对同一连接的写入。
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) send(frame interface{}) {
	b, err := json.Marshal(frame)
	if err != nil {
		log.Error("序列化 WebSocket 消息失败", err)
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Warnf("写入 WebSocket 消息失败: %v", err)
	}
}

// wsSink 把一个轮次的事件写入连接，每帧带上会话 ID。
type wsSink struct {
	conn           *wsConn
	conversationID string
}

func (s *wsSink) Delta(text string) {
	s.conn.send(gin.H{"type": "delta", "conversationId": s.conversationID, "text": text})
}

func (s *wsSink) PatientDone(reply orchestrator.PatientReply) {
	s.conn.send(gin.H{"type": "done", "conversationId": s.conversationID, "reply": reply})
}

func (s *wsSink) Note(note *model.FeedbackNote) {
	s.conn.send(gin.H{"type": "note", "conversationId": s.conversationID, "note": note})
}

func (s *wsSink) Error(message string) {
	s.conn.send(gin.H{"type": "error", "conversationId": s.conversationID, "message": message})
}

// Handle 处理一个传入的 WebSocket 连接。token 通过路径参数传入。
func (h *ChatHandler) Handle(c *gin.Context) {
	user, _, err := middleware.Authenticate(c.Request.Context(), h.jwtManager, h.userService, c.Param("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("WebSocket 连接已建立，用户: %s", user.Username)

	// 连接关闭时取消所有进行中的轮次
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	ws := &wsConn{conn: conn}
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Infof("WebSocket 连接关闭: %v", err)
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			ws.send(gin.H{"type": "rejected", "code": http.StatusBadRequest, "message": "无效的消息格式"})
			continue
		}

		switch frame.Type {
		case "stop":
			stopped, err := h.turns.Stop(ctx, user, frame.ConversationID)
			if err != nil {
				status, msg := statusFor(err)
				ws.send(gin.H{"type": "rejected", "conversationId": frame.ConversationID, "code": status, "message": msg})
				continue
			}
			ws.send(gin.H{
				"type":           "stop",
				"conversationId": frame.ConversationID,
				"stopped":        stopped,
				"timestamp":      time.Now().UnixMilli(),
			})
		case "turn", "":
			wg.Add(1)
			go func(frame clientFrame) {
				defer wg.Done()
				h.runTurn(ctx, ws, user, frame)
			}(frame)
		default:
			ws.send(gin.H{"type": "rejected", "code": http.StatusBadRequest, "message": "未知的消息类型"})
		}
	}
}

// runTurn 在独立的 goroutine 中执行一轮，读循环因此可以继续接收停止指令。
func (h *ChatHandler) runTurn(ctx context.Context, ws *wsConn, user *model.User, frame clientFrame) {
	sink := &wsSink{conn: ws, conversationID: frame.ConversationID}
	res, err := h.turns.Submit(ctx, user, service.TurnRequest{
		ConversationID: frame.ConversationID,
		Text:           frame.Text,
		Persona:        frame.Persona,
		Visibility:     frame.Visibility,
		MemoryDigest:   frame.MemoryDigest,
	}, sink)
	if err != nil {
		status, msg := statusFor(err)
		ws.send(gin.H{"type": "rejected", "conversationId": frame.ConversationID, "code": status, "message": msg})
		return
	}
	summary := turnSummary(res)
	summary["type"] = "end"
	ws.send(summary)
}
