package service

import (
	"context"
	"errors"
	"strings"

	"wet-coach-go/internal/memory"
	"wet-coach-go/internal/model"
	"wet-coach-go/internal/orchestrator"
	"wet-coach-go/internal/persona"
	"wet-coach-go/pkg/log"
)

// TurnRunner 执行一轮对话，由 orchestrator.Orchestrator 实现。
type TurnRunner interface {
	RunTurn(ctx context.Context, in orchestrator.TurnInput, sink orchestrator.FragmentSink) (orchestrator.TurnResult, error)
}

// TurnRequest 是治疗师提交一轮对话的请求。
type TurnRequest struct {
	ConversationID string        `json:"conversationId"`
	Text           string        `json:"text"`
	Persona        persona.Key   `json:"persona"`
	Visibility     string        `json:"visibility"`
	MemoryDigest   memory.Digest `json:"memoryDigest"`
}

// TurnService 负责一轮对话的准入检查（配额、权限、并发）并交给编排器执行。
type TurnService interface {
	Submit(ctx context.Context, user *model.User, req TurnRequest, sink orchestrator.FragmentSink) (orchestrator.TurnResult, error)
	Stop(ctx context.Context, user *model.User, conversationID string) (bool, error)
}

type turnService struct {
	conversations ConversationService
	quota         QuotaService
	sessions      *orchestrator.Sessions
	runner        TurnRunner
}

// NewTurnService 创建一个新的 TurnService 实例。
func NewTurnService(conversations ConversationService, quota QuotaService, sessions *orchestrator.Sessions, runner TurnRunner) TurnService {
	return &turnService{
		conversations: conversations,
		quota:         quota,
		sessions:      sessions,
		runner:        runner,
	}
}

// Submit 校验请求后同步执行一轮。被拒绝（参数、配额、权限、并发）的轮次不留下任何写入，已占用的配额会归还。
func (s *turnService) Submit(ctx context.Context, user *model.User, req TurnRequest, sink orchestrator.FragmentSink) (orchestrator.TurnResult, error) {
	// 1. 参数校验
	if strings.TrimSpace(req.ConversationID) == "" || strings.TrimSpace(req.Text) == "" {
		return orchestrator.TurnResult{}, ErrInvalidTurn
	}
	// 无法识别的角色按未选择处理，本轮使用默认提示词
	storedKey := req.Persona
	if _, ok := persona.Lookup(storedKey); !ok && storedKey != "" {
		log.Warnw("未知的病人角色，使用默认提示词", "conversation_id", req.ConversationID, "persona", storedKey)
		storedKey = ""
	}

	// 2. 原子地占用配额
	release, err := s.quota.Reserve(ctx, user)
	if err != nil {
		return orchestrator.TurnResult{}, err
	}
	admitted := false
	defer func() {
		if !admitted {
			release()
		}
	}()

	// 3. 权限检查，首轮时创建会话
	if _, err := s.conversations.Authorize(ctx, user, req.ConversationID, AccessTurn); err != nil && !errors.Is(err, ErrConversationNotFound) {
		return orchestrator.TurnResult{}, err
	}

	// 4. 每个会话同一时刻只允许一个轮次
	stop, end, err := s.sessions.Begin(req.ConversationID)
	if err != nil {
		return orchestrator.TurnResult{}, err
	}
	defer end()

	conv, err := s.conversations.Ensure(ctx, user, NewConversation{
		ID:         req.ConversationID,
		PersonaKey: storedKey,
		Visibility: req.Visibility,
		FirstText:  req.Text,
	})
	if err != nil {
		return orchestrator.TurnResult{}, err
	}
	admitted = true

	p := persona.Resolve(persona.Key(conv.PersonaKey))
	if req.Persona != "" {
		p = persona.Resolve(req.Persona)
	}

	// 5. 执行本轮
	res, err := s.runner.RunTurn(ctx, orchestrator.TurnInput{
		ConversationID: conv.ID,
		TherapistText:  req.Text,
		Persona:        p,
		PreviousDigest: req.MemoryDigest,
		Stop:           stop,
	}, sink)
	if err != nil {
		log.Error("执行对话轮次失败", err)
		return res, err
	}
	log.Infow("对话轮次完成",
		"conversation_id", conv.ID,
		"user_id", user.ID,
		"truncated", res.Truncated,
		"feedback", res.FeedbackKind.String(),
		"note_skipped", res.NoteSkipped,
		"patient_failed", res.PatientErr != nil,
	)
	return res, nil
}

// Stop 截断会话中正在进行的病人回复。没有进行中的轮次时返回 false。
func (s *turnService) Stop(ctx context.Context, user *model.User, conversationID string) (bool, error) {
	if _, err := s.conversations.Authorize(ctx, user, conversationID, AccessTurn); err != nil {
		return false, err
	}
	return s.sessions.Stop(conversationID), nil
}
