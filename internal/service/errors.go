package service

import (
	"errors"

	"wet-coach-go/internal/orchestrator"
)

// 业务层哨兵错误，由 handler 通过 errors.Is 映射为 HTTP 状态码。
var (
	ErrForbidden            = errors.New("forbidden")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNoteNotFound         = errors.New("note not found")
	ErrRateLimited          = errors.New("turn quota exceeded for the rolling window")
	ErrTurnInFlight         = orchestrator.ErrTurnInFlight
	ErrInvalidNote          = errors.New("invalid note")
	ErrInvalidTurn          = errors.New("therapist text must not be empty")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrUsernameTaken        = errors.New("用户名已存在")
	ErrSearchUnavailable    = errors.New("note search is not configured")
	ErrArchiveUnavailable   = errors.New("transcript archive is not configured")
)
