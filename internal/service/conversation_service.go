package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"wet-coach-go/internal/model"
	"wet-coach-go/internal/persona"
	"wet-coach-go/internal/repository"
)

// maxTitleRunes 是由首条治疗师消息截取标题时的最大字符数。
const maxTitleRunes = 80

// defaultTitle 用于首条消息为空白时。
const defaultTitle = "New conversation"

// Access 描述调用方对会话的操作类型。
type Access int

const (
	// AccessRead 允许所有者、督导，以及任何人读取公开会话。
	AccessRead Access = iota
	// AccessOwner 只允许所有者与督导，用于反馈笔记与投票。
	AccessOwner
	// AccessTurn 只允许所有者提交新的对话轮次。
	AccessTurn
)

// TranscriptLinker 为归档的会话逐字稿生成下载链接。
type TranscriptLinker interface {
	PresignedURL(ctx context.Context, conversationID string, expiry time.Duration) (string, error)
}

// NewConversation 描述首轮提交时新建会话所需的信息。
type NewConversation struct {
	ID         string
	PersonaKey persona.Key
	Visibility string
	FirstText  string
}

// ConversationService 接口定义了会话的访问控制与查询。
type ConversationService interface {
	Authorize(ctx context.Context, user *model.User, conversationID string, access Access) (*model.Conversation, error)
	Ensure(ctx context.Context, user *model.User, req NewConversation) (*model.Conversation, error)
	List(ctx context.Context, user *model.User) ([]model.Conversation, error)
	Messages(ctx context.Context, user *model.User, conversationID string) ([]model.Message, error)
	TranscriptURL(ctx context.Context, user *model.User, conversationID string) (string, error)
}

type conversationService struct {
	conversationRepo repository.ConversationRepository
	transcripts      TranscriptLinker
}

// NewConversationService 创建一个新的 ConversationService 实例。transcripts 为 nil 时不提供逐字稿下载。
func NewConversationService(conversationRepo repository.ConversationRepository, transcripts TranscriptLinker) ConversationService {
	return &conversationService{conversationRepo: conversationRepo, transcripts: transcripts}
}

// Authorize 加载会话并检查调用方权限。会话不存在返回 ErrConversationNotFound，无权限返回 ErrForbidden。
func (s *conversationService) Authorize(ctx context.Context, user *model.User, conversationID string, access Access) (*model.Conversation, error) {
	conv, err := s.conversationRepo.FindByID(ctx, conversationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrForbidden
	}

	owner := conv.UserID == user.ID
	switch access {
	case AccessTurn:
		if owner {
			return conv, nil
		}
	case AccessOwner:
		if owner || user.IsSupervisor() {
			return conv, nil
		}
	default:
		if owner || user.IsSupervisor() || conv.Visibility == model.VisibilityPublic {
			return conv, nil
		}
	}
	return nil, ErrForbidden
}

// Ensure 返回调用方可提交轮次的会话，不存在时以首条消息创建。
func (s *conversationService) Ensure(ctx context.Context, user *model.User, req NewConversation) (*model.Conversation, error) {
	conv, err := s.Authorize(ctx, user, req.ID, AccessTurn)
	if err == nil || !errors.Is(err, ErrConversationNotFound) {
		return conv, err
	}

	visibility := req.Visibility
	if visibility != model.VisibilityPublic {
		visibility = model.VisibilityPrivate
	}
	conv = &model.Conversation{
		ID:         req.ID,
		UserID:     user.ID,
		Title:      TitleFromMessage(req.FirstText),
		PersonaKey: string(req.PersonaKey),
		Visibility: visibility,
		CreatedAt:  time.Now(),
	}
	if err := s.conversationRepo.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// List 返回调用方自己的会话。
func (s *conversationService) List(ctx context.Context, user *model.User) ([]model.Conversation, error) {
	return s.conversationRepo.ListByUser(ctx, user.ID)
}

// Messages 返回会话的全部消息，按时间顺序。
func (s *conversationService) Messages(ctx context.Context, user *model.User, conversationID string) ([]model.Message, error) {
	if _, err := s.Authorize(ctx, user, conversationID, AccessRead); err != nil {
		return nil, err
	}
	return s.conversationRepo.ListMessages(ctx, conversationID)
}

// TranscriptURL 返回归档逐字稿的临时下载链接，有效期 1 小时。
func (s *conversationService) TranscriptURL(ctx context.Context, user *model.User, conversationID string) (string, error) {
	if _, err := s.Authorize(ctx, user, conversationID, AccessRead); err != nil {
		return "", err
	}
	if s.transcripts == nil {
		return "", ErrArchiveUnavailable
	}
	return s.transcripts.PresignedURL(ctx, conversationID, time.Hour)
}

// TitleFromMessage 截取首条治疗师消息的第一行作为会话标题。
func TitleFromMessage(text string) string {
	title := strings.TrimSpace(text)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	if title == "" {
		return defaultTitle
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		runes := []rune(title)
		title = strings.TrimSpace(string(runes[:maxTitleRunes])) + "…"
	}
	return title
}
