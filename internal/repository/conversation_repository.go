package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"wet-coach-go/internal/model"
)

// ErrNotFound 表示请求的记录不存在。
var ErrNotFound = errors.New("record not found")

// ConversationFilter 是管理端会话检索的可选条件。
type ConversationFilter struct {
	UserID    *uint
	StartTime *time.Time
	EndTime   *time.Time
}

// ConversationRepository 定义了会话与消息的持久化操作。消息只追加，不修改。
type ConversationRepository interface {
	Create(ctx context.Context, conv *model.Conversation) error
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	ListByUser(ctx context.Context, userID uint) ([]model.Conversation, error)
	List(ctx context.Context, filter ConversationFilter) ([]model.Conversation, error)
	SaveMessage(ctx context.Context, msg *model.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	if err := r.db.WithContext(ctx).Create(conv).Error; err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// FindByID 查找会话，不存在时返回 ErrNotFound。
func (r *conversationRepository) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

// ListByUser 按创建时间倒序返回用户的会话。
func (r *conversationRepository) ListByUser(ctx context.Context, userID uint) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

func (r *conversationRepository) List(ctx context.Context, filter ConversationFilter) ([]model.Conversation, error) {
	q := r.db.WithContext(ctx).Model(&model.Conversation{})
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.StartTime != nil {
		q = q.Where("created_at >= ?", *filter.StartTime)
	}
	if filter.EndTime != nil {
		q = q.Where("created_at <= ?", *filter.EndTime)
	}
	var convs []model.Conversation
	if err := q.Order("created_at DESC").Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

func (r *conversationRepository) SaveMessage(ctx context.Context, msg *model.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// ListMessages 按插入顺序返回会话的全部消息。
func (r *conversationRepository) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").Order("id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}
