package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wet-coach-go/internal/model"
)

// NoteRepository 定义了督导笔记和投票的持久化操作。笔记只追加，投票按 (会话, 笔记) 覆盖。
type NoteRepository interface {
	Create(ctx context.Context, note *model.FeedbackNote) error
	FindByID(ctx context.Context, id uint) (*model.FeedbackNote, error)
	ListByConversation(ctx context.Context, conversationID string) ([]model.FeedbackNote, error)
	UpsertVote(ctx context.Context, vote *model.NoteVote) error
	ListVotes(ctx context.Context, conversationID string) ([]model.NoteVote, error)
}

type noteRepository struct {
	db *gorm.DB
}

// NewNoteRepository 创建一个新的 NoteRepository 实例。
func NewNoteRepository(db *gorm.DB) NoteRepository {
	return &noteRepository{db: db}
}

func (r *noteRepository) Create(ctx context.Context, note *model.FeedbackNote) error {
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(note).Error; err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}
	return nil
}

func (r *noteRepository) FindByID(ctx context.Context, id uint) (*model.FeedbackNote, error) {
	var note model.FeedbackNote
	err := r.db.WithContext(ctx).First(&note, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return &note, nil
}

// ListByConversation 按插入顺序（最旧在前）返回笔记。
func (r *noteRepository) ListByConversation(ctx context.Context, conversationID string) ([]model.FeedbackNote, error) {
	var notes []model.FeedbackNote
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").Order("id ASC").
		Find(&notes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return notes, nil
}

// UpsertVote 写入投票，已存在时覆盖 is_upvoted。
func (r *noteRepository) UpsertVote(ctx context.Context, vote *model.NoteVote) error {
	vote.UpdatedAt = time.Now()
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "note_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_upvoted", "updated_at"}),
	}).Create(vote).Error
	if err != nil {
		return fmt.Errorf("failed to upsert vote: %w", err)
	}
	return nil
}

func (r *noteRepository) ListVotes(ctx context.Context, conversationID string) ([]model.NoteVote, error) {
	var votes []model.NoteVote
	err := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Order("note_id ASC").Find(&votes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	return votes, nil
}
