package model

import (
	"strings"
	"time"
)

// Priority 是督导反馈的红黄绿严重级别。
type Priority string

const (
	PriorityGreen  Priority = "green"
	PriorityYellow Priority = "yellow"
	PriorityRed    Priority = "red"
)

// ParsePriority 将任意字符串规范化为合法的优先级，未知值返回 false。
func ParsePriority(s string) (Priority, bool) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityGreen:
		return PriorityGreen, true
	case PriorityYellow:
		return PriorityYellow, true
	case PriorityRed:
		return PriorityRed, true
	}
	return PriorityGreen, false
}

// NoteDraft 是反馈生成器的输出，尚未分配 ID 与时间戳。
type NoteDraft struct {
	Title    string   `json:"title"`
	Summary  string   `json:"summary"`
	Details  string   `json:"details"`
	Priority Priority `json:"priority"`
}

// FeedbackNote 对应 consultant_notes 表，创建后不可修改。
type FeedbackNote struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string    `gorm:"type:varchar(36);index;not null" json:"conversationId"`
	Title          string    `gorm:"type:varchar(255);not null" json:"title"`
	Summary        string    `gorm:"type:text;not null" json:"summary"`
	Details        string    `gorm:"type:text" json:"details"`
	Priority       Priority  `gorm:"type:varchar(8);not null" json:"priority"`
	CreatedAt      time.Time `gorm:"index" json:"createdAt"`
}

func (FeedbackNote) TableName() string {
	return "consultant_notes"
}

// NoteVote 对应 consultant_note_votes 表，每个 (会话, 笔记) 至多一条，后写覆盖。
type NoteVote struct {
	ConversationID string    `gorm:"type:varchar(36);primaryKey" json:"conversationId"`
	NoteID         uint      `gorm:"primaryKey;autoIncrement:false" json:"noteId"`
	IsUpvoted      bool      `gorm:"not null" json:"isUpvoted"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (NoteVote) TableName() string {
	return "consultant_note_votes"
}
