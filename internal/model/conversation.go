// Package model 包含了应用的数据模型定义。
package model

import (
	"strings"
	"time"
)

// 消息角色：user 为受训治疗师，assistant 为模拟病人。
const (
	RoleTherapist = "user"
	RolePatient   = "assistant"
)

// 会话可见性。
const (
	VisibilityPrivate = "private"
	VisibilityPublic  = "public"
)

// 消息片段类型。
const (
	PartText = "text"
	PartFile = "file"
)

// Conversation 代表一次治疗练习会话。
type Conversation struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID     uint      `gorm:"index;not null" json:"userId"`
	Title      string    `gorm:"type:varchar(255);not null" json:"title"`
	PersonaKey string    `gorm:"type:varchar(64)" json:"personaKey"`
	Visibility string    `gorm:"type:varchar(16);not null;default:private" json:"visibility"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// MessagePart 是消息中的一个有类型片段（文本或文件引用）。
type MessagePart struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	URL       string `json:"url,omitempty"`
	Name      string `json:"name,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
}

// Message 代表会话中的单条消息，创建后不可修改，只能追加。
type Message struct {
	ID             uint          `gorm:"primaryKey;autoIncrement" json:"-"`
	MessageID      string        `gorm:"type:varchar(36);uniqueIndex;not null" json:"id"`
	ConversationID string        `gorm:"type:varchar(36);index;not null" json:"conversationId"`
	Role           string        `gorm:"type:varchar(16);not null" json:"role"`
	Parts          []MessagePart `gorm:"serializer:json;type:text" json:"parts"`
	CreatedAt      time.Time     `gorm:"index" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}

// Text 拼接消息中所有文本片段。
func (m Message) Text() string {
	var texts []string
	for _, p := range m.Parts {
		if p.Type == PartText && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// TextParts 用单个文本片段构造消息内容。
func TextParts(text string) []MessagePart {
	return []MessagePart{{Type: PartText, Text: text}}
}
