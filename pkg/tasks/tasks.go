// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// TurnArchiveTask 在每条督导笔记写入后发布，驱动转写归档与检索索引。
type TurnArchiveTask struct {
	ConversationID string `json:"conversation_id"`
	NoteID         uint   `json:"note_id"`
}
