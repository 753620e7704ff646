// Package pipeline 定义了每轮对话结束后的归档流程：
// 渲染会话转写稿写入对象存储，并把新笔记写入检索索引。
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"wet-coach-go/internal/model"
	"wet-coach-go/internal/repository"
	"wet-coach-go/pkg/es"
	"wet-coach-go/pkg/log"
	"wet-coach-go/pkg/tasks"
)

// TranscriptWriter 保存渲染后的转写稿。
type TranscriptWriter interface {
	PutTranscript(ctx context.Context, conversationID string, body []byte) error
}

// NoteIndexer 把笔记写入检索索引。
type NoteIndexer interface {
	IndexNote(ctx context.Context, doc es.NoteDocument) error
}

// Processor 封装了归档处理的所有依赖和逻辑。transcripts 或 indexer 为空时跳过对应步骤。
type Processor struct {
	conversationRepo repository.ConversationRepository
	noteRepo         repository.NoteRepository
	transcripts      TranscriptWriter
	indexer          NoteIndexer
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	conversationRepo repository.ConversationRepository,
	noteRepo repository.NoteRepository,
	transcripts TranscriptWriter,
	indexer NoteIndexer,
) *Processor {
	return &Processor{
		conversationRepo: conversationRepo,
		noteRepo:         noteRepo,
		transcripts:      transcripts,
		indexer:          indexer,
	}
}

// Process 是归档处理的主函数。重复处理同一任务是幂等的。
func (p *Processor) Process(ctx context.Context, task tasks.TurnArchiveTask) error {
	log.Infof("[Processor] 开始归档会话, ConversationID: %s, NoteID: %d", task.ConversationID, task.NoteID)

	// 1. 加载会话、消息和笔记
	conv, err := p.conversationRepo.FindByID(ctx, task.ConversationID)
	if err != nil {
		return fmt.Errorf("加载会话失败: %w", err)
	}
	messages, err := p.conversationRepo.ListMessages(ctx, task.ConversationID)
	if err != nil {
		return fmt.Errorf("加载消息失败: %w", err)
	}
	notes, err := p.noteRepo.ListByConversation(ctx, task.ConversationID)
	if err != nil {
		return fmt.Errorf("加载笔记失败: %w", err)
	}

	// 2. 渲染转写稿并写入对象存储
	if p.transcripts != nil {
		body := RenderTranscript(conv, messages, notes)
		if err := p.transcripts.PutTranscript(ctx, conv.ID, body); err != nil {
			log.Errorf("[Processor] 写入转写稿失败, ConversationID: %s, Error: %v", conv.ID, err)
			return fmt.Errorf("写入转写稿失败: %w", err)
		}
		log.Infof("[Processor] 步骤2: 转写稿写入成功, 消息 %d 条, 笔记 %d 条", len(messages), len(notes))
	}

	// 3. 索引本次新增的笔记
	if p.indexer != nil && task.NoteID != 0 {
		var note *model.FeedbackNote
		for i := range notes {
			if notes[i].ID == task.NoteID {
				note = &notes[i]
				break
			}
		}
		if note == nil {
			log.Warnf("[Processor] 笔记 %d 不属于会话 %s，跳过索引", task.NoteID, conv.ID)
			return nil
		}
		doc := es.NoteDocument{
			NoteID:         note.ID,
			ConversationID: note.ConversationID,
			UserID:         conv.UserID,
			Title:          note.Title,
			Summary:        note.Summary,
			Details:        note.Details,
			Priority:       string(note.Priority),
			CreatedAt:      note.CreatedAt,
		}
		if err := p.indexer.IndexNote(ctx, doc); err != nil {
			log.Errorf("[Processor] 索引笔记失败, NoteID: %d, Error: %v", note.ID, err)
			return fmt.Errorf("索引笔记失败: %w", err)
		}
	}

	log.Infof("[Processor] 会话归档完成, ConversationID: %s", conv.ID)
	return nil
}

// RenderTranscript 把会话渲染为 markdown：先是对话，再是督导笔记。
func RenderTranscript(conv *model.Conversation, messages []model.Message, notes []model.FeedbackNote) []byte {
	var b strings.Builder
	title := conv.Title
	if title == "" {
		title = "Untitled session"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if conv.PersonaKey != "" {
		fmt.Fprintf(&b, "Persona: %s\n\n", conv.PersonaKey)
	}
	fmt.Fprintf(&b, "Started: %s\n\n", conv.CreatedAt.Format("2006-01-02 15:04:05"))

	b.WriteString("## Conversation\n\n")
	for _, m := range messages {
		speaker := "Patient"
		if m.Role == model.RoleTherapist {
			speaker = "Therapist"
		}
		fmt.Fprintf(&b, "**%s:** %s\n\n", speaker, strings.TrimSpace(m.Text()))
	}

	if len(notes) > 0 {
		b.WriteString("## Consultant notes\n\n")
		for i, n := range notes {
			fmt.Fprintf(&b, "### %d. %s [%s]\n\n%s\n\n", i+1, n.Title, n.Priority, n.Summary)
			if d := strings.TrimSpace(n.Details); d != "" {
				b.WriteString(d)
				b.WriteString("\n\n")
			}
		}
	}
	return []byte(b.String())
}
