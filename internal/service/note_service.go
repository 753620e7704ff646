package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"wet-coach-go/internal/model"
	"wet-coach-go/internal/repository"
	"wet-coach-go/pkg/es"
	"wet-coach-go/pkg/log"
	"wet-coach-go/pkg/markdown"
	"wet-coach-go/pkg/tasks"
)

// ArchivePublisher 把笔记追加事件交给归档流水线（Kafka 或进程内）。
type ArchivePublisher interface {
	Publish(ctx context.Context, task tasks.TurnArchiveTask) error
}

// NoteSearcher 是笔记全文检索的后端。
type NoteSearcher interface {
	Search(ctx context.Context, q es.NoteQuery) ([]es.NoteHit, error)
}

const maxNoteTitleRunes = 255

// 面板中的投票状态。
const (
	VoteUp   = "up"
	VoteDown = "down"
	VoteNone = ""
)

// PanelNote 是反馈面板中展示的一条笔记。
type PanelNote struct {
	ID          uint           `json:"id"`
	Title       string         `json:"title"`
	Summary     string         `json:"summary"`
	Details     string         `json:"details"`
	DetailsHTML string         `json:"detailsHtml"`
	Priority    model.Priority `json:"priority"`
	CreatedAt   time.Time      `json:"createdAt"`
	Latest      bool           `json:"latest"`
	CopyText    string         `json:"copyText"`
	Vote        string         `json:"vote"`
}

// NoteService 接口定义了反馈笔记与投票的业务操作。笔记只追加，不提供删除或修改。
type NoteService interface {
	Append(ctx context.Context, conversationID string, draft model.NoteDraft) (*model.FeedbackNote, error)
	ListByConversation(ctx context.Context, conversationID string) ([]model.FeedbackNote, error)
	RecordVote(ctx context.Context, conversationID string, noteID uint, isUpvote bool) error
	ListVotes(ctx context.Context, conversationID string) ([]model.NoteVote, error)
	Panel(ctx context.Context, conversationID string) ([]PanelNote, error)
	Search(ctx context.Context, user *model.User, text, priority string) ([]es.NoteHit, error)
}

type noteService struct {
	noteRepo  repository.NoteRepository
	publisher ArchivePublisher
	searcher  NoteSearcher
}

// NewNoteService 创建一个新的 NoteService 实例。publisher 与 searcher 均可为 nil。
func NewNoteService(noteRepo repository.NoteRepository, publisher ArchivePublisher, searcher NoteSearcher) NoteService {
	return &noteService{noteRepo: noteRepo, publisher: publisher, searcher: searcher}
}

// ValidateDraft 规范化草稿：标题与摘要不能为空，优先级必须是 green/yellow/red。
func ValidateDraft(draft model.NoteDraft) (model.NoteDraft, error) {
	draft.Title = strings.TrimSpace(draft.Title)
	draft.Summary = strings.TrimSpace(draft.Summary)
	draft.Details = strings.TrimSpace(draft.Details)
	if draft.Title == "" || draft.Summary == "" {
		return draft, fmt.Errorf("%w: title and summary are required", ErrInvalidNote)
	}
	p, ok := model.ParsePriority(string(draft.Priority))
	if !ok {
		return draft, fmt.Errorf("%w: unknown priority %q", ErrInvalidNote, draft.Priority)
	}
	draft.Priority = p
	// title 列为 varchar(255)
	if utf8.RuneCountInString(draft.Title) > maxNoteTitleRunes {
		runes := []rune(draft.Title)
		draft.Title = strings.TrimSpace(string(runes[:maxNoteTitleRunes-1])) + "…"
	}
	return draft, nil
}

// Append 校验并保存笔记，然后发布归档任务。发布失败只记录日志。
func (s *noteService) Append(ctx context.Context, conversationID string, draft model.NoteDraft) (*model.FeedbackNote, error) {
	draft, err := ValidateDraft(draft)
	if err != nil {
		return nil, err
	}

	note := &model.FeedbackNote{
		ConversationID: conversationID,
		Title:          draft.Title,
		Summary:        draft.Summary,
		Details:        draft.Details,
		Priority:       draft.Priority,
		CreatedAt:      time.Now(),
	}
	if err := s.noteRepo.Create(ctx, note); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		task := tasks.TurnArchiveTask{ConversationID: conversationID, NoteID: note.ID}
		if err := s.publisher.Publish(ctx, task); err != nil {
			log.Warnw("发布归档任务失败", "conversation_id", conversationID, "note_id", note.ID, "error", err)
		}
	}
	return note, nil
}

func (s *noteService) ListByConversation(ctx context.Context, conversationID string) ([]model.FeedbackNote, error) {
	return s.noteRepo.ListByConversation(ctx, conversationID)
}

// RecordVote 记录或覆盖对某条笔记的投票。笔记必须属于该会话。
func (s *noteService) RecordVote(ctx context.Context, conversationID string, noteID uint, isUpvote bool) error {
	note, err := s.noteRepo.FindByID(ctx, noteID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNoteNotFound
	}
	if err != nil {
		return err
	}
	if note.ConversationID != conversationID {
		return ErrNoteNotFound
	}
	return s.noteRepo.UpsertVote(ctx, &model.NoteVote{
		ConversationID: conversationID,
		NoteID:         noteID,
		IsUpvoted:      isUpvote,
	})
}

func (s *noteService) ListVotes(ctx context.Context, conversationID string) ([]model.NoteVote, error) {
	return s.noteRepo.ListVotes(ctx, conversationID)
}

// Panel 返回最新在前的笔记视图，合并投票状态并渲染 details。
func (s *noteService) Panel(ctx context.Context, conversationID string) ([]PanelNote, error) {
	notes, err := s.noteRepo.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	votes, err := s.noteRepo.ListVotes(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	voteByNote := make(map[uint]bool, len(votes))
	for _, v := range votes {
		voteByNote[v.NoteID] = v.IsUpvoted
	}

	panel := make([]PanelNote, 0, len(notes))
	for _, n := range notes {
		vote := VoteNone
		if up, ok := voteByNote[n.ID]; ok {
			vote = VoteDown
			if up {
				vote = VoteUp
			}
		}
		panel = append(panel, PanelNote{
			ID:          n.ID,
			Title:       n.Title,
			Summary:     n.Summary,
			Details:     n.Details,
			DetailsHTML: markdown.ToHTML(n.Details),
			Priority:    n.Priority,
			CreatedAt:   n.CreatedAt,
			CopyText:    CopyText(n),
			Vote:        vote,
		})
	}

	// 仓储按插入顺序返回，反转后最新在前
	for i, j := 0, len(panel)-1; i < j; i, j = i+1, j-1 {
		panel[i], panel[j] = panel[j], panel[i]
	}
	if len(panel) > 0 {
		panel[0].Latest = true
	}
	return panel, nil
}

// Search 在调用方可见的笔记中做全文检索。督导可以检索所有人的笔记。
func (s *noteService) Search(ctx context.Context, user *model.User, text, priority string) ([]es.NoteHit, error) {
	if s.searcher == nil {
		return nil, ErrSearchUnavailable
	}
	q := es.NoteQuery{Text: strings.TrimSpace(text), Size: 20}
	if priority != "" {
		p, ok := model.ParsePriority(priority)
		if !ok {
			return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidNote, priority)
		}
		q.Priority = string(p)
	}
	if !user.IsSupervisor() {
		q.UserID = &user.ID
	}
	return s.searcher.Search(ctx, q)
}

// CopyText 是复制到剪贴板的纯文本：标题、摘要，以及非空时的详情，以空行分隔。
func CopyText(n model.FeedbackNote) string {
	parts := []string{n.Title, n.Summary}
	if strings.TrimSpace(n.Details) != "" {
		parts = append(parts, n.Details)
	}
	return strings.Join(parts, "\n\n")
}
