// Package orchestrator 驱动一次完整的训练轮次：
// 治疗师发言 → 病人流式回复 → 记忆摘要 → 督导反馈 → 写入笔记。
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"wet-coach-go/internal/consultant"
	"wet-coach-go/internal/memory"
	"wet-coach-go/internal/model"
	"wet-coach-go/internal/persona"
	"wet-coach-go/pkg/llm"
	"wet-coach-go/pkg/log"
)

// InlineErrorText 是病人回复失败时推送给前端的提示。
const InlineErrorText = "Oops, an error occurred!"

// ErrEmptyReply 表示病人模型正常结束但没有产出任何文本。
var ErrEmptyReply = errors.New("patient model returned an empty reply")

// MessageStore 是消息的持久化协作者。
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *model.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
}

// NoteAppender 负责写入反馈笔记。
type NoteAppender interface {
	Append(ctx context.Context, conversationID string, draft model.NoteDraft) (*model.FeedbackNote, error)
}

// PatientStreamer 是病人角色的流式生成能力。
type PatientStreamer interface {
	StreamChatMessages(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams, writer llm.ChunkWriter) error
}

// FeedbackGenerator 根据完整对话生成一条反馈草稿，失败时返回回退草稿。
type FeedbackGenerator interface {
	Generate(ctx context.Context, transcript []consultant.Entry, digest string) consultant.Result
}

// FragmentSink 接收轮次中产生的事件，由 SSE 或 WebSocket 传输层实现。
type FragmentSink interface {
	Delta(text string)
	PatientDone(reply PatientReply)
	Note(note *model.FeedbackNote)
	Error(message string)
}

// PatientReply 描述一条已完成（或被截断）的病人回复。
type PatientReply struct {
	MessageID string        `json:"messageId"`
	Text      string        `json:"text"`
	Digest    memory.Digest `json:"memoryDigest"`
	Truncated bool          `json:"truncated"`
}

// TurnInput 是一轮对话的全部输入。上一轮的摘要显式传入，不保存在服务端。
type TurnInput struct {
	ConversationID string
	TherapistText  string
	Persona        persona.Persona
	PreviousDigest memory.Digest
	// Stop 关闭时截断病人回复，已收到的部分视为完整回复。
	Stop <-chan struct{}
}

// TurnResult 是一轮对话的输出。Digest 是下一轮应当传入的摘要。
type TurnResult struct {
	ConversationID     string
	TherapistMessageID string
	PatientMessageID   string
	PatientText        string
	Truncated          bool
	Digest             memory.Digest
	Note               *model.FeedbackNote
	FeedbackKind       consultant.Kind
	// PatientErr 非空表示病人回复失败，本轮没有病人消息和笔记。
	PatientErr error
	// NoteSkipped 表示反馈生成期间上下文被取消，没有写入笔记。
	NoteSkipped bool
}

// Orchestrator 协调单个会话内的轮次。它是无状态的，可被多个会话并发使用。
type Orchestrator struct {
	messages MessageStore
	notes    NoteAppender
	patient  PatientStreamer
	feedback FeedbackGenerator
	params   *llm.GenerationParams
	observer Observer
}

// New 创建一个新的 Orchestrator。
func New(messages MessageStore, notes NoteAppender, patient PatientStreamer, feedback FeedbackGenerator, params *llm.GenerationParams) *Orchestrator {
	return &Orchestrator{
		messages: messages,
		notes:    notes,
		patient:  patient,
		feedback: feedback,
		params:   params,
	}
}

// SetObserver 设置状态迁移观察者，必须在第一次 RunTurn 之前调用。
func (o *Orchestrator) SetObserver(obs Observer) {
	o.observer = obs
}

// RunTurn 执行完整的一轮。生成类错误被吸收在结果中，只有持久化失败才返回 error。
func (o *Orchestrator) RunTurn(ctx context.Context, in TurnInput, sink FragmentSink) (TurnResult, error) {
	m := &machine{conversationID: in.ConversationID, state: Idle, observer: o.observer}
	res := TurnResult{ConversationID: in.ConversationID, Digest: in.PreviousDigest}

	// 1. 保存治疗师消息并加载完整历史
	therapistMsg := newMessage(in.ConversationID, model.RoleTherapist, in.TherapistText)
	if err := o.messages.SaveMessage(ctx, therapistMsg); err != nil {
		return res, fmt.Errorf("save therapist message: %w", err)
	}
	res.TherapistMessageID = therapistMsg.MessageID

	history, err := o.messages.ListMessages(ctx, in.ConversationID)
	if err != nil {
		return res, fmt.Errorf("load conversation history: %w", err)
	}

	// 2. 流式生成病人回复
	m.to(AwaitingPatientReply)
	text, truncated, err := o.streamPatient(ctx, in, history, sink)
	if err == nil && strings.TrimSpace(text) == "" {
		if truncated {
			// 在第一个分块之前被停止，没有可评估的内容
			m.to(Idle)
			res.Truncated = true
			return res, nil
		}
		err = ErrEmptyReply
	}
	if err != nil {
		log.Warnw("病人回复生成失败", "conversation_id", in.ConversationID, "error", err)
		sink.Error(InlineErrorText)
		m.to(Idle)
		res.PatientErr = err
		return res, nil
	}

	// 3. 保存病人消息并计算摘要。回复已经完成，即使请求随后被取消也要落库。
	patientMsg := newMessage(in.ConversationID, model.RolePatient, text)
	if err := o.messages.SaveMessage(context.WithoutCancel(ctx), patientMsg); err != nil {
		m.to(Idle)
		return res, fmt.Errorf("save patient message: %w", err)
	}
	digest := memory.Compute(in.TherapistText, text)
	res.PatientMessageID = patientMsg.MessageID
	res.PatientText = text
	res.Truncated = truncated
	res.Digest = digest
	m.to(DigestReady)
	sink.PatientDone(PatientReply{MessageID: patientMsg.MessageID, Text: text, Digest: digest, Truncated: truncated})

	// 4. 无条件请求督导反馈
	m.to(FeedbackRequested)
	transcript := make([]consultant.Entry, 0, len(history)+1)
	for _, msg := range history {
		transcript = append(transcript, consultant.Entry{Role: msg.Role, Text: msg.Text()})
	}
	transcript = append(transcript, consultant.Entry{Role: model.RolePatient, Text: text})
	fb := o.feedback.Generate(ctx, transcript, digest.String())
	res.FeedbackKind = fb.Kind

	// 5. 写入笔记，离开页面导致的取消不产生笔记
	defer m.to(Idle)
	if ctx.Err() != nil {
		log.Infow("反馈生成期间请求已取消，跳过写入笔记", "conversation_id", in.ConversationID)
		res.NoteSkipped = true
		return res, nil
	}
	note, err := o.notes.Append(ctx, in.ConversationID, fb.Draft)
	if err != nil {
		return res, fmt.Errorf("append feedback note: %w", err)
	}
	res.Note = note
	sink.Note(note)
	return res, nil
}

// streamPatient 调用病人模型并把分块转发给 sink。
// 收到停止信号时取消上游请求，返回已累计的文本并标记 truncated。
func (o *Orchestrator) streamPatient(ctx context.Context, in TurnInput, history []model.Message, sink FragmentSink) (string, bool, error) {
	msgs := make([]llm.Message, 0, len(history)+1)
	msgs = append(msgs, llm.Message{Role: "system", Content: in.Persona.SystemPrompt})
	for _, h := range history {
		msgs = append(msgs, llm.Message{Role: h.Role, Content: h.Text()})
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stopped atomic.Bool
	var wg sync.WaitGroup
	if in.Stop != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-in.Stop:
				stopped.Store(true)
				cancel()
			case <-streamCtx.Done():
			}
		}()
	}

	var builder strings.Builder
	writer := llm.ChunkWriterFunc(func(chunk string) error {
		if stopped.Load() {
			return context.Canceled
		}
		builder.WriteString(chunk)
		sink.Delta(chunk)
		return nil
	})

	err := o.patient.StreamChatMessages(streamCtx, msgs, o.params, writer)
	cancel()
	wg.Wait()

	text := builder.String()

	// 流正常结束说明回复已完整，即使停止信号随后到达也不算截断
	if err != nil && stopped.Load() && ctx.Err() == nil {
		return text, true, nil
	}
	return text, false, err
}

func newMessage(conversationID, role, text string) *model.Message {
	return &model.Message{
		MessageID:      uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Parts:          model.TextParts(text),
		CreatedAt:      time.Now(),
	}
}
