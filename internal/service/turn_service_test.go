package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wet-coach-go/internal/config"
	"wet-coach-go/internal/consultant"
	"wet-coach-go/internal/model"
	"wet-coach-go/internal/orchestrator"
	"wet-coach-go/internal/persona"
	"wet-coach-go/internal/repository"
	"wet-coach-go/pkg/llm"
)

type scriptedPatient struct {
	chunks []string
	system string
}

func (p *scriptedPatient) StreamChatMessages(_ context.Context, messages []llm.Message, _ *llm.GenerationParams, w llm.ChunkWriter) error {
	p.system = messages[0].Content
	for _, c := range p.chunks {
		if err := w.WriteChunk(c); err != nil {
			return err
		}
	}
	return nil
}

type staticFeedback struct {
	calls int
}

func (f *staticFeedback) Generate(context.Context, []consultant.Entry, string) consultant.Result {
	f.calls++
	return consultant.Result{Kind: consultant.Parsed, Draft: model.NoteDraft{
		Title: "Reflect feelings", Summary: "Name the emotion you hear.", Priority: model.PriorityYellow,
	}}
}

type nopSink struct {
	deltas []string
	notes  []*model.FeedbackNote
}

func (s *nopSink) Delta(text string) { s.deltas = append(s.deltas, text) }
func (s *nopSink) PatientDone(orchestrator.PatientReply) {}
func (s *nopSink) Note(n *model.FeedbackNote) { s.notes = append(s.notes, n) }
func (s *nopSink) Error(string) {}

type turnFixture struct {
	svc      TurnService
	convRepo repository.ConversationRepository
	noteRepo repository.NoteRepository
	sessions *orchestrator.Sessions
	patient  *scriptedPatient
	feedback *staticFeedback
}

func newTurnFixture(t *testing.T, guestLimit int) *turnFixture {
	t.Helper()
	db := newTestDB(t)
	convRepo := repository.NewConversationRepository(db)
	noteRepo := repository.NewNoteRepository(db)
	notes := NewNoteService(noteRepo, nil, nil)
	patient := &scriptedPatient{chunks: []string{"I have been", " sleeping badly."}}
	feedback := &staticFeedback{}
	sessions := orchestrator.NewSessions()
	quota := NewQuotaService(repository.NewQuotaRepository(newTestRedis(t)), config.QuotaConfig{
		WindowHours:     24,
		MaxTurnsPerRole: map[string]int{"GUEST": guestLimit, "USER": 100},
	})
	runner := orchestrator.New(convRepo, notes, patient, feedback, nil)
	return &turnFixture{
		svc:      NewTurnService(NewConversationService(convRepo, nil), quota, sessions, runner),
		convRepo: convRepo,
		noteRepo: noteRepo,
		sessions: sessions,
		patient:  patient,
		feedback: feedback,
	}
}

func TestTurnService_SubmitRunsFullTurn(t *testing.T) {
	ctx := context.Background()
	f := newTurnFixture(t, 5)
	user := &model.User{ID: 1, Role: model.RoleUser}
	sink := &nopSink{}

	res, err := f.svc.Submit(ctx, user, TurnRequest{
		ConversationID: "c1",
		Text:           "How has your week been?",
		Persona:        persona.LatinoVeteran,
	}, sink)
	require.NoError(t, err)
	assert.Equal(t, "I have been sleeping badly.", res.PatientText)
	require.NotNil(t, res.Note)
	assert.Equal(t, 1, f.feedback.calls)
	assert.Len(t, sink.notes, 1)

	want, _ := persona.Lookup(persona.LatinoVeteran)
	assert.Equal(t, want.SystemPrompt, f.patient.system)

	conv, err := f.convRepo.FindByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "How has your week been?", conv.Title)
	assert.Equal(t, string(persona.LatinoVeteran), conv.PersonaKey)

	msgs, err := f.convRepo.ListMessages(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	notes, err := f.noteRepo.ListByConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, notes, 1)

	// 第二轮沿用会话的角色，并以上一轮摘要作为输入
	_, err = f.svc.Submit(ctx, user, TurnRequest{ConversationID: "c1", Text: "Tell me more.", MemoryDigest: res.Digest}, sink)
	require.NoError(t, err)
	assert.Equal(t, want.SystemPrompt, f.patient.system)
	_, end, err := f.sessions.Begin("c1")
	require.NoError(t, err)
	end()
}

func TestTurnService_RejectsBeforeSideEffects(t *testing.T) {
	ctx := context.Background()
	f := newTurnFixture(t, 1)
	guest := &model.User{ID: 2, Role: model.RoleGuest}

	_, err := f.svc.Submit(ctx, guest, TurnRequest{ConversationID: "c1", Text: "   "}, &nopSink{})
	assert.ErrorIs(t, err, ErrInvalidTurn)

	_, err = f.svc.Submit(ctx, guest, TurnRequest{ConversationID: "c1", Text: "hi"}, &nopSink{})
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, guest, TurnRequest{ConversationID: "c2", Text: "hi again"}, &nopSink{})
	assert.ErrorIs(t, err, ErrRateLimited)
	_, err = f.convRepo.FindByID(ctx, "c2")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	other := &model.User{ID: 3, Role: model.RoleUser}
	_, err = f.svc.Submit(ctx, other, TurnRequest{ConversationID: "c1", Text: "intrude"}, &nopSink{})
	assert.ErrorIs(t, err, ErrForbidden)
	msgs, err := f.convRepo.ListMessages(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestTurnService_ForbiddenTurnReturnsQuota(t *testing.T) {
	ctx := context.Background()
	f := newTurnFixture(t, 1)
	owner := &model.User{ID: 1, Role: model.RoleUser}
	guest := &model.User{ID: 2, Role: model.RoleGuest}

	_, err := f.svc.Submit(ctx, owner, TurnRequest{ConversationID: "c1", Text: "hello"}, &nopSink{})
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, guest, TurnRequest{ConversationID: "c1", Text: "intrude"}, &nopSink{})
	assert.ErrorIs(t, err, ErrForbidden)

	// 被拒绝的轮次不占用配额
	_, err = f.svc.Submit(ctx, guest, TurnRequest{ConversationID: "g1", Text: "my own turn"}, &nopSink{})
	assert.NoError(t, err)
}

func TestTurnService_UnknownPersonaUsesDefaultPrompt(t *testing.T) {
	ctx := context.Background()
	f := newTurnFixture(t, 5)
	user := &model.User{ID: 1, Role: model.RoleUser}
	sink := &nopSink{}

	res, err := f.svc.Submit(ctx, user, TurnRequest{ConversationID: "c1", Text: "hello", Persona: "retired-persona"}, sink)
	require.NoError(t, err)
	assert.Equal(t, persona.Default.SystemPrompt, f.patient.system)
	require.NotNil(t, res.Note)
	assert.Len(t, sink.notes, 1)

	conv, err := f.convRepo.FindByID(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, conv.PersonaKey)
	notes, err := f.noteRepo.ListByConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, notes, 1)

	// 已有会话上传入未知角色同样回退到默认提示词
	_, err = f.svc.Submit(ctx, user, TurnRequest{ConversationID: "c2", Text: "hi", Persona: persona.LatinoVeteran}, &nopSink{})
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, user, TurnRequest{ConversationID: "c2", Text: "again", Persona: "pirate"}, &nopSink{})
	require.NoError(t, err)
	assert.Equal(t, persona.Default.SystemPrompt, f.patient.system)
}

func TestTurnService_ConcurrentSubmitsHonourQuota(t *testing.T) {
	ctx := context.Background()
	f := newTurnFixture(t, 1)
	guest := &model.User{ID: 2, Role: model.RoleGuest}

	const n = 10
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Submit(ctx, guest, TurnRequest{
				ConversationID: fmt.Sprintf("q%d", i),
				Text:           "hello",
			}, &nopSink{})
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		assert.ErrorIs(t, err, ErrRateLimited)
	}
	assert.Equal(t, 1, accepted)
}

func TestTurnService_TurnInFlight(t *testing.T) {
	ctx := context.Background()
	f := newTurnFixture(t, 5)
	user := &model.User{ID: 1, Role: model.RoleUser}

	_, end, err := f.sessions.Begin("c1")
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, user, TurnRequest{ConversationID: "c1", Text: "hello"}, &nopSink{})
	assert.ErrorIs(t, err, ErrTurnInFlight)
	end()

	_, err = f.convRepo.FindByID(ctx, "c1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTurnService_Stop(t *testing.T) {
	ctx := context.Background()
	f := newTurnFixture(t, 5)
	user := &model.User{ID: 1, Role: model.RoleUser}

	_, err := f.svc.Submit(ctx, user, TurnRequest{ConversationID: "c1", Text: "hello"}, &nopSink{})
	require.NoError(t, err)

	stopped, err := f.svc.Stop(ctx, user, "c1")
	require.NoError(t, err)
	assert.False(t, stopped)

	_, err = f.svc.Stop(ctx, &model.User{ID: 9}, "c1")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Stop(ctx, user, "missing")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	stop, end, err := f.sessions.Begin("c1")
	require.NoError(t, err)
	defer end()
	stopped, err = f.svc.Stop(ctx, user, "c1")
	require.NoError(t, err)
	assert.True(t, stopped)
	select {
	case <-stop:
	default:
		t.Fatal("stop channel was not closed")
	}
}
