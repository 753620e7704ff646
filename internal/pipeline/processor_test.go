package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wet-coach-go/internal/config"
	"wet-coach-go/internal/model"
	"wet-coach-go/internal/repository"
	"wet-coach-go/pkg/database"
	"wet-coach-go/pkg/es"
	"wet-coach-go/pkg/tasks"
)

type fakeTranscripts struct {
	puts map[string]string
	err  error
}

func (f *fakeTranscripts) PutTranscript(_ context.Context, conversationID string, body []byte) error {
	if f.err != nil {
		return f.err
	}
	if f.puts == nil {
		f.puts = map[string]string{}
	}
	f.puts[conversationID] = string(body)
	return nil
}

type fakeIndexer struct {
	docs []es.NoteDocument
}

func (f *fakeIndexer) IndexNote(_ context.Context, doc es.NoteDocument) error {
	f.docs = append(f.docs, doc)
	return nil
}

func seed(t *testing.T) (repository.ConversationRepository, repository.NoteRepository, *model.FeedbackNote) {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", SQLite: config.SQLiteConfig{Path: "file::memory:"}})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	ctx := context.Background()
	convs := repository.NewConversationRepository(db)
	notes := repository.NewNoteRepository(db)
	require.NoError(t, convs.Create(ctx, &model.Conversation{ID: "c1", UserID: 5, Title: "First session", PersonaKey: "latino-veteran", CreatedAt: time.Now()}))
	require.NoError(t, convs.SaveMessage(ctx, &model.Message{MessageID: "m1", ConversationID: "c1", Role: model.RoleTherapist, Parts: model.TextParts("How are you?")}))
	require.NoError(t, convs.SaveMessage(ctx, &model.Message{MessageID: "m2", ConversationID: "c1", Role: model.RolePatient, Parts: model.TextParts("I feel okay today")}))
	note := &model.FeedbackNote{ConversationID: "c1", Title: "Good opening", Summary: "Warm check-in", Details: "- keep going", Priority: model.PriorityGreen}
	require.NoError(t, notes.Create(ctx, note))
	return convs, notes, note
}

func TestProcess_WritesTranscriptAndIndexesNote(t *testing.T) {
	convs, notes, note := seed(t)
	tr := &fakeTranscripts{}
	idx := &fakeIndexer{}

	err := NewProcessor(convs, notes, tr, idx).Process(context.Background(), tasks.TurnArchiveTask{ConversationID: "c1", NoteID: note.ID})
	require.NoError(t, err)

	body := tr.puts["c1"]
	assert.Contains(t, body, "# First session")
	assert.Contains(t, body, "**Therapist:** How are you?")
	assert.Contains(t, body, "**Patient:** I feel okay today")
	assert.Contains(t, body, "### 1. Good opening [green]")
	assert.Contains(t, body, "- keep going")

	require.Len(t, idx.docs, 1)
	assert.Equal(t, note.ID, idx.docs[0].NoteID)
	assert.Equal(t, uint(5), idx.docs[0].UserID)
	assert.Equal(t, "green", idx.docs[0].Priority)
}

func TestProcess_OptionalSinks(t *testing.T) {
	convs, notes, note := seed(t)
	err := NewProcessor(convs, notes, nil, nil).Process(context.Background(), tasks.TurnArchiveTask{ConversationID: "c1", NoteID: note.ID})
	assert.NoError(t, err)
}

func TestProcess_TranscriptFailureIsReturned(t *testing.T) {
	convs, notes, note := seed(t)
	boom := errors.New("bucket offline")
	err := NewProcessor(convs, notes, &fakeTranscripts{err: boom}, nil).Process(context.Background(), tasks.TurnArchiveTask{ConversationID: "c1", NoteID: note.ID})
	assert.ErrorIs(t, err, boom)
}

func TestProcess_UnknownConversation(t *testing.T) {
	convs, notes, _ := seed(t)
	err := NewProcessor(convs, notes, nil, nil).Process(context.Background(), tasks.TurnArchiveTask{ConversationID: "nope"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestProcess_ForeignNoteNotIndexed(t *testing.T) {
	convs, notes, note := seed(t)
	idx := &fakeIndexer{}
	err := NewProcessor(convs, notes, nil, idx).Process(context.Background(), tasks.TurnArchiveTask{ConversationID: "c1", NoteID: note.ID + 50})
	require.NoError(t, err)
	assert.Empty(t, idx.docs)
}

func TestInlinePublisher_RunsProcessorInBackground(t *testing.T) {
	convs, notes, note := seed(t)
	idx := &fakeIndexer{}
	done := make(chan error, 1)
	pub := &InlinePublisher{processor: NewProcessor(convs, notes, nil, idx), done: done}

	require.NoError(t, pub.Publish(context.Background(), tasks.TurnArchiveTask{ConversationID: "c1", NoteID: note.ID}))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("inline publisher did not finish")
	}
	assert.Len(t, idx.docs, 1)
}
