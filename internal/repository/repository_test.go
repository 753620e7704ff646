package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"wet-coach-go/internal/config"
	"wet-coach-go/internal/model"
	"wet-coach-go/pkg/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", SQLite: config.SQLiteConfig{Path: "file::memory:"}})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestNoteRepository_ListInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewNoteRepository(newTestDB(t))

	same := time.Now()
	for _, title := range []string{"N1", "N2", "N3"} {
		require.NoError(t, repo.Create(ctx, &model.FeedbackNote{
			ConversationID: "c1", Title: title, Summary: "s", Priority: model.PriorityGreen, CreatedAt: same,
		}))
	}
	require.NoError(t, repo.Create(ctx, &model.FeedbackNote{ConversationID: "c2", Title: "other", Summary: "s", Priority: model.PriorityRed}))

	notes, err := repo.ListByConversation(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, notes, 3)
	assert.Equal(t, "N1", notes[0].Title)
	assert.Equal(t, "N2", notes[1].Title)
	assert.Equal(t, "N3", notes[2].Title)
}

func TestNoteRepository_UpsertVoteLastWriteWins(t *testing.T) {
	ctx := context.Background()
	repo := NewNoteRepository(newTestDB(t))
	note := &model.FeedbackNote{ConversationID: "c1", Title: "t", Summary: "s", Priority: model.PriorityGreen}
	require.NoError(t, repo.Create(ctx, note))

	require.NoError(t, repo.UpsertVote(ctx, &model.NoteVote{ConversationID: "c1", NoteID: note.ID, IsUpvoted: true}))
	require.NoError(t, repo.UpsertVote(ctx, &model.NoteVote{ConversationID: "c1", NoteID: note.ID, IsUpvoted: false}))

	votes, err := repo.ListVotes(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, note.ID, votes[0].NoteID)
	assert.False(t, votes[0].IsUpvoted)
}

func TestNoteRepository_FindByID(t *testing.T) {
	ctx := context.Background()
	repo := NewNoteRepository(newTestDB(t))
	note := &model.FeedbackNote{ConversationID: "c1", Title: "t", Summary: "s", Priority: model.PriorityGreen}
	require.NoError(t, repo.Create(ctx, note))

	got, err := repo.FindByID(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "t", got.Title)

	_, err = repo.FindByID(ctx, note.ID+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversationRepository_MessagesAppendOnlyOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository(newTestDB(t))
	require.NoError(t, repo.Create(ctx, &model.Conversation{ID: "c1", UserID: 7, Title: "t", Visibility: model.VisibilityPrivate}))

	for i, role := range []string{model.RoleTherapist, model.RolePatient, model.RoleTherapist} {
		require.NoError(t, repo.SaveMessage(ctx, &model.Message{
			MessageID:      string(rune('a' + i)),
			ConversationID: "c1",
			Role:           role,
			Parts:          model.TextParts(role),
		}))
	}

	msgs, err := repo.ListMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{msgs[0].MessageID, msgs[1].MessageID, msgs[2].MessageID})
	assert.Equal(t, model.RolePatient, msgs[1].Text())
}

func TestConversationRepository_FindAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository(newTestDB(t))
	require.NoError(t, repo.Create(ctx, &model.Conversation{ID: "c1", UserID: 1, Title: "a"}))
	require.NoError(t, repo.Create(ctx, &model.Conversation{ID: "c2", UserID: 2, Title: "b"}))

	_, err := repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	mine, err := repo.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "c1", mine[0].ID)

	uid := uint(2)
	filtered, err := repo.List(ctx, ConversationFilter{UserID: &uid})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "c2", filtered[0].ID)

	future := time.Now().Add(time.Hour)
	none, err := repo.List(ctx, ConversationFilter{StartTime: &future})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUserRepository_CreateAndFind(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	require.NoError(t, repo.Create(&model.User{Username: "alice", Password: "x", Role: model.RoleUser}))
	require.NoError(t, repo.Create(&model.User{Username: "bob", Password: "x", Role: model.RoleGuest}))

	u, err := repo.FindByUsername("alice")
	require.NoError(t, err)
	byID, err := repo.FindByID(u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	page, total, err := repo.FindWithPagination(1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, page, 1)
	assert.Equal(t, "bob", page[0].Username)
}

func TestQuotaRepository_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	repo := NewQuotaRepository(rdb)
	window := 24 * time.Hour
	now := time.Now()

	for _, turn := range []struct {
		id string
		at time.Time
	}{{"old", now.Add(-25 * time.Hour)}, {"t1", now.Add(-time.Hour)}} {
		ok, err := repo.Reserve(ctx, 1, turn.id, turn.at, window, 0)
		require.NoError(t, err)
		require.True(t, ok)
	}

	// 超出窗口的旧记录被清理，不占用上限
	ok, err := repo.Reserve(ctx, 1, "t2", now, window, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Reserve(ctx, 1, "t3", now, window, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Reserve(ctx, 2, "x", now, window, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	members, err := rdb.ZRange(ctx, quotaKey(1), 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, members)

	require.NoError(t, repo.Release(ctx, 1, "t2"))
	ok, err = repo.Reserve(ctx, 1, "t3", now, window, 2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTokenBlacklist(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	bl := NewTokenBlacklist(rdb)

	ok, err := bl.Contains(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, bl.Add(ctx, "tok", time.Minute))
	ok, err = bl.Contains(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = bl.Contains(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, bl.Add(ctx, "expired", 0))
	ok, _ = bl.Contains(ctx, "expired")
	assert.False(t, ok)
}
