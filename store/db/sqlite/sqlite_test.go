package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/sidekick/store"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "sidekick_test.db")
	db, err := NewDB(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conv := store.RestoreConversation("conv-1", "", created, nil)
	require.NoError(t, db.CreateConversation(ctx, conv))
	require.NoError(t, db.UpdateTitle(ctx, "conv-1", "What is Go?"))

	userMsg := store.Message{
		Role:      store.RoleUser,
		Content:   "What is Go?",
		Timestamp: created.Add(time.Second),
	}
	require.NoError(t, db.AddMessage(ctx, "conv-1", &userMsg))

	assistantMsg := store.Message{
		Role:      store.RoleAssistant,
		Content:   "A programming language.",
		Timestamp: created.Add(2 * time.Second),
		Sources: []store.Source{
			{Source: "go_intro.md", Relevance: 0.93},
		},
	}
	require.NoError(t, db.AddMessage(ctx, "conv-1", &assistantMsg))

	loaded, err := db.LoadConversations(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	got := loaded[0]
	assert.Equal(t, "conv-1", got.ID())
	assert.Equal(t, "What is Go?", got.Title())
	assert.Equal(t, created.Unix(), got.CreatedAt().Unix())

	messages := got.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, store.RoleUser, messages[0].Role)
	assert.Equal(t, "What is Go?", messages[0].Content)
	assert.Empty(t, messages[0].Sources)
	assert.Equal(t, store.RoleAssistant, messages[1].Role)
	require.Len(t, messages[1].Sources, 1)
	assert.Equal(t, "go_intro.md", messages[1].Sources[0].Source)
	assert.InDelta(t, 0.93, messages[1].Sources[0].Relevance, 1e-9)
}

func TestDeleteConversationCascades(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	conv := store.RestoreConversation("conv-del", "t", time.Now(), nil)
	require.NoError(t, db.CreateConversation(ctx, conv))
	msg := store.Message{Role: store.RoleUser, Content: "hi", Timestamp: time.Now()}
	require.NoError(t, db.AddMessage(ctx, "conv-del", &msg))

	require.NoError(t, db.DeleteConversation(ctx, "conv-del"))

	loaded, err := db.LoadConversations(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	var count int
	require.NoError(t, db.db.QueryRow(`SELECT COUNT(*) FROM conversation_message`).Scan(&count))
	assert.Zero(t, count, "messages must be deleted with their conversation")
}

func TestLoadConversationsOrder(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	base := time.Now().Truncate(time.Second)
	for i, id := range []string{"c1", "c2", "c3"} {
		conv := store.RestoreConversation(id, id, base.Add(time.Duration(i)*time.Minute), nil)
		require.NoError(t, db.CreateConversation(ctx, conv))
	}

	loaded, err := db.LoadConversations(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.Equal(t, "c1", loaded[0].ID())
	assert.Equal(t, "c3", loaded[2].ID())
}

func TestRequiresDSN(t *testing.T) {
	_, err := NewDB(context.Background(), "")
	assert.Error(t, err)
}
