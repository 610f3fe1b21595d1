package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCreateAndGet(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	conv, err := store.Create(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, conv.ID.IsZero())
	assert.Equal(t, "alice", conv.UserID)
	assert.Empty(t, conv.Messages)

	got, err := store.Get(ctx, conv.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryGetForUserScoping(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	conv, err := store.Create(ctx, "alice")
	require.NoError(t, err)

	_, err = store.GetForUser(ctx, conv.ID.Hex(), "alice")
	require.NoError(t, err)

	_, err = store.GetForUser(ctx, conv.ID.Hex(), "mallory")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryListByUser(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	_, err := store.Create(ctx, "alice")
	require.NoError(t, err)
	_, err = store.Create(ctx, "alice")
	require.NoError(t, err)
	_, err = store.Create(ctx, "bob")
	require.NoError(t, err)

	conversations, err := store.ListByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, conversations, 2)

	conversations, err = store.ListByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, conversations)
}

func TestMemoryAppendMessage(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	conv, err := store.Create(ctx, "alice")
	require.NoError(t, err)
	id := conv.ID.Hex()
	before := conv.LastMessageTime

	err = store.AppendMessage(ctx, id, Message{Role: RoleUser, Content: "hi"}, nil)
	require.NoError(t, err)
	err = store.AppendMessage(ctx, id, Message{Role: RoleModel, Content: "hello", TokenCount: 5}, &TokenUsage{
		Prompt:   7,
		Response: 5,
		Total:    12,
	})
	require.NoError(t, err)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.False(t, got.Messages[0].Timestamp.IsZero())
	assert.True(t, got.LastMessageTime.After(before) || got.LastMessageTime.Equal(before))
	assert.Equal(t, 7, got.TotalPromptTokens)
	assert.Equal(t, 5, got.TotalResponseTokens)
	assert.Equal(t, 12, got.TotalTokenCount)

	err = store.AppendMessage(ctx, "missing", Message{Role: RoleUser, Content: "hi"}, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTokenStats(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	conv, err := store.Create(ctx, "alice")
	require.NoError(t, err)
	id := conv.ID.Hex()

	require.NoError(t, store.AppendMessage(ctx, id, Message{Role: RoleUser, Content: "q"}, nil))
	require.NoError(t, store.AppendMessage(ctx, id, Message{Role: RoleModel, Content: "a"}, &TokenUsage{Prompt: 3, Response: 4, Total: 7}))

	stats, err := store.TokenStats(ctx, id, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalUserTokens)
	assert.Equal(t, 4, stats.TotalModelTokens)
	assert.Equal(t, 7, stats.TotalTokens)
	assert.Equal(t, 2, stats.MessageCount)
}

func TestMemoryReturnsCopies(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	conv, err := store.Create(ctx, "alice")
	require.NoError(t, err)
	id := conv.ID.Hex()
	require.NoError(t, store.AppendMessage(ctx, id, Message{Role: RoleUser, Content: "original"}, nil))

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	got.Messages[0].Content = "mutated"

	again, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "original", again.Messages[0].Content)
}

func TestMemoryDelete(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	conv, err := store.Create(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, conv.ID.Hex()))
	_, err = store.Get(ctx, conv.ID.Hex())
	require.ErrorIs(t, err, ErrNotFound)

	// deleting an unknown id is a no-op
	require.NoError(t, store.Delete(ctx, conv.ID.Hex()))
}
