package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"local-llm-chat/internal/models"
)

func testDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(t.TempDir() + "/chats.db")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func TestCreateChat_FreshChatHasEmptyHistory(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	chat, err := database.CreateChat(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, chat.ID)
	assert.False(t, chat.CreatedAt.IsZero())

	history, err := database.GetHistory(ctx, chat.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	// An empty chat is distinguishable from a missing one.
	exists, err := database.ChatExists(ctx, chat.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = database.GetHistory(ctx, "no-such-chat")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddMessage_PreservesAppendOrder(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	chat, err := database.CreateChat(ctx)
	require.NoError(t, err)

	turns := []struct{ role, content string }{
		{models.RoleUser, "hello"},
		{models.RoleSystem, "web context"},
		{models.RoleAssistant, "hi there"},
		{models.RoleUser, "tell me more"},
		{models.RoleAssistant, "sure"},
	}
	for _, turn := range turns {
		err := database.AddMessage(ctx, &models.Message{ChatID: chat.ID, Role: turn.role, Content: turn.content})
		require.NoError(t, err)
	}

	history, err := database.GetHistory(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, history, len(turns))
	for i, turn := range turns {
		assert.Equal(t, turn.role, history[i].Role)
		assert.Equal(t, turn.content, history[i].Content)
	}
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].Timestamp.Before(history[i-1].Timestamp))
	}
}

func TestAddMessage_UnknownChat(t *testing.T) {
	database := testDB(t)

	err := database.AddMessage(context.Background(), &models.Message{
		ChatID: "no-such-chat", Role: models.RoleUser, Content: "hello",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteChat_Cascades(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	chat, err := database.CreateChat(ctx)
	require.NoError(t, err)
	require.NoError(t, database.AddMessage(ctx, &models.Message{ChatID: chat.ID, Role: models.RoleUser, Content: "hello"}))
	require.NoError(t, database.RenameChat(ctx, chat.ID, "project notes"))

	require.NoError(t, database.DeleteChat(ctx, chat.ID))

	// Deleted chat is indistinguishable from one that never existed.
	_, err = database.GetHistory(ctx, chat.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = database.GetChatName(ctx, chat.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteChat_Idempotent(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	chat, err := database.CreateChat(ctx)
	require.NoError(t, err)

	assert.NoError(t, database.DeleteChat(ctx, chat.ID))
	assert.NoError(t, database.DeleteChat(ctx, chat.ID))
	assert.NoError(t, database.DeleteChat(ctx, "never-existed"))
}

func TestRenameChat(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	chat, err := database.CreateChat(ctx)
	require.NoError(t, err)

	require.NoError(t, database.RenameChat(ctx, chat.ID, "first name"))

	// Blank names are rejected and leave the prior name untouched.
	assert.ErrorIs(t, database.RenameChat(ctx, chat.ID, ""), ErrEmptyName)
	assert.ErrorIs(t, database.RenameChat(ctx, chat.ID, "   \t "), ErrEmptyName)

	name, err := database.GetChatName(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "first name", name)

	// Rename is an upsert.
	require.NoError(t, database.RenameChat(ctx, chat.ID, "second name"))
	name, err = database.GetChatName(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "second name", name)

	assert.ErrorIs(t, database.RenameChat(ctx, "no-such-chat", "name"), ErrNotFound)
}

func TestGetChatName_FallsBackToShortID(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	chat, err := database.CreateChat(ctx)
	require.NoError(t, err)

	name, err := database.GetChatName(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, chat.ID[:8], name)
}

func TestListChats(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	first, err := database.CreateChat(ctx)
	require.NoError(t, err)
	second, err := database.CreateChat(ctx)
	require.NoError(t, err)

	require.NoError(t, database.AddMessage(ctx, &models.Message{ChatID: first.ID, Role: models.RoleUser, Content: "one"}))
	require.NoError(t, database.AddMessage(ctx, &models.Message{ChatID: first.ID, Role: models.RoleAssistant, Content: "two"}))
	require.NoError(t, database.RenameChat(ctx, second.ID, "named chat"))

	chats, err := database.ListChats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 2)

	byID := map[string]models.ChatSummary{}
	for _, c := range chats {
		byID[c.ID] = c
	}
	assert.Equal(t, 2, byID[first.ID].MessageCount)
	assert.Empty(t, byID[first.ID].Name)
	assert.Equal(t, 0, byID[second.ID].MessageCount)
	assert.Equal(t, "named chat", byID[second.ID].Name)
}
