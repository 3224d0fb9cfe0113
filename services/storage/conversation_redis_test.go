package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, cleanup
}

func TestRedisConversationStore_AppendAndGetHistory(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewRedisConversationStore(client, 0, 0)
	ctx := context.Background()

	history, err := store.GetHistory(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, "", history)

	require.NoError(t, store.Append(ctx, "s1", "hello", "hi"))
	require.NoError(t, store.Append(ctx, "s1", "bye", "see you"))

	history, err = store.GetHistory(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "User: hello\nAssistant: hi\nUser: bye\nAssistant: see you", history)
}

func TestRedisConversationStore_TruncatesAtLimit(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewRedisConversationStore(client, 60, 0)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1", "a long opening question", "a long opening answer"))
	require.NoError(t, store.Append(ctx, "s1", "short", "ok"))

	history, err := store.GetHistory(ctx, "s1")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(history), 60)
	assert.NotContains(t, history, "opening question")
	assert.Contains(t, history, "short")
}

func TestRedisConversationStore_SetHistoryAndClear(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewRedisConversationStore(client, 0, 0)
	ctx := context.Background()

	require.NoError(t, store.SetHistory(ctx, "s1", "User: q\nAssistant: a"))

	ok, err := store.Exists(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Clear(ctx, "s1"))
	ok, err = store.Exists(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	history, err := store.GetHistory(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "", history)
}

func TestRedisConversationStore_AllSessionIDsAndClearAll(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewRedisConversationStore(client, 0, 0)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1", "q", "a"))
	require.NoError(t, store.Append(ctx, "s2", "q", "a"))
	require.NoError(t, store.AppendSources(ctx, "s1", []models.Source{{Type: models.SourceTypeSystem}}))

	ids, err := store.AllSessionIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, ids)

	require.NoError(t, store.ClearAll(ctx))

	ids, err = store.AllSessionIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	sources, err := store.GetSources(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestRedisConversationStore_SourcesSurviveRoundTrip(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewRedisConversationStore(client, 0, 0)
	ctx := context.Background()

	turn1 := []models.Source{{Type: models.SourceTypeDocument, FileName: "a.pdf", RelevanceScore: 0.9}}
	turn2 := []models.Source{{Type: models.SourceTypeDatabase, DatabaseID: "crm", DatabaseName: "CRM"}}
	require.NoError(t, store.AppendSources(ctx, "s1", turn1))
	require.NoError(t, store.AppendSources(ctx, "s1", turn2))

	all, err := store.GetSources(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a.pdf", all[0][0].FileName)
	assert.Equal(t, "crm", all[1][0].DatabaseID)
}

func TestRedisConversationStore_Timestamps(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewRedisConversationStore(client, 0, 0)
	ctx := context.Background()

	_, _, err := store.GetTimestamps(ctx, "missing")
	var notFound *models.NotFoundError
	require.ErrorAs(t, err, &notFound)

	require.NoError(t, store.Append(ctx, "s1", "q", "a"))
	created, updated, err := store.GetTimestamps(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, created.IsZero())
	assert.False(t, updated.Before(created))
}
