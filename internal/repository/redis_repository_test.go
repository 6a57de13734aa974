package repository

import (
	"context"
	"testing"
	"time"

	"monet-probing/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestSessionCacheRoundTrip(t *testing.T) {
	mr, client := newTestRedis(t)
	cache := NewSessionCache(client)
	ctx := context.Background()

	_, ok := cache.Get(ctx, "S1-Q1-R1")
	assert.False(t, ok)

	state := model.ProbeState{SurveyID: "S1", QuestionID: "Q1", RespondentID: "R1", SessionNo: 2, Counter: 3, Ended: true}
	require.NoError(t, cache.Set(ctx, "S1-Q1-R1", state, time.Hour))
	assert.True(t, mr.Exists("probe:S1-Q1-R1"))
	assert.Equal(t, time.Hour, mr.TTL("probe:S1-Q1-R1"))

	got, ok := cache.Get(ctx, "S1-Q1-R1")
	require.True(t, ok)
	assert.Equal(t, state, got)

	require.NoError(t, cache.Delete(ctx, "S1-Q1-R1"))
	_, ok = cache.Get(ctx, "S1-Q1-R1")
	assert.False(t, ok)
}

func TestSessionCacheCorruptEntryIsMiss(t *testing.T) {
	mr, client := newTestRedis(t)
	cache := NewSessionCache(client)
	require.NoError(t, mr.Set("probe:S1-Q1-R1", "{not json"))

	_, ok := cache.Get(context.Background(), "S1-Q1-R1")
	assert.False(t, ok)
}

func TestSessionCacheUnavailableIsMiss(t *testing.T) {
	mr, client := newTestRedis(t)
	cache := NewSessionCache(client)
	mr.Close()

	_, ok := cache.Get(context.Background(), "S1-Q1-R1")
	assert.False(t, ok)
	_, err := cache.Count(context.Background())
	assert.Error(t, err)
}

func TestSessionCacheCount(t *testing.T) {
	mr, client := newTestRedis(t)
	cache := NewSessionCache(client)
	ctx := context.Background()

	for _, key := range []string{"a-b-c", "a-b-d", "x-y-z"} {
		require.NoError(t, cache.Set(ctx, key, model.ProbeState{}, time.Minute))
	}
	require.NoError(t, mr.Set("probe_history:a-b-c", "ignored"))
	require.NoError(t, mr.Set("survey_details:a:b", "ignored"))

	n, err := cache.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestConversationRepositoryAppendAndRead(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := NewConversationRepository(client, 30*time.Minute)
	ctx := context.Background()

	msgs, err := repo.Messages(ctx, "S1-Q1-R1")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, repo.Append(ctx, "S1-Q1-R1",
		model.ChatMessage{Role: model.RoleSystem, Content: "sys"},
		model.ChatMessage{Role: model.RoleUser, Content: "Response 1. hi"},
	))
	require.NoError(t, repo.Append(ctx, "S1-Q1-R1", model.ChatMessage{Role: model.RoleAssistant, Content: "why?"}))

	msgs, err = repo.Messages(ctx, "S1-Q1-R1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"sys", "Response 1. hi", "why?"}, []string{msgs[0].Content, msgs[1].Content, msgs[2].Content})
	assert.Equal(t, model.RoleAssistant, msgs[2].Role)
	assert.False(t, msgs[0].Timestamp.IsZero())
	assert.Equal(t, 30*time.Minute, mr.TTL("probe_history:S1-Q1-R1"))

	require.NoError(t, repo.Clear(ctx, "S1-Q1-R1"))
	msgs, err = repo.Messages(ctx, "S1-Q1-R1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestIntentRepositoryRefreshesTTLOnRead(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := NewIntentRepository(client, time.Hour)
	ctx := context.Background()

	_, ok, err := repo.Get(ctx, "S1", "Q1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Store(ctx, "S1", "Q1", "learn how the ending landed"))
	mr.FastForward(40 * time.Minute)
	assert.Equal(t, 20*time.Minute, mr.TTL("intent:S1_Q1"))

	intent, ok, err := repo.Get(ctx, "S1", "Q1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "learn how the ending landed", intent)
	assert.Equal(t, time.Hour, mr.TTL("intent:S1_Q1"))
}
