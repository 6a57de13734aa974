package service

import (
	"context"
	"testing"
	"time"

	"monet-probing/internal/model"
	"monet-probing/pkg/es"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSearcher struct {
	got es.SearchQuery
}

func (s *stubSearcher) Search(_ context.Context, q es.SearchQuery) ([]model.ProbeResponse, error) {
	s.got = q
	return []model.ProbeResponse{{SurveyID: q.SurveyID, Response: "pizza"}}, nil
}

type stubLocator struct{}

func (stubLocator) TranscriptURL(key string, sessionNo int, expiry time.Duration) (string, error) {
	return "http://minio/" + key, nil
}

func TestAdminInspectAndReset(t *testing.T) {
	cache := newMemCache()
	history := newMemHistory()
	ctx := context.Background()
	key := "S1-Q1-R1"
	require.NoError(t, cache.Set(ctx, key, model.ProbeState{SurveyID: "S1", Counter: 2, SessionNo: 1}, time.Hour))
	require.NoError(t, history.Append(ctx, key, model.ChatMessage{Role: model.RoleUser, Content: "Response 1. pizza"}))

	svc := NewAdminService(cache, history, nil, nil)

	got, err := svc.InspectProbe(ctx, key)
	require.NoError(t, err)
	assert.True(t, got.Cached)
	assert.Equal(t, 2, got.State.Counter)
	assert.Len(t, got.History, 1)

	n, err := svc.ActiveSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, svc.ResetProbe(ctx, key))
	got, err = svc.InspectProbe(ctx, key)
	require.NoError(t, err)
	assert.False(t, got.Cached)
	assert.Nil(t, got.State)
	assert.Empty(t, got.History)
}

func TestAdminOptionalBackends(t *testing.T) {
	svc := NewAdminService(newMemCache(), newMemHistory(), nil, nil)

	_, err := svc.SearchResponses(context.Background(), es.SearchQuery{Text: "pizza"})
	assert.ErrorIs(t, err, ErrFeatureDisabled)
	_, err = svc.TranscriptURL("S1-Q1-R1", 1)
	assert.ErrorIs(t, err, ErrFeatureDisabled)

	searcher := &stubSearcher{}
	svc = NewAdminService(newMemCache(), newMemHistory(), searcher, stubLocator{})
	res, err := svc.SearchResponses(context.Background(), es.SearchQuery{Text: "pizza", SurveyID: "S1"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "S1", searcher.got.SurveyID)

	url, err := svc.TranscriptURL("S1-Q1-R1", 1)
	require.NoError(t, err)
	assert.Equal(t, "http://minio/S1-Q1-R1", url)
}
