package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeStateRestartKeepsCounter(t *testing.T) {
	s := ProbeState{SessionNo: 1, Counter: 3, Ended: true}
	r := s.Restart()

	assert.Equal(t, 2, r.SessionNo)
	assert.Equal(t, 3, r.Counter)
	assert.False(t, r.Ended)
	assert.True(t, s.Ended, "receiver must not change")
}

func TestKeysAndLabels(t *testing.T) {
	req := SurveyResponse{SurveyID: "S1", QuestionID: "Q1", RespondentID: "R1"}
	assert.Equal(t, "S1-Q1-R1", req.Key())
	assert.Equal(t, "Response 2. pizza", UserTurnText(2, "pizza"))
	assert.Equal(t, 2, CountRole([]ChatMessage{{Role: RoleSystem}, {Role: RoleUser}, {Role: RoleAssistant}, {Role: RoleUser}}, RoleUser))
}

func TestMetricsValidateAndClamp(t *testing.T) {
	ok := MetricsRecord{Quality: 1, Relevance: 10}
	require.NoError(t, ok.Validate())

	assert.Error(t, MetricsRecord{Quality: 0}.Validate())
	assert.Error(t, MetricsRecord{Quality: 5, Confusion: 11}.Validate())

	c := MetricsRecord{Quality: 0, Relevance: -1, Detail: 14, GibberishScore: 99}.Clamped()
	assert.Equal(t, 1, c.Quality)
	assert.Equal(t, 0, c.Relevance)
	assert.Equal(t, 10, c.Detail)
	assert.Equal(t, 10, c.GibberishScore)
	assert.Equal(t, []string{}, c.Keywords)
	require.NoError(t, c.Validate())
}

func TestApplyDefaultsFillsOnlyMissing(t *testing.T) {
	snap := SurveySnapshot{Question: QuestionContext{RelevanceThreshold: IntPtr(6), GibberishThreshold: IntPtr(0)}}
	snap.ApplyDefaults(Thresholds{Quality: 4, Relevance: 4, Gibberish: 4})

	assert.Equal(t, DefaultLanguage, snap.Survey.Language)
	assert.Equal(t, Thresholds{Quality: 4, Relevance: 6, Gibberish: 0}, snap.Question.Limits())
	assert.Equal(t, Thresholds{}, QuestionContext{}.Limits())

	on, off := true, false
	assert.True(t, FlagOrDefault(nil))
	assert.True(t, FlagOrDefault(&on))
	assert.False(t, FlagOrDefault(&off))
}

func TestQuestionConfigKeepsExplicitZero(t *testing.T) {
	var cfg QuestionConfig
	require.NoError(t, json.Unmarshal([]byte(`{"quality_threshold":0,"relevance_threshold":0}`), &cfg))
	require.NotNil(t, cfg.QualityThreshold)
	assert.Equal(t, 0, *cfg.QualityThreshold)
	require.NotNil(t, cfg.RelevanceThreshold)
	assert.Equal(t, 0, *cfg.RelevanceThreshold)
	assert.Nil(t, cfg.GibberishScore)

	snap := SurveySnapshot{Question: QuestionContext{RelevanceThreshold: IntPtr(0)}}
	b, err := json.Marshal(snap)
	require.NoError(t, err)
	var back SurveySnapshot
	require.NoError(t, json.Unmarshal(b, &back))
	require.NotNil(t, back.Question.RelevanceThreshold)
	assert.Equal(t, 0, *back.Question.RelevanceThreshold)
	assert.Nil(t, back.Question.QualityThreshold)
}

func TestNewProbeResponse(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	turn := SurveyResponse{SurveyID: "S1", QuestionID: "Q1", RespondentID: "R1", Question: "Food?", Response: "pizza"}
	m := MetricsRecord{Quality: 6, Relevance: 8, Keywords: []string{"pizza", "cheese"}}
	state := ProbeState{SessionNo: 2, Counter: 5, Ended: true}

	rec := NewProbeResponse(turn, "Why pizza?", m, state, at)
	assert.Equal(t, "S1-Q1-R1", rec.Key())
	assert.Equal(t, "S1-Q1-R1-2-5", rec.DocumentID())
	assert.Equal(t, 5, rec.QsNo)
	assert.True(t, rec.Ended)
	assert.Equal(t, "Why pizza?", rec.FollowUp)
	assert.Equal(t, m, rec.Metrics())
	assert.Equal(t, at, rec.CreatedAt)
}

func TestStringSliceColumn(t *testing.T) {
	v, err := StringSlice{"a", "b"}.Value()
	require.NoError(t, err)
	assert.Equal(t, "a,b", v)

	var s StringSlice
	require.NoError(t, s.Scan([]byte("x,y")))
	assert.Equal(t, StringSlice{"x", "y"}, s)
	require.NoError(t, s.Scan(""))
	assert.Empty(t, s)
	require.NoError(t, s.Scan(nil))
	assert.Empty(t, s)
	assert.Error(t, s.Scan(42))
}

func TestEventShapes(t *testing.T) {
	frame := EventFrame{MinProbing: 1, MaxProbing: 3}

	b, err := json.Marshal(frame.Fragment("Why", false))
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":false,"message":"streaming","code":200,
		"response":{"question":"Why","ended":false,"min_probing":1,"max_probing":3}}`, string(b))

	b, err = json.Marshal(frame.Ended("Why?", MetricsRecord{Quality: 5, Keywords: []string{}}, true, false))
	require.NoError(t, err)
	var ended map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &ended))
	resp := ended["response"].(map[string]interface{})
	assert.Equal(t, "streaming-ended", ended["message"])
	assert.Equal(t, true, resp["ended"])
	assert.Equal(t, false, resp["is_gibberish"])
	assert.Contains(t, resp, "metrics")

	b, err = json.Marshal(ErrorEvent(500, "scoring failed"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":true,"message":"scoring failed","code":500}`, string(b))
}
