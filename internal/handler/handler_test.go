package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"monet-probing/internal/config"
	"monet-probing/internal/model"
	"monet-probing/internal/service"
	"monet-probing/pkg/es"
	"monet-probing/pkg/hash"
	"monet-probing/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// echoProbe 对每个回合发送固定的事件序列，并记录收到的回合。
type echoProbe struct {
	mu    sync.Mutex
	turns []model.SurveyResponse
}

func (p *echoProbe) HandleTurn(_ context.Context, req model.SurveyResponse, emit service.Emitter) error {
	p.mu.Lock()
	p.turns = append(p.turns, req)
	p.mu.Unlock()

	frame := model.EventFrame{MinProbing: 1, MaxProbing: 3}
	m := model.MetricsRecord{Quality: 2, Relevance: 8}
	for _, ev := range []model.ProbeEvent{
		frame.Started(false),
		frame.Metrics(m, false, false),
		frame.Fragment("Why "+req.Response+"?", false),
		frame.Ended("Why "+req.Response+"?", m, false, false),
	} {
		if err := emit.Emit(ev); err != nil {
			return fmt.Errorf("%w: %v", service.ErrEmitFailed, err)
		}
	}
	return nil
}

func dialProbe(t *testing.T, svc service.ProbeService) *websocket.Conn {
	t.Helper()
	r := gin.New()
	r.GET("/ws/ai-qa", NewProbeHandler(svc).Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/ai-qa"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) model.ProbeEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev model.ProbeEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestProbeSocketStreamsTurns(t *testing.T) {
	svc := &echoProbe{}
	conn := dialProbe(t, svc)

	for _, answer := range []string{"pizza", "pasta"} {
		require.NoError(t, conn.WriteJSON(model.SurveyResponse{
			SurveyID: "S1", QuestionID: "Q1", RespondentID: "R1",
			Question: "Favourite food?", Response: answer,
		}))

		var messages []string
		for i := 0; i < 4; i++ {
			ev := readEvent(t, conn)
			assert.False(t, ev.Error)
			assert.Equal(t, http.StatusOK, ev.Code)
			messages = append(messages, ev.Message)
		}
		assert.Equal(t, []string{
			model.MessageStreamingStarted,
			model.MessageStreaming,
			model.MessageStreaming,
			model.MessageStreamingEnded,
		}, messages)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.Len(t, svc.turns, 2)
	assert.Equal(t, "pasta", svc.turns[1].Response)
}

func TestProbeSocketRejectsMalformedJSON(t *testing.T) {
	svc := &echoProbe{}
	conn := dialProbe(t, svc)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	ev := readEvent(t, conn)
	assert.True(t, ev.Error)
	assert.Equal(t, http.StatusBadRequest, ev.Code)
	assert.Contains(t, ev.Message, "invalid JSON payload")

	// 连接仍然可用
	require.NoError(t, conn.WriteJSON(model.SurveyResponse{SurveyID: "S1", QuestionID: "Q1", RespondentID: "R1", Question: "q", Response: "r"}))
	assert.Equal(t, model.MessageStreamingStarted, readEvent(t, conn).Message)
}

type countingSessions struct {
	n   int
	err error
}

func (c countingSessions) Count(context.Context) (int, error) { return c.n, c.err }

func TestHealth(t *testing.T) {
	r := gin.New()
	h := NewHealthHandler(countingSessions{n: 3})
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"websocket_status":"healthy with 3 active probe sessions","active_probe_sessions":3}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.JSONEq(t, `{"status":"running"}`, w.Body.String())

	r = gin.New()
	r.GET("/health", NewHealthHandler(countingSessions{err: errors.New("redis down")}).Health)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"websocket_status":"unhealthy","active_probe_sessions":0}`, w.Body.String())
}

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIssueToken(t *testing.T) {
	secretHash, err := hash.HashPassword("s3cret")
	require.NoError(t, err)
	jwt := token.NewJWTManager("signing-key", 1)
	r := gin.New()
	r.POST("/token", NewAuthHandler(config.AuthConfig{ClientID: "ops", ClientSecretHash: secretHash}, jwt).IssueToken)

	assert.Equal(t, http.StatusBadRequest, postJSON(r, "/token", `{}`).Code)
	assert.Equal(t, http.StatusUnauthorized, postJSON(r, "/token", `{"clientId":"ops","clientSecret":"nope"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, postJSON(r, "/token", `{"clientId":"other","clientSecret":"s3cret"}`).Code)

	w := postJSON(r, "/token", `{"clientId":"ops","clientSecret":"s3cret"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data struct {
			Token     string `json:"token"`
			ExpiresIn int    `json:"expiresIn"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3600, body.Data.ExpiresIn)
	claims, err := jwt.VerifyToken(body.Data.Token)
	require.NoError(t, err)
	assert.Equal(t, token.RoleAdmin, claims.Role)
}

type stubAdmin struct {
	reset     []string
	inspected string
	query     es.SearchQuery
	searchErr error
}

func (s *stubAdmin) InspectProbe(_ context.Context, key string) (*service.ProbeInspection, error) {
	s.inspected = key
	return &service.ProbeInspection{Key: key, Cached: true, State: &model.ProbeState{Counter: 2}}, nil
}

func (s *stubAdmin) ResetProbe(_ context.Context, key string) error {
	s.reset = append(s.reset, key)
	return nil
}

func (s *stubAdmin) ActiveSessions(context.Context) (int, error) { return 0, nil }

func (s *stubAdmin) SearchResponses(_ context.Context, q es.SearchQuery) ([]model.ProbeResponse, error) {
	s.query = q
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return []model.ProbeResponse{{Response: "pizza"}}, nil
}

func (s *stubAdmin) TranscriptURL(key string, sessionNo int) (string, error) {
	return fmt.Sprintf("http://minio/%s/%d", key, sessionNo), nil
}

func adminRouter(svc service.AdminService) *gin.Engine {
	h := NewAdminHandler(svc)
	r := gin.New()
	r.GET("/probes/:surveyId/:questionId/:respondentId", h.GetProbe)
	r.DELETE("/probes/:surveyId/:questionId/:respondentId", h.ResetProbe)
	r.GET("/probes/:surveyId/:questionId/:respondentId/transcripts/:sessionNo", h.GetTranscript)
	r.GET("/responses/search", h.SearchResponses)
	return r
}

func do(r http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestAdminProbeRoutes(t *testing.T) {
	svc := &stubAdmin{}
	r := adminRouter(svc)

	w := do(r, http.MethodGet, "/probes/S1/Q1/R1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "S1-Q1-R1", svc.inspected)
	assert.Contains(t, w.Body.String(), `"counter":2`)

	w = do(r, http.MethodDelete, "/probes/S1/Q1/R1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"S1-Q1-R1"}, svc.reset)

	w = do(r, http.MethodGet, "/probes/S1/Q1/R1/transcripts/2")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http://minio/S1-Q1-R1/2")

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/probes/S1/Q1/R1/transcripts/x").Code)
}

func TestAdminSearch(t *testing.T) {
	svc := &stubAdmin{}
	r := adminRouter(svc)

	w := do(r, http.MethodGet, "/responses/search?q=pizza&su_id=S1&size=5")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, es.SearchQuery{Text: "pizza", SurveyID: "S1", Size: 5}, svc.query)
	assert.Contains(t, w.Body.String(), "pizza")

	svc.searchErr = service.ErrFeatureDisabled
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/responses/search?q=pizza").Code)

	svc.searchErr = errors.New("es down")
	assert.Equal(t, http.StatusInternalServerError, do(r, http.MethodGet, "/responses/search?q=pizza").Code)
}
