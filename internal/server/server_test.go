package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpachisa/TutorAI-sub000/internal/curriculum"
	"github.com/fpachisa/TutorAI-sub000/internal/llm"
	"github.com/fpachisa/TutorAI-sub000/internal/metrics"
	"github.com/fpachisa/TutorAI-sub000/internal/session"
	"github.com/fpachisa/TutorAI-sub000/internal/tutor"
)

const testKey = "p6_math_fractions_dividing_fractions"

type testEnv struct {
	router   *gin.Engine
	mock     *llm.MockProvider
	sessions *session.MemoryStore
	metrics  *metrics.Metrics
}

func newTestEnv(t *testing.T, limiter *ClientLimiter) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	content, err := curriculum.NewFileStore(curriculum.Builtin())
	require.NoError(t, err)

	mock := llm.NewMockProvider()
	sessions := session.NewMemoryStore()
	m := metrics.New()
	svc, err := tutor.NewService(tutor.Deps{
		Provider: mock,
		Content:  content,
		Sessions: sessions,
		Metrics:  m,
	}, tutor.DefaultConfig())
	require.NoError(t, err)

	router := NewRouter(RouterConfig{
		AllowedOrigins:    []string{"http://localhost:3000"},
		Limiter:           limiter,
		Metrics:           m,
		TurnHandler:       NewTurnHandler(svc),
		SessionHandler:    NewSessionHandler(sessions, content),
		CurriculumHandler: NewCurriculumHandler(content),
	})
	return &testEnv{router: router, mock: mock, sessions: sessions, metrics: m}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func modelReply(intent string, tags ...string) llm.MockResponse {
	return llm.MockJSON(map[string]any{
		"tutor_message":     "What is the reciprocal of 3/4?",
		"intent":            intent,
		"concept_tags":      append([]string{}, tags...),
		"answer_assessment": "none",
	})
}

func decodeTurn(t *testing.T, w *httptest.ResponseRecorder) tutor.TurnResponse {
	t.Helper()
	var resp tutor.TurnResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateTurn_Start(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mock.AddResponse(modelReply(tutor.IntentNewQuestion, "reciprocals"))

	w := env.do(t, http.MethodPost, "/api/turns",
		`{"uid":"u1","session_id":"s1","topic_key":"`+testKey+`","intent":"start","message":""}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeTurn(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.TurnNumber)
	assert.Equal(t, 1, resp.CurrentMasteryStep)
	assert.Equal(t, []string{"reciprocals"}, resp.ConceptTags)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestCreateTurn_ExplicitPath(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mock.AddResponse(modelReply(tutor.IntentGreeting))

	body := `{"uid":"u1","session_id":"s1","intent":"start",
		"path":{"grade":"p6","subject":"math","topic":"fractions","subtopic":"dividing-fractions"}}`
	w := env.do(t, http.MethodPost, "/api/turns", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestCreateTurn_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(e *testEnv)
		body   string
		status int
	}{
		{
			name:   "malformed json",
			body:   `{"uid":`,
			status: http.StatusBadRequest,
		},
		{
			name:   "missing message",
			body:   `{"uid":"u1","session_id":"s1","topic_key":"` + testKey + `"}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown topic",
			body:   `{"uid":"u1","session_id":"s1","topic_key":"p6_math_algebra_linear","intent":"start"}`,
			status: http.StatusNotFound,
		},
		{
			name: "other user's session",
			setup: func(e *testEnv) {
				_, _, err := e.sessions.CreateIfAbsent(context.Background(),
					session.New("u2", "s1", curriculum.KeyToPath(testKey), time.Now()))
				if err != nil {
					panic(err)
				}
			},
			body:   `{"uid":"u1","session_id":"s1","topic_key":"` + testKey + `","message":"hi"}`,
			status: http.StatusForbidden,
		},
		{
			name:   "model failure",
			setup:  func(e *testEnv) { e.mock.AddResponse(llm.MockResponse{Err: &llm.ErrProviderUnavailable{}}) },
			body:   `{"uid":"u1","session_id":"s1","topic_key":"` + testKey + `","intent":"start"}`,
			status: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			if tt.setup != nil {
				tt.setup(env)
			}
			w := env.do(t, http.MethodPost, "/api/turns", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())

			resp := decodeTurn(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tutor.UserMessage, resp.Error)
		})
	}
}

func TestTurnStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&tutor.Error{Kind: tutor.KindInput, Err: tutor.ErrTopicMismatch}, http.StatusConflict},
		{&tutor.Error{Kind: tutor.KindStore, Err: session.ErrStoreUnavailable}, http.StatusServiceUnavailable},
		{&tutor.Error{Kind: tutor.KindContent, Err: tutor.ErrContentUnavailable}, http.StatusServiceUnavailable},
		{&tutor.Error{Kind: tutor.KindGeneration, Err: fmt.Errorf("%w: slow", llm.ErrTimeout)}, http.StatusGatewayTimeout},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, turnStatus(tt.err), tt.err.Error())
	}
}

func TestGetSession(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mock.AddResponse(modelReply(tutor.IntentNewQuestion, "reciprocals"))
	w := env.do(t, http.MethodPost, "/api/turns",
		`{"uid":"u1","session_id":"s1","topic_key":"`+testKey+`","intent":"start"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/sessions/s1?uid=u1&turns=true", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var view SessionView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, curriculum.TopicKey(testKey), view.TopicKey)
	assert.Equal(t, 1, view.TurnCount)
	assert.Len(t, view.Turns, 1)
	require.Len(t, view.Steps, 3)
	assert.True(t, view.Steps[0].Current)
	assert.Equal(t, 1, view.Steps[0].Asked)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/sessions/s1", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/sessions/s1?uid=u2", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/sessions/nope?uid=u1", "").Code)
}

func TestCurriculumRoutes(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/curriculum/"+testKey, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var content curriculum.Content
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &content))
	assert.Equal(t, "Dividing Fractions", content.Title)
	assert.Len(t, content.Progression, 3)

	w = env.do(t, http.MethodGet, "/api/curriculum/p9_math_nothing_here", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	var env404 ErrorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env404))
	assert.Equal(t, "content_not_found", env404.Error.Code)

	w = env.do(t, http.MethodGet, "/api/curriculum", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), testKey)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	w = env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `route="/healthcheck"`)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, NewClientLimiter(1, 2))
	for range 3 {
		env.mock.AddResponse(modelReply(tutor.IntentGreeting))
	}

	body := `{"uid":"u1","session_id":"s1","topic_key":"` + testKey + `","intent":"start"}`
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/turns", body).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/turns", body).Code)

	w := env.do(t, http.MethodPost, "/api/turns", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	// Other routes are not limited.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthcheck", "").Code)
}

func TestClientLimiter_Refills(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	l := NewClientLimiter(60, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "clients have separate buckets")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("a"))

	now = now.Add(time.Hour)
	l.Allow("c")
	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.clients, "a", "idle buckets are dropped")
}

func TestClientLimiter_SweepsPeriodically(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	now := start
	l := NewClientLimiter(60, 1)
	l.now = func() time.Time { return now }

	l.Allow("a")
	now = start.Add(8 * time.Minute)
	l.Allow("b")

	now = start.Add(11 * time.Minute)
	l.Allow("c")
	l.mu.Lock()
	assert.Contains(t, l.clients, "a", "no sweep within five minutes of the last one")
	l.mu.Unlock()

	now = start.Add(13*time.Minute + time.Second)
	l.Allow("d")
	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.clients, "a")
	assert.Contains(t, l.clients, "b")
	assert.Len(t, l.clients, 3)
}
