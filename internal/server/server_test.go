package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/support-agent/server/internal/agent/machine"
	"github.com/support-agent/server/internal/agent/model"
)

type stubEngine struct {
	result        *model.TurnResult
	err           error
	chunks        []string
	lastSessionID string
	lastMessage   string
}

func (s *stubEngine) ProcessTurn(ctx context.Context, sessionID, message string) (*model.TurnResult, error) {
	s.lastSessionID = sessionID
	s.lastMessage = message
	if s.err != nil {
		return nil, s.err
	}
	res := *s.result
	res.SessionID = sessionID
	return &res, nil
}

func (s *stubEngine) ProcessTurnStream(ctx context.Context, sessionID, message string, onChunk func(string) error) (*model.TurnResult, error) {
	s.lastSessionID = sessionID
	if s.err != nil {
		return nil, s.err
	}
	for _, c := range s.chunks {
		if err := onChunk(c); err != nil {
			return nil, err
		}
	}
	res := *s.result
	res.SessionID = sessionID
	return &res, nil
}

type stubIngester struct {
	chunks     int
	err        error
	lastSource string
}

func (s *stubIngester) Ingest(ctx context.Context, collection, source, content string) (int, error) {
	s.lastSource = source
	return s.chunks, s.err
}

func testConfig() model.ServerConfig {
	return model.ServerConfig{Port: 0, RequestsPerMinute: 600, Burst: 100}
}

func newTestServer(engine *stubEngine, ingester *stubIngester, checks map[string]HealthCheck) *Server {
	if ingester == nil {
		ingester = &stubIngester{chunks: 1}
	}
	if checks == nil {
		checks = map[string]HealthCheck{}
	}
	return New(testConfig(), engine, ingester, "faq_knowledge", checks)
}

func postJSON(t *testing.T, srv *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestChatReturnsTurnResult(t *testing.T) {
	engine := &stubEngine{result: &model.TurnResult{
		Response: "¡Hola!",
		Intent:   model.IntentGreeting,
	}}
	srv := newTestServer(engine, nil, nil)

	rec := postJSON(t, srv, "/api/v1/chat", map[string]string{
		"message":    "hola",
		"session_id": "s1",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "¡Hola!", resp.Response)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, "greeting", resp.Intent)
	assert.False(t, resp.Metadata.ConversationEnded)
	assert.Equal(t, "hola", engine.lastMessage)
}

func TestChatGeneratesSessionID(t *testing.T) {
	engine := &stubEngine{result: &model.TurnResult{Response: "ok"}}
	srv := newTestServer(engine, nil, nil)

	rec := postJSON(t, srv, "/api/v1/chat", map[string]string{"message": "hola"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(engine.lastSessionID, "session_"))
	assert.Len(t, engine.lastSessionID, len("session_")+32)
}

func TestChatEmptyMessageRejected(t *testing.T) {
	engine := &stubEngine{result: &model.TurnResult{}}
	srv := newTestServer(engine, nil, nil)

	rec := postJSON(t, srv, "/api/v1/chat", map[string]string{"message": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatInvalidJSONRejected(t *testing.T) {
	srv := newTestServer(&stubEngine{result: &model.TurnResult{}}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader("{no es json"))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatEndedSessionConflict(t *testing.T) {
	engine := &stubEngine{err: machine.ErrSessionEnded}
	srv := newTestServer(engine, nil, nil)

	rec := postJSON(t, srv, "/api/v1/chat", map[string]string{"message": "hola", "session_id": "s1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestChatInternalError(t *testing.T) {
	engine := &stubEngine{err: errors.New("boom")}
	srv := newTestServer(engine, nil, nil)

	rec := postJSON(t, srv, "/api/v1/chat", map[string]string{"message": "hola", "session_id": "s1"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChatStreamEmitsChunksAndDone(t *testing.T) {
	engine := &stubEngine{
		result: &model.TurnResult{Response: "hola mundo", Intent: model.IntentSupportQuery},
		chunks: []string{"hola ", "mundo"},
	}
	srv := newTestServer(engine, nil, nil)

	rec := postJSON(t, srv, "/api/v1/chat/stream", map[string]string{"message": "consulta", "session_id": "s1"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 3)
	assert.Equal(t, "hola ", events[0]["chunk"])
	assert.Equal(t, "mundo", events[1]["chunk"])
	assert.Equal(t, true, events[2]["done"])
	assert.Equal(t, "s1", events[2]["session_id"])
	assert.Equal(t, "support_query", events[2]["intent"])
}

func TestChatStreamTemplatedReplySingleChunk(t *testing.T) {
	engine := &stubEngine{result: &model.TurnResult{Response: "plantilla"}}
	srv := newTestServer(engine, nil, nil)

	rec := postJSON(t, srv, "/api/v1/chat/stream", map[string]string{"message": "hola", "session_id": "s1"})

	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, "plantilla", events[0]["chunk"])
	assert.Equal(t, true, events[1]["done"])
}

func TestChatStreamErrorEvent(t *testing.T) {
	engine := &stubEngine{err: errors.New("boom")}
	srv := newTestServer(engine, nil, nil)

	rec := postJSON(t, srv, "/api/v1/chat/stream", map[string]string{"message": "hola", "session_id": "s1"})

	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, true, events[0]["done"])
	assert.NotEmpty(t, events[0]["error"])
}

func parseSSE(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt))
		events = append(events, evt)
	}
	return events
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadDocument(t *testing.T) {
	ingester := &stubIngester{chunks: 4}
	srv := newTestServer(&stubEngine{result: &model.TurnResult{}}, ingester, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, uploadRequest(t, "faq.md", "# Preguntas frecuentes\n\nContenido."))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, 4, resp.ChunksCreated)
	assert.Equal(t, "faq.md", ingester.lastSource)
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	srv := newTestServer(&stubEngine{result: &model.TurnResult{}}, nil, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, uploadRequest(t, "malware.exe", "x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRejectsEmptyFile(t *testing.T) {
	srv := newTestServer(&stubEngine{result: &model.TurnResult{}}, nil, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, uploadRequest(t, "vacio.txt", "   "))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAllHealthy(t *testing.T) {
	checks := map[string]HealthCheck{
		"redis":   func(ctx context.Context) error { return nil },
		"history": func(ctx context.Context) error { return nil },
	}
	srv := newTestServer(&stubEngine{result: &model.TurnResult{}}, nil, checks)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Services["redis"])
}

func TestHealthDegraded(t *testing.T) {
	checks := map[string]HealthCheck{
		"redis":   func(ctx context.Context) error { return nil },
		"history": func(ctx context.Context) error { return errors.New("db locked") },
	}
	srv := newTestServer(&stubEngine{result: &model.TurnResult{}}, nil, checks)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Contains(t, resp.Services["history"], "unhealthy")
}

func TestRateLimitExceeded(t *testing.T) {
	srv := New(model.ServerConfig{RequestsPerMinute: 60, Burst: 2}, &stubEngine{result: &model.TurnResult{}}, &stubIngester{}, "faq_knowledge", nil)

	var last int
	for i := 0; i < 5; i++ {
		rec := postJSON(t, srv, "/api/v1/chat", map[string]string{"message": "hola", "session_id": "s1"})
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
