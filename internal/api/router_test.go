package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/scrapetrack/internal/config"
	"github.com/timmy/scrapetrack/internal/domain"
	"github.com/timmy/scrapetrack/internal/history"
	"github.com/timmy/scrapetrack/internal/kvstore"
	"github.com/timmy/scrapetrack/internal/remotelog"
	"github.com/timmy/scrapetrack/internal/tracker"
)

type testServer struct {
	router *gin.Engine
	store  *history.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := history.NewStore(kvstore.NewMemory(), nil)
	registry := tracker.NewRegistry(store, remotelog.Discard{}, nil)
	t.Cleanup(func() { _ = registry.Close(context.Background()) })

	cfg := &config.ServerConfig{Mode: "test", CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}}}
	return &testServer{router: SetupRouter(registry, store, cfg, nil), store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func startSession(t *testing.T, s *testServer, urls ...string) string {
	t.Helper()
	cfg := domain.SessionConfig{Platform: "flipkart", Category: "phones"}
	for _, u := range urls {
		cfg.Items = append(cfg.Items, domain.Item{URL: u, Selected: true})
	}
	w := s.do(t, http.MethodPost, "/api/v1/sessions", cfg)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		SessionID string          `json:"sessionId"`
		Session   *domain.Session `json:"session"`
	}
	decode(t, w, &resp)
	require.NotEmpty(t, resp.SessionID)
	require.NotNil(t, resp.Session)
	assert.Equal(t, domain.SessionStatusInProgress, resp.Session.Status)
	return resp.SessionID
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.JSONEq(t, `{"status":"ok","activeSessions":0}`, w.Body.String())
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

func TestCORS(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sessions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t)
	id := startSession(t, s, "u1", "u2")

	w := s.do(t, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Sessions []domain.Session `json:"sessions"`
		Total    int              `json:"total"`
	}
	decode(t, w, &list)
	assert.Equal(t, 1, list.Total)

	w = s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/progress", domain.ProgressEvent{ItemURL: "u1", Outcome: domain.OutcomeSuccess})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/progress/current", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cur struct {
		Active   bool                    `json:"active"`
		Progress tracker.CurrentProgress `json:"progress"`
	}
	decode(t, w, &cur)
	assert.True(t, cur.Active)
	assert.Equal(t, 50, cur.Progress.Percentage)

	w = s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/progress", domain.ProgressEvent{ItemURL: "u1", Outcome: domain.OutcomeSuccess})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/progress", domain.ProgressEvent{ItemURL: "u2", Outcome: domain.OutcomeFailed, ErrorMessage: "404"})
	require.Equal(t, http.StatusOK, w.Code)
	var snap tracker.CurrentProgress
	decode(t, w, &snap)
	assert.Equal(t, id, snap.SessionID)
	assert.Equal(t, domain.SessionStatusCompleted, snap.Status)
	assert.Equal(t, 1, snap.Failed)

	w = s.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/progress/current", nil)
	assert.JSONEq(t, `{"active":false}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/history?status=completed&platform=FLIPKART", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hist struct {
		Records []domain.HistoryRecord `json:"records"`
		Total   int                    `json:"total"`
	}
	decode(t, w, &hist)
	require.Equal(t, 1, hist.Total)
	assert.Equal(t, id, hist.Records[0].SessionID)
	assert.Equal(t, 50, hist.Records[0].Progress.Percentage)
}

func TestStartSessionValidation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/sessions", domain.SessionConfig{Platform: "p"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/sessions", "{broken")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelSession(t *testing.T) {
	s := newTestServer(t)
	id := startSession(t, s, "u1")

	w := s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/cancel", map[string]string{"reason": "user abort"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/cancel", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	records := s.store.List(context.Background())
	require.Len(t, records, 1)
	assert.Equal(t, domain.SessionStatusCancelled, records[0].Status)
	assert.Equal(t, "user abort", records[0].ErrorMessage)
}

func TestCategoryProgress(t *testing.T) {
	s := newTestServer(t)
	id := startSession(t, s, "https://shop.example/c/1")

	w := s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/categories", map[string]interface{}{
		"categoryUrl": "https://shop.example/c/1",
		"total":       4,
		"scraped":     3,
		"failed":      1,
	})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/categories", map[string]interface{}{"total": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoryEndpoints(t *testing.T) {
	s := newTestServer(t)
	startSession(t, s, "u1", "u2")

	w := s.do(t, http.MethodGet, "/api/v1/history/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats domain.Statistics
	decode(t, w, &stats)
	assert.Equal(t, 1, stats.TotalSessions)
	assert.Equal(t, 1, stats.ActiveSessions)

	w = s.do(t, http.MethodGet, "/api/v1/history/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	exported := w.Body.String()

	var records []domain.HistoryRecord
	require.NoError(t, json.Unmarshal([]byte(exported), &records))
	require.Len(t, records, 1)
	recordID := records[0].ID

	w = s.do(t, http.MethodGet, "/api/v1/history/"+recordID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/history?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/history?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodDelete, "/api/v1/history", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, s.store.List(context.Background()))

	w = s.do(t, http.MethodPost, "/api/v1/history/import", `{"not":"an array"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/history/import", exported)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"imported":1}`, w.Body.String())

	w = s.do(t, http.MethodDelete, "/api/v1/history/"+recordID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodDelete, "/api/v1/history/"+recordID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type failingUpdates struct{ remotelog.Discard }

func (failingUpdates) Update(context.Context, string, domain.LogEntry) error {
	return errors.New("remote unavailable")
}

func TestRemoteLogFailureMapsToBadGateway(t *testing.T) {
	store := history.NewStore(kvstore.NewMemory(), nil)
	registry := tracker.NewRegistry(store, failingUpdates{}, &tracker.Config{RejectDuplicates: true})
	t.Cleanup(func() { _ = registry.Close(context.Background()) })
	s := &testServer{router: SetupRouter(registry, store, &config.ServerConfig{Mode: "test"}, nil), store: store}

	id := startSession(t, s, "u1", "u2")

	w := s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/progress", domain.ProgressEvent{ItemURL: "u1", Outcome: domain.OutcomeSuccess})
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), `"localStateApplied":true`)

	w = s.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sess domain.Session
	decode(t, w, &sess)
	assert.Equal(t, 1, sess.Progress.Scraped)
}
