package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chatdesk-backend/internal/api/middleware"
	"chatdesk-backend/internal/dto"
	"chatdesk-backend/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, registrars ...RouteRegistrar) *APIServer {
	t.Helper()
	q := queue.NewRequestQueueManager(4, 2)
	t.Cleanup(q.Shutdown)
	return NewAPIServer(Options{ListenAddr: ":0", CORS: middleware.WidgetCORS(), Queue: q}, registrars...)
}

func TestMakeHTTPHandleFuncMapsErrors(t *testing.T) {
	s := newTestServer(t, func(mux *http.ServeMux, s *APIServer) {
		mux.HandleFunc("/prechat", s.MakeHTTPHandleFunc(func(w http.ResponseWriter, r *http.Request) error {
			return &HTTPError{StatusCode: http.StatusBadRequest, Message: "Missing required fields", MissingFieldIDs: []string{"email"}}
		}))
		mux.HandleFunc("/boom", s.MakeHTTPHandleFunc(func(w http.ResponseWriter, r *http.Request) error {
			return errors.New("database exploded")
		}))
		mux.HandleFunc("/ok", s.MakeHTTPHandleFunc(func(w http.ResponseWriter, r *http.Request) error {
			return WriteJSON(w, http.StatusCreated, map[string]string{"id": "1"})
		}))
	})
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/prechat", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body dto.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "Missing required fields", body.Message)
	assert.Equal(t, []string{"email"}, body.MissingFieldIDs)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
	assert.NotContains(t, rec.Body.String(), "exploded")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpointUsesServerRegistry(t *testing.T) {
	s := newTestServer(t, func(mux *http.ServeMux, s *APIServer) {
		mux.HandleFunc("/ok", s.MakeHTTPHandleFunc(func(w http.ResponseWriter, r *http.Request) error {
			return WriteJSON(w, http.StatusOK, struct{}{})
		}))
	})
	h := s.Handler()

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "chatdesk_http_requests_total"))
	assert.True(t, strings.Contains(rec.Body.String(), "chatdesk_request_queue_depth"))

	// a second server must not collide on registration
	other := newTestServer(t)
	assert.NotSame(t, s.Registry(), other.Registry())
}

func TestSanitizePath(t *testing.T) {
	cases := map[string]string{
		"":   "/",
		"/":  "/",
		"/api/widget/v1/conversations/3f1c2a9e-8d1b-4c55-9d6e-7f0a1b2c3d4e/messages": "/api/widget/v1/conversations/:id/messages",
		"/api/agent/v1/conversations/abc/typing":                                     "/api/agent/v1/conversations/abc/typing",
		"/a/b/c/d/e/f/g/h/i":                                                         "/a/b/c/d/e/f/g/...",
	}
	for in, want := range cases {
		assert.Equal(t, want, sanitizePath(in), in)
	}
}
