package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// captureLog swaps the global logger for one writing JSON lines to a buffer.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]any
	if err := json.Unmarshal(lines[len(lines)-1], &entry); err != nil {
		t.Fatalf("decode log line %q: %v", lines[len(lines)-1], err)
	}
	return entry
}

func TestLoggingRecordsStatusAndSize(t *testing.T) {
	buf := captureLog(t)
	handler := Logging()(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"m1"}`))
		_, _ = w.Write([]byte("\n"))
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/widget/v1/conversations?x=1", nil))

	entry := lastEntry(t, buf)
	if entry["status"] != float64(http.StatusCreated) {
		t.Fatalf("status = %v, want 201", entry["status"])
	}
	if entry["size"] != float64(12) {
		t.Fatalf("size = %v, want 12", entry["size"])
	}
	if entry["uri"] != "/api/widget/v1/conversations?x=1" {
		t.Fatalf("uri = %v", entry["uri"])
	}
	if entry["method"] != http.MethodPost {
		t.Fatalf("method = %v", entry["method"])
	}
}

func TestLoggingImplicitStatusIsOK(t *testing.T) {
	buf := captureLog(t)
	handler := Logging()(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := lastEntry(t, buf)["status"]; got != float64(http.StatusOK) {
		t.Fatalf("status = %v, want 200", got)
	}
}

func TestLoggingAssignsRequestID(t *testing.T) {
	buf := captureLog(t)
	handler := Logging()(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	id := rec.Header().Get("X-Request-ID")
	if id == "" {
		t.Fatal("X-Request-ID was not set on the response")
	}
	if got := lastEntry(t, buf)["request_id"]; got != id {
		t.Fatalf("logged request_id = %v, want %q", got, id)
	}
}

func TestLoggingKeepsIncomingRequestID(t *testing.T) {
	buf := captureLog(t)
	handler := Logging()(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "edge-42")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "edge-42" {
		t.Fatalf("X-Request-ID = %q, want edge-42", got)
	}
	if got := lastEntry(t, buf)["request_id"]; got != "edge-42" {
		t.Fatalf("logged request_id = %v", got)
	}
}

type upgradeRecorder struct {
	http.ResponseWriter
	hijacked bool
	err      error
}

func (u *upgradeRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	u.hijacked = true
	return nil, nil, u.err
}

// websocket upgrades go through the logging wrapper
func TestLoggingPassesHijackThrough(t *testing.T) {
	captureLog(t)
	upgradeErr := errors.New("upgrade")
	rec := &upgradeRecorder{ResponseWriter: httptest.NewRecorder(), err: upgradeErr}

	handler := Logging()(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("wrapped writer lost http.Hijacker")
		}
		if _, _, err := hj.Hijack(); !errors.Is(err, upgradeErr) {
			t.Fatalf("unexpected hijack error: %v", err)
		}
	})
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/ws/v1/agent/notifications", nil))

	if !rec.hijacked {
		t.Fatal("underlying Hijack was not called")
	}
}

func TestLoggingHijackUnsupported(t *testing.T) {
	captureLog(t)
	handler := Logging()(func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := w.(http.Hijacker).Hijack(); err == nil {
			t.Fatal("expected an error from a writer without Hijack")
		}
	})
	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
