package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger_LogsRequests(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true}`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if logs.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", logs.Len())
	}

	entry := logs.All()[0]
	if entry.Message != "HTTP request" {
		t.Errorf("expected message 'HTTP request', got '%s'", entry.Message)
	}
	fields := entry.ContextMap()
	if fields["path"] != "/api/leaderboard" {
		t.Errorf("expected path '/api/leaderboard', got %v", fields["path"])
	}
	if fields["bytes"] != int64(len(`{"success":true}`)) {
		t.Errorf("expected bytes %d, got %v", len(`{"success":true}`), fields["bytes"])
	}
	if fields["request_id"] == "" || fields["request_id"] != rec.Header().Get(RequestIDHeader) {
		t.Errorf("expected logged request id to match header, got %v / %q", fields["request_id"], rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestLogger_ReusesCallerRequestID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	handler := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "sweep-42")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "sweep-42" {
		t.Errorf("expected request id 'sweep-42', got %q", got)
	}
	if logs.All()[0].ContextMap()["request_id"] != "sweep-42" {
		t.Errorf("expected logged request id 'sweep-42'")
	}
}

func TestRequestLogger_NilLogger_PassesThrough(t *testing.T) {
	called := false
	handler := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !called {
		t.Error("expected handler to be called")
	}
	if rec.Header().Get(RequestIDHeader) != "" {
		t.Error("expected no request id without a logger")
	}
}

func TestRequestLogger_CapturesStatusCode(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/documents/9", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	entry := logs.All()[0]
	if entry.Level != zapcore.DebugLevel {
		t.Errorf("expected debug level for 404, got %s", entry.Level)
	}
	if status := entry.ContextMap()["status"]; status != int64(http.StatusNotFound) {
		t.Errorf("expected status %d, got %v", http.StatusNotFound, status)
	}
}

func TestRequestLogger_ServerErrorsAreWarnings(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	handler := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/penalties/sweep", nil))

	entry := logs.All()[0]
	if entry.Message != "HTTP request failed" || entry.Level != zapcore.WarnLevel {
		t.Errorf("expected warn 'HTTP request failed', got %s %q", entry.Level, entry.Message)
	}
}

func TestRecoverer(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	handler := Recoverer(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rules", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
	entries := logs.FilterMessage("Handler panic").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 panic log, got %d", len(entries))
	}
	if entries[0].ContextMap()["panic"] != "boom" {
		t.Errorf("expected panic value 'boom', got %v", entries[0].ContextMap()["panic"])
	}
}

func TestResponseWriter_Flush(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.Flush()

	if !rec.Flushed {
		t.Error("expected flush to reach the underlying writer")
	}
}
