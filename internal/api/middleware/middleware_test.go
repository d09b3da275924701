package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// newBufferLogger создаёт JSON-логгер в буфер.
func newBufferLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

func TestRequestLogger_LevelsAndFields(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{"успех", http.StatusOK, "INFO"},
		{"ошибка клиента", http.StatusBadRequest, "WARN"},
		{"ошибка сервера", http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newBufferLogger()
			handler := chimw.RequestID(RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("hello"))
			})))

			req := httptest.NewRequest(http.MethodGet, "/api/peers", nil)
			req.Header.Set(chimw.RequestIDHeader, "req-42")
			handler.ServeHTTP(httptest.NewRecorder(), req)

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("некорректная запись лога: %v (%s)", err, buf.String())
			}
			if entry["level"] != tt.wantLevel {
				t.Errorf("level: ожидалось %s, получено %v", tt.wantLevel, entry["level"])
			}
			if entry["status"] != float64(tt.status) {
				t.Errorf("status: получено %v", entry["status"])
			}
			if entry["bytes"] != float64(5) {
				t.Errorf("bytes: ожидалось 5, получено %v", entry["bytes"])
			}
			if entry["request_id"] != "req-42" {
				t.Errorf("request_id: ожидалось req-42, получено %v", entry["request_id"])
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/register", "/api/register"},
		{"/api/status", "/api/status"},
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/ws", "/ws"},
		{"/", "other"},
		{"/socket/abc123", "other"},
		{"/api/peers/extra", "other"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, ожидалось %q", tt.path, got, tt.want)
		}
	}
}

func TestMetricsMiddleware_CapturesStatus(t *testing.T) {
	var captured int
	handler := MetricsMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		if mw, ok := w.(*metricsResponseWriter); ok {
			captured = mw.statusCode
		}
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusTeapot || captured != http.StatusTeapot {
		t.Errorf("статус: получено %d / %d", rec.Code, captured)
	}
}

// TestRequestLogger_HijackedSession проверяет запись о соединении,
// переданном апгрейдеру: статус 101, hijacked=true и request_id.
func TestRequestLogger_HijackedSession(t *testing.T) {
	logger, buf := newBufferLogger()
	done := make(chan struct{})

	inner := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		conn, rw, err := http.NewResponseController(w).Hijack()
		if err != nil {
			t.Errorf("Hijack: %v", err)
			return
		}
		defer conn.Close()
		_, _ = rw.WriteString("HTTP/1.1 101 Switching Protocols\r\nConnection: Upgrade\r\nUpgrade: websocket\r\n\r\n")
		_ = rw.Flush()
	}))
	srv := httptest.NewServer(chimw.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(done)
		inner.ServeHTTP(w, r)
	})))
	defer srv.Close()

	conn, err := net.Dial("tcp", srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	_, _ = conn.Write([]byte("GET /ws HTTP/1.1\r\nHost: test\r\nX-Request-Id: req-ws\r\n\r\n"))
	_, _ = io.ReadAll(conn)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("обработчик не завершился")
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("некорректная запись лога: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "Дуплексная сессия завершена" {
		t.Errorf("msg: получено %v", entry["msg"])
	}
	if entry["status"] != float64(http.StatusSwitchingProtocols) {
		t.Errorf("status: ожидалось 101, получено %v", entry["status"])
	}
	if entry["hijacked"] != true {
		t.Errorf("hijacked: ожидалось true, получено %v", entry["hijacked"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("level: ожидалось INFO, получено %v", entry["level"])
	}
	if entry["request_id"] != "req-ws" {
		t.Errorf("request_id: ожидалось req-ws, получено %v", entry["request_id"])
	}
}

func TestWrappers_HijackUnsupported(t *testing.T) {
	// httptest.ResponseRecorder не поддерживает Hijack — ошибка пробрасывается
	rec := newStatusRecorder(httptest.NewRecorder())
	if _, _, err := rec.Hijack(); err == nil {
		t.Error("ожидалась ошибка Hijack для ResponseRecorder")
	}
	if rec.status != http.StatusOK || rec.hijacked {
		t.Errorf("статус не должен меняться при ошибке Hijack, получено %d (hijacked=%v)", rec.status, rec.hijacked)
	}

	mrw := newMetricsResponseWriter(httptest.NewRecorder())
	if _, _, err := mrw.Hijack(); err == nil {
		t.Error("ожидалась ошибка Hijack для ResponseRecorder")
	}
}

func TestRecoverer(t *testing.T) {
	logger, buf := newBufferLogger()
	handler := Recoverer(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("секретная деталь")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/register", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("статус: ожидалось 500, получено %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "INTERNAL_ERROR") {
		t.Errorf("тело: ожидался INTERNAL_ERROR, получено %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "секретная деталь") {
		t.Error("значение паники не должно попадать в ответ")
	}
	if !strings.Contains(buf.String(), "секретная деталь") {
		t.Error("значение паники должно попасть в лог")
	}
}

func TestRecoverer_AbortHandler(t *testing.T) {
	logger, _ := newBufferLogger()
	handler := Recoverer(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler { //nolint:errorlint // сравнение значения паники
			t.Errorf("ожидался проброс ErrAbortHandler, получено %v", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
