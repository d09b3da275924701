// logging.go — журнал запросов координатора.
// Обычный запрос пишется одной записью после ответа. Upgrade на дуплексный
// канал держит обработчик до закрытия соединения, поэтому его запись
// появляется в конце сессии: статус 101, duration — время жизни сессии.
package middleware

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// statusRecorder запоминает код ответа, число записанных байт
// и факт передачи соединения апгрейдеру.
type statusRecorder struct {
	http.ResponseWriter
	status   int
	written  int64
	hijacked bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.written += int64(n)
	return n, err
}

// Hijack отдаёт TCP-соединение апгрейдеру. Ответ 101 апгрейдер пишет
// напрямую в сокет, мимо WriteHeader, поэтому статус выставляется здесь.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, buf, err := http.NewResponseController(sr.ResponseWriter).Hijack()
	if err != nil {
		return nil, nil, err
	}
	sr.status = http.StatusSwitchingProtocols
	sr.hijacked = true
	return conn, buf, nil
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// level выбирает уровень записи по коду ответа.
func (sr *statusRecorder) level() slog.Level {
	switch {
	case sr.status >= http.StatusInternalServerError:
		return slog.LevelError
	case sr.status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// RequestLogger пишет одну запись на запрос с полями method, path, status,
// duration, bytes, remote_addr и request_id из chi RequestID.
// Завершённая дуплексная сессия пишется отдельным сообщением с hijacked=true.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r)

			msg := "HTTP запрос"
			if rec.hijacked {
				msg = "Дуплексная сессия завершена"
			}
			logger.LogAttrs(r.Context(), rec.level(), msg,
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(started)),
				slog.Int64("bytes", rec.written),
				slog.Bool("hijacked", rec.hijacked),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("request_id", chimw.GetReqID(r.Context())),
			)
		})
	}
}
