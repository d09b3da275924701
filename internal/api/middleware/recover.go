// recover.go — перехват паник обработчиков.
// Паника превращается в 500 INTERNAL_ERROR; значение и стек пишутся только в лог.
package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/bigkaa/sharepool/internal/api/errors"
)

// Recoverer возвращает middleware восстановления после паники.
// http.ErrAbortHandler пробрасывается дальше: это штатный способ
// оборвать ответ, net/http обрабатывает его сам.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler { //nolint:errorlint // сравнение значения паники
					panic(rec)
				}

				logger.LogAttrs(r.Context(), slog.LevelError, "Паника в обработчике HTTP",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("request_id", chimw.GetReqID(r.Context())),
					slog.String("stack", string(debug.Stack())),
				)
				apierrors.InternalError(w)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
