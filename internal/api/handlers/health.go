// health.go — обработчики health endpoints и статистики пула.
// /health — liveness probe (процесс жив)
// /health/ready — readiness probe (хаб принимает соединения)
// /metrics — Prometheus метрики
// /api/status — счётчики пула и uptime
package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/sharepool/internal/config"
)

// DrainChecker — признак остановки хаба.
type DrainChecker interface {
	Draining() bool
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	drain       DrainChecker
	promHandler http.Handler
	now         func() time.Time
}

// NewHealthHandler создаёт обработчик health endpoints.
// drain может быть nil — readiness тогда всегда ok.
func NewHealthHandler(drain DrainChecker) *HealthHandler {
	return &HealthHandler{
		drain:       drain,
		promHandler: promhttp.Handler(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// healthResponse — ответ liveness probe.
type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// readyResponse — ответ readiness probe.
type readyResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Service   string    `json:"service"`
}

// statusResponse — ответ GET /api/status. uptime — секунды.
type statusResponse struct {
	ConnectedDevices int       `json:"connectedDevices"`
	SharedFiles      int       `json:"sharedFiles"`
	Uptime           float64   `json:"uptime"`
	Timestamp        time.Time `json:"timestamp"`
}

// Health — liveness probe. Всегда 200, пока процесс жив.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "OK",
		Timestamp: h.now(),
	})
}

// HealthReady — readiness probe. 503 после начала graceful shutdown.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := readyResponse{
		Status:    "ok",
		Timestamp: h.now(),
		Version:   config.Version,
		Service:   "sharepool-coordinator",
	}

	if h.drain != nil && h.drain.Draining() {
		resp.Status = "draining"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// Status — GET /api/status.
func (h *APIHandler) Status(w http.ResponseWriter, _ *http.Request) {
	st := h.pool.Status()
	writeJSON(w, http.StatusOK, statusResponse{
		ConnectedDevices: st.ConnectedDevices,
		SharedFiles:      st.SharedFiles,
		Uptime:           st.Uptime.Seconds(),
		Timestamp:        st.Timestamp,
	})
}
