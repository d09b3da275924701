// handler.go — основной обработчик Coordinator API.
// Разбирает запросы, делегирует операции в сервисный слой и
// переводит доменные ошибки в коды ответа.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/bigkaa/sharepool/internal/domain/model"
	"github.com/bigkaa/sharepool/internal/registry"
	"github.com/bigkaa/sharepool/internal/service"
)

// maxBodySize — предельный размер тела запроса.
const maxBodySize = 1 << 20

// PoolService — операции пула устройств.
type PoolService interface {
	RegisterDevice(name, address string) (model.Device, error)
	ListPeers() []model.Device
	ShareFile(req registry.ShareRequest) (model.SharedFile, error)
	ListFiles() []model.SharedFile
	Disconnect(deviceID string) error
	Status() service.PoolStatus
}

// DuplexServer — точка входа дуплексного канала.
type DuplexServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	Draining() bool
}

// APIHandler — обработчик Coordinator API и upgrade дуплексного канала.
type APIHandler struct {
	pool   PoolService
	duplex DuplexServer
	health *HealthHandler
	logger *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	pool PoolService,
	duplex DuplexServer,
	health *HealthHandler,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		pool:   pool,
		duplex: duplex,
		health: health,
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// Health — liveness probe.
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.health.Health(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeBody разбирает JSON-тело запроса. Пустое тело равносильно {}.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// rawString возвращает строковое значение JSON-поля.
// Отсутствующее поле, null и значения других типов дают "".
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// remoteIP извлекает адрес клиента из RemoteAddr.
// Если включён RealIP, RemoteAddr уже содержит адрес из прокси-заголовков.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
