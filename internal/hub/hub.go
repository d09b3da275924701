package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// PoolState — состояние пула, нужное протоколу: проверка адресата
// и готовый к отправке снимок pool_status.
type PoolState interface {
	// HasDevice проверяет, известен ли deviceID реестру.
	HasDevice(deviceID string) bool
	// PoolStatus возвращает сериализованное событие pool_status.
	PoolStatus() ([]byte, error)
}

// Config — параметры дуплексного транспорта.
type Config struct {
	// SendBuffer — длина очереди отправки одного соединения
	SendBuffer int
	// WriteTimeout — дедлайн записи одного кадра
	WriteTimeout time.Duration
	// PingInterval — период ping; ожидание pong — 2×PingInterval
	PingInterval time.Duration
	// MaxMessageSize — максимальный размер входящего кадра в байтах
	MaxMessageSize int64
	// AllowedOrigins — допустимые Origin ("*" — любой)
	AllowedOrigins []string
	// RateLimit — входящих сообщений в секунду на соединение (0 — без ограничения)
	RateLimit float64
	// RateBurst — допустимый всплеск входящих сообщений
	RateBurst int
}

// withDefaults подставляет значения по умолчанию для незаданных параметров.
func (c Config) withDefaults() Config {
	out := c
	if out.SendBuffer <= 0 {
		out.SendBuffer = 64
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 10 * time.Second
	}
	if out.PingInterval <= 0 {
		out.PingInterval = 30 * time.Second
	}
	if out.MaxMessageSize <= 0 {
		out.MaxMessageSize = 1 << 20
	}
	if len(out.AllowedOrigins) == 0 {
		out.AllowedOrigins = []string{"*"}
	}
	if out.RateLimit > 0 && out.RateBurst <= 0 {
		out.RateBurst = int(out.RateLimit)
		if out.RateBurst < 1 {
			out.RateBurst = 1
		}
	}
	return out
}

// Hub — набор открытых соединений, справочник привязок и рассылка событий.
type Hub struct {
	mu    sync.RWMutex
	conns map[Conn]struct{}

	dir    *Directory
	state  PoolState
	cfg    Config
	logger *slog.Logger

	draining atomic.Bool
	// active — соединения, чьи горутины чтения/записи ещё работают
	active sync.WaitGroup
}

// New создаёт хаб. state — источник снимков пула и проверки адресатов.
func New(state PoolState, cfg Config, logger *slog.Logger) *Hub {
	return &Hub{
		conns:  make(map[Conn]struct{}),
		dir:    NewDirectory(),
		state:  state,
		cfg:    cfg.withDefaults(),
		logger: logger.With(slog.String("component", "hub")),
	}
}

// Directory возвращает справочник привязок хаба.
func (h *Hub) Directory() *Directory {
	return h.dir
}

// Attach регистрирует открытое соединение и возвращает сессию протокола для него.
// После начала Shutdown возвращает ErrDraining. Каждая сессия должна быть
// закрыта через Session.Close, иначе Shutdown будет ждать её до таймаута.
func (h *Hub) Attach(conn Conn) (*Session, error) {
	h.mu.Lock()
	if h.draining.Load() {
		h.mu.Unlock()
		return nil, ErrDraining
	}
	h.conns[conn] = struct{}{}
	h.active.Add(1)
	n := len(h.conns)
	h.mu.Unlock()

	openConnections.Set(float64(n))
	h.logger.Debug("Соединение открыто",
		slog.String("conn_id", conn.ID()),
		slog.Int("connections", n),
	)

	return newSession(h, conn), nil
}

// detach удаляет соединение из набора открытых. Вызывается один раз на сессию.
func (h *Hub) detach(conn Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	n := len(h.conns)
	h.mu.Unlock()

	h.active.Done()
	openConnections.Set(float64(n))
}

// ConnectionCount возвращает количество открытых соединений.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// snapshot возвращает копию набора открытых соединений.
// Набор может меняться во время рассылки, копия остаётся валидной.
func (h *Hub) snapshot() []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]Conn, 0, len(h.conns))
	for c := range h.conns {
		result = append(result, c)
	}
	return result
}

// BroadcastAll доставляет событие всем открытым соединениям (best-effort).
// Ошибка одного получателя не мешает остальным и не возвращается вызывающему.
func (h *Hub) BroadcastAll(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Ошибка сериализации события", slog.String("error", err.Error()))
		return
	}

	broadcastsTotal.Inc()
	for _, conn := range h.snapshot() {
		h.deliver(conn, payload)
	}
}

// SendToDevice доставляет событие соединению, привязанному к deviceID.
// Отсутствие привязки или закрытое соединение — штатная ситуация, не ошибка.
func (h *Hub) SendToDevice(deviceID string, event any) {
	conn, ok := h.dir.Lookup(deviceID)
	if !ok {
		h.logger.Debug("Нет привязанного соединения",
			slog.String("device_id", deviceID),
		)
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Ошибка сериализации события", slog.String("error", err.Error()))
		return
	}
	h.deliver(conn, payload)
}

// deliver ставит payload в очередь соединения и логирует отказ.
// Закрытое соединение пропускается молча: привязка могла пережить
// закрытие на время между Close и UnbindIf.
func (h *Hub) deliver(conn Conn, payload []byte) {
	if err := conn.Send(payload); err != nil {
		if errors.Is(err, ErrConnClosed) {
			h.logger.Debug("Соединение закрыто, сообщение пропущено",
				slog.String("conn_id", conn.ID()),
			)
			return
		}
		sendFailuresTotal.WithLabelValues(sendFailureReason(err)).Inc()
		h.logger.Warn("Сообщение не доставлено",
			slog.String("conn_id", conn.ID()),
			slog.String("error", err.Error()),
		)
	}
}

// Draining возвращает true после начала остановки: новые соединения не принимаются.
func (h *Hub) Draining() bool {
	return h.draining.Load()
}

// Shutdown прекращает приём новых соединений, закрывает открытые после
// отправки уже поставленных в очередь сообщений и ждёт завершения их горутин.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.draining.Store(true)
	h.mu.Unlock()

	conns := h.snapshot()
	h.logger.Info("Закрытие дуплексных соединений", slog.Int("connections", len(conns)))
	for _, conn := range conns {
		_ = conn.Close()
	}

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
