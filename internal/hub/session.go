// session.go — протокол сигнализации одного дуплексного соединения.
//
// Два состояния:
//   - Unbound — начальное, соединение не привязано к устройству
//   - Bound(deviceId) — после register_ws
//
// register_ws в любом состоянии: Bind, переход в Bound, ответ pool_status.
// message в любом состоянии: ретрансляция адресату, если он известен реестру.
// Некорректное сообщение отбрасывается, соединение остаётся открытым.
// Закрытие в Bound снимает привязку; реестр при этом не меняется.
package hub

import (
	"encoding/json"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/bigkaa/sharepool/internal/domain/model"
)

// SessionState — состояние протокола соединения.
type SessionState int

const (
	// StateUnbound — соединение ещё не привязано к deviceId
	StateUnbound SessionState = iota
	// StateBound — соединение привязано к deviceId
	StateBound
)

// String возвращает имя состояния для логов.
func (s SessionState) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	default:
		return "unknown"
	}
}

// Session — конечный автомат протокола одного соединения.
// HandleMessage вызывается из единственной горутины чтения соединения.
type Session struct {
	hub     *Hub
	conn    Conn
	limiter *rate.Limiter // nil — без ограничения
	logger  *slog.Logger

	mu       sync.Mutex
	state    SessionState
	deviceID string
	closed   bool
}

// newSession создаёт сессию в состоянии Unbound.
func newSession(h *Hub, conn Conn) *Session {
	s := &Session{
		hub:    h,
		conn:   conn,
		state:  StateUnbound,
		logger: h.logger.With(slog.String("conn_id", conn.ID())),
	}
	if h.cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(h.cfg.RateLimit), h.cfg.RateBurst)
	}
	return s
}

// State возвращает текущее состояние и deviceId (пустой в Unbound).
func (s *Session) State() (SessionState, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.deviceID
}

// HandleMessage обрабатывает одно входящее сообщение клиента.
func (s *Session) HandleMessage(data []byte) {
	if s.limiter != nil && !s.limiter.Allow() {
		inboundMessagesTotal.WithLabelValues("", resultRateLimited).Inc()
		s.logger.Warn("Превышен лимит входящих сообщений, сообщение отброшено")
		return
	}

	var msg model.InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.dropMalformed("", "некорректный JSON", err)
		return
	}

	switch msg.Type {
	case model.EventRegisterWS:
		s.handleRegister(msg)
	case model.EventMessage:
		s.handleRelay(msg)
	case "":
		s.dropMalformed("", "отсутствует поле type", nil)
	default:
		inboundMessagesTotal.WithLabelValues("other", resultUnknownType).Inc()
		s.logger.Debug("Неизвестный тип сообщения, сообщение проигнорировано",
			slog.String("type", msg.Type),
		)
	}
}

// handleRegister — register_ws: Bind, переход в Bound, ответ pool_status.
func (s *Session) handleRegister(msg model.InboundMessage) {
	if msg.DeviceID == "" {
		s.dropMalformed(msg.Type, "register_ws без deviceId", nil)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	previous := s.deviceID
	wasBound := s.state == StateBound
	s.state = StateBound
	s.deviceID = msg.DeviceID
	s.mu.Unlock()

	if wasBound && previous != msg.DeviceID {
		s.hub.dir.UnbindIf(previous, s.conn)
	}
	s.hub.dir.Bind(msg.DeviceID, s.conn)

	inboundMessagesTotal.WithLabelValues(msg.Type, resultOK).Inc()
	s.logger.Info("Соединение привязано к устройству",
		slog.String("device_id", msg.DeviceID),
	)

	payload, err := s.hub.state.PoolStatus()
	if err != nil {
		s.logger.Error("Ошибка построения снимка пула",
			slog.String("error", err.Error()),
		)
		return
	}
	s.hub.deliver(s.conn, payload)
}

// handleRelay — message: пересылка адресату, если он известен реестру.
func (s *Session) handleRelay(msg model.InboundMessage) {
	if msg.To == "" {
		s.dropMalformed(msg.Type, "message без поля to", nil)
		return
	}

	if !s.hub.state.HasDevice(msg.To) {
		inboundMessagesTotal.WithLabelValues(msg.Type, resultUnknownRecipient).Inc()
		s.logger.Debug("Адресат не найден в реестре, сообщение отброшено",
			slog.String("to", msg.To),
		)
		return
	}

	inboundMessagesTotal.WithLabelValues(msg.Type, resultOK).Inc()
	s.hub.SendToDevice(msg.To, model.MessageEvent{
		Type:      model.EventMessage,
		From:      msg.From,
		Message:   msg.Message,
		Timestamp: msg.Timestamp,
	})
}

// dropMalformed логирует и отбрасывает некорректное сообщение.
func (s *Session) dropMalformed(msgType, reason string, err error) {
	inboundMessagesTotal.WithLabelValues(msgType, resultMalformed).Inc()

	attrs := []any{slog.String("reason", reason)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	s.logger.Warn("Некорректное сообщение отброшено", attrs...)
}

// Close завершает сессию: снимает привязку (если она ещё указывает на это
// соединение) и удаляет соединение из хаба. Повторный вызов — no-op.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	state, deviceID := s.state, s.deviceID
	s.mu.Unlock()

	if state == StateBound {
		if s.hub.dir.UnbindIf(deviceID, s.conn) {
			s.logger.Info("Привязка соединения снята", slog.String("device_id", deviceID))
		}
	}
	s.hub.detach(s.conn)
}
