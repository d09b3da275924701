// wsconn.go — транспорт дуплексного канала поверх gorilla/websocket.
//
// Каждое соединение обслуживают две горутины:
//   - чтение (горутина HTTP-обработчика) — кадры в Session.HandleMessage
//   - запись — очередь send в сокет, ping по таймеру
//
// Зависший получатель обнаруживается транспортом: дедлайн записи кадра
// и отсутствие pong в течение 2×PingInterval закрывают соединение.
package hub

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsReadBufferSize  = 1024
	wsWriteBufferSize = 1024
)

// wsConn — соединение WebSocket с очередью отправки.
type wsConn struct {
	id     string
	ws     *websocket.Conn
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool

	// done закрывается после выхода горутины записи
	done chan struct{}
}

// newWSConn оборачивает установленное WebSocket-соединение.
func newWSConn(ws *websocket.Conn, cfg Config, logger *slog.Logger) *wsConn {
	id := uuid.NewString()
	return &wsConn{
		id:     id,
		ws:     ws,
		cfg:    cfg,
		logger: logger.With(slog.String("conn_id", id)),
		send:   make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
	}
}

// ID возвращает транспортный идентификатор соединения.
func (c *wsConn) ID() string {
	return c.id
}

// Send ставит сообщение в очередь без блокировки.
func (c *wsConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close закрывает очередь: горутина записи отправит оставшиеся сообщения,
// close-кадр и закроет сокет.
func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return nil
}

// writePump отправляет сообщения из очереди и ping по таймеру.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Close()
		_ = c.ws.Close()
		close(c.done)
	}()

	for {
		select {
		case payload, ok := <-c.send:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if !ok {
				_ = c.ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), deadline)
				return
			}
			if err := c.ws.SetWriteDeadline(deadline); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("Ошибка записи в соединение", slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("Ошибка отправки ping", slog.String("error", err.Error()))
				return
			}
		}
	}
}

// readPump читает кадры и передаёт их сессии до ошибки или закрытия.
func (c *wsConn) readPump(session *Session) {
	pongWait := 2 * c.cfg.PingInterval

	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn("Соединение закрыто с ошибкой", slog.String("error", err.Error()))
			}
			return
		}
		// Любой полученный кадр подтверждает, что клиент жив
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		session.HandleMessage(data)
	}
}

// ServeWS выполняет upgrade запроса и обслуживает соединение до закрытия.
// Блокирует вызывающую горутину на всё время жизни соединения.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsReadBufferSize,
		WriteBufferSize: wsWriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r, h.cfg.AllowedOrigins)
		},
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrader уже записал HTTP-ответ с ошибкой
		h.logger.Warn("Ошибка upgrade WebSocket",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	conn := newWSConn(ws, h.cfg, h.logger)
	session, err := h.Attach(conn)
	if err != nil {
		deadline := time.Now().Add(h.cfg.WriteTimeout)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "shutting down"), deadline)
		_ = ws.Close()
		return
	}

	h.logger.Info("Новое WebSocket-соединение",
		slog.String("conn_id", conn.ID()),
		slog.String("remote_addr", r.RemoteAddr),
	)

	go conn.writePump()
	conn.readPump(session)

	// Чтение завершено: дописываем очередь и ждём горутину записи
	_ = conn.Close()
	<-conn.done
	session.Close()

	h.logger.Info("WebSocket-соединение закрыто", slog.String("conn_id", conn.ID()))
}

// isOriginAllowed проверяет заголовок Origin по списку допустимых.
// Запросы без Origin (не из браузера) разрешены.
func isOriginAllowed(r *http.Request, allowed []string) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
