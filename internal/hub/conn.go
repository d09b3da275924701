// Пакет hub — дуплексные соединения устройств с координатором.
//
// Состав:
//   - Directory — привязка deviceId → живое соединение (не более одной на устройство)
//   - Hub — набор открытых соединений и широковещательная рассылка
//   - Session — конечный автомат протокола одного соединения (Unbound → Bound)
//   - wsConn — транспорт поверх gorilla/websocket с очередью отправки
//
// Ни одна блокировка не удерживается во время сетевой записи:
// рассылка кладёт готовые байты в очередь соединения без ожидания.
package hub

import "errors"

// Ошибки отправки в соединение.
var (
	// ErrConnClosed — соединение закрыто, отправка невозможна.
	ErrConnClosed = errors.New("соединение закрыто")
	// ErrSendBufferFull — очередь отправки соединения переполнена.
	ErrSendBufferFull = errors.New("очередь отправки переполнена")
	// ErrDraining — хаб останавливается и не принимает новые соединения.
	ErrDraining = errors.New("координатор останавливается")
)

// Conn — живое дуплексное соединение с точки зрения хаба.
type Conn interface {
	// ID — транспортный идентификатор соединения (для логов).
	ID() string
	// Send ставит готовое сообщение в очередь отправки без блокировки.
	Send(payload []byte) error
	// Close инициирует закрытие после отправки уже поставленных сообщений.
	Close() error
}
