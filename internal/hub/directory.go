package hub

import "sync"

// Directory — привязки deviceId → соединение.
// Новая привязка того же deviceId молча заменяет предыдущую (last-register-wins),
// заменённое соединение координатор не закрывает.
// Существование устройства в реестре не проверяется.
type Directory struct {
	mu       sync.RWMutex
	bindings map[string]Conn
}

// NewDirectory создаёт пустой справочник привязок.
func NewDirectory() *Directory {
	return &Directory{bindings: make(map[string]Conn)}
}

// Bind безусловно привязывает conn к deviceID.
func (d *Directory) Bind(deviceID string, conn Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.bindings[deviceID] = conn
	d.syncGauge()
}

// Unbind удаляет привязку deviceID, если она есть.
func (d *Directory) Unbind(deviceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.bindings, deviceID)
	d.syncGauge()
}

// UnbindIf удаляет привязку deviceID, только если она указывает на conn.
// Возвращает true, если привязка была удалена.
func (d *Directory) UnbindIf(deviceID string, conn Conn) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	current, ok := d.bindings[deviceID]
	if !ok || current != conn {
		return false
	}
	delete(d.bindings, deviceID)
	d.syncGauge()
	return true
}

// syncGauge публикует размер справочника. Вызывается под d.mu,
// иначе Set от разных мутаций может лечь в обратном порядке.
func (d *Directory) syncGauge() {
	boundDevices.Set(float64(len(d.bindings)))
}

// Lookup возвращает соединение, привязанное к deviceID.
func (d *Directory) Lookup(deviceID string) (Conn, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	conn, ok := d.bindings[deviceID]
	return conn, ok
}

// Len возвращает количество привязок.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.bindings)
}
