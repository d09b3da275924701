// Пакет model — доменные модели координатора пула устройств.
// Device — зарегистрированный участник пула, SharedFile — анонс файла,
// событийные структуры дуплексного канала — в event.go.
package model

import "time"

// UnknownAddress — адрес устройства, если его не удалось определить по запросу.
const UnknownAddress = "unknown"

// Диапазон информационного порта устройства [PortMin, PortMax].
// Порт не связан ни с одним реальным listener'ом.
const (
	PortMin = 8000
	PortMax = 17999
)

// Device — зарегистрированное устройство.
// Каждая регистрация создаёт новую запись с новым ID, записи не удаляются.
type Device struct {
	// ID — UUID, выдаётся сервером при регистрации
	ID string `json:"id"`
	// Name — имя устройства (trim, не короче 3 символов)
	Name string `json:"name"`
	// IPAddress — адрес, с которого пришёл запрос регистрации (best-effort)
	IPAddress string `json:"ipAddress"`
	// Port — случайный информационный порт из [PortMin, PortMax]
	Port int `json:"port"`
	// IsOnline — false после явного disconnect
	IsOnline bool `json:"isOnline"`
	// LastSeen — время регистрации или последнего disconnect
	LastSeen time.Time `json:"lastSeen"`
}
