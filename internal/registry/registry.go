// Пакет registry — потокобезопасный in-memory реестр устройств и файлов пула.
//
// Реестр — источник истины для isOnline/lastSeen и метаданных файлов.
// Сам реестр ничего не рассылает: широковещательные события отправляет
// вызывающий (service.Coordinator), поэтому операции здесь — чистые
// изменения состояния.
//
// Порядок выдачи — порядок вставки. Наружу отдаются только копии.
// Не персистентный: при рестарте пул пуст.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/sharepool/internal/domain/model"
)

// MinNameLength — минимальная длина имени устройства после trim,
// в символах Unicode (рунах), а не в байтах или единицах UTF-16.
const MinNameLength = 3

// Ошибки реестра.
var (
	// ErrInvalidName — имя устройства короче MinNameLength.
	ErrInvalidName = errors.New("имя устройства должно быть не короче 3 символов")
	// ErrNotFound — устройство не найдено.
	ErrNotFound = errors.New("устройство не найдено")
	// ErrMissingFields — не переданы fileInfo, peerIds или senderId.
	ErrMissingFields = errors.New("не заданы обязательные поля")
)

// ShareRequest — входные данные анонса файла.
// nil FileInfo/PeerIDs или пустой SenderID означают отсутствие поля.
// Пустой, но не nil PeerIDs считается переданным.
type ShareRequest struct {
	FileInfo map[string]json.RawMessage
	PeerIDs  []string
	SenderID string
}

// Stats — счётчики реестра.
type Stats struct {
	DeviceCount int
	FileCount   int
}

// Snapshot — согласованный снимок реестра на момент версии Version.
type Snapshot struct {
	Devices []model.Device
	Files   []model.SharedFile
	Version uint64
}

// Option — опция конструктора Registry.
type Option func(*Registry)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator подменяет генератор идентификаторов (для тестов).
func WithIDGenerator(newID func() string) Option {
	return func(r *Registry) { r.newID = newID }
}

// WithPortPicker подменяет выбор информационного порта (для тестов).
func WithPortPicker(pick func() int) Option {
	return func(r *Registry) { r.pickPort = pick }
}

// Registry — реестр устройств и файлов.
// sync.RWMutex: конкурентное чтение, эксклюзивная запись.
// Под мьютексом нет ввода-вывода.
type Registry struct {
	mu sync.RWMutex

	devices     []model.Device // порядок регистрации
	deviceIndex map[string]int // device_id → позиция в devices

	files []model.SharedFile // порядок анонса

	// version увеличивается при каждой мутации, ключ кэша снимков
	version uint64

	now      func() time.Time
	newID    func() string
	pickPort func() int
}

// New создаёт пустой реестр.
func New(opts ...Option) *Registry {
	r := &Registry{
		deviceIndex: make(map[string]int),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
		pickPort:    randomPort,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterDevice регистрирует новое устройство.
// Повторная регистрация с тем же именем создаёт новую запись с новым ID.
// address — адрес клиента; пустая строка заменяется на model.UnknownAddress.
func (r *Registry) RegisterDevice(name, address string) (model.Device, error) {
	name = strings.TrimSpace(name)
	if len([]rune(name)) < MinNameLength {
		return model.Device{}, ErrInvalidName
	}
	if strings.TrimSpace(address) == "" {
		address = model.UnknownAddress
	}

	device := model.Device{
		ID:        r.newID(),
		Name:      name,
		IPAddress: address,
		Port:      r.pickPort(),
		IsOnline:  true,
		LastSeen:  r.now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.deviceIndex[device.ID]; exists {
		return model.Device{}, fmt.Errorf("повторный идентификатор устройства %s", device.ID)
	}
	r.deviceIndex[device.ID] = len(r.devices)
	r.devices = append(r.devices, device)
	r.version++

	return device, nil
}

// ListDevices возвращает копию списка устройств в порядке регистрации.
func (r *Registry) ListDevices() []model.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]model.Device, len(r.devices))
	copy(result, r.devices)
	return result
}

// GetDevice возвращает копию записи устройства.
func (r *Registry) GetDevice(deviceID string) (model.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.deviceIndex[deviceID]
	if !ok {
		return model.Device{}, false
	}
	return r.devices[i], true
}

// HasDevice проверяет, известен ли реестру deviceID (онлайн или нет).
func (r *Registry) HasDevice(deviceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.deviceIndex[deviceID]
	return ok
}

// MarkOffline помечает устройство отключённым и обновляет lastSeen.
// Идемпотентна: повторный вызов лишь обновляет lastSeen.
func (r *Registry) MarkOffline(deviceID string) (model.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.deviceIndex[deviceID]
	if !ok {
		return model.Device{}, fmt.Errorf("%w: %s", ErrNotFound, deviceID)
	}

	r.devices[i].IsOnline = false
	r.devices[i].LastSeen = r.now()
	r.version++

	return r.devices[i], nil
}

// ShareFile сохраняет анонс файла и возвращает созданную запись.
func (r *Registry) ShareFile(req ShareRequest) (model.SharedFile, error) {
	if req.FileInfo == nil || req.PeerIDs == nil || req.SenderID == "" {
		return model.SharedFile{}, ErrMissingFields
	}

	file := model.SharedFile{
		ID:        r.newID(),
		Timestamp: r.now(),
		Metadata:  req.FileInfo,
	}.Clone()

	r.mu.Lock()
	r.files = append(r.files, file)
	r.version++
	r.mu.Unlock()

	return file.Clone(), nil
}

// ListFiles возвращает копию списка файлов в порядке анонса.
func (r *Registry) ListFiles() []model.SharedFile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return cloneFiles(r.files)
}

// Stats возвращает количество устройств и файлов за O(1).
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		DeviceCount: len(r.devices),
		FileCount:   len(r.files),
	}
}

// Version возвращает текущую версию реестра.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Snapshot возвращает согласованный снимок устройств и файлов вместе с версией.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]model.Device, len(r.devices))
	copy(devices, r.devices)

	return Snapshot{
		Devices: devices,
		Files:   cloneFiles(r.files),
		Version: r.version,
	}
}

// cloneFiles копирует срез файлов вместе с метаданными.
func cloneFiles(files []model.SharedFile) []model.SharedFile {
	result := make([]model.SharedFile, len(files))
	for i, f := range files {
		result[i] = f.Clone()
	}
	return result
}

// randomPort выбирает порт равномерно из [model.PortMin, model.PortMax].
func randomPort() int {
	return model.PortMin + rand.IntN(model.PortMax-model.PortMin+1)
}
