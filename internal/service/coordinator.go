// coordinator.go — операции координатора: регистрация, анонс файлов,
// отключение, статистика. Каждая мутация реестра сопровождается
// широковещательным событием через Broadcaster.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/sharepool/internal/domain/model"
	"github.com/bigkaa/sharepool/internal/registry"
)

// Prometheus-метрики пула.
var (
	devicesRegisteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sp_devices_registered_total",
		Help: "Общее количество регистраций устройств.",
	})
	devicesDisconnectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sp_devices_disconnected_total",
		Help: "Общее количество отключений известных устройств.",
	})
	filesSharedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sp_files_shared_total",
		Help: "Общее количество анонсированных файлов.",
	})
	poolDevices = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sp_pool_devices",
		Help: "Количество устройств в реестре (включая offline).",
	})
	poolFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sp_pool_files",
		Help: "Количество анонсированных файлов в реестре.",
	})
)

// Broadcaster — рассылка события всем открытым соединениям.
type Broadcaster interface {
	BroadcastAll(event any)
}

// PoolStatus — ответ операции статуса пула.
type PoolStatus struct {
	// ConnectedDevices — все зарегистрированные устройства, включая offline
	ConnectedDevices int
	// SharedFiles — количество анонсированных файлов
	SharedFiles int
	// Uptime — время работы процесса
	Uptime time.Duration
	// Timestamp — момент формирования ответа
	Timestamp time.Time
}

// Coordinator — операции пула устройств.
type Coordinator struct {
	reg         *registry.Registry
	broadcaster Broadcaster
	startedAt   time.Time
	now         func() time.Time
	logger      *slog.Logger
}

// NewCoordinator создаёт координатор. Время старта фиксируется для uptime.
func NewCoordinator(reg *registry.Registry, broadcaster Broadcaster, logger *slog.Logger) *Coordinator {
	now := func() time.Time { return time.Now().UTC() }
	return &Coordinator{
		reg:         reg,
		broadcaster: broadcaster,
		startedAt:   now(),
		now:         now,
		logger:      logger.With(slog.String("component", "coordinator")),
	}
}

// RegisterDevice регистрирует устройство и анонсирует его как peer_joined.
func (c *Coordinator) RegisterDevice(name, address string) (model.Device, error) {
	device, err := c.reg.RegisterDevice(name, address)
	if err != nil {
		return model.Device{}, err
	}

	devicesRegisteredTotal.Inc()
	c.updatePoolGauges()

	c.broadcaster.BroadcastAll(model.PeerJoinedEvent{
		Type: model.EventPeerJoined,
		Peer: device,
	})

	c.logger.Info("Устройство зарегистрировано",
		slog.String("device_id", device.ID),
		slog.String("name", device.Name),
		slog.String("ip_address", device.IPAddress),
	)
	return device, nil
}

// ListPeers возвращает все зарегистрированные устройства.
func (c *Coordinator) ListPeers() []model.Device {
	return c.reg.ListDevices()
}

// ShareFile сохраняет анонс файла и рассылает file_shared.
func (c *Coordinator) ShareFile(req registry.ShareRequest) (model.SharedFile, error) {
	file, err := c.reg.ShareFile(req)
	if err != nil {
		return model.SharedFile{}, err
	}

	filesSharedTotal.Inc()
	c.updatePoolGauges()

	c.broadcaster.BroadcastAll(model.FileSharedEvent{
		Type: model.EventFileShared,
		File: file,
	})

	c.logger.Info("Файл анонсирован",
		slog.String("file_id", file.ID),
		slog.String("name", file.Name()),
		slog.String("sender_id", req.SenderID),
		slog.Int("peers", len(req.PeerIDs)),
	)
	return file, nil
}

// ListFiles возвращает все анонсированные файлы.
func (c *Coordinator) ListFiles() []model.SharedFile {
	return c.reg.ListFiles()
}

// Disconnect помечает устройство offline и рассылает peer_left.
// Неизвестный deviceID — молчаливый no-op. Привязка дуплексного
// соединения при этом не снимается.
func (c *Coordinator) Disconnect(deviceID string) error {
	if deviceID == "" {
		return ErrMissingDeviceID
	}

	device, err := c.reg.MarkOffline(deviceID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.logger.Debug("Отключение неизвестного устройства проигнорировано",
				slog.String("device_id", deviceID),
			)
			return nil
		}
		return fmt.Errorf("отключение устройства: %w", err)
	}

	devicesDisconnectedTotal.Inc()
	c.broadcaster.BroadcastAll(model.PeerLeftEvent{
		Type:   model.EventPeerLeft,
		PeerID: device.ID,
		Peer:   device,
	})

	c.logger.Info("Устройство отключено",
		slog.String("device_id", device.ID),
		slog.String("name", device.Name),
	)
	return nil
}

// Status возвращает счётчики пула и uptime.
func (c *Coordinator) Status() PoolStatus {
	stats := c.reg.Stats()
	now := c.now()
	return PoolStatus{
		ConnectedDevices: stats.DeviceCount,
		SharedFiles:      stats.FileCount,
		Uptime:           now.Sub(c.startedAt),
		Timestamp:        now,
	}
}

// updatePoolGauges обновляет gauge-метрики размера реестра.
func (c *Coordinator) updatePoolGauges() {
	stats := c.reg.Stats()
	poolDevices.Set(float64(stats.DeviceCount))
	poolFiles.Set(float64(stats.FileCount))
}
