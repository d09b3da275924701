// Пакет service — операции координатора пула поверх реестра и хаба.
// SnapshotCache — LRU-кэш сериализованного pool_status с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable, ключ — версия реестра.
package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/sharepool/internal/domain/model"
	"github.com/bigkaa/sharepool/internal/registry"
)

// Prometheus-метрики кэша снимков.
var (
	snapshotHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sp_snapshot_cache_hits_total",
		Help: "Общее количество попаданий в кэш снимков pool_status.",
	})
	snapshotMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sp_snapshot_cache_misses_total",
		Help: "Общее количество промахов кэша снимков pool_status.",
	})
)

// SnapshotCache — источник pool_status для протокола дуплексного канала.
// Снимок сериализуется один раз на версию реестра: при волне переподключений
// все клиенты получают одни и те же байты. Любая мутация реестра меняет
// версию, поэтому устаревший снимок не выдаётся.
type SnapshotCache struct {
	reg   *registry.Registry
	cache *expirable.LRU[uint64, []byte]
}

// NewSnapshotCache создаёт кэш снимков.
// maxSize — максимальное количество версий в кэше.
// ttl — время жизни записи после добавления.
func NewSnapshotCache(reg *registry.Registry, maxSize int, ttl time.Duration) *SnapshotCache {
	if maxSize <= 0 {
		maxSize = 16
	}
	return &SnapshotCache{
		reg:   reg,
		cache: expirable.NewLRU[uint64, []byte](maxSize, nil, ttl),
	}
}

// HasDevice проверяет, известен ли deviceID реестру.
func (c *SnapshotCache) HasDevice(deviceID string) bool {
	return c.reg.HasDevice(deviceID)
}

// PoolStatus возвращает сериализованное событие pool_status текущей версии.
func (c *SnapshotCache) PoolStatus() ([]byte, error) {
	if data, ok := c.cache.Get(c.reg.Version()); ok {
		snapshotHitsTotal.Inc()
		return data, nil
	}
	snapshotMissesTotal.Inc()

	snap := c.reg.Snapshot()
	data, err := json.Marshal(model.NewPoolStatus(snap.Devices, snap.Files))
	if err != nil {
		return nil, fmt.Errorf("сериализация снимка пула: %w", err)
	}
	c.cache.Add(snap.Version, data)
	return data, nil
}

// Len возвращает количество версий в кэше.
func (c *SnapshotCache) Len() int {
	return c.cache.Len()
}
