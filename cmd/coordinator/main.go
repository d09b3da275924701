// main.go — точка входа координатора пула устройств.
// Реестр и привязки соединений живут в памяти процесса.
package main

import (
	"context"
	"log"
	"log/slog"

	"github.com/bigkaa/sharepool/internal/api/handlers"
	"github.com/bigkaa/sharepool/internal/config"
	"github.com/bigkaa/sharepool/internal/discovery"
	"github.com/bigkaa/sharepool/internal/hub"
	"github.com/bigkaa/sharepool/internal/registry"
	"github.com/bigkaa/sharepool/internal/server"
	"github.com/bigkaa/sharepool/internal/service"
)

func main() {
	// 1. Загрузка конфигурации (YAML-файл, затем переменные окружения)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Координатор запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// 3. Реестр устройств и файлов
	reg := registry.New()

	// 4. Кэш снимков pool_status
	snapshots := service.NewSnapshotCache(reg, cfg.SnapshotCacheSize, cfg.SnapshotCacheTTL)

	// 5. Хаб дуплексных соединений
	wsHub := hub.New(snapshots, hub.Config{
		SendBuffer:     cfg.WSSendBuffer,
		WriteTimeout:   cfg.WSWriteTimeout,
		PingInterval:   cfg.WSPingInterval,
		MaxMessageSize: cfg.WSMaxMessageSize,
		AllowedOrigins: cfg.WSAllowedOrigins,
		RateLimit:      cfg.WSRateLimit,
		RateBurst:      cfg.WSRateBurst,
	}, logger)

	// 6. Координатор: мутации реестра + широковещательные события
	coordinator := service.NewCoordinator(reg, wsHub, logger)

	// 7. HTTP-обработчики
	healthHandler := handlers.NewHealthHandler(wsHub)
	apiHandler := handlers.NewAPIHandler(coordinator, wsHub, healthHandler, logger)

	// 8. HTTP-сервер
	srv := server.New(cfg, logger, apiHandler, wsHub)

	// 9. mDNS-анонс (опционально)
	if cfg.MDNSEnabled {
		advertiser, err := discovery.Start(discovery.Config{
			Instance: cfg.MDNSInstance,
			Service:  cfg.MDNSService,
			Port:     cfg.Port,
			Version:  config.Version,
		}, logger)
		if err != nil {
			// Координатор доступен по адресу и без анонса
			logger.Warn("mDNS-анонс не запущен", slog.String("error", err.Error()))
		} else {
			srv.OnShutdown(advertiser.Stop)
		}
	}

	// 10. Запуск сервера (блокирующий вызов с graceful shutdown)
	if err := srv.Run(context.Background()); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		log.Fatalf("Сервер завершился с ошибкой: %v", err)
	}

	logger.Info("Координатор остановлен")
}
