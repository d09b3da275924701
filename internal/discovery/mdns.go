// Пакет discovery — анонс координатора в локальной сети через mDNS.
// Клиенты находят адрес координатора по типу сервиса без ручной настройки.
package discovery

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/grandcat/zeroconf"
)

const (
	// DefaultService — тип сервиса без доменного суффикса.
	DefaultService = "_sharepool._tcp"
	// DefaultDomain — домен mDNS.
	DefaultDomain = "local."
	// DefaultWSPath — путь дуплексного канала в TXT-записи.
	DefaultWSPath = "/ws"
)

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error)

// Config — параметры mDNS-анонса.
type Config struct {
	Instance string
	Service  string
	Domain   string
	Port     int
	Version  string
	WSPath   string

	registerFn registerFunc
}

func (c Config) withDefaults() Config {
	out := c
	if out.Service == "" {
		out.Service = DefaultService
	}
	if out.Domain == "" {
		out.Domain = DefaultDomain
	}
	if out.WSPath == "" {
		out.WSPath = DefaultWSPath
	}
	if out.registerFn == nil {
		out.registerFn = zeroconf.Register
	}
	return out
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Instance) == "" {
		return errors.New("не задано имя экземпляра mDNS")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("некорректный порт mDNS: %d", c.Port)
	}
	return nil
}

// Advertiser — активный mDNS-анонс.
type Advertiser struct {
	server *zeroconf.Server
	logger *slog.Logger
}

// Start регистрирует сервис координатора в mDNS.
// TXT-записи: version, ws_path.
func Start(config Config, logger *slog.Logger) (*Advertiser, error) {
	cfg := config.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	txt := []string{
		"version=" + cfg.Version,
		"ws_path=" + cfg.WSPath,
	}

	server, err := cfg.registerFn(cfg.Instance, cfg.Service, cfg.Domain, cfg.Port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("регистрация mDNS-сервиса: %w", err)
	}

	logger = logger.With(slog.String("component", "mdns"))
	logger.Info("mDNS-анонс запущен",
		slog.String("instance", cfg.Instance),
		slog.String("service", cfg.Service),
		slog.Int("port", cfg.Port),
	)
	return &Advertiser{server: server, logger: logger}, nil
}

// Stop снимает анонс. Безопасен для nil.
func (a *Advertiser) Stop() {
	if a == nil {
		return
	}
	if a.server != nil {
		a.server.Shutdown()
	}
	a.logger.Info("mDNS-анонс остановлен")
}
