// Пакет config — загрузка и валидация конфигурации координатора
// из переменных окружения и необязательного YAML-файла.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации координатора.
type Config struct {
	// --- Сервер ---

	// Порт общего слушателя REST и WebSocket (по умолчанию 3000)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown (по умолчанию 10s)
	ShutdownTimeout time.Duration

	// --- HTTP API ---

	// Разрешённые CORS origins (по умолчанию *)
	CORSAllowedOrigins []string
	// Брать адрес устройства из X-Forwarded-For / X-Real-IP
	TrustProxyHeaders bool

	// --- WebSocket ---

	// Длина очереди исходящих событий соединения
	WSSendBuffer int
	// Дедлайн записи одного кадра
	WSWriteTimeout time.Duration
	// Период ping; ожидание pong — 2× период
	WSPingInterval time.Duration
	// Максимальный размер входящего кадра в байтах
	WSMaxMessageSize int64
	// Разрешённые Origin для upgrade (по умолчанию *)
	WSAllowedOrigins []string
	// Лимит входящих сообщений в секунду на соединение (0 — без лимита)
	WSRateLimit float64
	// Всплеск для лимита входящих сообщений
	WSRateBurst int

	// --- Кэш снимков pool_status ---

	// Максимальное количество версий в кэше
	SnapshotCacheSize int
	// TTL записи кэша
	SnapshotCacheTTL time.Duration

	// --- mDNS ---

	// Анонсировать координатор в локальной сети
	MDNSEnabled bool
	// Имя экземпляра сервиса
	MDNSInstance string
	// Тип сервиса
	MDNSService string
}

// fileConfig — структура необязательного YAML-файла (SP_CONFIG_FILE).
// Пустые значения не переопределяют умолчания.
type fileConfig struct {
	Port      int    `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	HTTP struct {
		ReadTimeout        string   `yaml:"read_timeout"`
		IdleTimeout        string   `yaml:"idle_timeout"`
		ShutdownTimeout    string   `yaml:"shutdown_timeout"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
		TrustProxyHeaders  *bool    `yaml:"trust_proxy_headers"`
	} `yaml:"http"`

	WS struct {
		SendBuffer     int      `yaml:"send_buffer"`
		WriteTimeout   string   `yaml:"write_timeout"`
		PingInterval   string   `yaml:"ping_interval"`
		MaxMessageSize int64    `yaml:"max_message_size"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		RateLimit      *float64 `yaml:"rate_limit"`
		RateBurst      int      `yaml:"rate_burst"`
	} `yaml:"ws"`

	SnapshotCache struct {
		Size int    `yaml:"size"`
		TTL  string `yaml:"ttl"`
	} `yaml:"snapshot_cache"`

	MDNS struct {
		Enabled  *bool  `yaml:"enabled"`
		Instance string `yaml:"instance"`
		Service  string `yaml:"service"`
	} `yaml:"mdns"`
}

// defaults возвращает конфигурацию по умолчанию.
func defaults() *Config {
	return &Config{
		Port:               3000,
		LogLevel:           slog.LevelInfo,
		LogFormat:          "json",
		HTTPReadTimeout:    30 * time.Second,
		HTTPIdleTimeout:    120 * time.Second,
		ShutdownTimeout:    10 * time.Second,
		CORSAllowedOrigins: []string{"*"},
		WSSendBuffer:       64,
		WSWriteTimeout:     10 * time.Second,
		WSPingInterval:     30 * time.Second,
		WSMaxMessageSize:   1 << 20,
		WSAllowedOrigins:   []string{"*"},
		WSRateLimit:        50,
		WSRateBurst:        100,
		SnapshotCacheSize:  16,
		SnapshotCacheTTL:   30 * time.Second,
		MDNSInstance:       "sharepool-coordinator",
		MDNSService:        "_sharepool._tcp",
	}
}

// Load загружает конфигурацию: умолчания → YAML-файл (если задан
// SP_CONFIG_FILE) → переменные окружения. Возвращает ошибку при
// некорректных значениях.
func Load() (*Config, error) {
	cfg := defaults()
	var err error

	// SP_CONFIG_FILE — необязательный YAML-файл
	if path := os.Getenv("SP_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("SP_CONFIG_FILE: %w", err)
		}
	}

	// --- Сервер ---

	// SP_PORT — порт слушателя; PORT — запасной вариант для PaaS-окружений
	portKey := "SP_PORT"
	if os.Getenv(portKey) == "" && os.Getenv("PORT") != "" {
		portKey = "PORT"
	}
	cfg.Port, err = getEnvInt(portKey, cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", portKey, err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%s: порт %d вне диапазона 1-65535", portKey, cfg.Port)
	}

	// SP_LOG_LEVEL — уровень логирования (по умолчанию info)
	if val := os.Getenv("SP_LOG_LEVEL"); val != "" {
		cfg.LogLevel, err = parseLogLevel(val)
		if err != nil {
			return nil, fmt.Errorf("SP_LOG_LEVEL: %w", err)
		}
	}

	// SP_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("SP_LOG_FORMAT", cfg.LogFormat)
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SP_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvPositiveDuration("SP_HTTP_READ_TIMEOUT", cfg.HTTPReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("SP_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvPositiveDuration("SP_HTTP_IDLE_TIMEOUT", cfg.HTTPIdleTimeout)
	if err != nil {
		return nil, fmt.Errorf("SP_HTTP_IDLE_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout, err = getEnvPositiveDuration("SP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return nil, fmt.Errorf("SP_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- HTTP API ---

	cfg.CORSAllowedOrigins = getEnvList("SP_CORS_ALLOWED_ORIGINS", cfg.CORSAllowedOrigins)
	cfg.TrustProxyHeaders, err = getEnvBool("SP_TRUST_PROXY_HEADERS", cfg.TrustProxyHeaders)
	if err != nil {
		return nil, fmt.Errorf("SP_TRUST_PROXY_HEADERS: %w", err)
	}

	// --- WebSocket ---

	cfg.WSSendBuffer, err = getEnvInt("SP_WS_SEND_BUFFER", cfg.WSSendBuffer)
	if err != nil {
		return nil, fmt.Errorf("SP_WS_SEND_BUFFER: %w", err)
	}
	if cfg.WSSendBuffer < 1 {
		return nil, fmt.Errorf("SP_WS_SEND_BUFFER: значение должно быть > 0")
	}
	cfg.WSWriteTimeout, err = getEnvPositiveDuration("SP_WS_WRITE_TIMEOUT", cfg.WSWriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("SP_WS_WRITE_TIMEOUT: %w", err)
	}
	cfg.WSPingInterval, err = getEnvPositiveDuration("SP_WS_PING_INTERVAL", cfg.WSPingInterval)
	if err != nil {
		return nil, fmt.Errorf("SP_WS_PING_INTERVAL: %w", err)
	}
	cfg.WSMaxMessageSize, err = getEnvInt64("SP_WS_MAX_MESSAGE_SIZE", cfg.WSMaxMessageSize)
	if err != nil {
		return nil, fmt.Errorf("SP_WS_MAX_MESSAGE_SIZE: %w", err)
	}
	if cfg.WSMaxMessageSize < 1 {
		return nil, fmt.Errorf("SP_WS_MAX_MESSAGE_SIZE: значение должно быть > 0")
	}
	cfg.WSAllowedOrigins = getEnvList("SP_WS_ALLOWED_ORIGINS", cfg.WSAllowedOrigins)
	cfg.WSRateLimit, err = getEnvFloat("SP_WS_RATE_LIMIT", cfg.WSRateLimit)
	if err != nil {
		return nil, fmt.Errorf("SP_WS_RATE_LIMIT: %w", err)
	}
	if cfg.WSRateLimit < 0 {
		return nil, fmt.Errorf("SP_WS_RATE_LIMIT: значение должно быть >= 0")
	}
	cfg.WSRateBurst, err = getEnvInt("SP_WS_RATE_BURST", cfg.WSRateBurst)
	if err != nil {
		return nil, fmt.Errorf("SP_WS_RATE_BURST: %w", err)
	}

	// --- Кэш снимков ---

	cfg.SnapshotCacheSize, err = getEnvInt("SP_SNAPSHOT_CACHE_SIZE", cfg.SnapshotCacheSize)
	if err != nil {
		return nil, fmt.Errorf("SP_SNAPSHOT_CACHE_SIZE: %w", err)
	}
	if cfg.SnapshotCacheSize < 1 {
		return nil, fmt.Errorf("SP_SNAPSHOT_CACHE_SIZE: значение должно быть > 0")
	}
	cfg.SnapshotCacheTTL, err = getEnvPositiveDuration("SP_SNAPSHOT_CACHE_TTL", cfg.SnapshotCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("SP_SNAPSHOT_CACHE_TTL: %w", err)
	}

	// --- mDNS ---

	cfg.MDNSEnabled, err = getEnvBool("SP_MDNS_ENABLED", cfg.MDNSEnabled)
	if err != nil {
		return nil, fmt.Errorf("SP_MDNS_ENABLED: %w", err)
	}
	cfg.MDNSInstance = getEnvDefault("SP_MDNS_INSTANCE", cfg.MDNSInstance)
	cfg.MDNSService = getEnvDefault("SP_MDNS_SERVICE", cfg.MDNSService)

	return cfg, nil
}

// applyFile накладывает значения YAML-файла на текущую конфигурацию.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("чтение файла: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("разбор YAML: %w", err)
	}

	if fc.Port != 0 {
		c.Port = fc.Port
	}
	if fc.LogLevel != "" {
		if c.LogLevel, err = parseLogLevel(fc.LogLevel); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	if fc.LogFormat != "" {
		c.LogFormat = fc.LogFormat
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"http.read_timeout", fc.HTTP.ReadTimeout, &c.HTTPReadTimeout},
		{"http.idle_timeout", fc.HTTP.IdleTimeout, &c.HTTPIdleTimeout},
		{"http.shutdown_timeout", fc.HTTP.ShutdownTimeout, &c.ShutdownTimeout},
		{"ws.write_timeout", fc.WS.WriteTimeout, &c.WSWriteTimeout},
		{"ws.ping_interval", fc.WS.PingInterval, &c.WSPingInterval},
		{"snapshot_cache.ttl", fc.SnapshotCache.TTL, &c.SnapshotCacheTTL},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := parsePositiveDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = v
	}

	if len(fc.HTTP.CORSAllowedOrigins) > 0 {
		c.CORSAllowedOrigins = fc.HTTP.CORSAllowedOrigins
	}
	if fc.HTTP.TrustProxyHeaders != nil {
		c.TrustProxyHeaders = *fc.HTTP.TrustProxyHeaders
	}
	if fc.WS.SendBuffer != 0 {
		c.WSSendBuffer = fc.WS.SendBuffer
	}
	if fc.WS.MaxMessageSize != 0 {
		c.WSMaxMessageSize = fc.WS.MaxMessageSize
	}
	if len(fc.WS.AllowedOrigins) > 0 {
		c.WSAllowedOrigins = fc.WS.AllowedOrigins
	}
	if fc.WS.RateLimit != nil {
		c.WSRateLimit = *fc.WS.RateLimit
	}
	if fc.WS.RateBurst != 0 {
		c.WSRateBurst = fc.WS.RateBurst
	}
	if fc.SnapshotCache.Size != 0 {
		c.SnapshotCacheSize = fc.SnapshotCache.Size
	}
	if fc.MDNS.Enabled != nil {
		c.MDNSEnabled = *fc.MDNS.Enabled
	}
	if fc.MDNS.Instance != "" {
		c.MDNSInstance = fc.MDNS.Instance
	}
	if fc.MDNS.Service != "" {
		c.MDNSService = fc.MDNS.Service
	}
	return nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 из переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvFloat возвращает float64 из переменной окружения или значение по умолчанию.
func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное число: %q", val)
	}
	return f, nil
}

// getEnvPositiveDuration возвращает time.Duration (> 0) из переменной окружения
// или значение по умолчанию.
func getEnvPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	return parsePositiveDuration(val)
}

// parsePositiveDuration разбирает длительность и проверяет, что она > 0.
func parsePositiveDuration(val string) (time.Duration, error) {
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	if d <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// getEnvList возвращает список через запятую или значение по умолчанию.
// Пустые элементы отбрасываются.
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
