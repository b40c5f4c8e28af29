// Пакет config — загрузка и валидация конфигурации Resource Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Resource Module.
type Config struct {
	// Порт HTTP-сервера
	Port int

	// Путь к корневой директории хранилищ Store-ресурсов
	// (storage/<resource_id>/...)
	StorageDir string
	// Путь к директории постоянных одиночных файлов (upload, ftp)
	UploadDir string
	// Путь к директории staged-файлов (приняты, но не финализированы)
	StagingDir string
	// Максимальный размер принимаемого файла в байтах
	MaxUploadSize int64
	// TTL staging-записей в Redis
	StagingTTL time.Duration

	// Публичный базовый URL приложения (для ссылок в манифестах)
	Domain string

	// Параметры PostgreSQL
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// Параметры Redis (staging store)
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string

	// Базовый URL CKAN
	CkanURL string
	// Системный API-ключ CKAN (для package_show и user_show)
	CkanAPIKey string
	// Таймаут HTTP-запросов к CKAN
	CkanTimeout time.Duration

	// URL JWKS endpoint (пустая строка — API без аутентификации)
	JWKSUrl string
	// Путь к CA-сертификату для JWKS endpoint (опционально)
	JWKSCACert string
	// Пропускать проверку TLS-сертификатов (только dev-среда)
	TLSSkipVerify bool
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// Размер LRU-кэша справочника форматов
	FormatCacheSize int
	// TTL записей кэша форматов
	FormatCacheTTL time.Duration

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics (RM_DEPHEALTH_GROUP)
	DephealthGroup string
	// Имя владельца пода для метки name в topologymetrics (DEPHEALTH_NAME)
	DephealthName string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// RM_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("RM_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("RM_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("RM_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// RM_STORAGE_DIR — обязательный
	cfg.StorageDir, err = getEnvRequired("RM_STORAGE_DIR")
	if err != nil {
		return nil, err
	}

	// RM_UPLOAD_DIR — обязательный
	cfg.UploadDir, err = getEnvRequired("RM_UPLOAD_DIR")
	if err != nil {
		return nil, err
	}

	// RM_STAGING_DIR — обязательный
	cfg.StagingDir, err = getEnvRequired("RM_STAGING_DIR")
	if err != nil {
		return nil, err
	}

	// RM_MAX_UPLOAD_SIZE — максимальный размер файла (по умолчанию 100 MiB)
	cfg.MaxUploadSize, err = getEnvInt64("RM_MAX_UPLOAD_SIZE", 104857600)
	if err != nil {
		return nil, fmt.Errorf("RM_MAX_UPLOAD_SIZE: %w", err)
	}
	if cfg.MaxUploadSize <= 0 {
		return nil, fmt.Errorf("RM_MAX_UPLOAD_SIZE: значение должно быть положительным")
	}

	// RM_STAGING_TTL — TTL staging-записей (по умолчанию 1h)
	cfg.StagingTTL, err = getEnvDuration("RM_STAGING_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("RM_STAGING_TTL: %w", err)
	}

	// RM_DOMAIN — обязательный публичный базовый URL
	cfg.Domain, err = getEnvRequired("RM_DOMAIN")
	if err != nil {
		return nil, err
	}
	cfg.Domain = strings.TrimRight(cfg.Domain, "/")

	// PostgreSQL
	cfg.DBHost, err = getEnvRequired("RM_DB_HOST")
	if err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("RM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("RM_DB_PORT: %w", err)
	}
	cfg.DBName, err = getEnvRequired("RM_DB_NAME")
	if err != nil {
		return nil, err
	}
	cfg.DBUser, err = getEnvRequired("RM_DB_USER")
	if err != nil {
		return nil, err
	}
	cfg.DBPassword, err = getEnvRequired("RM_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("RM_DB_SSL_MODE", "disable")

	// Redis
	cfg.RedisHost, err = getEnvRequired("RM_REDIS_HOST")
	if err != nil {
		return nil, err
	}
	cfg.RedisPort, err = getEnvInt("RM_REDIS_PORT", 6379)
	if err != nil {
		return nil, fmt.Errorf("RM_REDIS_PORT: %w", err)
	}
	cfg.RedisDB, err = getEnvInt("RM_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("RM_REDIS_DB: %w", err)
	}
	cfg.RedisPassword = getEnvDefault("RM_REDIS_PASSWORD", "")

	// CKAN
	cfg.CkanURL, err = getEnvRequired("RM_CKAN_URL")
	if err != nil {
		return nil, err
	}
	cfg.CkanURL = strings.TrimRight(cfg.CkanURL, "/")
	cfg.CkanAPIKey, err = getEnvRequired("RM_CKAN_API_KEY")
	if err != nil {
		return nil, err
	}
	cfg.CkanTimeout, err = getEnvDuration("RM_CKAN_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_CKAN_TIMEOUT: %w", err)
	}

	// JWKS (опционально — пустая строка отключает JWT middleware)
	cfg.JWKSUrl = getEnvDefault("RM_JWKS_URL", "")
	cfg.JWKSCACert = getEnvDefault("RM_JWKS_CA_CERT", "")
	cfg.TLSSkipVerify, err = getEnvBool("RM_TLS_SKIP_VERIFY", false)
	if err != nil {
		return nil, fmt.Errorf("RM_TLS_SKIP_VERIFY: %w", err)
	}
	cfg.JWKSClientTimeout, err = getEnvDuration("RM_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("RM_JWKS_REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("RM_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWTLeeway, err = getEnvDuration("RM_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_JWT_LEEWAY: %w", err)
	}

	// Кэш форматов
	cfg.FormatCacheSize, err = getEnvInt("RM_FORMAT_CACHE_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("RM_FORMAT_CACHE_SIZE: %w", err)
	}
	if cfg.FormatCacheSize <= 0 {
		return nil, fmt.Errorf("RM_FORMAT_CACHE_SIZE: значение должно быть положительным")
	}
	cfg.FormatCacheTTL, err = getEnvDuration("RM_FORMAT_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("RM_FORMAT_CACHE_TTL: %w", err)
	}

	// RM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("RM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("RM_LOG_LEVEL: %w", err)
	}

	// RM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("RM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("RM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// Таймауты HTTP-сервера
	cfg.HTTPReadTimeout, err = getEnvDuration("RM_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("RM_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("RM_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_HTTP_IDLE_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout, err = getEnvDuration("RM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_SHUTDOWN_TIMEOUT: %w", err)
	}

	// topologymetrics
	cfg.DephealthCheckInterval, err = getEnvDuration("RM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("RM_DEPHEALTH_GROUP", "resource-module")
	cfg.DephealthName = getEnvDefault("DEPHEALTH_NAME", "")

	return cfg, nil
}

// DatabaseDSN возвращает DSN для подключения pgx к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// RedisAddr возвращает адрес Redis в формате host:port.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
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

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

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

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
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

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
