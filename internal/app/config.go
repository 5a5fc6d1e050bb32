package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Поддерживаемые драйверы хранилища.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config описывает параметры запуска сервиса галереи.
type Config struct {
	// HTTPAddr задаёт адрес основного API.
	HTTPAddr string
	// OpsAddr задаёт адрес служебного сервера с метриками и пробами.
	OpsAddr string
	// LogLevel задаёт уровень логирования logrus.
	LogLevel string

	// StorageDriver выбирает хранилище: memory или postgres.
	StorageDriver string
	// PostgresDSN обязателен при StorageDriver=postgres.
	PostgresDSN string

	// RedisAddr включает кеш на Redis; пустое значение означает кеш в памяти.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// KafkaBrokers перечисляет брокеры через запятую; пустое значение
	// отключает публикацию событий.
	KafkaBrokers string

	// RelayURL включает отправку писем через внешний HTTP-релей;
	// пустое значение означает мок-релей, который только логирует.
	RelayURL    string
	RelayAPIKey string

	// OTLPEndpoint включает экспорт трейсов; пустое значение отключает их.
	OTLPEndpoint string

	// Currency задаёт валюту платёжных интентов.
	Currency string
}

// DefaultConfig возвращает конфигурацию для локального запуска без внешних
// зависимостей: память вместо БД, мок-релей вместо почты, без Kafka.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:      ":8080",
		OpsAddr:       ":9090",
		LogLevel:      "info",
		StorageDriver: StorageMemory,
		Currency:      "usd",
	}
}

// LoadConfig собирает конфигурацию из переменных окружения GALLERY_*
// поверх значений по умолчанию и проверяет её согласованность.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	overrideString(&cfg.HTTPAddr, "GALLERY_HTTP_ADDR")
	overrideString(&cfg.OpsAddr, "GALLERY_OPS_ADDR")
	overrideString(&cfg.LogLevel, "GALLERY_LOG_LEVEL")
	overrideString(&cfg.StorageDriver, "GALLERY_STORAGE_DRIVER")
	overrideString(&cfg.PostgresDSN, "GALLERY_POSTGRES_DSN")
	overrideString(&cfg.RedisAddr, "GALLERY_REDIS_ADDR")
	overrideString(&cfg.RedisPassword, "GALLERY_REDIS_PASSWORD")
	if err := overrideInt(&cfg.RedisDB, "GALLERY_REDIS_DB"); err != nil {
		return Config{}, err
	}
	overrideString(&cfg.KafkaBrokers, "GALLERY_KAFKA_BROKERS")
	overrideString(&cfg.RelayURL, "GALLERY_RELAY_URL")
	overrideString(&cfg.RelayAPIKey, "GALLERY_RELAY_API_KEY")
	overrideString(&cfg.OTLPEndpoint, "GALLERY_OTLP_ENDPOINT")
	overrideString(&cfg.Currency, "GALLERY_CURRENCY")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет, что конфигурация пригодна для запуска.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageMemory:
	case StoragePostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("storage driver %q requires GALLERY_POSTGRES_DSN", c.StorageDriver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("http listen address is required")
	}
	if strings.TrimSpace(c.OpsAddr) == "" {
		return fmt.Errorf("ops listen address is required")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return nil
}

func overrideString(dst *string, name string) {
	if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func overrideInt(dst *int, name string) error {
	v, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*dst = parsed
	return nil
}
