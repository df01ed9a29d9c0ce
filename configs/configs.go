// Package configs provides application configuration loaded from
// environment variables. Load it once at startup with AppLoad().
package configs

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all application configuration.
type AppConfig struct {
	// DatabaseDSN is the Postgres connection string.
	DatabaseDSN string

	// Redis contains fast-store cache settings.
	Redis RedisConfig

	// Kafka contains broker and topic settings.
	Kafka KafkaConfig

	// Provider contains upstream market data provider settings.
	Provider ProviderConfig

	// Scheduler contains polling job scheduler settings.
	Scheduler SchedulerConfig

	// Consumer contains moving-average consumer settings.
	Consumer ConsumerConfig

	// ServerPort is the HTTP API listen port.
	ServerPort string
}

// RedisConfig holds fast-store cache connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// PriceTTL is how long a cached price point stays fresh.
	PriceTTL time.Duration

	// NegativeTTL is the lifetime of invalid-symbol markers.
	NegativeTTL time.Duration
}

// KafkaConfig holds broker and topic settings.
type KafkaConfig struct {
	Broker string

	// PriceTopic carries PriceEvents, keyed by symbol.
	PriceTopic string

	// AverageTopic carries AverageEvents, keyed by symbol.
	AverageTopic string

	// GroupID is the moving-average consumer group.
	GroupID string

	// PublishTimeout bounds a single synchronous write attempt.
	PublishTimeout time.Duration

	// RetryQueueSize bounds the local publish retry queue.
	RetryQueueSize int
}

// ProviderConfig holds upstream provider settings.
type ProviderConfig struct {
	// Default is the provider used when a request names none.
	Default string

	// AlphaVantageKey is the Alpha Vantage API key.
	AlphaVantageKey string

	// AlphaVantageURL overrides the API base URL (tests, proxies).
	AlphaVantageURL string

	// RatePerMinute is the local outbound quota per provider.
	RatePerMinute int

	// AcquireMaxWait bounds how long a caller waits for a permit.
	AcquireMaxWait time.Duration

	// RequestTimeout bounds a single provider round trip.
	RequestTimeout time.Duration
}

// SchedulerConfig holds polling scheduler settings.
type SchedulerConfig struct {
	// MaxConcurrentFetches bounds per-cycle symbol fetch concurrency.
	MaxConcurrentFetches int

	// FailureThreshold is the number of consecutive failing cycles
	// after which a job transitions to failed.
	FailureThreshold int

	// DefaultInterval is used when a submission omits the interval.
	DefaultInterval time.Duration
}

// ConsumerConfig holds moving-average consumer settings.
type ConsumerConfig struct {
	// Workers is the number of symbol-affine window workers.
	Workers int

	// Period is the sliding window size.
	Period int
}

// AppLoad loads all configuration from environment variables. It
// attempts a .env file first for local development.
func AppLoad() *AppConfig {
	_ = godotenv.Load() // .env is optional

	return &AppConfig{
		DatabaseDSN: getDatabaseDSN(),
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", "localhost:6379"),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvInt("REDIS_DB", 0),
			PriceTTL:    getEnvDuration("CACHE_TTL", 5*time.Minute),
			NegativeTTL: getEnvDuration("CACHE_NEGATIVE_TTL", time.Minute),
		},
		Kafka: KafkaConfig{
			Broker:         getEnv("KAFKA_BROKER", "localhost:9092"),
			PriceTopic:     getEnv("KAFKA_PRICE_TOPIC", "price-events"),
			AverageTopic:   getEnv("KAFKA_AVERAGE_TOPIC", "symbol-averages"),
			GroupID:        getEnv("KAFKA_GROUP_ID", "moving-average-calculator"),
			PublishTimeout: getEnvDuration("KAFKA_PUBLISH_TIMEOUT", 5*time.Second),
			RetryQueueSize: getEnvInt("KAFKA_RETRY_QUEUE_SIZE", 1024),
		},
		Provider: ProviderConfig{
			Default:         getEnv("DEFAULT_PROVIDER", "alpha_vantage"),
			AlphaVantageKey: getEnv("ALPHA_VANTAGE_API_KEY", ""),
			AlphaVantageURL: getEnv("ALPHA_VANTAGE_BASE_URL", ""),
			RatePerMinute:   getEnvInt("PROVIDER_RATE_PER_MINUTE", 5),
			AcquireMaxWait:  getEnvDuration("RATE_LIMIT_MAX_WAIT", 30*time.Second),
			RequestTimeout:  getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 10*time.Second),
		},
		Scheduler: SchedulerConfig{
			MaxConcurrentFetches: getEnvInt("SCHEDULER_MAX_CONCURRENT_FETCHES", 3),
			FailureThreshold:     getEnvInt("SCHEDULER_FAILURE_THRESHOLD", 5),
			DefaultInterval:      getEnvDuration("DEFAULT_POLL_INTERVAL", 60*time.Second),
		},
		Consumer: ConsumerConfig{
			Workers: getEnvInt("CONSUMER_WORKERS", 4),
			Period:  getEnvInt("MOVING_AVERAGE_PERIOD", 5),
		},
		ServerPort: getEnv("SERVER_PORT", "8080"),
	}
}

// getDatabaseDSN constructs the Postgres DSN from environment variables.
func getDatabaseDSN() string {
	if dsn := getEnv("DATABASE_URL", ""); dsn != "" {
		return dsn
	}

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		getEnv("POSTGRES_HOST", "localhost"),
		getEnv("POSTGRES_PORT", "5432"),
		getEnv("POSTGRES_USER", "user"),
		getEnv("POSTGRES_PASSWORD", "password"),
		getEnv("POSTGRES_DB", "marketdata"),
		getEnv("POSTGRES_SSLMODE", "disable"),
	)
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvDuration returns the environment variable parsed as a
// time.Duration ("30s", "5m") or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
