package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	ServicePort int
	Database    DatabaseConfig
	Redis       RedisConfig
	Storage     StorageConfig
	RabbitMQ    RabbitMQConfig
	Validation  ValidationConfig
	Privacy     PrivacyConfig
	Stream      StreamConfig
	Adapter     AdapterConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL     string
	Enabled bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	URL string
}

// StorageConfig selects the key-value store backend
type StorageConfig struct {
	Backend string // "memory" or "redis"
}

// RabbitMQConfig holds RabbitMQ connection and queue settings
type RabbitMQConfig struct {
	URL               string
	Enabled           bool
	IngestExchange    string
	IngestQueue       string
	IngestRoutingKey  string
	EventsExchange    string
	ReadingRoutingKey string
	AlertRoutingKey   string
	DLQQueue          string
	PrefetchCount     int
}

// ValidationConfig holds validation engine settings
type ValidationConfig struct {
	MaxReadingAgeDays       int
	InterpolationGapMinutes int
	OutlierIQRMultiplier    float64
	MinOutlierSamples       int
}

// PrivacyConfig holds consent and aggregation settings
type PrivacyConfig struct {
	MinParticipants       int
	FilterFirst           bool // run the privacy filter before validation
	RetentionSweepMinutes int
}

// StreamConfig holds real-time processor settings
type StreamConfig struct {
	SmoothingFactor  float64
	DebounceMillis   int
	SubscriberBuffer int
	MaxRetries       int
}

// AdapterConfig holds device-adapter call settings
type AdapterConfig struct {
	TimeoutSeconds int
	MaxRetries     int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "biometric-pipeline"),
		ServicePort: getEnvAsInt("SERVICE_PORT", 8082),
		Database: DatabaseConfig{
			URL:     getEnv("DATABASE_URL", ""),
			Enabled: getEnvAsBool("DATABASE_ENABLED", false),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Storage: StorageConfig{
			Backend: getEnv("STORAGE_BACKEND", "memory"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:               getEnv("RABBITMQ_URL", ""),
			Enabled:           getEnvAsBool("RABBITMQ_ENABLED", false),
			IngestExchange:    getEnv("RABBITMQ_INGEST_EXCHANGE", "biometric.ingest.exchange"),
			IngestQueue:       getEnv("RABBITMQ_INGEST_QUEUE", "biometric.ingest.queue"),
			IngestRoutingKey:  getEnv("RABBITMQ_INGEST_ROUTING_KEY", "biometric.reading.raw"),
			EventsExchange:    getEnv("RABBITMQ_EVENTS_EXCHANGE", "biometric.events.exchange"),
			ReadingRoutingKey: getEnv("RABBITMQ_READING_ROUTING_KEY", "biometric.reading.accepted"),
			AlertRoutingKey:   getEnv("RABBITMQ_ALERT_ROUTING_KEY", "biometric.wellness.alert"),
			DLQQueue:          getEnv("RABBITMQ_DLQ_QUEUE", "biometric.ingest.dlq"),
			PrefetchCount:     getEnvAsInt("RABBITMQ_PREFETCH", 10),
		},
		Validation: ValidationConfig{
			MaxReadingAgeDays:       getEnvAsInt("VALIDATION_MAX_READING_AGE_DAYS", 7),
			InterpolationGapMinutes: getEnvAsInt("VALIDATION_INTERPOLATION_GAP_MINUTES", 15),
			OutlierIQRMultiplier:    getEnvAsFloat("VALIDATION_OUTLIER_IQR_MULTIPLIER", 1.5),
			MinOutlierSamples:       getEnvAsInt("VALIDATION_MIN_OUTLIER_SAMPLES", 3),
		},
		Privacy: PrivacyConfig{
			MinParticipants:       getEnvAsInt("PRIVACY_MIN_PARTICIPANTS", 3),
			FilterFirst:           getEnvAsBool("PRIVACY_FILTER_FIRST", true),
			RetentionSweepMinutes: getEnvAsInt("PRIVACY_RETENTION_SWEEP_MINUTES", 60),
		},
		Stream: StreamConfig{
			SmoothingFactor:  getEnvAsFloat("STREAM_SMOOTHING_FACTOR", 0.8),
			DebounceMillis:   getEnvAsInt("STREAM_DEBOUNCE_MILLIS", 1000),
			SubscriberBuffer: getEnvAsInt("STREAM_SUBSCRIBER_BUFFER", 16),
			MaxRetries:       getEnvAsInt("STREAM_MAX_RETRIES", 3),
		},
		Adapter: AdapterConfig{
			TimeoutSeconds: getEnvAsInt("ADAPTER_TIMEOUT_SECONDS", 10),
			MaxRetries:     getEnvAsInt("ADAPTER_MAX_RETRIES", 3),
		},
	}

	// Validate required fields for the enabled backends
	if cfg.Database.Enabled && cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when DATABASE_ENABLED=true")
	}
	if cfg.RabbitMQ.Enabled && cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required when RABBITMQ_ENABLED=true")
	}
	if cfg.Storage.Backend != "memory" && cfg.Storage.Backend != "redis" {
		return nil, fmt.Errorf("STORAGE_BACKEND must be 'memory' or 'redis', got %q", cfg.Storage.Backend)
	}
	if cfg.Storage.Backend == "redis" && cfg.Redis.URL == "" {
		return nil, fmt.Errorf("REDIS_URL is required when STORAGE_BACKEND=redis")
	}
	if cfg.Stream.SmoothingFactor <= 0 || cfg.Stream.SmoothingFactor > 1 {
		return nil, fmt.Errorf("STREAM_SMOOTHING_FACTOR must be in (0,1], got %f", cfg.Stream.SmoothingFactor)
	}
	if cfg.Privacy.MinParticipants < 3 {
		return nil, fmt.Errorf("PRIVACY_MIN_PARTICIPANTS must be at least 3, got %d", cfg.Privacy.MinParticipants)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
