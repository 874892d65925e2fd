package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string `env:"APP_NAME" env-default:"chessism-api"`
	Version                       string `env:"APP_VERSION" env-default:"dev"`
	Port                          int    `env:"PORT" env-default:"3000" validate:"min=1,max=65535"`
	LogLevel                      string `env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	PrettyLogs                    bool   `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int    `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"300"`
	HttpServerReadTimeoutSeconds  int    `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int    `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"60"`
	StartupMaxAttempts            int    `env:"STARTUP_MAX_ATTEMPTS" env-default:"5" validate:"min=1"`

	// Database host
	DatabaseHost string `env:"DB_HOST" env-default:"localhost"`
	// Database port
	DatabasePort string `env:"DB_PORT" env-default:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER_NAME" env-default:"postgres"`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD" env-default:""`
	// Database name
	DatabaseName string `env:"DB_NAME" env-default:"chessism"`
	// Database SSL mode
	DatabaseSSLMode string `env:"DB_SSL_MODE" env-default:"disable"`
	// Max Open Conns
	DatabaseMaxOpenConns int `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	// Max Idle Conns
	DatabaseMaxIdleConns int `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	// Conn Max Lifetime
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`
	// Database Migration Version
	DatabaseMigrationVersion uint `env:"DB_MIGRATION_VERSION" env-default:"0"`
	// Database Migration Force
	DatabaseMigrationForce int `env:"DB_MIGRATION_FORCE" env-default:"0"`
	// Database Migration Auto Rollback
	DatabaseMigrationAutoRollback bool `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Auth
	AuthEnabled   bool   `env:"AUTH_ENABLED" env-default:"false"`
	AuthIssuerURL string `env:"AUTH_ISSUER_URL" env-default:""`
	AuthClientID  string `env:"AUTH_CLIENT_ID" env-default:""`

	// Redis backs the sync lock, the shared request pacer and the job stream.
	RedisEnabled  bool   `env:"REDIS_ENABLED" env-default:"true"`
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Kafka
	KafkaEnabled   bool   `env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers   string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaSyncTopic string `env:"KAFKA_SYNC_TOPIC" env-default:"chessism.sync-events"`

	// Archive source
	ArchiveBaseURL        string        `env:"ARCHIVE_BASE_URL" env-default:"https://api.chess.com" validate:"url"`
	ArchiveUserAgent      string        `env:"ARCHIVE_USER_AGENT" env-default:"ChessismApp/1.0"`
	ArchiveMaxConcurrent  int           `env:"ARCHIVE_MAX_CONCURRENT" env-default:"2" validate:"min=1,max=32"`
	ArchiveMinDelay       time.Duration `env:"ARCHIVE_MIN_DELAY" env-default:"500ms"`
	ArchiveRetryBackoff   time.Duration `env:"ARCHIVE_RETRY_BACKOFF" env-default:"1s"`
	ArchiveFirstTimeout   time.Duration `env:"ARCHIVE_FIRST_TIMEOUT" env-default:"5s"`
	ArchiveRetryTimeout   time.Duration `env:"ARCHIVE_RETRY_TIMEOUT" env-default:"10s"`
	ArchiveSharedPacer    bool          `env:"ARCHIVE_SHARED_PACER" env-default:"false"`
	BreakerMaxRequests    uint32        `env:"BREAKER_MAX_REQUESTS" env-default:"2"`
	BreakerInterval       time.Duration `env:"BREAKER_INTERVAL" env-default:"1m"`
	BreakerTimeout        time.Duration `env:"BREAKER_TIMEOUT" env-default:"30s"`
	BreakerFailureRatio   float64       `env:"BREAKER_FAILURE_RATIO" env-default:"0.6" validate:"gt=0,lte=1"`
	BreakerMinimumSamples uint32        `env:"BREAKER_MINIMUM_SAMPLES" env-default:"10"`

	// Ingestion
	DedupStrategy  string        `env:"DEDUP_STRATEGY" env-default:"chunked" validate:"oneof=chunked staging"`
	DedupChunkSize int           `env:"DEDUP_CHUNK_SIZE" env-default:"10000" validate:"min=1,max=60000"`
	DecodeWorkers  int           `env:"DECODE_WORKERS" env-default:"0" validate:"min=0"`
	SyncLockTTL    time.Duration `env:"SYNC_LOCK_TTL" env-default:"30m"`

	// Scheduler settings
	SchedulerEnabled     bool          `env:"SCHEDULER_ENABLED" env-default:"false"`
	SchedulerInterval    time.Duration `env:"SCHEDULER_POLL_INTERVAL" env-default:"10m"`
	SchedulerResyncAfter time.Duration `env:"SCHEDULER_RESYNC_AFTER" env-default:"24h"`
	SchedulerBatchSize   int           `env:"SCHEDULER_BATCH_SIZE" env-default:"50"`

	// Redis Streams job queue
	QueueEnabled       bool   `env:"QUEUE_ENABLED" env-default:"false"`
	QueueStream        string `env:"QUEUE_STREAM" env-default:"chessism:sync-jobs"`
	QueueConsumerGroup string `env:"QUEUE_CONSUMER_GROUP" env-default:"chessism-workers"`
	QueueConsumerName  string `env:"QUEUE_CONSUMER_NAME" env-default:""`
	QueueWorkers       int    `env:"QUEUE_WORKERS" env-default:"1" validate:"min=1"`

	// Tracing settings
	OTLPEnabled  bool   `env:"OTLP_ENABLED" env-default:"false"`
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc" validate:"oneof=grpc http"`
	OTLPInsecure bool   `env:"OTLP_INSECURE" env-default:"true"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field ranges and cross-field requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.AuthEnabled && (c.AuthIssuerURL == "" || c.AuthClientID == "") {
		return errors.New("invalid config: AUTH_ISSUER_URL and AUTH_CLIENT_ID are required when AUTH_ENABLED is set")
	}
	if (c.QueueEnabled || c.SchedulerEnabled || c.ArchiveSharedPacer) && !c.RedisEnabled {
		return errors.New("invalid config: the job queue, scheduler and shared pacer require REDIS_ENABLED")
	}
	return nil
}

// DatabaseDSN builds the lib/pq connection string.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DatabaseHost, c.DatabasePort, c.DatabaseUserName, c.DatabasePassword, c.DatabaseName, c.DatabaseSSLMode)
}

// KafkaBrokerList splits the comma separated broker list.
func (c *Config) KafkaBrokerList() []string {
	brokers := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(brokers))
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
