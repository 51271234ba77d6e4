package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Server   ServerConfig   `mapstructure:"server"`
	Security SecurityConfig `mapstructure:"security"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// WebhookConfig holds the three automation endpoints and how to call them
type WebhookConfig struct {
	SyncURL         string        `mapstructure:"sync_url"`
	FetchURL        string        `mapstructure:"fetch_url"`
	DeleteURL       string        `mapstructure:"delete_url"`
	SyncTimeout     time.Duration `mapstructure:"sync_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	JWTIssuer       string        `mapstructure:"jwt_issuer"`
	JWTExpiresIn    time.Duration `mapstructure:"jwt_expires_in"`
	AuthHeaderName  string        `mapstructure:"auth_header_name"`
	AuthHeaderValue string        `mapstructure:"auth_header_value"`
}

// StorageConfig holds the key-value persistence configuration
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	Path        string `mapstructure:"path"`
	SQLiteDSN   string `mapstructure:"sqlite_dsn"`
	RedisPrefix string `mapstructure:"redis_prefix"`
	TasksKey    string `mapstructure:"tasks_key"`
	LastSyncKey string `mapstructure:"last_sync_key"`
}

// DatabaseConfig holds postgres configuration for the postgres storage backend
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SyncConfig holds synchronization behaviour
type SyncConfig struct {
	AutoInterval time.Duration `mapstructure:"auto_interval"`
	StrictStatus bool          `mapstructure:"strict_status"`
	FetchOnStart bool          `mapstructure:"fetch_on_start"`
}

// NotifyConfig holds notification sinks
type NotifyConfig struct {
	Duration       time.Duration `mapstructure:"duration"`
	TelegramToken  string        `mapstructure:"telegram_token"`
	TelegramChatID int64         `mapstructure:"telegram_chat_id"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	Host           string        `mapstructure:"host"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORSAllowedOrigins string        `mapstructure:"cors_allowed_origins"`
	RateLimitRequests  int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow    time.Duration `mapstructure:"rate_limit_window"`
	APIKeyHash         string        `mapstructure:"api_key_hash"`
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	Filename string `mapstructure:"filename"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load loads configuration from .env, an optional config file and the environment.
// An empty path skips the config file.
func Load(path string) (*Config, error) {
	// Load .env file if it exists (ignore errors)
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	bindEnvVars(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "tasksync")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")

	// Webhook defaults (endpoints are deliberately empty)
	v.SetDefault("webhook.sync_url", "")
	v.SetDefault("webhook.fetch_url", "")
	v.SetDefault("webhook.delete_url", "")
	v.SetDefault("webhook.sync_timeout", "30s")
	v.SetDefault("webhook.rate_limit", 0)
	v.SetDefault("webhook.jwt_secret", "")
	v.SetDefault("webhook.jwt_issuer", "tasksync")
	v.SetDefault("webhook.jwt_expires_in", "5m")
	v.SetDefault("webhook.auth_header_name", "")
	v.SetDefault("webhook.auth_header_value", "")

	// Storage defaults
	v.SetDefault("storage.backend", BackendFile)
	v.SetDefault("storage.path", "tasksync-store.json")
	v.SetDefault("storage.sqlite_dsn", "tasksync.db")
	v.SetDefault("storage.redis_prefix", "tasksync:")
	v.SetDefault("storage.tasks_key", "smart-tasks")
	v.SetDefault("storage.last_sync_key", "last-sync")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "tasksync")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.conn_max_idle_time", "30s")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Sync defaults
	v.SetDefault("sync.auto_interval", "0s")
	v.SetDefault("sync.strict_status", false)
	v.SetDefault("sync.fetch_on_start", true)

	// Notify defaults
	v.SetDefault("notify.duration", "5s")
	v.SetDefault("notify.telegram_token", "")
	v.SetDefault("notify.telegram_chat_id", 0)

	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "75s")

	// Security defaults
	v.SetDefault("security.cors_allowed_origins", "*")
	v.SetDefault("security.rate_limit_requests", 20)
	v.SetDefault("security.rate_limit_window", "1m")
	v.SetDefault("security.api_key_hash", "")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output", "stderr")
	v.SetDefault("logger.filename", "")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "APP_NAME")
	v.BindEnv("app.environment", "APP_ENVIRONMENT")

	// Webhook
	v.BindEnv("webhook.sync_url", "WEBHOOK_SYNC_URL")
	v.BindEnv("webhook.fetch_url", "WEBHOOK_GET_TASKS_URL")
	v.BindEnv("webhook.delete_url", "WEBHOOK_DELETE_TASK_URL")
	v.BindEnv("webhook.sync_timeout", "WEBHOOK_SYNC_TIMEOUT")
	v.BindEnv("webhook.rate_limit", "WEBHOOK_RATE_LIMIT")
	v.BindEnv("webhook.jwt_secret", "WEBHOOK_JWT_SECRET")
	v.BindEnv("webhook.jwt_issuer", "WEBHOOK_JWT_ISSUER")
	v.BindEnv("webhook.jwt_expires_in", "WEBHOOK_JWT_EXPIRES_IN")
	v.BindEnv("webhook.auth_header_name", "WEBHOOK_AUTH_HEADER_NAME")
	v.BindEnv("webhook.auth_header_value", "WEBHOOK_AUTH_HEADER_VALUE")

	// Storage
	v.BindEnv("storage.backend", "STORAGE_BACKEND")
	v.BindEnv("storage.path", "STORAGE_PATH")
	v.BindEnv("storage.sqlite_dsn", "STORAGE_SQLITE_DSN")
	v.BindEnv("storage.redis_prefix", "STORAGE_REDIS_PREFIX")
	v.BindEnv("storage.tasks_key", "STORAGE_TASKS_KEY")
	v.BindEnv("storage.last_sync_key", "STORAGE_LAST_SYNC_KEY")

	// Database
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.name", "DB_NAME")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.ssl_mode", "DB_SSL_MODE")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// Sync
	v.BindEnv("sync.auto_interval", "SYNC_AUTO_INTERVAL")
	v.BindEnv("sync.strict_status", "SYNC_STRICT_STATUS")
	v.BindEnv("sync.fetch_on_start", "SYNC_FETCH_ON_START")

	// Notify
	v.BindEnv("notify.duration", "NOTIFY_DURATION")
	v.BindEnv("notify.telegram_token", "TELEGRAM_TOKEN")
	v.BindEnv("notify.telegram_chat_id", "TELEGRAM_CHAT_ID")

	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.host", "SERVER_HOST")
	v.BindEnv("server.request_timeout", "SERVER_REQUEST_TIMEOUT")

	// Security
	v.BindEnv("security.cors_allowed_origins", "CORS_ALLOWED_ORIGINS")
	v.BindEnv("security.rate_limit_requests", "RATE_LIMIT_REQUESTS")
	v.BindEnv("security.rate_limit_window", "RATE_LIMIT_WINDOW")
	v.BindEnv("security.api_key_hash", "API_KEY_HASH")

	// Logger
	v.BindEnv("logger.level", "LOG_LEVEL")
	v.BindEnv("logger.format", "LOG_FORMAT")
	v.BindEnv("logger.output", "LOG_OUTPUT")
	v.BindEnv("logger.filename", "LOG_FILENAME")

	// Metrics
	v.BindEnv("metrics.enabled", "ENABLE_METRICS")
}

func validateConfig(cfg *Config) error {
	switch cfg.Storage.Backend {
	case BackendFile, BackendMemory, BackendSQLite, BackendPostgres, BackendRedis:
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	if cfg.Storage.Backend == BackendFile && cfg.Storage.Path == "" {
		return fmt.Errorf("storage path is required for the file backend")
	}

	if cfg.Storage.TasksKey == "" || cfg.Storage.LastSyncKey == "" {
		return fmt.Errorf("storage keys must not be empty")
	}

	if cfg.Storage.TasksKey == cfg.Storage.LastSyncKey {
		return fmt.Errorf("storage tasks key and last sync key must differ")
	}

	if cfg.Webhook.SyncTimeout <= 0 {
		return fmt.Errorf("webhook sync timeout must be positive")
	}

	if cfg.Webhook.RateLimit < 0 {
		return fmt.Errorf("webhook rate limit must not be negative")
	}

	if cfg.Sync.AutoInterval < 0 {
		return fmt.Errorf("sync auto interval must not be negative")
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}

	if (cfg.Notify.TelegramToken == "") != (cfg.Notify.TelegramChatID == 0) {
		return fmt.Errorf("telegram token and chat id must be set together")
	}

	return nil
}

// GetDSN returns the database connection string
func (cfg *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)
}

// GetAddr returns the Redis address
func (cfg *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

// IsDevelopment returns true if the environment is development
func (cfg *AppConfig) IsDevelopment() bool {
	return cfg.Environment == "development"
}

// GetAddress returns the listen address of the local API
func (cfg *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

// Configured reports whether every endpoint the operation needs is set
func (cfg *WebhookConfig) Configured() bool {
	return cfg.SyncURL != "" && cfg.FetchURL != "" && cfg.DeleteURL != ""
}
