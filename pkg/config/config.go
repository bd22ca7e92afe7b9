// Package config loads kankotri configuration from a YAML file, the
// environment, and built-in defaults.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/makemykankotri/kankotri/pkg/observability"
)

// Config holds the complete service configuration
type Config struct {
	Environment   string               `mapstructure:"environment"`
	API           APIConfig            `mapstructure:"api"`
	Auth          AuthConfig           `mapstructure:"auth"`
	Database      DatabaseConfig       `mapstructure:"database"`
	Cache         CacheConfig          `mapstructure:"cache"`
	Storage       StorageConfig        `mapstructure:"storage"`
	AI            AIConfig             `mapstructure:"ai"`
	Events        EventsConfig         `mapstructure:"events"`
	Features      map[string]bool      `mapstructure:"features"`
	Editor        EditorConfig         `mapstructure:"editor"`
	Observability observability.Config `mapstructure:"observability"`
}

// APIConfig holds HTTP server settings
type APIConfig struct {
	ListenAddress string          `mapstructure:"listen_address"`
	ReadTimeout   time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration   `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration   `mapstructure:"idle_timeout"`
	BasePath      string          `mapstructure:"base_path"`
	PublicURL     string          `mapstructure:"public_url"`
	EnableCORS    bool            `mapstructure:"enable_cors"`
	CORSOrigins   []string        `mapstructure:"cors_origins"`
	LogRequests   bool            `mapstructure:"log_requests"`
	MaxUploadSize int64           `mapstructure:"max_upload_size"`
	RateLimit     RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig configures the per-client limiter
type RateLimitConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Limit      float64       `mapstructure:"limit"`
	Burst      int           `mapstructure:"burst"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// AuthConfig configures admin token verification
type AuthConfig struct {
	JWTSecret   string   `mapstructure:"jwt_secret"`
	Issuer      string   `mapstructure:"issuer"`
	AdminRole   string   `mapstructure:"admin_role"`
	AdminEmails []string `mapstructure:"admin_emails"`
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectRetries  uint64        `mapstructure:"connect_retries"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// CacheConfig holds Redis and in-process cache settings
type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Address     string        `mapstructure:"address"`
	Password    string        `mapstructure:"password"`
	Database    int           `mapstructure:"database"`
	TTL         time.Duration `mapstructure:"ttl"`
	LocalSize   int           `mapstructure:"local_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// StorageConfig selects where uploaded assets go
type StorageConfig struct {
	Type           string `mapstructure:"type"`
	Region         string `mapstructure:"region"`
	Bucket         string `mapstructure:"bucket"`
	Endpoint       string `mapstructure:"endpoint"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
	PublicBaseURL  string `mapstructure:"public_base_url"`
	KeyPrefix      string `mapstructure:"key_prefix"`
}

// AIConfig configures content generation
type AIConfig struct {
	Provider        string        `mapstructure:"provider"`
	Region          string        `mapstructure:"region"`
	ModelID         string        `mapstructure:"model_id"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Temperature     float64       `mapstructure:"temperature"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      uint64        `mapstructure:"max_retries"`
}

// EventsConfig configures external fan-out of bus events
type EventsConfig struct {
	RedisStream    string `mapstructure:"redis_stream"`
	RedisStreamMax int64  `mapstructure:"redis_stream_max_len"`
	SQSQueueURL    string `mapstructure:"sqs_queue_url"`
	SQSRegion      string `mapstructure:"sqs_region"`
}

// EditorConfig configures admin editor sessions
type EditorConfig struct {
	HistoryLimit  int           `mapstructure:"history_limit"`
	AutoSaveDelay time.Duration `mapstructure:"auto_save_delay"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	configFile := os.Getenv("KANKOTRI_CONFIG_FILE")
	if configFile == "" {
		configFile = "configs/config.yaml"
	}

	v.SetEnvPrefix("KANKOTRI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)

	_ = v.BindEnv("database.dsn", "KANKOTRI_DATABASE_DSN", "DATABASE_URL")
	_ = v.BindEnv("cache.address", "KANKOTRI_CACHE_ADDRESS", "REDIS_ADDR")

	if _, err := os.Stat(configFile); err == nil {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "error reading config file %s", configFile)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "error checking config file %s", configFile)
	}

	processEnvExpansion(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "error unmarshaling config")
	}

	return &cfg, nil
}

// processEnvExpansion expands ${VAR} and ${VAR:-default} in string values
func processEnvExpansion(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		value, ok := v.Get(key).(string)
		if !ok || !strings.Contains(value, "${") {
			continue
		}
		if expanded := expandEnvVars(value); expanded != value {
			v.Set(key, expanded)
		}
	}
}

// expandEnvVars expands environment variables in a string
func expandEnvVars(value string) string {
	result := value

	for {
		start := strings.Index(result, "${")
		if start == -1 {
			break
		}

		rel := strings.Index(result[start:], "}")
		if rel == -1 {
			break
		}
		end := start + rel

		ref := result[start+2 : end]
		name, def, _ := strings.Cut(ref, ":-")

		val := os.Getenv(name)
		if val == "" {
			val = def
		}

		result = result[:start] + val + result[end+1:]
	}

	return result
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("api.listen_address", ":8080")
	v.SetDefault("api.read_timeout", 30*time.Second)
	v.SetDefault("api.write_timeout", 30*time.Second)
	v.SetDefault("api.idle_timeout", 90*time.Second)
	v.SetDefault("api.base_path", "/api/v1")
	v.SetDefault("api.public_url", "http://localhost:8080")
	v.SetDefault("api.enable_cors", true)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("api.log_requests", true)
	v.SetDefault("api.max_upload_size", 10<<20)
	v.SetDefault("api.rate_limit.enabled", true)
	v.SetDefault("api.rate_limit.limit", 20)
	v.SetDefault("api.rate_limit.burst", 40)
	v.SetDefault("api.rate_limit.expiration", time.Hour)

	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.admin_role", "admin")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "kankotri")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.connect_retries", 5)
	v.SetDefault("database.migrations_path", "migrations/sql")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.database", 0)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.local_size", 256)
	v.SetDefault("cache.dial_timeout", 5*time.Second)

	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.key_prefix", "assets/")

	v.SetDefault("ai.provider", "bedrock")
	v.SetDefault("ai.region", "us-east-1")
	v.SetDefault("ai.max_tokens", 512)
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.timeout", 30*time.Second)
	v.SetDefault("ai.max_retries", 3)

	v.SetDefault("events.redis_stream_max_len", 10000)

	v.SetDefault("editor.history_limit", 100)
	v.SetDefault("editor.auto_save_delay", 2*time.Second)
	v.SetDefault("editor.session_ttl", 30*time.Minute)

	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.namespace", "kankotri")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.service_name", "kankotri")
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sample_ratio", 1.0)
}

// Validate checks the settings the server cannot start without
func (c *Config) Validate() error {
	if c.API.ListenAddress == "" {
		return errors.New("api.listen_address is required")
	}
	if c.Database.DSN == "" && c.Database.Host == "" {
		return errors.New("database.dsn or database.host is required")
	}
	if c.Storage.Type == "s3" && c.Storage.Bucket == "" {
		return errors.New("storage.bucket is required when storage.type is s3")
	}
	return nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}
