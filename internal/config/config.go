package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the engine server and worker.
type Config struct {
	Server          ServerConfig         `yaml:"server"`
	Log             LogConfig            `yaml:"log"`
	Store           StoreConfig          `yaml:"store"`
	Redis           RedisConfig          `yaml:"redis"`
	Engine          EngineConfig         `yaml:"engine"`
	Mail            MailConfig           `yaml:"mail"`
	Quota           QuotaConfig          `yaml:"quota"`
	Recommendations RecommendationConfig `yaml:"recommendations"`
	Archive         ArchiveConfig        `yaml:"archive"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on (default true).
func (c LogConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// StoreConfig selects the document store backend.
type StoreConfig struct {
	Type          string `yaml:"type"` // "memory", "postgres", "dynamodb"
	DatabaseURL   string `yaml:"database_url"`
	DynamoDBTable string `yaml:"dynamodb_table"`
	AWSRegion     string `yaml:"aws_region"`
	AWSProfile    string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
	MaxOpenConns  int    `yaml:"max_open_conns"`
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StoreConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// RedisConfig enables Redis-backed locks, counters and caches.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// EngineConfig controls the enrollment tick.
type EngineConfig struct {
	Enabled             bool `yaml:"enabled"`
	TickIntervalSeconds int  `yaml:"tick_interval_seconds"`
	Concurrency         int  `yaml:"concurrency"`
	LockTTLSeconds      int  `yaml:"lock_ttl_seconds"`
}

// TickInterval returns the tick period as a duration
func (c EngineConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

// LockTTL returns the per-enrollment lock TTL.
func (c EngineConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// MailConfig selects and configures the dispatch provider.
type MailConfig struct {
	Provider           string `yaml:"provider"` // "ses", "sendgrid", "log"
	FromName           string `yaml:"from_name"`
	FromEmail          string `yaml:"from_email"`
	SendTimeoutSeconds int    `yaml:"send_timeout_seconds"`
	SendGridAPIKey     string `yaml:"sendgrid_api_key"`
	SendGridBaseURL    string `yaml:"sendgrid_base_url"`
	SESRegion          string `yaml:"ses_region"`
	SESAccessKey       string `yaml:"ses_access_key"`
	SESSecretKey       string `yaml:"ses_secret_key"`
}

// SendTimeout returns the per-dispatch timeout as a duration
func (c MailConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

// QuotaConfig tunes the quota guard.
type QuotaConfig struct {
	NearLimitRatio      float64        `yaml:"near_limit_ratio"`
	DefaultDailyLimit   int            `yaml:"default_daily_limit"`
	ProviderDailyLimits map[string]int `yaml:"provider_daily_limits"`
}

// RecommendationConfig controls generation and the daily auto-task run.
type RecommendationConfig struct {
	AutoTasks         bool `yaml:"auto_tasks"`
	RunHourUTC        int  `yaml:"run_hour_utc"`
	CacheEnabled      bool `yaml:"cache_enabled"`
	CheckIntervalMins int  `yaml:"check_interval_mins"`
}

// CheckInterval returns how often the scheduler checks whether a daily run is due.
func (c RecommendationConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalMins) * time.Minute
}

// ArchiveConfig holds the optional S3 snapshot archive.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	S3Bucket  string `yaml:"s3_bucket"`
	S3Region  string `yaml:"s3_region"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = "memory"
	}
	if cfg.Store.AWSRegion == "" {
		cfg.Store.AWSRegion = "us-west-2"
	}
	if cfg.Store.DynamoDBTable == "" {
		cfg.Store.DynamoDBTable = "enrollment-engine"
	}
	if cfg.Store.MaxOpenConns == 0 {
		cfg.Store.MaxOpenConns = 20
	}
	if cfg.Engine.TickIntervalSeconds == 0 {
		cfg.Engine.TickIntervalSeconds = 120
	}
	if cfg.Engine.Concurrency == 0 {
		cfg.Engine.Concurrency = 8
	}
	if cfg.Engine.LockTTLSeconds == 0 {
		cfg.Engine.LockTTLSeconds = 90
	}
	if cfg.Mail.Provider == "" {
		cfg.Mail.Provider = "log"
	}
	if cfg.Mail.SendTimeoutSeconds == 0 {
		cfg.Mail.SendTimeoutSeconds = 20
	}
	if cfg.Mail.SendGridBaseURL == "" {
		cfg.Mail.SendGridBaseURL = "https://api.sendgrid.com/v3"
	}
	if cfg.Mail.SESRegion == "" {
		cfg.Mail.SESRegion = "us-east-1"
	}
	if cfg.Quota.NearLimitRatio == 0 {
		cfg.Quota.NearLimitRatio = 0.8
	}
	if cfg.Quota.DefaultDailyLimit == 0 {
		cfg.Quota.DefaultDailyLimit = 100
	}
	if cfg.Recommendations.RunHourUTC == 0 {
		cfg.Recommendations.RunHourUTC = 13
	}
	if cfg.Recommendations.CheckIntervalMins == 0 {
		cfg.Recommendations.CheckIntervalMins = 15
	}
	if cfg.Archive.S3Region == "" {
		cfg.Archive.S3Region = cfg.Store.AWSRegion
	}
	if cfg.Archive.KeyPrefix == "" {
		cfg.Archive.KeyPrefix = "recommendations"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Store.DatabaseURL = dbURL
		if cfg.Store.Type == "memory" {
			cfg.Store.Type = "postgres"
		}
	}
	if v := os.Getenv("STORE_TYPE"); v != "" {
		cfg.Store.Type = v
	}
	if v := os.Getenv("DYNAMODB_TABLE"); v != "" {
		cfg.Store.DynamoDBTable = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("SENDGRID_API_KEY"); v != "" {
		cfg.Mail.SendGridAPIKey = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Mail.SESAccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Mail.SESSecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Mail.SESRegion = v
	}
	if v := os.Getenv("MAIL_PROVIDER"); v != "" {
		cfg.Mail.Provider = v
	}
	if v := os.Getenv("ENGINE_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.TickIntervalSeconds = n
		}
	}
	if v := os.Getenv("ARCHIVE_S3_BUCKET"); v != "" {
		cfg.Archive.S3Bucket = v
		cfg.Archive.Enabled = true
	}

	return cfg, nil
}
