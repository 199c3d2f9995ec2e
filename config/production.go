// Package config provides configuration management and environment variable handling for the application
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cotizabot/cotizabot/utils"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database   DatabaseConfig   `json:"database"`
	Server     ServerConfig     `json:"server"`
	Security   SecurityConfig   `json:"security"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Cache      CacheConfig      `json:"cache"`
	WhatsApp   WhatsAppConfig   `json:"whatsapp"`
	Kafka      KafkaConfig      `json:"kafka"`
	Storage    StorageConfig    `json:"storage"`
	Billing    BillingConfig    `json:"billing"`
	Assignment AssignmentConfig `json:"assignment"`
	Quote      QuoteConfig      `json:"quote"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryLog    bool          `json:"slow_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
	AutoMigrate     bool          `json:"auto_migrate"`
}

// DSN returns the keyword/value connection string used by the gorm postgres driver
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// URL returns the postgres:// form required by golang-migrate
func (c DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	BodyLimit       int           `json:"body_limit"`
	EnableMetrics   bool          `json:"enable_metrics"`
	TrustedProxies  []string      `json:"trusted_proxies"`
	ProxyHeader     string        `json:"proxy_header"`
}

type SecurityConfig struct {
	// CORS
	AllowedOrigins []string `json:"allowed_origins"`
	AllowedMethods []string `json:"allowed_methods"`
	AllowedHeaders []string `json:"allowed_headers"`

	// API Security
	RequireAPIKey bool   `json:"require_api_key"`
	APIKeyHeader  string `json:"api_key_header"`
	// AdminAPIKeyHashes are bcrypt hashes; plaintext keys never live in config.
	AdminAPIKeyHashes []string `json:"-"`
	BcryptCost        int      `json:"bcrypt_cost"`
}

type LoggingConfig struct {
	Level      string `json:"level"`  // debug, info, warn, error
	Format     string `json:"format"` // json, text
	Output     string `json:"output"` // stdout, file, both
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

type MetricsConfig struct {
	Enabled        bool   `json:"enabled"`
	PrometheusPath string `json:"prometheus_path"`
}

type CacheConfig struct {
	Enabled         bool          `json:"enabled"`
	Provider        string        `json:"provider"` // redis, none
	RedisURL        string        `json:"redis_url"`
	RedisDB         int           `json:"redis_db"`
	RedisPrefix     string        `json:"redis_prefix"`
	DefaultTTL      time.Duration `json:"default_ttl"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

// Key prefixes a cache or lock key with the configured namespace
func (c CacheConfig) Key(key string) string {
	if c.RedisPrefix == "" {
		return key
	}
	return c.RedisPrefix + ":" + key
}

type WhatsAppConfig struct {
	Provider      string        `json:"provider"` // cloud, mock
	BaseURL       string        `json:"base_url"`
	PhoneNumberID string        `json:"phone_number_id"`
	AccessToken   string        `json:"-"`
	Timeout       time.Duration `json:"timeout"`
	SendTimeout   time.Duration `json:"send_timeout"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled"`
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

type StorageConfig struct {
	Enabled         bool   `json:"enabled"`
	Bucket          string `json:"bucket"`
	Region          string `json:"region"`
	EndpointURL     string `json:"endpoint_url"`
	AccessKeyID     string `json:"-"`
	SecretAccessKey string `json:"-"`
	Prefix          string `json:"prefix"`
}

type BillingConfig struct {
	Timezone            string        `json:"timezone"`
	GracePeriod         time.Duration `json:"grace_period"`
	LateSignupDay       int           `json:"late_signup_day"`
	AccountNumberPrefix string        `json:"account_number_prefix"`
	Currency            string        `json:"currency"`
}

type AssignmentConfig struct {
	FirstContactSLA time.Duration `json:"first_contact_sla"`
	ReassignmentSLA time.Duration `json:"reassignment_sla"`
	CandidateLimit  int           `json:"candidate_limit"`
}

type QuoteConfig struct {
	MaxResults      int           `json:"max_results"`
	CatalogCacheTTL time.Duration `json:"catalog_cache_ttl"`
	// MaxInsuredValue rejects obviously mistyped insured values before quoting.
	MaxInsuredValue decimal.Decimal `json:"max_insured_value"`
}

type SchedulerConfig struct {
	BillingEnabled  bool          `json:"billing_enabled"`
	BillingInterval time.Duration `json:"billing_interval"`
	LockTTL         time.Duration `json:"lock_ttl"`
	JobParallelism  int           `json:"job_parallelism"`
}

func LoadProductionConfig() (*ProductionConfig, error) {
	// Variables already present in the environment win over the .env file
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "cotizabot"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryLog:    getEnvBool("DB_SLOW_QUERY_LOG", true),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", false),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:       getEnvInt("SERVER_BODY_LIMIT", 1*1024*1024), // 1MB
			EnableMetrics:   getEnvBool("SERVER_ENABLE_METRICS", true),
			TrustedProxies:  getEnvStringSlice("SERVER_TRUSTED_PROXIES", []string{"127.0.0.1"}),
			ProxyHeader:     getEnvString("SERVER_PROXY_HEADER", "X-Real-IP"),
		},
		Security: SecurityConfig{
			AllowedOrigins:    getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods:    getEnvStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders:    getEnvStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "X-API-Key", "X-Request-ID"}),
			RequireAPIKey:     getEnvBool("REQUIRE_API_KEY", true),
			APIKeyHeader:      getEnvString("API_KEY_HEADER", "X-API-Key"),
			AdminAPIKeyHashes: getEnvStringSlice("ADMIN_API_KEY_HASHES", []string{}),
			BcryptCost:        getEnvInt("BCRYPT_COST", 12),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			Format:     getEnvString("LOG_FORMAT", "json"),
			Output:     getEnvString("LOG_OUTPUT", "stdout"),
			FilePath:   getEnvString("LOG_FILE_PATH", "/var/log/cotizabot/app.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
		Metrics: MetricsConfig{
			Enabled:        getEnvBool("METRICS_ENABLED", true),
			PrometheusPath: getEnvString("PROMETHEUS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:         getEnvBool("CACHE_ENABLED", true),
			Provider:        getEnvString("CACHE_PROVIDER", "redis"),
			RedisURL:        getEnvString("CACHE_REDIS_URL", "redis://localhost:6379/0"),
			RedisDB:         getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix:     getEnvString("CACHE_REDIS_PREFIX", "cotizabot"),
			DefaultTTL:      getEnvDuration("CACHE_DEFAULT_TTL", 1*time.Hour),
			CleanupInterval: getEnvDuration("CACHE_CLEANUP_INTERVAL", 30*time.Second),
		},
		WhatsApp: WhatsAppConfig{
			Provider:      getEnvString("WHATSAPP_PROVIDER", "mock"),
			BaseURL:       getEnvString("WHATSAPP_BASE_URL", "https://graph.facebook.com/v19.0"),
			PhoneNumberID: getEnvString("WHATSAPP_PHONE_NUMBER_ID", ""),
			AccessToken:   getEnvString("WHATSAPP_ACCESS_TOKEN", ""),
			Timeout:       getEnvDuration("WHATSAPP_TIMEOUT", 10*time.Second),
			SendTimeout:   getEnvDuration("WHATSAPP_SEND_TIMEOUT", 15*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Brokers: getEnvStringSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnvString("KAFKA_TOPIC", "cotizabot.domain-events"),
		},
		Storage: StorageConfig{
			Enabled:         getEnvBool("S3_ENABLED", false),
			Bucket:          getEnvString("S3_BUCKET", ""),
			Region:          getEnvString("S3_REGION", "us-east-1"),
			EndpointURL:     getEnvString("S3_ENDPOINT_URL", ""),
			AccessKeyID:     getEnvString("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnvString("S3_SECRET_ACCESS_KEY", ""),
			Prefix:          getEnvString("S3_PREFIX", "statements"),
		},
		Billing: BillingConfig{
			Timezone:            getEnvString("BILLING_TIMEZONE", "America/Mexico_City"),
			GracePeriod:         getEnvDuration("BILLING_GRACE_PERIOD", utils.GracePeriod),
			LateSignupDay:       getEnvInt("BILLING_LATE_SIGNUP_DAY", utils.LateSignupDay),
			AccountNumberPrefix: getEnvString("BILLING_ACCOUNT_NUMBER_PREFIX", utils.AccountNumberPrefix),
			Currency:            getEnvString("BILLING_CURRENCY", utils.DefaultCurrency),
		},
		Assignment: AssignmentConfig{
			FirstContactSLA: getEnvDuration("ASSIGNMENT_FIRST_CONTACT_SLA", utils.FirstContactSLA),
			ReassignmentSLA: getEnvDuration("ASSIGNMENT_REASSIGNMENT_SLA", utils.ReassignmentSLA),
			CandidateLimit:  getEnvInt("ASSIGNMENT_CANDIDATE_LIMIT", 5),
		},
		Quote: QuoteConfig{
			MaxResults:      getEnvInt("QUOTE_MAX_RESULTS", 10),
			CatalogCacheTTL: getEnvDuration("QUOTE_CATALOG_CACHE_TTL", 5*time.Minute),
			MaxInsuredValue: getEnvDecimal("QUOTE_MAX_INSURED_VALUE", decimal.NewFromInt(20_000_000)),
		},
		Scheduler: SchedulerConfig{
			BillingEnabled:  getEnvBool("SCHEDULER_BILLING_ENABLED", true),
			BillingInterval: getEnvDuration("SCHEDULER_BILLING_INTERVAL", 1*time.Hour),
			LockTTL:         getEnvDuration("SCHEDULER_LOCK_TTL", 10*time.Minute),
			JobParallelism:  getEnvInt("SCHEDULER_JOB_PARALLELISM", 4),
		},
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() error {
	envFile := getEnvString("ENV_FILE", ".env")

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		// .env file doesn't exist, continue with environment variables
		return nil
	}

	// godotenv.Load never overrides variables that are already set
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to read %s: %w", envFile, err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if parsed, err := decimal.NewFromString(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}
	if cfg.Database.Password == "" {
		errors = append(errors, "DB_PASSWORD is required")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errors = append(errors, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errors = append(errors, "SERVER_WRITE_TIMEOUT must be positive")
	}

	// Validate security configuration
	if cfg.Security.RequireAPIKey && len(cfg.Security.AdminAPIKeyHashes) == 0 {
		errors = append(errors, "ADMIN_API_KEY_HASHES is required when REQUIRE_API_KEY is enabled")
	}
	if cfg.Security.BcryptCost < 10 || cfg.Security.BcryptCost > 14 {
		errors = append(errors, "BCRYPT_COST must be between 10 and 14")
	}

	// Validate logging configuration
	if cfg.Logging.Level != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		valid := false
		for _, level := range validLevels {
			if cfg.Logging.Level == level {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
		}
	}
	if (cfg.Logging.Output == "file" || cfg.Logging.Output == "both") && cfg.Logging.FilePath == "" {
		errors = append(errors, "LOG_FILE_PATH is required when logging to a file")
	}

	// Validate cache configuration if enabled
	if cfg.Cache.Enabled {
		if cfg.Cache.Provider == "redis" && cfg.Cache.RedisURL == "" {
			errors = append(errors, "CACHE_REDIS_URL is required when cache is enabled with redis provider")
		}
	}

	// Validate WhatsApp configuration unless mocked
	if cfg.WhatsApp.Provider != "mock" {
		if cfg.WhatsApp.PhoneNumberID == "" {
			errors = append(errors, "WHATSAPP_PHONE_NUMBER_ID is required for the cloud provider")
		}
		if cfg.WhatsApp.AccessToken == "" {
			errors = append(errors, "WHATSAPP_ACCESS_TOKEN is required for the cloud provider")
		}
	}

	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		errors = append(errors, "KAFKA_BROKERS is required when Kafka is enabled")
	}

	if cfg.Storage.Enabled && cfg.Storage.Bucket == "" {
		errors = append(errors, "S3_BUCKET is required when statement storage is enabled")
	}

	// Validate billing configuration
	if _, err := time.LoadLocation(cfg.Billing.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("BILLING_TIMEZONE is invalid: %v", err))
	}
	if cfg.Billing.GracePeriod <= 0 {
		errors = append(errors, "BILLING_GRACE_PERIOD must be positive")
	}
	if cfg.Billing.LateSignupDay < 1 || cfg.Billing.LateSignupDay > 31 {
		errors = append(errors, "BILLING_LATE_SIGNUP_DAY must be between 1 and 31")
	}

	// Validate assignment and quote configuration
	if cfg.Assignment.FirstContactSLA <= 0 || cfg.Assignment.ReassignmentSLA <= 0 {
		errors = append(errors, "assignment SLAs must be positive")
	}
	if cfg.Quote.MaxResults <= 0 {
		errors = append(errors, "QUOTE_MAX_RESULTS must be positive")
	}

	if cfg.Scheduler.BillingEnabled && cfg.Scheduler.BillingInterval <= 0 {
		errors = append(errors, "SCHEDULER_BILLING_INTERVAL must be positive")
	}

	// Return validation errors if any
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
