// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq task queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetExpirySweepInterval() time.Duration
}

// SMTPConfig provides settings for agency notification emails.
type SMTPConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetAppBaseURL() string
	IsSMTPEnabled() bool
}

// MinIOConfig provides settings for the raw payload archive.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketLeadPayloads() string
	IsMinIOEnabled() bool
}

// DistributionConfig provides the tunables of the lead distribution engine.
type DistributionConfig interface {
	GetDuplicateWindow() time.Duration
	GetExclusivityWindow() time.Duration
	GetRotationScope() string
	GetExclusiveMaxAgencies() int
	GetIntakeAliasesFile() string
	GetIntakeRatePerMinute() int
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                     string
	HTTPAddr                string
	DatabaseURL             string
	JWTAccessSecret         string
	CORSAllowAll            bool
	CORSOrigins             []string
	CORSAllowCreds          bool
	RedisURL                string
	RedisTLSInsecure        bool
	AsynqQueueName          string
	AsynqConcurrency        int
	ExpirySweepInterval     time.Duration
	SMTPHost                string
	SMTPPort                int
	SMTPUsername            string
	SMTPPassword            string
	EmailFromName           string
	EmailFromAddress        string
	AppBaseURL              string
	MinIOEndpoint           string
	MinIOAccessKey          string
	MinIOSecretKey          string
	MinIOUseSSL             bool
	MinioBucketLeadPayloads string
	DuplicateWindow         time.Duration
	ExclusivityWindow       time.Duration
	RotationScope           string
	ExclusiveMaxAgencies    int
	IntakeAliasesFile       string
	IntakeRatePerMinute     int
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string                    { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool              { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string              { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int               { return c.AsynqConcurrency }
func (c *Config) GetExpirySweepInterval() time.Duration  { return c.ExpirySweepInterval }

// SMTPConfig implementation
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) GetAppBaseURL() string       { return c.AppBaseURL }
func (c *Config) IsSMTPEnabled() bool         { return c.SMTPHost != "" }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string  { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool      { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketLeadPayloads() string {
	return c.MinioBucketLeadPayloads
}
func (c *Config) IsMinIOEnabled() bool { return c.MinIOEndpoint != "" }

// DistributionConfig implementation
func (c *Config) GetDuplicateWindow() time.Duration   { return c.DuplicateWindow }
func (c *Config) GetExclusivityWindow() time.Duration { return c.ExclusivityWindow }
func (c *Config) GetRotationScope() string            { return c.RotationScope }
func (c *Config) GetExclusiveMaxAgencies() int        { return c.ExclusiveMaxAgencies }
func (c *Config) GetIntakeAliasesFile() string        { return c.IntakeAliasesFile }
func (c *Config) GetIntakeRatePerMinute() int         { return c.IntakeRatePerMinute }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                     getEnv("APP_ENV", "development"),
		HTTPAddr:                getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		JWTAccessSecret:         getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:            corsAllowAll,
		CORSOrigins:             corsOrigins,
		CORSAllowCreds:          strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "false"), "true"),
		RedisURL:                getEnv("REDIS_URL", ""),
		RedisTLSInsecure:        strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:          getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:        int(mustInt64(getEnv("ASYNQ_CONCURRENCY", "10"))),
		ExpirySweepInterval:     mustDuration(getEnv("EXPIRY_SWEEP_INTERVAL", "0s")),
		SMTPHost:                getEnv("SMTP_HOST", ""),
		SMTPPort:                int(mustInt64(getEnv("SMTP_PORT", "587"))),
		SMTPUsername:            getEnv("SMTP_USERNAME", ""),
		SMTPPassword:            getEnv("SMTP_PASSWORD", ""),
		EmailFromName:           getEnv("EMAIL_FROM_NAME", "Lead Market"),
		EmailFromAddress:        getEnv("EMAIL_FROM_ADDRESS", ""),
		AppBaseURL:              strings.TrimRight(getEnv("APP_BASE_URL", ""), "/"),
		MinIOEndpoint:           getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:          getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:          getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:             strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketLeadPayloads: getEnv("MINIO_BUCKET_LEAD_PAYLOADS", "lead-payloads"),
		DuplicateWindow:         mustDuration(getEnv("DUPLICATE_WINDOW", "24h")),
		ExclusivityWindow:       mustDuration(getEnv("EXCLUSIVITY_WINDOW", "24h")),
		RotationScope:           strings.ToLower(getEnv("ROTATION_SCOPE", "industry")),
		ExclusiveMaxAgencies:    int(mustInt64(getEnv("EXCLUSIVE_MAX_AGENCIES", "3"))),
		IntakeAliasesFile:       getEnv("INTAKE_ALIASES_FILE", ""),
		IntakeRatePerMinute:     int(mustInt64(getEnv("INTAKE_RATE_PER_MINUTE", "120"))),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.IsSMTPEnabled() && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when SMTP_HOST is set")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.RotationScope != "industry" && cfg.RotationScope != "global" {
		return nil, fmt.Errorf("ROTATION_SCOPE must be industry or global, got %q", cfg.RotationScope)
	}
	if cfg.DuplicateWindow <= 0 || cfg.ExclusivityWindow <= 0 {
		return nil, fmt.Errorf("DUPLICATE_WINDOW and EXCLUSIVITY_WINDOW must be positive durations")
	}
	if cfg.ExclusiveMaxAgencies < 1 {
		cfg.ExclusiveMaxAgencies = 1
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
