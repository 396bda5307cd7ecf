// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported identity provider backends.
const (
	IdentityBackendMemory   = "memory"
	IdentityBackendKeycloak = "keycloak"
)

// Supported document store backends.
const (
	DocStoreBackendMemory   = "memory"
	DocStoreBackendRedis    = "redis"
	DocStoreBackendPostgres = "postgres"
	DocStoreBackendMinIO    = "minio"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// GatewayConfig provides settings for browser session handling.
type GatewayConfig interface {
	GetGatewaySecret() string
	GetGatewayIdleTTL() time.Duration
	GetGatewayCookieName() string
	GetGatewayCookieSecure() bool
	GetGatewayCookieSameSite() http.SameSite
}

// AccountConfig provides settings for the account routes and session controllers.
type AccountConfig interface {
	GetOperatorIDs() []string
	GetSessionCompatLogs() bool
}

// KeycloakConfig provides settings for the Keycloak identity backend.
type KeycloakConfig interface {
	GetKeycloakIssuer() string
	GetKeycloakClientID() string
	GetKeycloakClientSecret() string
	GetKeycloakAdminClientID() string
	GetKeycloakAdminClientSecret() string
}

// RedisConfig provides the Redis connection used by the document store and scheduler.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// SchedulerConfig provides settings for the background cleanup worker.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOBucket() string
	IsMinIOEnabled() bool
}

// EmailConfig provides settings for SMTP email sending.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetAppBaseURL() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                       string
	HTTPAddr                  string
	CORSOrigins               []string
	CORSAllowCreds            bool
	AppBaseURL                string
	IdentityBackend           string
	DocStoreBackend           string
	DatabaseURL               string
	RedisURL                  string
	RedisTLSInsecure          bool
	AsynqQueueName            string
	AsynqConcurrency          int
	GatewaySecret             string
	GatewayIdleTTL            time.Duration
	GatewayCookieName         string
	GatewayCookieSecure       bool
	GatewayCookieSameSite     http.SameSite
	OperatorIDs               []string
	SessionCompatLogs         bool
	KeycloakIssuer            string
	KeycloakClientID          string
	KeycloakClientSecret      string
	KeycloakAdminClientID     string
	KeycloakAdminClientSecret string
	MinIOEndpoint             string
	MinIOAccessKey            string
	MinIOSecretKey            string
	MinIOUseSSL               bool
	MinIOBucket               string
	EmailEnabled              bool
	SMTPHost                  string
	SMTPPort                  int
	SMTPUsername              string
	SMTPPassword              string
	EmailFromName             string
	EmailFromAddress          string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// GatewayConfig implementation
func (c *Config) GetGatewaySecret() string                { return c.GatewaySecret }
func (c *Config) GetGatewayIdleTTL() time.Duration        { return c.GatewayIdleTTL }
func (c *Config) GetGatewayCookieName() string            { return c.GatewayCookieName }
func (c *Config) GetGatewayCookieSecure() bool            { return c.GatewayCookieSecure }
func (c *Config) GetGatewayCookieSameSite() http.SameSite { return c.GatewayCookieSameSite }

// AccountConfig implementation
func (c *Config) GetOperatorIDs() []string  { return c.OperatorIDs }
func (c *Config) GetSessionCompatLogs() bool { return c.SessionCompatLogs }

// KeycloakConfig implementation
func (c *Config) GetKeycloakIssuer() string            { return c.KeycloakIssuer }
func (c *Config) GetKeycloakClientID() string          { return c.KeycloakClientID }
func (c *Config) GetKeycloakClientSecret() string      { return c.KeycloakClientSecret }
func (c *Config) GetKeycloakAdminClientID() string     { return c.KeycloakAdminClientID }
func (c *Config) GetKeycloakAdminClientSecret() string { return c.KeycloakAdminClientSecret }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string  { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool      { return c.MinIOUseSSL }
func (c *Config) GetMinIOBucket() string    { return c.MinIOBucket }
func (c *Config) IsMinIOEnabled() bool      { return c.MinIOEndpoint != "" }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) GetAppBaseURL() string       { return c.AppBaseURL }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return fromEnv()
}

func fromEnv() (*Config, error) {
	env := getEnv("APP_ENV", "development")

	cookieSecure := strings.EqualFold(getEnv("GATEWAY_COOKIE_SECURE", ""), "true")
	if getEnv("GATEWAY_COOKIE_SECURE", "") == "" {
		cookieSecure = strings.EqualFold(env, "production")
	}

	smtpHost := getEnv("SMTP_HOST", "")

	cfg := &Config{
		Env:                       env,
		HTTPAddr:                  getEnv("HTTP_ADDR", ":8080"),
		CORSOrigins:               splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200")),
		CORSAllowCreds:            strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:                getEnv("APP_BASE_URL", "http://localhost:4200"),
		IdentityBackend:           strings.ToLower(getEnv("IDENTITY_BACKEND", IdentityBackendMemory)),
		DocStoreBackend:           strings.ToLower(getEnv("DOCSTORE_BACKEND", DocStoreBackendMemory)),
		DatabaseURL:               getEnv("DATABASE_URL", ""),
		RedisURL:                  getEnv("REDIS_URL", ""),
		RedisTLSInsecure:          strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:            getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:          mustInt(getEnv("ASYNQ_CONCURRENCY", "5")),
		GatewaySecret:             getEnv("GATEWAY_SECRET", ""),
		GatewayIdleTTL:            mustDuration(getEnv("GATEWAY_IDLE_TTL", "30m")),
		GatewayCookieName:         getEnv("GATEWAY_COOKIE_NAME", "account_session"),
		GatewayCookieSecure:       cookieSecure,
		GatewayCookieSameSite:     parseSameSite(getEnv("GATEWAY_COOKIE_SAMESITE", "Lax")),
		OperatorIDs:               splitCSV(getEnv("OPERATOR_IDS", "")),
		SessionCompatLogs:         strings.EqualFold(getEnv("SESSION_COMPAT_LOGS", "false"), "true"),
		KeycloakIssuer:            strings.TrimRight(getEnv("KEYCLOAK_ISSUER", ""), "/"),
		KeycloakClientID:          getEnv("KEYCLOAK_CLIENT_ID", ""),
		KeycloakClientSecret:      getEnv("KEYCLOAK_CLIENT_SECRET", ""),
		KeycloakAdminClientID:     getEnv("KEYCLOAK_ADMIN_CLIENT_ID", ""),
		KeycloakAdminClientSecret: getEnv("KEYCLOAK_ADMIN_CLIENT_SECRET", ""),
		MinIOEndpoint:             getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:            getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:            getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:               strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinIOBucket:               getEnv("MINIO_BUCKET", "account-documents"),
		EmailEnabled:              smtpHost != "" && strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true"),
		SMTPHost:                  smtpHost,
		SMTPPort:                  mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:              getEnv("SMTP_USERNAME", ""),
		SMTPPassword:              getEnv("SMTP_PASSWORD", ""),
		EmailFromName:             getEnv("EMAIL_FROM_NAME", "Accounts"),
		EmailFromAddress:          getEnv("EMAIL_FROM_ADDRESS", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.GatewaySecret == "" {
		return fmt.Errorf("GATEWAY_SECRET is required")
	}
	if c.GatewayIdleTTL <= 0 {
		return fmt.Errorf("GATEWAY_IDLE_TTL must be a positive duration")
	}

	switch c.IdentityBackend {
	case IdentityBackendMemory:
	case IdentityBackendKeycloak:
		if c.KeycloakIssuer == "" || c.KeycloakClientID == "" {
			return fmt.Errorf("KEYCLOAK_ISSUER and KEYCLOAK_CLIENT_ID are required for the keycloak backend")
		}
		if c.KeycloakAdminClientID == "" || c.KeycloakAdminClientSecret == "" {
			return fmt.Errorf("KEYCLOAK_ADMIN_CLIENT_ID and KEYCLOAK_ADMIN_CLIENT_SECRET are required for the keycloak backend")
		}
	default:
		return fmt.Errorf("unsupported IDENTITY_BACKEND %q", c.IdentityBackend)
	}

	switch c.DocStoreBackend {
	case DocStoreBackendMemory:
	case DocStoreBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis document store")
		}
	case DocStoreBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres document store")
		}
	case DocStoreBackendMinIO:
		if !c.IsMinIOEnabled() {
			return fmt.Errorf("MINIO_ENDPOINT is required for the minio document store")
		}
	default:
		return fmt.Errorf("unsupported DOCSTORE_BACKEND %q", c.DocStoreBackend)
	}

	if c.EmailEnabled && c.EmailFromAddress == "" {
		return fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	return nil
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

func mustInt(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return n
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

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "none":
		return http.SameSiteNoneMode
	case "strict":
		return http.SameSiteStrictMode
	default:
		return http.SameSiteLaxMode
	}
}
