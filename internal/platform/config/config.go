package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server reads from the environment so main
// stays lean.
type Config struct {
	Addr        string
	Environment string

	DatabaseURL string
	RedisURL    string

	// TokenSigningKey verifies incoming HS256 access tokens.
	TokenSigningKey string

	Kafka KafkaConfig

	Audit AuditConfig

	TokenExchange TokenExchangeConfig

	Keycloak KeycloakConfig

	// SeedDemoData loads demo services and profiles on startup. Development
	// environments only.
	SeedDemoData bool
}

// KafkaConfig holds the optional Kafka audit sink settings.
type KafkaConfig struct {
	Brokers    string
	AuditTopic string
}

// AuditConfig holds the audit logging toggles. The log-line and database
// sinks are independent; enabling one never requires the other.
type AuditConfig struct {
	Enabled          bool
	LogToDB          bool
	LogToKafka       bool
	LogUsername      bool
	UseXForwardedFor bool

	// SystemClients lists OAuth client ids whose actions are attributed to
	// the SYSTEM actor role instead of ADMIN.
	SystemClients []string
}

// TokenExchangeConfig describes the OIDC provider used to obtain per-service
// API tokens for GDPR calls.
type TokenExchangeConfig struct {
	// IssuerURL is the base URL of the identity provider; the well-known
	// OIDC configuration document is discovered under it.
	IssuerURL string
	// APITokensPath is the provider-specific endpoint returning a map of
	// per-audience API tokens for an access token.
	APITokensPath string
	ClientID      string
	ClientSecret  string
	Timeout       time.Duration
}

// KeycloakConfig describes the identity provider admin API used to remove
// user accounts after a full profile deletion. Empty BaseURL disables it.
type KeycloakConfig struct {
	BaseURL      string
	Realm        string
	ClientID     string
	ClientSecret string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:            envOr("PROFILE_ADDR", ":8080"),
		Environment:     envOr("ENVIRONMENT", "development"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		TokenSigningKey: os.Getenv("TOKEN_SIGNING_KEY"),
		Kafka: KafkaConfig{
			Brokers:    os.Getenv("KAFKA_BROKERS"),
			AuditTopic: envOr("KAFKA_AUDIT_TOPIC", "profile.audit"),
		},
		Audit: AuditConfig{
			Enabled:          envBool("AUDIT_LOGGING_ENABLED", true),
			LogToDB:          envBool("AUDIT_LOG_TO_DB_ENABLED", false),
			LogToKafka:       envBool("AUDIT_LOG_TO_KAFKA_ENABLED", false),
			LogUsername:      envBool("AUDIT_LOG_USERNAME", false),
			UseXForwardedFor: envBool("USE_X_FORWARDED_FOR", false),
			SystemClients:    envList("AUDIT_SYSTEM_CLIENT_IDS"),
		},
		TokenExchange: TokenExchangeConfig{
			IssuerURL:     os.Getenv("TOKEN_EXCHANGE_ISSUER_URL"),
			APITokensPath: envOr("TOKEN_EXCHANGE_API_TOKENS_PATH", "/api-tokens/"),
			ClientID:      os.Getenv("TOKEN_EXCHANGE_CLIENT_ID"),
			ClientSecret:  os.Getenv("TOKEN_EXCHANGE_CLIENT_SECRET"),
			Timeout:       envDuration("TOKEN_EXCHANGE_TIMEOUT", 5*time.Second),
		},
		Keycloak: KeycloakConfig{
			BaseURL:      os.Getenv("KEYCLOAK_BASE_URL"),
			Realm:        envOr("KEYCLOAK_REALM", "helsinki"),
			ClientID:     os.Getenv("KEYCLOAK_ADMIN_CLIENT_ID"),
			ClientSecret: os.Getenv("KEYCLOAK_ADMIN_CLIENT_SECRET"),
		},
		SeedDemoData: envBool("SEED_DEMO_DATA", false),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
