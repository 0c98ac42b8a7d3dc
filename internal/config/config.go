package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds all configuration for the application
type Config struct {
	// HTTP Server Configuration
	HTTPPort       int
	AllowedOrigins []string

	// Deployment flags
	Environment string
	LogLevel    string

	// Alert routing
	RulesFile      string
	DefaultChannel string

	// Slack Configuration
	SlackBotToken string
	SlackAppToken string
	SlackTeamID   string

	// Ingestion Configuration
	IngestToken string
	SQSQueueURL string
	WorkerCount int
	QueueDepth  int

	// Storage Configuration
	DatabaseDSN    string
	RedisURL       string
	AuditRetention string

	// Authentication Configuration
	AdminUsername     string
	AdminPasswordHash string
	JWTSecret         string
	JWTExpiryHours    int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}

	// HTTP Port for API server
	cfg.HTTPPort = getEnvAsIntOrDefault("HTTP_PORT", 3000)
	cfg.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))

	// Deployment flags; LogLevel controls database query logging
	cfg.Environment = getEnvOrDefault("ENVIRONMENT", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "warn")

	// Alert routing rules; the file may not exist yet when the config
	// lives only in the database. DefaultChannel catches rules-less
	// alerts when no "default" entry is configured.
	cfg.RulesFile = getEnvOrDefault("RULES_FILE", "config/rules.yaml")
	cfg.DefaultChannel = os.Getenv("DEFAULT_CHANNEL")

	// Slack tokens; both are required for Socket Mode delivery
	cfg.SlackBotToken = os.Getenv("SLACK_BOT_TOKEN")
	cfg.SlackAppToken = os.Getenv("SLACK_APP_TOKEN")
	cfg.SlackTeamID = os.Getenv("SLACK_TEAM_ID")

	// Ingestion configuration
	cfg.IngestToken = os.Getenv("INGEST_TOKEN")
	cfg.SQSQueueURL = os.Getenv("SQS_QUEUE_URL")
	cfg.WorkerCount = getEnvAsIntOrDefault("WORKER_COUNT", 4)
	cfg.QueueDepth = getEnvAsIntOrDefault("QUEUE_DEPTH", 256)

	// Storage: both are optional, with in-memory fallbacks
	cfg.DatabaseDSN = os.Getenv("DATABASE_DSN")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.AuditRetention = getEnvOrDefault("AUDIT_RETENTION", "30d")

	// Authentication configuration
	cfg.AdminUsername = getEnvOrDefault("ADMIN_USERNAME", "admin")
	cfg.AdminPasswordHash = os.Getenv("ADMIN_PASSWORD_HASH") // No default - auth is off without it
	cfg.JWTExpiryHours = getEnvAsIntOrDefault("JWT_EXPIRY_HOURS", 24)

	// JWT Secret: auto-generate and persist if not provided via env var
	cfg.JWTSecret = loadOrGenerateJWTSecret(getEnvOrDefault("JWT_SECRET_FILE", "/var/lib/alertdeck/.jwt_secret"))

	return cfg, nil
}

// AuthEnabled reports whether the admin API requires a login.
func (c *Config) AuthEnabled() bool {
	return c.AdminPasswordHash != ""
}

// loadOrGenerateJWTSecret loads JWT secret from file or generates a new one
func loadOrGenerateJWTSecret(secretPath string) string {
	// First check if JWT_SECRET env var is set (allows override)
	if envSecret := os.Getenv("JWT_SECRET"); envSecret != "" {
		log.Printf("Using JWT secret from environment variable")
		return envSecret
	}

	// Try to load existing secret from file
	if data, err := os.ReadFile(secretPath); err == nil {
		secret := strings.TrimSpace(string(data))
		if secret != "" {
			log.Printf("Loaded JWT secret from %s", secretPath)
			return secret
		}
	}

	// Generate new secret
	secret := generateSecureSecret(32) // 256 bits

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(secretPath), 0755); err != nil {
		log.Printf("Warning: Could not create directory for JWT secret: %v", err)
		return secret
	}

	// Save secret to file
	if err := os.WriteFile(secretPath, []byte(secret), 0600); err != nil {
		log.Printf("Warning: Could not save JWT secret to file: %v", err)
	} else {
		log.Printf("Generated and saved new JWT secret to %s", secretPath)
	}

	return secret
}

// generateSecureSecret generates a cryptographically secure random string
func generateSecureSecret(bytes int) string {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		// Fallback to a less secure but functional default (should never happen)
		log.Printf("Warning: Could not generate secure random bytes: %v", err)
		return "fallback-insecure-secret-please-set-jwt-secret-env"
	}
	return hex.EncodeToString(b)
}

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault returns the value of an environment variable as an integer or a default value
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// splitList parses a comma-separated environment value.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
