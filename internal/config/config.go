// Package config handles application configuration.
package config

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// Database
	DatabaseURL string

	// Authentication (Supabase-issued HS256 access tokens)
	JWTSecret     string
	EncryptionKey []byte // 32-byte key for AES-256-GCM encryption of PII at rest

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string

	// CORS
	CORSOrigins []string

	// Generation pipeline
	PipelineMode      string        // "live" or "mock"
	PromptServiceURL  string        // prompt synthesis endpoint (live mode)
	ImageServiceURL   string        // image generation endpoint (live mode)
	ImageServiceToken string        // bearer token for the image provider
	PollInterval      time.Duration // how often to poll a generation job (default 1s)
	PollBudget        time.Duration // max wall-clock time per generation (default 10m)

	// Credits
	WelcomeBonusCredits  int // granted on first balance access
	SuggestionCostCredit int // cost of applying one suggestion

	// Object Storage (S3-compatible) for mirroring generated images
	StorageEnabled   bool
	StorageEndpoint  string // AWS_ENDPOINT_URL_S3
	StorageAccessKey string // AWS_ACCESS_KEY_ID
	StorageSecretKey string // AWS_SECRET_ACCESS_KEY
	StorageBucket    string
	StorageRegion    string
	ResultRetention  time.Duration // mirrored images older than this get cleaned up
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		DatabaseURL: getEnv("DATABASE_URL", "file:roomvibe.db?_journal=WAL&_timeout=5000"),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),

		PipelineMode:      getEnv("PIPELINE_MODE", "live"),
		PromptServiceURL:  getEnv("PROMPT_SERVICE_URL", ""),
		ImageServiceURL:   getEnv("IMAGE_SERVICE_URL", ""),
		ImageServiceToken: getEnv("IMAGE_SERVICE_TOKEN", ""),
		PollInterval:      getEnvDuration("GENERATION_POLL_INTERVAL", time.Second),
		PollBudget:        getEnvDuration("GENERATION_POLL_BUDGET", 10*time.Minute),

		WelcomeBonusCredits:  getEnvInt("WELCOME_BONUS_CREDITS", 10),
		SuggestionCostCredit: getEnvInt("SUGGESTION_COST_CREDITS", 1),

		StorageEndpoint:  getEnv("AWS_ENDPOINT_URL_S3", ""),
		StorageAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StorageBucket:    getEnv("STORAGE_BUCKET", ""),
		StorageRegion:    getEnv("AWS_REGION", "auto"),
		ResultRetention:  getEnvDuration("RESULT_RETENTION", 30*24*time.Hour),
	}

	// Enable storage if bucket is configured
	cfg.StorageEnabled = cfg.StorageBucket != "" && cfg.StorageEndpoint != ""

	if cfg.PipelineMode != "live" && cfg.PipelineMode != "mock" {
		return nil, fmt.Errorf("PIPELINE_MODE must be \"live\" or \"mock\", got %q", cfg.PipelineMode)
	}
	if cfg.WelcomeBonusCredits < 0 {
		return nil, fmt.Errorf("WELCOME_BONUS_CREDITS must not be negative")
	}
	if cfg.SuggestionCostCredit < 1 {
		return nil, fmt.Errorf("SUGGESTION_COST_CREDITS must be at least 1")
	}
	if cfg.ResultRetention <= 0 {
		return nil, fmt.Errorf("RESULT_RETENTION must be positive")
	}

	// Set up encryption key (derive from JWT secret if not explicitly set)
	encKeyStr := getEnv("ENCRYPTION_KEY", "")
	if encKeyStr != "" {
		decoded, err := base64.StdEncoding.DecodeString(encKeyStr)
		if err != nil || len(decoded) != 32 {
			return nil, fmt.Errorf("ENCRYPTION_KEY must be a base64-encoded 32-byte key")
		}
		cfg.EncryptionKey = decoded
	} else if cfg.JWTSecret != "" {
		cfg.EncryptionKey = deriveEncryptionKey(cfg.JWTSecret)
	}

	return cfg, nil
}

// IsMockPipeline returns true when the simulated generation backend is selected.
func (c *Config) IsMockPipeline() bool {
	return c.PipelineMode == "mock"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// deriveEncryptionKey creates a 32-byte AES-256 key from a secret string using
// HKDF with SHA-256. Appropriate for high-entropy secrets like JWT secrets.
func deriveEncryptionKey(secret string) []byte {
	salt := []byte("roomvibe-api-encryption-key-v1")
	info := []byte("aes-256-gcm-encryption")

	hkdfReader := hkdf.New(sha256.New, []byte(secret), salt, info)

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		panic("hkdf: failed to derive key: " + err.Error())
	}

	return key
}
