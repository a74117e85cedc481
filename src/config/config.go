package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// AppConfig holds all configuration for the application.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	Port         string
	DatabasePath string
	LogLevel     string

	// Ledger settings
	BaseCurrency         string
	WashSalePolicyPath   string
	DefaultLossThreshold decimal.Decimal
	MaxImportSizeBytes   int64

	// Cache settings
	ReportCacheTTL     time.Duration
	ReportCacheCleanup time.Duration
	PriceCacheTTL      time.Duration

	// HTTP settings
	RateLimitRPS   int
	RateLimitBurst int
	AllowedOrigins []string
}

// Cfg is a global instance of the AppConfig.
var Cfg *AppConfig

// Default returns the configuration used when no environment overrides are present.
func Default() *AppConfig {
	return &AppConfig{
		Port:                 "8080",
		DatabasePath:         "./ledger.db",
		LogLevel:             "info",
		BaseCurrency:         "USD",
		DefaultLossThreshold: decimal.Zero,
		MaxImportSizeBytes:   10 * 1024 * 1024,
		ReportCacheTTL:       15 * time.Minute,
		ReportCacheCleanup:   30 * time.Minute,
		PriceCacheTTL:        5 * time.Minute,
		RateLimitRPS:         10,
		RateLimitBurst:       30,
		AllowedOrigins:       []string{"http://localhost:3000"},
	}
}

// LoadConfig loads configuration from environment variables or a .env file.
func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		errEnv = godotenv.Load("../.env")
	}

	if errEnv != nil {
		if os.IsNotExist(errEnv) {
			log.Println("Info: No .env file found in current or parent directory. Relying on OS environment variables.")
		} else {
			log.Printf("Warning: Error loading .env file: %v. Relying on OS environment variables.", errEnv)
		}
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	def := Default()

	maxImportSizeBytesStr := getEnv("MAX_IMPORT_SIZE_BYTES", strconv.FormatInt(def.MaxImportSizeBytes, 10))
	maxImportSizeBytes, err := strconv.ParseInt(maxImportSizeBytesStr, 10, 64)
	if err != nil || maxImportSizeBytes <= 0 {
		log.Printf("WARNING: Invalid MAX_IMPORT_SIZE_BYTES format '%s'. Using default 10MB.", maxImportSizeBytesStr)
		maxImportSizeBytes = def.MaxImportSizeBytes
	}

	Cfg = &AppConfig{
		Port:         getEnv("PORT", def.Port),
		DatabasePath: getEnv("DATABASE_PATH", def.DatabasePath),
		LogLevel:     getEnv("LOG_LEVEL", def.LogLevel),

		BaseCurrency:         strings.ToUpper(getEnv("BASE_CURRENCY", def.BaseCurrency)),
		WashSalePolicyPath:   getEnv("WASH_SALE_POLICY_PATH", ""),
		DefaultLossThreshold: getEnvAsDecimal("DEFAULT_LOSS_THRESHOLD", def.DefaultLossThreshold),
		MaxImportSizeBytes:   maxImportSizeBytes,

		ReportCacheTTL:     getEnvAsDuration("REPORT_CACHE_TTL", def.ReportCacheTTL),
		ReportCacheCleanup: getEnvAsDuration("REPORT_CACHE_CLEANUP", def.ReportCacheCleanup),
		PriceCacheTTL:      getEnvAsDuration("PRICE_CACHE_TTL", def.PriceCacheTTL),

		RateLimitRPS:   getEnvAsInt("RATE_LIMIT_RPS", def.RateLimitRPS),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", def.RateLimitBurst),
		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", def.AllowedOrigins),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, Currency=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.BaseCurrency)
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

// getEnvAsInt retrieves an environment variable as an integer or returns a fallback.
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

// getEnvAsDuration retrieves an environment variable as a time.Duration or returns a fallback.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

// getEnvAsDecimal retrieves an environment variable as a decimal or returns a fallback.
func getEnvAsDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := decimal.NewFromString(strings.TrimSpace(valueStr)); err == nil {
		return value
	}
	log.Printf("Invalid decimal value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

// getEnvAsList parses a comma-separated variable.
func getEnvAsList(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
