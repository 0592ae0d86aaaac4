package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DatabaseURL  string
	DBMaxConns   int32
	HTTPPort     string
	AdminAPIKey  string
	OracleAPIKey string

	ReliabilityStrategy string
	ReliabilityReward   float64
	ReliabilityPenalty  float64
	ReliabilityEMAAlpha float64

	ReconcileInterval time.Duration
	ExportInterval    time.Duration

	GoogleSpreadsheetID   string
	GoogleCredentialsJSON string
}

// Load reads configuration from an optional .env file and the environment,
// falling back to defaults for anything unset or malformed.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		DatabaseURL:           envOrDefaultWarn("DATABASE_URL", ""),
		DBMaxConns:            int32(envOrDefaultInt("DB_MAX_CONNS", 10)),
		HTTPPort:              envOrDefault("HTTP_PORT", "8080"),
		AdminAPIKey:           envOrDefault("ADMIN_API_KEY", ""),
		OracleAPIKey:          envOrDefault("ORACLE_API_KEY", ""),
		ReliabilityStrategy:   envOrDefault("RELIABILITY_STRATEGY", "fixed"),
		ReliabilityReward:     envOrDefaultFloat("RELIABILITY_REWARD", 5),
		ReliabilityPenalty:    envOrDefaultFloat("RELIABILITY_PENALTY", 10),
		ReliabilityEMAAlpha:   envOrDefaultFloat("RELIABILITY_EMA_ALPHA", 0.2),
		ReconcileInterval:     envOrDefaultDuration("RECONCILE_INTERVAL", 15*time.Minute),
		ExportInterval:        envOrDefaultDuration("EXPORT_INTERVAL", 24*time.Hour),
		GoogleSpreadsheetID:   envOrDefault("GOOGLE_SPREADSHEET_ID", ""),
		GoogleCredentialsJSON: envOrDefault("GOOGLE_CREDENTIALS_JSON", ""),
	}
}

// SheetsEnabled reports whether the Google Sheets export is configured.
func (c Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != "" && c.GoogleCredentialsJSON != ""
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultWarn(key, defaultVal string) string {
	v := envOrDefault(key, defaultVal)
	if v == "" {
		slog.Warn("env var not set", "key", key)
	}
	return v
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			slog.Warn("invalid float env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return f
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}
