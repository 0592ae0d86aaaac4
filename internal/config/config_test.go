package config

import (
	"os"
	"testing"
	"time"
)

var keys = []string{
	"DATABASE_URL", "DB_MAX_CONNS", "HTTP_PORT", "ADMIN_API_KEY", "ORACLE_API_KEY",
	"RELIABILITY_STRATEGY", "RELIABILITY_REWARD", "RELIABILITY_PENALTY", "RELIABILITY_EMA_ALPHA",
	"RECONCILE_INTERVAL", "EXPORT_INTERVAL", "GOOGLE_SPREADSHEET_ID", "GOOGLE_CREDENTIALS_JSON",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.DBMaxConns != 10 {
		t.Errorf("DBMaxConns = %d, want 10", cfg.DBMaxConns)
	}
	if cfg.HTTPPort != "8080" {
		t.Errorf("HTTPPort = %q, want 8080", cfg.HTTPPort)
	}
	if cfg.ReliabilityStrategy != "fixed" {
		t.Errorf("ReliabilityStrategy = %q, want fixed", cfg.ReliabilityStrategy)
	}
	if cfg.ReliabilityReward != 5 || cfg.ReliabilityPenalty != 10 {
		t.Errorf("reward/penalty = %v/%v, want 5/10", cfg.ReliabilityReward, cfg.ReliabilityPenalty)
	}
	if cfg.ReconcileInterval != 15*time.Minute {
		t.Errorf("ReconcileInterval = %v, want 15m", cfg.ReconcileInterval)
	}
	if cfg.ExportInterval != 24*time.Hour {
		t.Errorf("ExportInterval = %v, want 24h", cfg.ExportInterval)
	}
	if cfg.SheetsEnabled() {
		t.Error("SheetsEnabled() = true, want false without credentials")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/testdb")
	t.Setenv("DB_MAX_CONNS", "25")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("ADMIN_API_KEY", "admin")
	t.Setenv("ORACLE_API_KEY", "oracle")
	t.Setenv("RELIABILITY_STRATEGY", "ema")
	t.Setenv("RELIABILITY_EMA_ALPHA", "0.5")
	t.Setenv("RECONCILE_INTERVAL", "1m")
	t.Setenv("GOOGLE_SPREADSHEET_ID", "sheet")
	t.Setenv("GOOGLE_CREDENTIALS_JSON", "{}")

	cfg := Load()

	if cfg.DatabaseURL != "postgres://localhost/testdb" {
		t.Errorf("DatabaseURL = %q, want override", cfg.DatabaseURL)
	}
	if cfg.DBMaxConns != 25 {
		t.Errorf("DBMaxConns = %d, want 25", cfg.DBMaxConns)
	}
	if cfg.HTTPPort != "9090" {
		t.Errorf("HTTPPort = %q, want 9090", cfg.HTTPPort)
	}
	if cfg.AdminAPIKey != "admin" || cfg.OracleAPIKey != "oracle" {
		t.Errorf("keys = %q/%q, want admin/oracle", cfg.AdminAPIKey, cfg.OracleAPIKey)
	}
	if cfg.ReliabilityStrategy != "ema" || cfg.ReliabilityEMAAlpha != 0.5 {
		t.Errorf("strategy = %q alpha = %v, want ema 0.5", cfg.ReliabilityStrategy, cfg.ReliabilityEMAAlpha)
	}
	if cfg.ReconcileInterval != time.Minute {
		t.Errorf("ReconcileInterval = %v, want 1m", cfg.ReconcileInterval)
	}
	if !cfg.SheetsEnabled() {
		t.Error("SheetsEnabled() = false, want true")
	}
}

func TestLoadInvalidEnvFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_MAX_CONNS", "not-a-number")
	t.Setenv("RELIABILITY_REWARD", "lots")
	t.Setenv("EXPORT_INTERVAL", "invalid-duration")
	t.Setenv("RECONCILE_INTERVAL", "-5m")

	cfg := Load()

	if cfg.DBMaxConns != 10 {
		t.Errorf("DBMaxConns = %d, want default 10 on invalid input", cfg.DBMaxConns)
	}
	if cfg.ReliabilityReward != 5 {
		t.Errorf("ReliabilityReward = %v, want default 5 on invalid input", cfg.ReliabilityReward)
	}
	if cfg.ExportInterval != 24*time.Hour {
		t.Errorf("ExportInterval = %v, want default 24h on invalid input", cfg.ExportInterval)
	}
	if cfg.ReconcileInterval != 15*time.Minute {
		t.Errorf("ReconcileInterval = %v, want default 15m on negative input", cfg.ReconcileInterval)
	}
}
