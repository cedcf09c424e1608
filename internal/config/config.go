package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL    string
	DBMaxOpenConns int

	// Lending
	LoanPeriodDays int

	// Worker
	OverdueSweepInterval time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitLending int

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、または値が範囲外の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 25)
	cfg.LoanPeriodDays = getEnvInt("LOAN_PERIOD_DAYS", 14)
	cfg.OverdueSweepInterval = getEnvDuration("OVERDUE_SWEEP_INTERVAL", time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLending = getEnvInt("RATE_LIMIT_LENDING", 30)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if cfg.LoanPeriodDays <= 0 {
		return nil, fmt.Errorf("LOAN_PERIOD_DAYS must be positive: %d", cfg.LoanPeriodDays)
	}
	if cfg.RateLimitGeneral <= 0 || cfg.RateLimitLending <= 0 {
		return nil, fmt.Errorf("rate limits must be positive: general=%d lending=%d", cfg.RateLimitGeneral, cfg.RateLimitLending)
	}
	if cfg.OverdueSweepInterval <= 0 {
		return nil, fmt.Errorf("OVERDUE_SWEEP_INTERVAL must be positive: %s", cfg.OverdueSweepInterval)
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
