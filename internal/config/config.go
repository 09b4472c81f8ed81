package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Portfolio PortfolioConfig
	Exchange  ExchangeConfig
	Scheduler SchedulerConfig
	CORS      CORSConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port string
	Host string
	Addr string // Combined host:port for convenience
}

// StorageConfig holds file-storage configuration for the ledger and the
// snapshot history. Backend selects the physical ledger encoding: "json"
// (structured document) or "csv" (flat table with a JSON meta sidecar).
type StorageConfig struct {
	DataDir string
	Backend string
}

// DatabaseConfig holds the sqlite candle cache location.
type DatabaseConfig struct {
	Path string
}

// PortfolioConfig holds valuation parameters.
type PortfolioConfig struct {
	RefFiat       string
	MinUSDIgnore  float64
	AlwaysInclude []string
	BackfillDays  int
}

// ExchangeConfig holds HTX API access settings.
type ExchangeConfig struct {
	Host      string
	AccessKey string
	SecretKey string
	AccountID string
}

// SchedulerConfig holds the valuation cycle cadence.
type SchedulerConfig struct {
	PullInterval time.Duration
}

// CORSConfig holds CORS-specific configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// Load reads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	minUSD, err := getEnvFloat("MIN_USD_IGNORE", 10)
	if err != nil {
		return nil, err
	}
	backfillDays, err := getEnvInt("BACKFILL_DAYS", 180)
	if err != nil {
		return nil, err
	}
	pullInterval, err := getEnvDuration("PULL_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "localhost"),
		},
		Storage: StorageConfig{
			DataDir: getEnv("DATA_DIR", "./data"),
			Backend: strings.ToLower(getEnv("STORAGE_BACKEND", "json")),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/candles.db"),
		},
		Portfolio: PortfolioConfig{
			RefFiat:       getEnv("REF_FIAT", "USD"),
			MinUSDIgnore:  minUSD,
			AlwaysInclude: splitList(getEnv("ALWAYS_INCLUDE", "")),
			BackfillDays:  backfillDays,
		},
		Exchange: ExchangeConfig{
			Host:      getEnv("HTX_API_HOST", "api.huobi.pro"),
			AccessKey: getEnv("HTX_ACCESS_KEY", ""),
			SecretKey: getEnv("HTX_SECRET_KEY", ""),
			AccountID: getEnv("HTX_ACCOUNT_ID", ""),
		},
		Scheduler: SchedulerConfig{
			PullInterval: pullInterval,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://localhost",
			},
		},
	}

	// Combine host and port
	config.Server.Addr = fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port)

	return config, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// splitList parses a comma-separated list, trimming blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, strings.ToUpper(trimmed))
		}
	}
	return out
}
