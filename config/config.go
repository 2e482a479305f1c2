package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // QUOTA_TIMEZONE must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"

	"signalHub/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all process-level configuration.
type Config struct {
	// Binance
	IsTestnet bool

	// Reference data (tiers, priority map, accounts, bindings)
	ReferenceConfigPath string

	// Scheduler
	ScanInterval       time.Duration
	CandleCount        int
	MinConfidence      int
	NewsAvoidWindow    time.Duration
	Cooldown           time.Duration // Negative disables the cooldown
	DryRun             bool          // Publish signals but never execute
	AutostartScheduler bool

	// Dispatch
	QuotaLocation   *time.Location // Calendar used to reset daily quotas
	DispatchWorkers int
	SweepInterval   time.Duration

	// Telegram
	TelegramBotToken string // Empty logs messages instead of sending them

	// Redis candle cache (disabled when RedisAddr is empty)
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	CandleCacheTTL time.Duration

	// Kafka event stream (disabled when KafkaBrokers is empty)
	KafkaBrokers     []string
	KafkaSignalTopic string
	KafkaStatusTopic string

	// HTTP control surface
	HTTPHost string
	HTTPPort int

	// Database
	DBPath string

	// Logging
	LogLevel  logger.LogLevel
	LogFormat string
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	cfg.ReferenceConfigPath = getEnv("REFERENCE_CONFIG_PATH", "./config/reference.yaml")

	// Scheduler
	intervalSeconds, err := getEnvAsIntRequired("SCAN_INTERVAL_SECONDS", 30)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SCAN_INTERVAL_SECONDS: %v", err))
	} else if intervalSeconds <= 0 {
		errs = append(errs, "SCAN_INTERVAL_SECONDS must be positive")
	}
	cfg.ScanInterval = time.Duration(intervalSeconds) * time.Second

	cfg.CandleCount, err = getEnvAsIntRequired("CANDLE_COUNT", 100)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CANDLE_COUNT: %v", err))
	} else if cfg.CandleCount < 20 || cfg.CandleCount > 1500 {
		errs = append(errs, "CANDLE_COUNT must be between 20 and 1500")
	}

	cfg.MinConfidence, err = getEnvAsIntRequired("MIN_CONFIDENCE", 40)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_CONFIDENCE: %v", err))
	} else if cfg.MinConfidence < 0 || cfg.MinConfidence > 100 {
		errs = append(errs, "MIN_CONFIDENCE must be between 0 and 100")
	}

	cfg.NewsAvoidWindow = time.Duration(getEnvAsInt("NEWS_AVOID_MINUTES", 30)) * time.Minute
	cfg.Cooldown = time.Duration(getEnvAsInt("COOLDOWN_MINUTES", 15)) * time.Minute
	cfg.DryRun = getEnvAsBool("DRY_RUN", false)
	cfg.AutostartScheduler = getEnvAsBool("AUTOSTART_SCHEDULER", false)

	// Dispatch
	tz := getEnv("QUOTA_TIMEZONE", "UTC")
	cfg.QuotaLocation, err = time.LoadLocation(tz)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid QUOTA_TIMEZONE %q: %v", tz, err))
	}

	cfg.DispatchWorkers = getEnvAsInt("DISPATCH_WORKERS", 4)
	if cfg.DispatchWorkers <= 0 {
		errs = append(errs, "DISPATCH_WORKERS must be positive")
	}
	sweepSeconds := getEnvAsInt("DISPATCH_SWEEP_SECONDS", 30)
	if sweepSeconds <= 0 {
		errs = append(errs, "DISPATCH_SWEEP_SECONDS must be positive")
	}
	cfg.SweepInterval = time.Duration(sweepSeconds) * time.Second

	cfg.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", "")

	// Redis
	cfg.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB = getEnvAsInt("REDIS_DB", 0)
	cfg.CandleCacheTTL = time.Duration(getEnvAsInt("CANDLE_CACHE_TTL_SECONDS", 20)) * time.Second

	// Kafka
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	cfg.KafkaSignalTopic = getEnv("KAFKA_SIGNAL_TOPIC", "signals")
	cfg.KafkaStatusTopic = getEnv("KAFKA_STATUS_TOPIC", "signal-status")

	// HTTP
	cfg.HTTPHost = getEnv("HTTP_HOST", "0.0.0.0")
	cfg.HTTPPort, err = getEnvAsIntRequired("HTTP_PORT", 8080)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid HTTP_PORT: %v", err))
	} else if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		errs = append(errs, "HTTP_PORT must be between 1 and 65535")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/signal_hub.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package
	cfg.LogFormat = getEnv("LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		errs = append(errs, "LOG_FORMAT must be json or console")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
