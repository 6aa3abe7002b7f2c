package scheduler

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the checker daemon reads from the
// environment. Durations are given in whole seconds.
type Config struct {
	Database DatabaseConfig
	Checker  CheckerConfig
	HTTPPort string
	PidFile  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN builds the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// LoadConfig reads the environment, after loading .env when one is
// present. Missing variables fall back to their defaults; a variable that
// is set but unparsable is an error rather than a silent fallback.
func LoadConfig() (*Config, error) {
	// Not having a .env file is the normal production case.
	_ = godotenv.Load()

	dbPort, err := getEnvInt("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}

	interval, err := getEnvSeconds("CHECKER_INTERVAL", DefaultInterval)
	if err != nil {
		return nil, err
	}

	executeTimeout, err := getEnvSeconds("EXECUTE_TIMEOUT", DefaultExecuteTimeout)
	if err != nil {
		return nil, err
	}

	enqueueTTL, err := getEnvSeconds("ENQUEUE_TTL", DefaultEnqueueTTL)
	if err != nil {
		return nil, err
	}

	resultTTL, err := getEnvSeconds("RESULT_TTL", DefaultResultTTL)
	if err != nil {
		return nil, err
	}

	advance, err := getEnvBool("CHECKER_ADVANCE_ON_ENQUEUE_FAILURE", true)
	if err != nil {
		return nil, err
	}

	return &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "127.0.0.1"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "scheduler"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Checker: CheckerConfig{
			Interval:             interval,
			ExecuteTimeout:       executeTimeout,
			EnqueueTTL:           enqueueTTL,
			ResultTTL:            resultTTL,
			HoldOnEnqueueFailure: !advance,
		},
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		PidFile:  getEnv("CHECKER_PID_FILE", ""),
	}, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return n, nil
}

func getEnvSeconds(key string, fallback time.Duration) (time.Duration, error) {
	n, err := getEnvInt(key, int(fallback/time.Second))
	if err != nil {
		return 0, err
	}

	return time.Duration(n) * time.Second, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}

	return b, nil
}
