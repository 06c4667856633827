// Package config reads terminal settings from the environment. A .env
// file in the working directory is loaded first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	TerminalID      string
	HTTPPort        string
	GRPCPort        string
	StoreBaseURL    string
	KafkaBrokers    []string
	KafkaTopic      string
	KafkaGroupID    string
	RedisAddr       string
	PollInterval    time.Duration
	RequestTimeout  time.Duration
	SubmitTimeout   time.Duration
	ShutdownTimeout time.Duration
	RatePerSecond   float64
	RatesFile       string
	LogLevel        string
	LogFormat       string
	Permissions     []string
}

// Load reads the configuration. Variables already set in the process
// environment win over the .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (*Config, error) {
	cfg := &Config{
		TerminalID:   getEnv("TERMINAL_ID", hostname()),
		HTTPPort:     getEnv("HTTP_PORT", "8080"),
		GRPCPort:     getEnv("GRPC_PORT", "50051"),
		StoreBaseURL: getEnv("STORE_BASE_URL", "http://localhost:8000/api"),
		KafkaBrokers: getList("KAFKA_BROKERS", "localhost:9092"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "pos.changes"),
		RedisAddr:    getEnv("REDIS_ADDR", ""),
		RatesFile:    getEnv("RATES_FILE", ""),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "json"),
		Permissions:  getList("PERMISSIONS", ""),
	}
	cfg.KafkaGroupID = getEnv("KAFKA_GROUP_ID", "terminal-"+cfg.TerminalID)

	var err error
	if cfg.PollInterval, err = getDuration("POLL_INTERVAL", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.SubmitTimeout, err = getDuration("SUBMIT_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.RatePerSecond, err = getFloat("STORE_RATE_PER_SECOND", 20); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getList(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %s", key, value)
	}
	return d, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func hostname() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "terminal"
}
