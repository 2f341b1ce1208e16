package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds server configuration.
type Config struct {
	Port          string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	JWTSecret     string
	OTLPEndpoint  string
	SweepInterval time.Duration
	RateLimitRPS  int
	RenewalFile   string
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbURL := os.Getenv("DATABASE_URL")
	redisAddr := os.Getenv("REDIS_ADDR")

	sweepInterval := time.Hour
	if raw := os.Getenv("SWEEP_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			sweepInterval = d
		}
	}

	rps := 50
	if raw := os.Getenv("RATE_LIMIT_RPS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			rps = n
		}
	}

	return &Config{
		Port:          port,
		LogLevel:      logLevel,
		DatabaseURL:   dbURL,
		RedisAddr:     redisAddr,
		JWTSecret:     os.Getenv("JWT_SECRET"),
		OTLPEndpoint:  os.Getenv("OTLP_ENDPOINT"),
		SweepInterval: sweepInterval,
		RateLimitRPS:  rps,
		RenewalFile:   os.Getenv("RENEWAL_CONFIG_FILE"),
	}
}

// RenewalDefaults is the optional YAML file tuning renewal behavior.
type RenewalDefaults struct {
	RenewalPeriodMonths int `yaml:"renewalPeriodMonths"`
	LookaheadBufferDays int `yaml:"lookaheadBufferDays"`
}

// LoadRenewalDefaults reads renewal defaults from a YAML file. A missing
// path returns zero defaults without error.
func LoadRenewalDefaults(path string) (RenewalDefaults, error) {
	var d RenewalDefaults
	if path == "" {
		return d, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return d, fmt.Errorf("read renewal config: %w", err)
	}
	if err := yaml.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("parse renewal config: %w", err)
	}
	return d, nil
}
