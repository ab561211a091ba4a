// Package config handles environment variable loading for ports, database strings, etc.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string
	DatabaseURL string

	// HTTP server port for the controller
	HTTPPort int

	// Shared secret authorizing tenant provisioning calls
	AdminSecret string

	// Redis connection URL for cross-replica event fan-out; empty disables it
	RedisURL string

	// Base URL of the stage agent services
	AgentServiceURL string

	// OTLP collector address for trace export; empty disables tracing
	OTELCollectorAddr string

	// Platform-wide cap on concurrently running invocations per stage
	// variant. 0 means unlimited.
	VariantCap int

	// Delay before the first retry of a transient stage failure
	RetryBackoffBase time.Duration

	// How long a cancelled stage invocation may take to wind down
	CancelGrace time.Duration

	// DevMode swaps PostgreSQL for the in-memory store
	DevMode bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	devMode := os.Getenv("DEV_MODE") == "true"

	dbUrl := os.Getenv("DATABASE_URL")
	if dbUrl == "" && !devMode {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	portStr := os.Getenv("PORT")
	port := 7070 // Default
	if portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		port = p
	}

	agentURL := os.Getenv("AGENT_SERVICE_URL")
	if agentURL == "" {
		agentURL = "http://localhost:7171"
	}

	variantCap := 0
	if capStr := os.Getenv("VARIANT_CAP"); capStr != "" {
		c, err := strconv.Atoi(capStr)
		if err != nil {
			return nil, fmt.Errorf("invalid VARIANT_CAP: %w", err)
		}
		variantCap = c
	}

	retryBackoff := 10 * time.Second
	if s := os.Getenv("RETRY_BACKOFF_BASE"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid RETRY_BACKOFF_BASE: %w", err)
		}
		retryBackoff = d
	}

	cancelGrace := 10 * time.Second
	if s := os.Getenv("CANCEL_GRACE"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid CANCEL_GRACE: %w", err)
		}
		cancelGrace = d
	}

	return &Config{
		DatabaseURL:       dbUrl,
		HTTPPort:          port,
		AdminSecret:       os.Getenv("ADMIN_SECRET"),
		RedisURL:          os.Getenv("REDIS_URL"),
		AgentServiceURL:   agentURL,
		OTELCollectorAddr: os.Getenv("OTEL_COLLECTOR_ADDR"),
		VariantCap:        variantCap,
		RetryBackoffBase:  retryBackoff,
		CancelGrace:       cancelGrace,
		DevMode:           devMode,
	}, nil
}
