// SPDX-License-Identifier: MIT

// Package config loads the daemon configuration from the environment.
// Precedence is ENV > default; every key uses the XTEAM_ prefix.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the full runtime configuration of the streaming daemon.
type Config struct {
	// Server
	ListenAddr string
	LogLevel   string
	LogService string

	// Credentials
	JWTSecret string
	TokenTTL  time.Duration

	// Admission gate
	RateLimitEnabled  bool
	RequestsPerMinute int
	BucketRetention   time.Duration
	GlobalRPS         int
	ExemptPaths       []string

	// Redis (empty Addr disables Redis-backed stores)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Event delivery
	EventChannel  string
	QueueCapacity int
	WriteTimeout  time.Duration
	PingInterval  time.Duration

	// HTTP hardening
	AllowedOrigins []string
	TrustedProxies []string
}

// FromEnv builds a Config from the environment.
func FromEnv() Config {
	return Config{
		ListenAddr: ParseString("XTEAM_LISTEN", ":8080"),
		LogLevel:   ParseString("XTEAM_LOG_LEVEL", "info"),
		LogService: ParseString("XTEAM_LOG_SERVICE", "xteam-streamd"),

		JWTSecret: ParseString("XTEAM_JWT_SECRET", ""),
		TokenTTL:  ParseDuration("XTEAM_TOKEN_TTL", 30*time.Minute),

		RateLimitEnabled:  ParseBool("XTEAM_RATELIMIT_ENABLED", true),
		RequestsPerMinute: ParseInt("XTEAM_RATELIMIT_PER_MINUTE", 60),
		BucketRetention:   ParseDuration("XTEAM_RATELIMIT_RETENTION", 10*time.Minute),
		GlobalRPS:         ParseInt("XTEAM_RATELIMIT_GLOBAL_RPS", 100),
		ExemptPaths:       ParseStringSlice("XTEAM_RATELIMIT_EXEMPT", []string{"/healthz", "/readyz"}),

		RedisAddr:     ParseString("XTEAM_REDIS_ADDR", ""),
		RedisPassword: ParseString("XTEAM_REDIS_PASSWORD", ""),
		RedisDB:       ParseInt("XTEAM_REDIS_DB", 0),

		EventChannel:  ParseString("XTEAM_EVENT_CHANNEL", "pipeline:events"),
		QueueCapacity: ParseInt("XTEAM_QUEUE_CAPACITY", 256),
		WriteTimeout:  ParseDuration("XTEAM_WRITE_TIMEOUT", 10*time.Second),
		PingInterval:  ParseDuration("XTEAM_PING_INTERVAL", 30*time.Second),

		AllowedOrigins: ParseStringSlice("XTEAM_ALLOWED_ORIGINS", nil),
		TrustedProxies: ParseStringSlice("XTEAM_TRUSTED_PROXIES", nil),
	}
}

// Validate rejects configurations the daemon must not start with.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("XTEAM_JWT_SECRET must be set; refusing to start without credential verification")
	}
	if c.RequestsPerMinute <= 0 {
		return fmt.Errorf("XTEAM_RATELIMIT_PER_MINUTE must be positive, got %d", c.RequestsPerMinute)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("XTEAM_QUEUE_CAPACITY must be positive, got %d", c.QueueCapacity)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("XTEAM_WRITE_TIMEOUT must be positive, got %s", c.WriteTimeout)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("XTEAM_TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	return nil
}
