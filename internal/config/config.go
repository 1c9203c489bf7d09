// Package config loads the options named in the server's external
// interface table from the process environment. No config library is
// introduced: every third-party example in this corpus that loads simple
// env-var configuration does it with plain os.Getenv, so this package
// follows suit rather than reaching for viper/envconfig/etc.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every recognised option from the configuration table.
type Config struct {
	LogLevel string
	Pretty   bool

	Metrics bool

	SSLCertPath string
	SSLKeyPath  string

	// Timeout is the default HandlerTicket deadline.
	Timeout time.Duration

	DevMode bool

	CacheDefaultTTL   time.Duration
	CacheMaxMemory    int64
	CacheRedisURL     string
	CacheFileCachePath string

	// Ambient, not named in the configuration table but required to
	// bind a listener: host/port and bridge queue sizing.
	Host               string
	Port               int
	BridgeQueueSize    int
	ShutdownGracePeriod time.Duration
}

// Load reads Config from the environment, applying the defaults named
// across components (HandlerTicket deadline default 30s, pingInterval/
// pongTimeout defaults live in the websocket package since they are
// per-route, not process-global).
func Load() *Config {
	return &Config{
		LogLevel: getEnv("RNODE_LOG_LEVEL", "info"),
		Pretty:   getEnvBool("RNODE_LOG_PRETTY", false),

		Metrics: getEnvBool("RNODE_METRICS", true),

		SSLCertPath: getEnv("RNODE_SSL_CERT_PATH", ""),
		SSLKeyPath:  getEnv("RNODE_SSL_KEY_PATH", ""),

		Timeout: getEnvDuration("RNODE_TIMEOUT_MS", 30*time.Second, time.Millisecond),

		DevMode: getEnvBool("RNODE_DEV_MODE", false),

		CacheDefaultTTL:    getEnvDuration("RNODE_CACHE_DEFAULT_TTL", 60*time.Second, time.Second),
		CacheMaxMemory:     getEnvInt64("RNODE_CACHE_MAX_MEMORY", 64<<20),
		CacheRedisURL:      getEnv("RNODE_CACHE_REDIS_URL", ""),
		CacheFileCachePath: getEnv("RNODE_CACHE_FILE_PATH", ""),

		Host:                getEnv("RNODE_HOST", "0.0.0.0"),
		Port:                getEnvInt("RNODE_PORT", 8080),
		BridgeQueueSize:     getEnvInt("RNODE_BRIDGE_QUEUE_SIZE", 1024),
		ShutdownGracePeriod: getEnvDuration("RNODE_SHUTDOWN_GRACE", 15*time.Second, time.Second),
	}
}

// TLSEnabled reports whether both certificate paths are configured.
func (c *Config) TLSEnabled() bool {
	return c.SSLCertPath != "" && c.SSLKeyPath != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// getEnvDuration reads an integer env var expressed in unit and converts
// it to a time.Duration, e.g. getEnvDuration("X_MS", d, time.Millisecond).
func getEnvDuration(key string, fallback time.Duration, unit time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return time.Duration(n) * unit
}
