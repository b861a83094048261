// Package config loads dashboard configuration from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// HTTP server
	Port        string
	CORSOrigins []string

	// Real-time channel
	WSHeartbeatInterval time.Duration

	// Health monitor
	HealthCheckInterval time.Duration

	// Pagination defaults for list endpoints
	DefaultPageSize int
	MaxPageSize     int

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first if present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "epstein_rag"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "dashboard"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		Port:        getEnv("DASHBOARD_PORT", "8001"),
		CORSOrigins: splitList(getEnv("DASHBOARD_CORS_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")),

		WSHeartbeatInterval: getDuration("DASHBOARD_WS_HEARTBEAT_INTERVAL", 30*time.Second),
		HealthCheckInterval: getDuration("DASHBOARD_HEALTH_INTERVAL", 15*time.Second),

		DefaultPageSize: getInt("DASHBOARD_DEFAULT_PAGE_SIZE", 50),
		MaxPageSize:     getInt("DASHBOARD_MAX_PAGE_SIZE", 200),

		LogFile:  getEnv("DASHBOARD_LOG_FILE", "/tmp/rag-dashboard.log"),
		LogLevel: parseLogLevel(getEnv("DASHBOARD_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
