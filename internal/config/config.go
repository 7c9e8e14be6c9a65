// path: internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the process-wide configuration for cmd/worker and cmd/admin,
// assembled from environment variables (§6.3).
type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Server    ServerConfig
	Scheduler SchedulerConfig
	Worker    WorkerConfig
	Security  SecurityConfig
	Timezone  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ServerConfig struct {
	Port string
	Host string
}

// SchedulerConfig carries the C3 event-driven scheduler's tunables.
type SchedulerConfig struct {
	UseEventDriven bool
	BatchWindow    time.Duration
}

// WorkerConfig carries the C5 publish worker pool's tunables.
type WorkerConfig struct {
	Concurrency           int
	JobTimeout            time.Duration
	DuplicationWindow     time.Duration
	ExecutionLockTimeout  time.Duration
	CommentMaxRetries     int
	RateLimitPerMinute    int
}

type SecurityConfig struct {
	EncryptionKey string
}

func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "threads_scheduler"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Scheduler: SchedulerConfig{
			UseEventDriven: getEnvBool("USE_EVENT_DRIVEN_SCHEDULER", true),
			BatchWindow:    getEnvMillis("SCHEDULER_BATCH_WINDOW_MS", 5000),
		},
		Worker: WorkerConfig{
			Concurrency:          getEnvInt("WORKER_CONCURRENCY", 5),
			JobTimeout:           getEnvMillis("JOB_TIMEOUT", 300000),
			DuplicationWindow:    time.Duration(getEnvInt("DUPLICATION_WINDOW_HOURS", 24)) * time.Hour,
			ExecutionLockTimeout: getEnvMillis("EXECUTION_LOCK_TIMEOUT_MS", 300000),
			CommentMaxRetries:    getEnvInt("COMMENT_MAX_RETRIES", 3),
			RateLimitPerMinute:   getEnvInt("RATE_LIMIT_PER_MINUTE", 10),
		},
		Security: SecurityConfig{
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		},
		Timezone: getEnv("TZ", "Asia/Ho_Chi_Minh"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvMillis(key string, defaultMs int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMs)) * time.Millisecond
}
