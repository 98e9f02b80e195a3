package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Rotation  RotationConfig
	Retention RetentionConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/presence?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds staff token signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// RotationConfig controls the background token rotation scheduler and the
// validation policy applied to rotated tokens.
type RotationConfig struct {
	Enabled bool
	// Interval between mints. The validity window is independent: with
	// RetirePrevious disabled several sessions can be valid at once.
	Interval       time.Duration
	ValidityWindow time.Duration
	TokenLength    int
	// RetirePrevious flips the previously minted session inactive on each
	// rotation instead of letting it run out its validity window.
	RetirePrevious bool
	// AcceptRotated accepts tokens that were retired by a later rotation but
	// have not yet expired.
	AcceptRotated bool
	// StoreTimeout bounds each store call made by the scheduler and sweeper.
	StoreTimeout time.Duration
}

// RetentionConfig controls how long expired sessions and their attendance
// records are kept before the purge pass removes them.
type RetentionConfig struct {
	Horizon        time.Duration
	PurgeBatchSize int
	// KeepAttendance leaves attendance records in place when their session is
	// purged; the session back-reference becomes informational only.
	KeepAttendance bool
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "presence"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
		},
		Rotation: RotationConfig{
			Enabled:        getEnvBool("ROTATION_ENABLED", true),
			Interval:       getEnvDuration("ROTATION_INTERVAL", 30*time.Second),
			ValidityWindow: getEnvDuration("TOKEN_VALIDITY", 30*time.Second),
			TokenLength:    getEnvInt("TOKEN_LENGTH", 10),
			RetirePrevious: getEnvBool("ROTATION_RETIRE_PREVIOUS", true),
			AcceptRotated:  getEnvBool("ACCEPT_ROTATED_TOKENS", false),
			StoreTimeout:   getEnvDuration("STORE_TIMEOUT", 5*time.Second),
		},
		Retention: RetentionConfig{
			Horizon:        getEnvDuration("RETENTION_HORIZON", 90*24*time.Hour),
			PurgeBatchSize: getEnvInt("PURGE_BATCH_SIZE", 500),
			KeepAttendance: getEnvBool("PURGE_KEEP_ATTENDANCE", true),
		},
	}

	if cfg.Rotation.TokenLength < 4 {
		return nil, fmt.Errorf("TOKEN_LENGTH must be at least 4, got %d", cfg.Rotation.TokenLength)
	}
	if cfg.Rotation.Interval <= 0 || cfg.Rotation.ValidityWindow <= 0 {
		return nil, fmt.Errorf("rotation interval and token validity must be positive")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
