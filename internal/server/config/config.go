package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string // empty uses an in-memory user directory

	StagingPath       string
	SharedPath        string
	UploadLedgerPath  string
	DeclineLedgerPath string
	AllowedExtensions []string
	MaxUploadSize     int64

	JWTSecret string
	TokenTTL  time.Duration

	PresenceBackend       string // "memory" or "redis"
	PresenceStaleAfter    time.Duration
	PresenceSweepInterval time.Duration
	RedisAddr             string
	RedisPassword         string
	RedisDB               int

	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string
	LogLevel       slog.Level
}

const defaultAllowedExtensions = "txt,pdf,png,jpg,jpeg,gif,doc,docx,xls,xlsx,ppt,pptx,csv,zip,mp3,mp4"

// MinSecretLen is the shortest JWT_SECRET the portal accepts.
const MinSecretLen = 16

var ErrWeakSecret = errors.New("JWT_SECRET is unset or too short")

// Validate reports settings the portal refuses to run with.
func (c *Config) Validate() error {
	if len(c.JWTSecret) < MinSecretLen {
		return fmt.Errorf("%w: need at least %d bytes", ErrWeakSecret, MinSecretLen)
	}
	return nil
}

// Load reads the environment, after merging any .env file in the working
// directory. Variables already set in the environment win over .env values.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8000"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		StagingPath:       getEnv("STAGING_PATH", "./data/uploads"),
		SharedPath:        getEnv("SHARED_PATH", "./data/shared"),
		UploadLedgerPath:  getEnv("UPLOAD_LEDGER_PATH", "./data/logs/uploads.csv"),
		DeclineLedgerPath: getEnv("DECLINE_LEDGER_PATH", "./data/logs/declined_uploads.csv"),
		AllowedExtensions: getEnvList("ALLOWED_EXTENSIONS", defaultAllowedExtensions),
		MaxUploadSize:     getEnvInt64("MAX_UPLOAD_SIZE", 2*1024*1024*1024), // 2GB

		JWTSecret: getEnv("JWT_SECRET", ""),
		TokenTTL:  getEnvDuration("TOKEN_TTL", 24*time.Hour),

		PresenceBackend:       getEnv("PRESENCE_BACKEND", "memory"),
		PresenceStaleAfter:    getEnvDuration("PRESENCE_STALE_AFTER", 5*time.Minute),
		PresenceSweepInterval: getEnvDuration("PRESENCE_SWEEP_INTERVAL", time.Minute),
		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:         getEnv("REDIS_PASSWORD", ""),
		RedisDB:               getEnvInt("REDIS_DB", 0),

		RateLimitRPS:   getEnvFloat64("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 20),
		CORSOrigins:    getEnvList("CORS_ORIGINS", "*"),
		LogLevel:       getEnvLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvList(key, fallback string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, fallback), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvInt64(key string, fallback int64) int64 {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat64(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("90s", "5m"). "0" disables
// the feature the duration controls.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if val == "0" {
			return 0
		}
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	if val := os.Getenv(key); val != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(val)); err == nil {
			return lvl
		}
	}
	return fallback
}
