package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port        string
	JWTSecret   string
	RegisterID  string
	LogLevel    string
	CORSOrigins []string

	Backend BackendConfig
	Poll    PollConfig

	// SubmitTimeout bounds a whole checkout flow, all remote steps included.
	SubmitTimeout time.Duration

	// Optional collaborators. Empty disables the feature.
	DatabaseURL   string
	MigrationsDir string
	RedisAddr     string
	KafkaBrokers  []string
	KafkaTopic    string
}

// BackendConfig points the register at the POS backend.
type BackendConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type PollConfig struct {
	Preorders time.Duration
	Tickets   time.Duration
}

// Load reads the environment, after merging a .env file when one exists.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("ignoring unreadable .env file")
	}

	return &Config{
		Port:        getEnv("PORT", "8085"),
		JWTSecret:   getEnv("JWT_SECRET", "dev-secret-change-in-production"),
		RegisterID:  getEnv("REGISTER_ID", "register-1"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: getList("CORS_ORIGINS", []string{"http://localhost:5173"}),
		Backend: BackendConfig{
			BaseURL: strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8000"), "/"),
			Token:   getEnv("BACKEND_TOKEN", ""),
			Timeout: getDuration("BACKEND_TIMEOUT", 10*time.Second),
		},
		Poll: PollConfig{
			Preorders: getDuration("PREORDER_POLL_INTERVAL", 10*time.Second),
			Tickets:   getDuration("TICKET_POLL_INTERVAL", 5*time.Second),
		},
		SubmitTimeout: getDuration("SUBMIT_TIMEOUT", 30*time.Second),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		KafkaBrokers:  getList("KAFKA_BROKERS", nil),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "register.events"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		logrus.WithField("key", key).WithField("value", v).Warn("invalid duration, using default")
		return fallback
	}
	return d
}

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
