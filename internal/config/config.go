package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const EnvDevelopment = "development"

type Config struct {
	AppEnv     string
	ServerAddr string
	LogLevel   string

	DatabaseURL string

	JWTAccessSecret  []byte
	JWTRefreshSecret []byte
	AccessTTL        time.Duration
	RefreshTTL       time.Duration

	ClientURL string

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string
	KafkaTopic   string

	ESURL      string
	ESUser     string
	ESPassword string
	ESIndex    string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	WSAllowedOrigins []string
	WSRequireAuth    bool

	RefreshPruneInterval time.Duration
}

func Load() Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	return Config{
		AppEnv:     EnvDefault("APP_ENV", "production"),
		ServerAddr: EnvDefault("SERVER_ADDR", ":8080"),
		LogLevel:   EnvDefault("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTAccessSecret:  []byte(os.Getenv("JWT_SECRET")),
		JWTRefreshSecret: []byte(os.Getenv("JWT_REFRESH_SECRET")),
		AccessTTL:        EnvDurationDefault("JWT_ACCESS_TTL", 30*time.Minute),
		RefreshTTL:       EnvDurationDefault("JWT_REFRESH_TTL", 7*24*time.Hour),

		ClientURL: EnvDefault("CLIENT_URL", "http://localhost:5173"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   EnvDefault("KAFKA_TOPIC", "user_events"),

		ESURL:      os.Getenv("ES_URL"),
		ESUser:     os.Getenv("ES_USER"),
		ESPassword: os.Getenv("ES_PASSWORD"),
		ESIndex:    EnvDefault("ES_INDEX", "auth-audit"),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),

		WSAllowedOrigins: CSV(EnvDefault("WS_ALLOWED_ORIGINS", "localhost:5173,127.0.0.1:5173")),
		WSRequireAuth:    EnvBoolDefault("WS_REQUIRE_AUTH", false),

		RefreshPruneInterval: EnvDurationDefault("REFRESH_PRUNE_INTERVAL", time.Hour),
	}
}

// IsDevelopment reports whether cookies may be issued without the Secure flag.
func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, EnvDevelopment)
}

func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func EnvDurationDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
