// Package config loads runtime settings from the environment (optionally seeded from a .env file)
// and holds the engine's fixed constants.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Broker kinds.
const (
	BrokerRedis = "redis"
	BrokerNats  = "nats"
	BrokerLocal = "local"
)

// Config is the process configuration.
type Config struct {
	HTTPAddr string

	DBDriver string // postgres | sqlite
	DBDSN    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Broker  string
	NatsURL string

	JWTSecret string
	JWTIssuer string
	JWTTTL    time.Duration

	LogFormat string // console | json
	LogLevel  string

	EventRate  float64 // inbound events per second per session
	EventBurst int

	ShutdownTimeout time.Duration
}

// Load reads .env (if present) and the process environment.
// The bool result reports whether a .env file was loaded.
func Load() (Config, bool) {
	loaded := godotenv.Load() == nil

	cfg := Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		DBDriver:        strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DBDSN:           getEnv("DB_DSN", "host=localhost user=user password=password dbname=chatrelay port=5432 sslmode=disable"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		Broker:          strings.ToLower(getEnv("BROKER", BrokerRedis)),
		NatsURL:         getEnv("NATS_URL", "nats://127.0.0.1:4222"),
		JWTSecret:       getEnv("JWT_SECRET", "change-me"),
		JWTIssuer:       getEnv("JWT_ISSUER", "message-server"),
		JWTTTL:          getEnvDuration("JWT_TTL", 7*24*time.Hour),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "console")),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		EventRate:       getEnvFloat("EVENT_RATE", 20),
		EventBurst:      getEnvInt("EVENT_BURST", 40),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
	return cfg, loaded
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return def
}
