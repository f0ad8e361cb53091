package config

import (
	"context"
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Env  string `env:"APP_ENV" envDefault:"dev"`
	Port int    `env:"PORT" envDefault:"8080"`

	// Postgres
	DBHost    string `env:"DB_HOST" envDefault:"127.0.0.1"`
	DBPort    string `env:"DB_PORT" envDefault:"5432"`
	DBUser    string `env:"DB_USER" envDefault:"airq"`
	DBPass    string `env:"DB_PASSWORD" envDefault:"airq"`
	DBName    string `env:"DB_NAME" envDefault:"airq"`
	DBSSLMode string `env:"DB_SSLMODE" envDefault:"disable"`

	// Redis (job wake-up channel + stats cache)
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Auth
	JWTSecret  string        `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	AccessTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"720h"`
	RefreshTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"1440h"`

	// Bootstrap admin (skipped when empty)
	AdminEmail     string `env:"ADMIN_EMAIL" envDefault:""`
	AdminPassword  string `env:"ADMIN_PASSWORD" envDefault:""`
	AdminFirstName string `env:"ADMIN_FIRST_NAME" envDefault:"AirQ"`
	AdminLastName  string `env:"ADMIN_LAST_NAME" envDefault:"Admin"`

	// HTTP hardening
	CORSAllowedOrigins  []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`
	MaxBodyBytes        int64    `env:"MAX_BODY_BYTES" envDefault:"4194304"`
	RateLimitPerMin     int      `env:"RATE_LIMIT_PER_MIN" envDefault:"120"`
	AuthRateLimitPerMin int      `env:"AUTH_RATE_LIMIT_PER_MIN" envDefault:"10"`

	// Observability
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`

	// Worker
	WorkerPollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"500ms"`
	WorkerConcurrency  int           `env:"WORKER_CONCURRENCY" envDefault:"4"`
	WorkerHealthPort   int           `env:"WORKER_HEALTH_PORT" envDefault:"8081"`
}

func Load() Config {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	var cfg Config

	err := env.Parse(&cfg)

	if err != nil {
		log.Fatalf("config: %v", err)
	}

	return cfg
}

func (c Config) DBURL() string {
	return "postgres://" + c.DBUser + ":" + c.DBPass + "@" + c.DBHost + ":" + c.DBPort + "/" + c.DBName + "?sslmode=" + c.DBSSLMode
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}
