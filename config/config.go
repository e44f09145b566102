package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	JWT         JWTConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	RateLimiter RateLimiterConfig
	Bulkhead    BulkheadConfig
	Breaker     BreakerConfig
	Fleet       FleetConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

type JWTConfig struct {
	Secret      string
	ExpiryHours time.Duration
}

type PostgresConfig struct {
	URL      string // DATABASE_URL takes precedence if set
	Host     string
	Port     int
	User     string
	Password string
	DB       string
	SSLMode  string

	MaxOpenConns   int
	MaxIdleConns   int
	ConnectTimeout time.Duration
}

type RedisConfig struct {
	URL      string // REDIS_URL takes precedence if set
	Host     string
	Port     int
	Password string
	DB       int
}

type RateLimiterConfig struct {
	MaxRequests   int
	WindowSeconds int
}

type BulkheadConfig struct {
	DronePool    int
	MutationPool int
}

// BreakerConfig trips a route after Threshold consecutive 5xx responses.
type BreakerConfig struct {
	Threshold int
	Cooldown  time.Duration
}

// FleetConfig tunes the session coordinator: poll cadence, proximity
// advisories and the websocket transport.
type FleetConfig struct {
	PollInterval       time.Duration
	PollStartupDelay   time.Duration
	ProximityInterval  time.Duration
	ProximityRadiusDeg float64
	DashboardInterval  time.Duration

	WriteWait time.Duration
	PongWait  time.Duration

	LocationCacheTTLSec int
	IdempotencyTTLSec   int
}

type LogConfig struct {
	Level  string
	Format string
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

func getenvFloat(key string, fallback float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

// getenvDuration accepts Go duration strings ("1500ms", "5s").
func getenvDuration(key string, fallback time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return v
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getenvInt("PORT", getenvInt("SERVER_PORT", 3000)),
			ShutdownTimeout: time.Duration(getenvInt("SHUTDOWN_TIMEOUT_SECONDS", 5)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:      getenv("JWT_SECRET", "default-secret-change-me"),
			ExpiryHours: time.Duration(getenvInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,
		},
		Postgres: PostgresConfig{
			URL:            getenv("DATABASE_URL", ""),
			Host:           getenv("POSTGRES_HOST", "localhost"),
			Port:           getenvInt("POSTGRES_PORT", 5432),
			User:           getenv("POSTGRES_USER", "fleet_admin"),
			Password:       getenv("POSTGRES_PASSWORD", "secure_password"),
			DB:             getenv("POSTGRES_DB", "drone_fleet"),
			SSLMode:        getenv("POSTGRES_SSLMODE", "disable"),
			MaxOpenConns:   getenvInt("POSTGRES_MAX_OPEN_CONNS", 25),
			MaxIdleConns:   getenvInt("POSTGRES_MAX_IDLE_CONNS", 10),
			ConnectTimeout: getenvDuration("POSTGRES_CONNECT_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			URL:      getenv("REDIS_URL", ""),
			Host:     getenv("REDIS_HOST", "localhost"),
			Port:     getenvInt("REDIS_PORT", 6379),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimiter: RateLimiterConfig{
			MaxRequests:   getenvInt("RATE_LIMIT_MAX_REQUESTS", 100),
			WindowSeconds: getenvInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		},
		Bulkhead: BulkheadConfig{
			DronePool:    getenvInt("BULKHEAD_DRONE_POOL", 500),
			MutationPool: getenvInt("BULKHEAD_MUTATION_POOL", 50),
		},
		Breaker: BreakerConfig{
			Threshold: getenvInt("BREAKER_THRESHOLD", 5),
			Cooldown:  getenvDuration("BREAKER_COOLDOWN", 30*time.Second),
		},
		Fleet: FleetConfig{
			PollInterval:        getenvDuration("FLEET_POLL_INTERVAL", time.Second),
			PollStartupDelay:    getenvDuration("FLEET_POLL_STARTUP_DELAY", 3*time.Second),
			ProximityInterval:   getenvDuration("FLEET_PROXIMITY_INTERVAL", 5*time.Second),
			ProximityRadiusDeg:  getenvFloat("FLEET_PROXIMITY_RADIUS_DEG", 0.1),
			DashboardInterval:   getenvDuration("FLEET_DASHBOARD_INTERVAL", time.Second),
			WriteWait:           getenvDuration("WS_WRITE_WAIT", 10*time.Second),
			PongWait:            getenvDuration("WS_PONG_WAIT", 60*time.Second),
			LocationCacheTTLSec: getenvInt("DRONE_LOCATION_CACHE_TTL_SECONDS", 60),
			IdempotencyTTLSec:   getenvInt("IDEMPOTENCY_TTL_SECONDS", 300),
		},
		Log: LogConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "text"),
		},
	}

	if cfg.Fleet.PollInterval <= 0 || cfg.Fleet.ProximityInterval <= 0 || cfg.Fleet.DashboardInterval <= 0 {
		return nil, fmt.Errorf("fleet intervals must be positive")
	}

	return cfg, nil
}

func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DB, p.SSLMode)
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
