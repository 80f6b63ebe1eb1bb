package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string

	HTTPAddr string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	GatewayBaseURL     string
	GatewayAccessToken string
	GatewayTimeout     time.Duration

	WebhookSecret           string
	WebhookRequireSignature bool

	IdempotencyWindow time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MetricsEnabled  bool
	MetricsEndpoint string
	MetricsProtocol string

	RunMigrations bool
	SeedDemo      bool
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "vivero"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "vivero"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		GatewayBaseURL:     getenv("GATEWAY_BASE_URL", "https://api.pagoflor.com"),
		GatewayAccessToken: strings.TrimSpace(getenv("GATEWAY_ACCESS_TOKEN", "")),
		GatewayTimeout:     getenvDuration("GATEWAY_TIMEOUT", 5*time.Second),

		WebhookSecret:           strings.TrimSpace(getenv("WEBHOOK_SECRET", "")),
		WebhookRequireSignature: getenvBool("WEBHOOK_REQUIRE_SIGNATURE", false),

		IdempotencyWindow: getenvDuration("IDEMPOTENCY_WINDOW", 4*time.Second),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		MetricsEnabled:  getenvBool("METRICS_ENABLED", false),
		MetricsEndpoint: getenv("METRICS_ENDPOINT", "localhost:4317"),
		MetricsProtocol: strings.ToLower(getenv("METRICS_PROTOCOL", "grpc")),

		RunMigrations: getenvBool("RUN_MIGRATIONS", true),
		SeedDemo:      getenvBool("SEED_DEMO", false),
	}
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	raw := getenv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}

func getenvBool(key string, fallback bool) bool {
	raw := getenv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	raw := getenv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// Module wires application configuration.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewHeuristicsHolder),
)
