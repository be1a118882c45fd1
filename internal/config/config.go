package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Kafka     KafkaConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Scheduler SchedulerConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        string
	Host        string
	CORSOrigins []string
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Pretty bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MigrationsPath string
}

// KafkaConfig holds Kafka configuration. An empty broker list disables
// both the event producer and the price consumer.
type KafkaConfig struct {
	Brokers     []string
	LedgerTopic string
	PriceTopic  string
	GroupID     string
}

// RedisConfig holds the quote cache configuration. An empty address
// disables the cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	QuoteTTL time.Duration
}

// AuthConfig holds the static API key checked on every request
type AuthConfig struct {
	APIKey string
}

// SchedulerConfig holds cron schedules (with seconds field)
type SchedulerConfig struct {
	ReprojectSchedule string
	RetentionSchedule string
	PriceRetention    time.Duration
}

// Load reads configuration from environment variables, after loading a
// .env file if one exists
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			CORSOrigins: splitList(getEnv("CORS_ORIGINS", "")),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "ledger"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MigrationsPath: getEnv("DB_MIGRATIONS_PATH", "db/migrations"),
		},
		Kafka: KafkaConfig{
			Brokers:     splitList(getEnv("KAFKA_BROKERS", "")),
			LedgerTopic: getEnv("KAFKA_LEDGER_TOPIC", "ledger-events"),
			PriceTopic:  getEnv("KAFKA_PRICE_TOPIC", "price-events"),
			GroupID:     getEnv("KAFKA_GROUP_ID", "portfolio-ledger"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			QuoteTTL: getEnvAsDuration("REDIS_QUOTE_TTL", 15*time.Minute),
		},
		Auth: AuthConfig{
			APIKey: getEnv("API_KEY", ""),
		},
		Scheduler: SchedulerConfig{
			// 16:30 on weekdays, after the US close
			ReprojectSchedule: getEnv("REPROJECT_SCHEDULE", "0 30 16 * * MON-FRI"),
			RetentionSchedule: getEnv("RETENTION_SCHEDULE", "0 0 3 * * SUN"),
			PriceRetention:    getEnvAsDuration("PRICE_RETENTION", 5*365*24*time.Hour),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getEnvAsBool("LOG_PRETTY", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Database.Host == "" || c.Database.DBName == "" {
		return fmt.Errorf("DB_HOST and DB_NAME are required")
	}
	if c.Kafka.LedgerTopic == "" || c.Kafka.PriceTopic == "" {
		return fmt.Errorf("KAFKA_LEDGER_TOPIC and KAFKA_PRICE_TOPIC must not be empty")
	}
	if c.Redis.QuoteTTL <= 0 {
		return fmt.Errorf("REDIS_QUOTE_TTL must be positive")
	}
	return nil
}

// Addr returns the HTTP listen address
func (s *ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

// MigrationsURL returns the golang-migrate source URL of the migrations directory
func (d *DatabaseConfig) MigrationsURL() string {
	if strings.Contains(d.MigrationsPath, "://") {
		return d.MigrationsPath
	}
	return "file://" + d.MigrationsPath
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
