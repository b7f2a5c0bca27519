package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/spec-kit/mythicmate/internal/domain"
)

// Stats drivers.
const (
	StatsDriverPostgres = "postgres"
	StatsDriverSQLite   = "sqlite"
	StatsDriverNone     = "none"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App         AppConfig
	Postgres    PostgresConfig
	SQLite      SQLiteConfig
	Stats       StatsConfig
	Redis       RedisConfig
	Logger      LoggerConfig
	Auth        AuthConfig
	Coordinator CoordinatorConfig
	Gateway     GatewayConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// SQLiteConfig locates the embedded stats database.
type SQLiteConfig struct {
	Path string
}

// StatsConfig selects where completed runs are recorded.
type StatsConfig struct {
	Driver          string
	CacheTTLSeconds int
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Development bool
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// CoordinatorConfig tunes group formation.
type CoordinatorConfig struct {
	BotUserID           string
	CapacityTank        int
	CapacityHealer      int
	CapacityDPS         int
	MaxBackupsPerRole   int
	ReminderLead        time.Duration
	ReminderFallbackTTL time.Duration
	PromotionNoticeTTL  time.Duration
	GroupMaxAge         time.Duration
	SweepSchedule       string
	LaneBuffer          int
}

// GatewayConfig tunes the chat adapter bridge.
type GatewayConfig struct {
	CallTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "mythicmate"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "data/mythicmate.db"),
		},
		Stats: StatsConfig{
			Driver:          strings.ToLower(getEnv("STATS_DRIVER", StatsDriverSQLite)),
			CacheTTLSeconds: getEnvAsInt("STATS_CACHE_TTL_SECONDS", 60),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnv("APP_ENV", "development") == "development",
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Coordinator: CoordinatorConfig{
			BotUserID:           os.Getenv("BOT_USER_ID"),
			CapacityTank:        getEnvAsInt("CAPACITY_TANK", 1),
			CapacityHealer:      getEnvAsInt("CAPACITY_HEALER", 1),
			CapacityDPS:         getEnvAsInt("CAPACITY_DPS", 3),
			MaxBackupsPerRole:   getEnvAsInt("MAX_BACKUPS_PER_ROLE", 25),
			ReminderLead:        time.Duration(getEnvAsInt("REMINDER_LEAD_MINUTES", 15)) * time.Minute,
			ReminderFallbackTTL: getEnvAsDuration("REMINDER_FALLBACK_TTL_SECONDS", 60*time.Second),
			PromotionNoticeTTL:  getEnvAsDuration("PROMOTION_NOTICE_TTL_SECONDS", 10*time.Second),
			GroupMaxAge:         time.Duration(getEnvAsInt("GROUP_MAX_AGE_HOURS", 0)) * time.Hour,
			SweepSchedule:       getEnv("REGISTRY_SWEEP_SCHEDULE", "@every 5m"),
			LaneBuffer:          getEnvAsInt("LANE_BUFFER", 64),
		},
		Gateway: GatewayConfig{
			CallTimeout: getEnvAsDuration("GATEWAY_CALL_TIMEOUT_SECONDS", 10*time.Second),
		},
	}

	switch cfg.Stats.Driver {
	case StatsDriverPostgres, StatsDriverSQLite, StatsDriverNone:
	default:
		return nil, fmt.Errorf("invalid STATS_DRIVER %q", cfg.Stats.Driver)
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// CacheTTL returns how long leaderboards stay cached.
func (s StatsConfig) CacheTTL() time.Duration {
	if s.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(s.CacheTTLSeconds) * time.Second
}

// Capacities returns the per-role primary slot counts.
func (c CoordinatorConfig) Capacities() domain.Capacities {
	return domain.Capacities{
		domain.RoleTank:   c.CapacityTank,
		domain.RoleHealer: c.CapacityHealer,
		domain.RoleDPS:    c.CapacityDPS,
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvAsDuration reads a whole number of seconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed < 0 {
		return fallback
	}
	return time.Duration(parsed) * time.Second
}
