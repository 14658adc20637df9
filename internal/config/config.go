package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NewRelic  NewRelicConfig  `mapstructure:"newrelic"`
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Matching  MatchingConfig  `mapstructure:"matching"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string `mapstructure:"app_name"`
	LicenseKey string `mapstructure:"license_key"`
	Enabled    bool   `mapstructure:"enabled"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig selects the persistence backend: "postgres" or "memory".
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

// PricingConfig holds the fare formula inputs.
type PricingConfig struct {
	BaseFare  float64 `mapstructure:"base_fare"`
	PerKmRate float64 `mapstructure:"per_km_rate"`
}

// AuthConfig holds the HS256 secret used to verify bearer tokens.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// RateLimitConfig limits requests per caller. RPS <= 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// AuditConfig configures the optional audit sinks.
type AuditConfig struct {
	AMQPURL        string        `mapstructure:"amqp_url"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	DatabaseURL    string        `mapstructure:"database_url"`
	BatchSize      int           `mapstructure:"batch_size"`
	FlushInterval  time.Duration `mapstructure:"flush_interval"`
	BufferSize     int           `mapstructure:"buffer_size"`
}

// MatchingConfig tunes driver matching. CandidateTTL bounds how stale the
// shared candidate snapshot may get.
type MatchingConfig struct {
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
	CandidateTTL time.Duration `mapstructure:"candidate_ttl"`
}

// StoreMemory and StorePostgres are the accepted store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// envBindings maps keys whose environment names don't follow the key path.
var envBindings = map[string]string{
	"pricing.base_fare":    "BASE_FARE",
	"pricing.per_km_rate":  "PER_KM_RATE",
	"newrelic.app_name":    "NEW_RELIC_APP_NAME",
	"newrelic.license_key": "NEW_RELIC_LICENSE_KEY",
	"newrelic.enabled":     "NEW_RELIC_ENABLED",
	"auth.jwt_secret":      "JWT_SECRET",
}

// Load reads configuration from an optional config.yaml and the environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, eris.Wrapf(err, "config: bind %s", env)
		}
	}

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "ride_hailing")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("newrelic.app_name", "ride-hailing-service")
	v.SetDefault("newrelic.license_key", "")
	v.SetDefault("newrelic.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", StorePostgres)
	v.SetDefault("pricing.base_fare", 50.0)
	v.SetDefault("pricing.per_km_rate", 12.5)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("ratelimit.rps", 20.0)
	v.SetDefault("ratelimit.burst", 40)
	v.SetDefault("audit.amqp_url", "")
	v.SetDefault("audit.publish_timeout", 2*time.Second)
	v.SetDefault("audit.database_url", "")
	v.SetDefault("audit.batch_size", 100)
	v.SetDefault("audit.flush_interval", 2*time.Second)
	v.SetDefault("audit.buffer_size", 1000)
	v.SetDefault("matching.lock_ttl", 5*time.Second)
	v.SetDefault("matching.candidate_ttl", 2*time.Second)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StorePostgres:
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Pricing.BaseFare < 0 || c.Pricing.PerKmRate < 0 {
		return eris.New("config: pricing must not be negative")
	}
	if c.Audit.BatchSize <= 0 {
		return eris.New("config: audit batch size must be positive")
	}
	if c.Matching.CandidateTTL <= 0 {
		return eris.New("config: matching candidate ttl must be positive")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
