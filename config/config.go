package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultKeyLength = 8
	DefaultAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// MaxKeyLength is the width of the urls.key column.
	MaxKeyLength = 64

	StoreDriverGORM = "gorm"
	StoreDriverPgx  = "pgx"

	QueueLocal = "local"
	QueueNATS  = "nats"
)

type Config struct {
	App App `mapstructure:"app"`

	Log LogConfig `mapstructure:"log"`

	// Mapping store
	Store    StoreConfig    `mapstructure:"store"`
	Postgres PostgresConfig `mapstructure:"postgres"`

	// Key generation and expiry
	Shortener ShortenerConfig `mapstructure:"shortener"`
	Reclaimer ReclaimerConfig `mapstructure:"reclaimer"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

type App struct {
	Port int    `mapstructure:"port"`
	Env  string `mapstructure:"env"`
	// BaseURL overrides the scheme/host taken from the request when building short URLs.
	BaseURL string `mapstructure:"base_url"`
	// SingleEndpoint enables GET /{value}, which shortens domains and resolves keys.
	SingleEndpoint bool `mapstructure:"single_endpoint"`
	// DomainCheck rejects shorten requests whose URL does not look like a domain.
	DomainCheck bool `mapstructure:"domain_check"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	// DSN takes precedence over the discrete postgres.* settings.
	DSN string `mapstructure:"dsn"`
}

type PostgresConfig struct {
	Host              string `mapstructure:"host"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	Database          string `mapstructure:"database"`
	Port              int    `mapstructure:"port"`
	SSLMode           string `mapstructure:"sslmode"`
	MaxConns          int32  `mapstructure:"max_conns"`
	MinConns          int32  `mapstructure:"min_conns"`
	MaxConnLifetime   string `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   string `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod string `mapstructure:"health_check_period"`
}

type ShortenerConfig struct {
	KeyLength    int           `mapstructure:"key_length"`
	Alphabet     string        `mapstructure:"alphabet"`
	TTL          time.Duration `mapstructure:"ttl"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	StoreTimeout time.Duration `mapstructure:"store_timeout"`
}

type ReclaimerConfig struct {
	Queue    string        `mapstructure:"queue"`
	Interval time.Duration `mapstructure:"interval"`
	Cooldown time.Duration `mapstructure:"cooldown"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// LockTTL bounds how long one replica may hold the Redis sweep lock.
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

type RateLimitConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type PrometheusConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// IsDevelopment reports whether the service runs outside production.
func (c *Config) IsDevelopment() bool {
	return c.App.Env != "production"
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Shortener.KeyLength < 1 || c.Shortener.KeyLength > MaxKeyLength {
		errs = append(errs, fmt.Errorf("shortener.key_length must be in 1..%d, got %d", MaxKeyLength, c.Shortener.KeyLength))
	}
	if len(c.Shortener.Alphabet) < 2 {
		errs = append(errs, errors.New("shortener.alphabet needs at least two symbols"))
	}
	if c.Shortener.TTL < 0 {
		errs = append(errs, fmt.Errorf("shortener.ttl must not be negative, got %s", c.Shortener.TTL))
	}
	if c.Shortener.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("shortener.max_attempts must be at least 1, got %d", c.Shortener.MaxAttempts))
	}
	if c.Shortener.StoreTimeout <= 0 {
		errs = append(errs, errors.New("shortener.store_timeout must be positive"))
	}

	switch c.Store.Driver {
	case StoreDriverGORM, StoreDriverPgx:
	default:
		errs = append(errs, fmt.Errorf("store.driver must be %q or %q, got %q", StoreDriverGORM, StoreDriverPgx, c.Store.Driver))
	}

	switch c.Reclaimer.Queue {
	case QueueLocal, QueueNATS:
	default:
		errs = append(errs, fmt.Errorf("reclaimer.queue must be %q or %q, got %q", QueueLocal, QueueNATS, c.Reclaimer.Queue))
	}
	if c.Reclaimer.Interval <= 0 {
		errs = append(errs, errors.New("reclaimer.interval must be positive"))
	}
	if c.Reclaimer.Timeout <= 0 {
		errs = append(errs, errors.New("reclaimer.timeout must be positive"))
	}

	if c.RateLimit.Enabled && (c.RateLimit.MaxRequests < 1 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("rate_limit needs positive max_requests and window"))
	}

	return errors.Join(errs...)
}

func Load() (*Config, error) {
	return LoadWith(viper.New())
}

// LoadWith reads configuration into v, which callers may have pre-bound to flags.
func LoadWith(v *viper.Viper) (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.env", "development")
	v.SetDefault("app.base_url", "")
	v.SetDefault("app.single_endpoint", false)
	v.SetDefault("app.domain_check", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "")

	v.SetDefault("store.driver", StoreDriverGORM)
	v.SetDefault("store.dsn", "")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.database", "ephemurl")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_conns", 0)
	v.SetDefault("postgres.min_conns", 0)
	v.SetDefault("postgres.max_conn_lifetime", "")
	v.SetDefault("postgres.max_conn_idle_time", "")
	v.SetDefault("postgres.health_check_period", "")

	v.SetDefault("shortener.key_length", DefaultKeyLength)
	v.SetDefault("shortener.alphabet", DefaultAlphabet)
	v.SetDefault("shortener.ttl", time.Hour)
	v.SetDefault("shortener.max_attempts", 10)
	v.SetDefault("shortener.store_timeout", 3*time.Second)

	v.SetDefault("reclaimer.queue", QueueLocal)
	v.SetDefault("reclaimer.interval", time.Minute)
	v.SetDefault("reclaimer.cooldown", time.Second)
	v.SetDefault("reclaimer.timeout", 10*time.Second)
	v.SetDefault("reclaimer.lock_ttl", 30*time.Second)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.max_requests", 100)
	v.SetDefault("rate_limit.window", time.Minute)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("nats.host", "localhost")
	v.SetDefault("nats.port", 4222)
	v.SetDefault("nats.user", "")
	v.SetDefault("nats.password", "")

	v.SetDefault("prometheus.enabled", false)
	v.SetDefault("prometheus.port", 9090)
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("app.port", "APP_PORT")
	v.BindEnv("app.env", "APP_ENV")
	v.BindEnv("app.base_url", "BASE_URL")
	v.BindEnv("log.level", "LOG_LEVEL")

	v.BindEnv("store.driver", "STORE_DRIVER")
	v.BindEnv("store.dsn", "DATABASE_URL")

	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")

	// Shortener
	v.BindEnv("shortener.key_length", "KEY_LENGTH")
	v.BindEnv("shortener.alphabet", "KEY_ALPHABET")
	v.BindEnv("shortener.ttl", "URL_TTL")
	v.BindEnv("shortener.max_attempts", "REGISTER_MAX_ATTEMPTS")
	v.BindEnv("shortener.store_timeout", "STORE_TIMEOUT")

	v.BindEnv("reclaimer.queue", "RECLAIM_QUEUE")
	v.BindEnv("reclaimer.interval", "RECLAIM_INTERVAL")

	// Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// NATS
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")

	// Prometheus
	v.BindEnv("prometheus.enabled", "PROM_ENABLED")
	v.BindEnv("prometheus.port", "PROM_PORT")
}
