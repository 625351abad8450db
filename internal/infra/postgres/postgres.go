package postgres

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sifan077/EphemURL/config"
)

const defaultDialTimeout = 5 * time.Second

// NewPool creates a pgx connection pool using the provided config and verifies connectivity.
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	pg := cfg.Postgres
	if pg.MaxConns > 0 {
		poolCfg.MaxConns = pg.MaxConns
	}
	if pg.MinConns > 0 {
		poolCfg.MinConns = pg.MinConns
	}
	if d := parseDuration(pg.MaxConnLifetime, 0); d > 0 {
		poolCfg.MaxConnLifetime = d
	}
	if d := parseDuration(pg.MaxConnIdleTime, 0); d > 0 {
		poolCfg.MaxConnIdleTime = d
	}
	if d := parseDuration(pg.HealthCheckPeriod, 0); d > 0 {
		poolCfg.HealthCheckPeriod = d
	}

	dialCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(dialCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return pool, nil
}

// DSN returns store.dsn when set, otherwise a URL built from postgres.*.
func DSN(cfg *config.Config) string {
	if cfg.Store.DSN != "" {
		return cfg.Store.DSN
	}
	return ConnString(cfg.Postgres)
}

type connParts struct {
	host     string
	port     int
	user     string
	password string
	database string
	sslMode  string
}

func ConnString(cfg config.PostgresConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return buildConnString(connParts{
		host:     host,
		port:     port,
		user:     cfg.User,
		password: cfg.Password,
		database: cfg.Database,
		sslMode:  sslMode,
	})
}

func buildConnString(parts connParts) string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", parts.host, parts.port),
		Path:     "/" + parts.database,
		RawQuery: url.Values{"sslmode": {parts.sslMode}}.Encode(),
	}
	if parts.password != "" {
		u.User = url.UserPassword(parts.user, parts.password)
	} else if parts.user != "" {
		u.User = url.User(parts.user)
	}
	return u.String()
}
