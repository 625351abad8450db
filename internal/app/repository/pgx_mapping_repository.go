package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sifan077/EphemURL/internal/app/model"
)

const (
	insertMappingSQL = `INSERT INTO urls (key, url, expires, created_at) VALUES ($1, $2, $3, $4) RETURNING id`
	findLiveSQL      = `SELECT id, key, url, expires, created_at FROM urls WHERE key = $1 AND expires >= $2 LIMIT 1`
	deleteExpiredSQL = `DELETE FROM urls WHERE expires < $1`
)

// PgxQuerier is the subset of *pgxpool.Pool the pgx store relies on.
// Each call acquires a pooled connection and releases it before returning.
type PgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type pgxMappingRepository struct {
	pool PgxQuerier
}

// NewPgxMappingRepository returns a MappingStore that talks to Postgres through pgx.
func NewPgxMappingRepository(pool PgxQuerier) MappingStore {
	return &pgxMappingRepository{pool: pool}
}

func (r *pgxMappingRepository) InsertUnique(ctx context.Context, key, url string, createdAt, expires time.Time) (*model.Mapping, error) {
	mapping := &model.Mapping{
		Key:       key,
		TargetURL: url,
		Expires:   expires,
		CreatedAt: createdAt,
	}
	if err := r.pool.QueryRow(ctx, insertMappingSQL, key, url, expires, createdAt).Scan(&mapping.ID); err != nil {
		if IsUniqueViolation(err) {
			return nil, ErrKeyTaken
		}
		return nil, err
	}
	return mapping, nil
}

func (r *pgxMappingRepository) FindLive(ctx context.Context, key string, now time.Time) (*model.Mapping, error) {
	var mapping model.Mapping
	err := r.pool.QueryRow(ctx, findLiveSQL, key, now).
		Scan(&mapping.ID, &mapping.Key, &mapping.TargetURL, &mapping.Expires, &mapping.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMappingNotFound
		}
		return nil, err
	}
	return &mapping, nil
}

func (r *pgxMappingRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, deleteExpiredSQL, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
