package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	scanFn func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scanFn(dest...) }

type fakeQuerier struct {
	queryRowFn func(ctx context.Context, sql string, args ...any) pgx.Row
	execFn     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (q *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return q.queryRowFn(ctx, sql, args...)
}

func (q *fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return q.execFn(ctx, sql, args...)
}

func TestPgxMappingRepository_InsertUnique(t *testing.T) {
	now := time.Now().UTC()

	t.Run("returns generated id", func(t *testing.T) {
		q := &fakeQuerier{
			queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
				assert.Equal(t, insertMappingSQL, sql)
				assert.Equal(t, []any{"k1k1k1k1", "example.com", now.Add(time.Hour), now}, args)
				return fakeRow{scanFn: func(dest ...any) error {
					*(dest[0].(*uint64)) = 42
					return nil
				}}
			},
		}
		m, err := NewPgxMappingRepository(q).InsertUnique(context.Background(), "k1k1k1k1", "example.com", now, now.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, uint64(42), m.ID)
		assert.Equal(t, "k1k1k1k1", m.Key)
	})

	t.Run("unique violation", func(t *testing.T) {
		q := &fakeQuerier{
			queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
				return fakeRow{scanFn: func(dest ...any) error {
					return &pgconn.PgError{Code: pgUniqueViolation}
				}}
			},
		}
		_, err := NewPgxMappingRepository(q).InsertUnique(context.Background(), "k1k1k1k1", "example.com", now, now)
		assert.ErrorIs(t, err, ErrKeyTaken)
	})

	t.Run("other errors pass through", func(t *testing.T) {
		boom := errors.New("connection refused")
		q := &fakeQuerier{
			queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
				return fakeRow{scanFn: func(dest ...any) error { return boom }}
			},
		}
		_, err := NewPgxMappingRepository(q).InsertUnique(context.Background(), "k1k1k1k1", "example.com", now, now)
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrKeyTaken)
	})
}

func TestPgxMappingRepository_FindLive_NotFound(t *testing.T) {
	q := &fakeQuerier{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			assert.Equal(t, findLiveSQL, sql)
			return fakeRow{scanFn: func(dest ...any) error { return pgx.ErrNoRows }}
		},
	}
	_, err := NewPgxMappingRepository(q).FindLive(context.Background(), "missing1", time.Now())
	assert.ErrorIs(t, err, ErrMappingNotFound)
}

func TestPgxMappingRepository_DeleteExpired(t *testing.T) {
	now := time.Now().UTC()
	q := &fakeQuerier{
		execFn: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			assert.Equal(t, deleteExpiredSQL, sql)
			assert.Equal(t, []any{now}, args)
			return pgconn.NewCommandTag("DELETE 7"), nil
		},
	}
	deleted, err := NewPgxMappingRepository(q).DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("unique")))
}
