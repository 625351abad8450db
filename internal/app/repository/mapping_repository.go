package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sifan077/EphemURL/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrKeyTaken signals that the unique index on key rejected an insert.
	ErrKeyTaken = errors.New("key already taken")
	// ErrMappingNotFound signals that no live mapping exists for the key.
	ErrMappingNotFound = errors.New("mapping not found")
)

const pgUniqueViolation = "23505"

// MappingStore defines the data access contract for short-key mappings.
//
// Implementations must enforce key uniqueness in the storage layer and must
// not hold a connection beyond the single statement each call issues.
type MappingStore interface {
	InsertUnique(ctx context.Context, key, url string, createdAt, expires time.Time) (*model.Mapping, error)
	FindLive(ctx context.Context, key string, now time.Time) (*model.Mapping, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type mappingRepository struct {
	db *gorm.DB
}

// NewMappingRepository returns a GORM-backed MappingStore.
//
// The *gorm.DB should be opened with TranslateError so duplicate keys surface
// as gorm.ErrDuplicatedKey; raw Postgres unique violations are recognised too.
func NewMappingRepository(db *gorm.DB) MappingStore {
	return &mappingRepository{db: db}
}

func (r *mappingRepository) InsertUnique(ctx context.Context, key, url string, createdAt, expires time.Time) (*model.Mapping, error) {
	mapping := &model.Mapping{
		Key:       key,
		TargetURL: url,
		Expires:   expires,
		CreatedAt: createdAt,
	}
	if err := r.db.WithContext(ctx).Create(mapping).Error; err != nil {
		if IsUniqueViolation(err) {
			return nil, ErrKeyTaken
		}
		return nil, err
	}
	return mapping, nil
}

func (r *mappingRepository) FindLive(ctx context.Context, key string, now time.Time) (*model.Mapping, error) {
	var mapping model.Mapping
	err := r.db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).
		Where(clause.Gte{Column: clause.Column{Name: "expires"}, Value: now}).
		Take(&mapping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMappingNotFound
		}
		return nil, err
	}
	return &mapping, nil
}

func (r *mappingRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where(clause.Lt{Column: clause.Column{Name: "expires"}, Value: now}).
		Delete(&model.Mapping{})
	return result.RowsAffected, result.Error
}

// IsUniqueViolation reports whether err comes from a unique constraint.
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
