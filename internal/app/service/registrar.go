package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sifan077/EphemURL/internal/app/metrics"
	"github.com/sifan077/EphemURL/internal/app/model"
	"github.com/sifan077/EphemURL/internal/app/repository"
	"go.uber.org/zap"
)

const (
	defaultMaxAttempts  = 10
	defaultStoreTimeout = 3 * time.Second
)

// KeyGenerator produces candidate keys; it knows nothing about uniqueness.
type KeyGenerator interface {
	Generate() (string, error)
}

// RegistrarDeps groups dependencies required by the Registrar.
type RegistrarDeps struct {
	Store        repository.MappingStore
	Keys         KeyGenerator
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	TTL          time.Duration
	MaxAttempts  int
	StoreTimeout time.Duration
	Now          func() time.Time
}

// Registrar turns a target URL into a committed mapping with a fresh key.
type Registrar struct {
	store        repository.MappingStore
	keys         KeyGenerator
	logger       *zap.Logger
	metrics      *metrics.Metrics
	ttl          time.Duration
	maxAttempts  int
	storeTimeout time.Duration
	now          func() time.Time
}

// NewRegistrar creates a Registrar with the provided dependencies.
func NewRegistrar(deps RegistrarDeps) *Registrar {
	r := &Registrar{
		store:        deps.Store,
		keys:         deps.Keys,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		ttl:          deps.TTL,
		maxAttempts:  deps.MaxAttempts,
		storeTimeout: deps.StoreTimeout,
		now:          deps.Now,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.metrics == nil {
		r.metrics = metrics.Nop()
	}
	if r.maxAttempts < 1 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.storeTimeout <= 0 {
		r.storeTimeout = defaultStoreTimeout
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// TTL returns the lifetime given to every new mapping.
func (r *Registrar) TTL() time.Duration { return r.ttl }

// Register inserts targetURL under a newly generated key.
//
// Collisions are detected only by the store's unique index; the losing
// attempt regenerates. Store timeouts are retried within the same attempt
// budget. Exactly one row is inserted on success.
func (r *Registrar) Register(ctx context.Context, targetURL string) (*model.Mapping, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			r.metrics.Registrations.WithLabelValues(metrics.ResultUnavailable).Inc()
			return nil, fmt.Errorf("register: %w: %w", ErrStoreUnavailable, err)
		}

		key, err := r.keys.Generate()
		if err != nil {
			r.metrics.Registrations.WithLabelValues(metrics.ResultError).Inc()
			return nil, fmt.Errorf("register: generate key: %w", err)
		}

		mapping, err := r.insert(ctx, key, targetURL)
		switch {
		case err == nil:
			r.metrics.Registrations.WithLabelValues(metrics.ResultOK).Inc()
			r.logger.Debug("registered mapping",
				zap.String("key", mapping.Key),
				zap.Uint64("id", mapping.ID),
				zap.Int("attempt", attempt),
				zap.Time("expires", mapping.Expires),
			)
			return mapping, nil
		case errors.Is(err, repository.ErrKeyTaken):
			r.metrics.Collisions.Inc()
			r.logger.Debug("key collision, regenerating", zap.String("key", key), zap.Int("attempt", attempt))
			lastErr = err
		case ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded):
			// The timed-out insert may still have committed; such a row simply expires.
			r.metrics.TransientFailures.Inc()
			r.logger.Warn("mapping insert timed out, retrying", zap.Int("attempt", attempt), zap.Error(err))
			lastErr = err
		default:
			r.metrics.Registrations.WithLabelValues(metrics.ResultUnavailable).Inc()
			return nil, fmt.Errorf("register: insert mapping: %w: %w", ErrStoreUnavailable, err)
		}
	}

	if errors.Is(lastErr, repository.ErrKeyTaken) {
		r.metrics.Registrations.WithLabelValues(metrics.ResultExhausted).Inc()
		r.logger.Error("no free key after retries", zap.Int("attempts", r.maxAttempts))
		return nil, fmt.Errorf("register: %d attempts: %w", r.maxAttempts, ErrKeyspaceExhausted)
	}
	r.metrics.Registrations.WithLabelValues(metrics.ResultUnavailable).Inc()
	return nil, fmt.Errorf("register: %d attempts: %w: %w", r.maxAttempts, ErrStoreUnavailable, lastErr)
}

func (r *Registrar) insert(ctx context.Context, key, targetURL string) (*model.Mapping, error) {
	ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	now := r.now().UTC()
	return r.store.InsertUnique(ctx, key, targetURL, now, now.Add(r.ttl))
}
