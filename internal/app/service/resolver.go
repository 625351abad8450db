package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sifan077/EphemURL/internal/app/metrics"
	"github.com/sifan077/EphemURL/internal/app/model"
	"github.com/sifan077/EphemURL/internal/app/repository"
	"go.uber.org/zap"
)

// SweepScheduler requests an expiry sweep. Schedule must never block.
type SweepScheduler interface {
	Schedule()
}

// KeyValidator rejects keys the generator could not have produced.
type KeyValidator interface {
	Validate(key string) error
}

// ResolverDeps groups dependencies required by the Resolver.
type ResolverDeps struct {
	Store        repository.MappingStore
	Keys         KeyValidator
	Sweeper      SweepScheduler
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	StoreTimeout time.Duration
	Now          func() time.Time
}

// Resolver looks up live mappings.
type Resolver struct {
	store        repository.MappingStore
	keys         KeyValidator
	sweeper      SweepScheduler
	logger       *zap.Logger
	metrics      *metrics.Metrics
	storeTimeout time.Duration
	now          func() time.Time
}

type noopScheduler struct{}

func (noopScheduler) Schedule() {}

// NewResolver creates a Resolver with the provided dependencies.
func NewResolver(deps ResolverDeps) *Resolver {
	r := &Resolver{
		store:        deps.Store,
		keys:         deps.Keys,
		sweeper:      deps.Sweeper,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		storeTimeout: deps.StoreTimeout,
		now:          deps.Now,
	}
	if r.sweeper == nil {
		r.sweeper = noopScheduler{}
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.metrics == nil {
		r.metrics = metrics.Nop()
	}
	if r.storeTimeout <= 0 {
		r.storeTimeout = defaultStoreTimeout
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Resolve returns the live mapping for key.
//
// Expired rows that have not been reclaimed yet are indistinguishable from
// missing ones. Every call schedules a sweep without waiting for it.
func (r *Resolver) Resolve(ctx context.Context, key string) (*model.Mapping, error) {
	defer r.sweeper.Schedule()

	now := r.now().UTC()

	if r.keys != nil {
		if err := r.keys.Validate(key); err != nil {
			r.metrics.Resolutions.WithLabelValues(metrics.ResultNotFound).Inc()
			return nil, fmt.Errorf("resolve %q: %w", key, ErrNotFound)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	mapping, err := r.store.FindLive(ctx, key, now)
	if err != nil {
		if errors.Is(err, repository.ErrMappingNotFound) {
			r.metrics.Resolutions.WithLabelValues(metrics.ResultNotFound).Inc()
			return nil, fmt.Errorf("resolve %q: %w", key, ErrNotFound)
		}
		r.metrics.Resolutions.WithLabelValues(metrics.ResultUnavailable).Inc()
		r.logger.Error("failed to load mapping", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("resolve %q: %w: %w", key, ErrStoreUnavailable, err)
	}

	r.metrics.Resolutions.WithLabelValues(metrics.ResultOK).Inc()
	return mapping, nil
}

// TargetLocation returns the redirect target for m, defaulting to https.
func TargetLocation(m *model.Mapping) string {
	lower := strings.ToLower(m.TargetURL)
	if strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://") {
		return m.TargetURL
	}
	return "https://" + m.TargetURL
}
