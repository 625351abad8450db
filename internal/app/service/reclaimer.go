package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sifan077/EphemURL/internal/app/metrics"
	"github.com/sifan077/EphemURL/internal/app/repository"
	"go.uber.org/zap"
)

const (
	defaultSweepInterval = time.Minute
	defaultSweepTimeout  = 10 * time.Second
)

// SweepLock lets one replica at a time run the bulk delete.
type SweepLock interface {
	TryAcquire(ctx context.Context) (release func(), acquired bool, err error)
}

// ReclaimerDeps groups dependencies required by the Reclaimer.
type ReclaimerDeps struct {
	Store   repository.MappingStore
	Lock    SweepLock
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Interval of the periodic sweep that runs even without triggers.
	Interval time.Duration
	// Cooldown drops triggers arriving sooner than this after the previous sweep.
	Cooldown time.Duration
	Timeout  time.Duration
	Now      func() time.Time
}

// Reclaimer deletes expired mappings in the background.
type Reclaimer struct {
	store    repository.MappingStore
	lock     SweepLock
	logger   *zap.Logger
	metrics  *metrics.Metrics
	interval time.Duration
	cooldown time.Duration
	timeout  time.Duration
	now      func() time.Time

	trigger  chan struct{}
	stopChan chan struct{}
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
}

// NewReclaimer creates a Reclaimer. Call Start to run its worker.
func NewReclaimer(deps ReclaimerDeps) *Reclaimer {
	r := &Reclaimer{
		store:    deps.Store,
		lock:     deps.Lock,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		interval: deps.Interval,
		cooldown: deps.Cooldown,
		timeout:  deps.Timeout,
		now:      deps.Now,
		trigger:  make(chan struct{}, 1),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.metrics == nil {
		r.metrics = metrics.Nop()
	}
	if r.interval <= 0 {
		r.interval = defaultSweepInterval
	}
	if r.timeout <= 0 {
		r.timeout = defaultSweepTimeout
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Sweep deletes every mapping with expires < now in one statement.
//
// When a lock is configured and held elsewhere the sweep is skipped and
// reports zero deletions.
func (r *Reclaimer) Sweep(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.lock != nil {
		release, acquired, err := r.lock.TryAcquire(ctx)
		if err != nil {
			r.metrics.Sweeps.WithLabelValues(metrics.ResultError).Inc()
			return 0, fmt.Errorf("sweep: acquire lock: %w", err)
		}
		if !acquired {
			r.metrics.Sweeps.WithLabelValues(metrics.ResultSkipped).Inc()
			return 0, nil
		}
		defer release()
	}

	now := r.now().UTC()
	start := time.Now()
	deleted, err := r.store.DeleteExpired(ctx, now)
	r.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		r.metrics.Sweeps.WithLabelValues(metrics.ResultError).Inc()
		return 0, fmt.Errorf("sweep: delete expired: %w", err)
	}

	r.metrics.Sweeps.WithLabelValues(metrics.ResultOK).Inc()
	r.metrics.SweepDeleted.Add(float64(deleted))
	return deleted, nil
}

// Schedule queues a sweep for the worker. Requests made while one is
// already pending are coalesced into it.
func (r *Reclaimer) Schedule() {
	select {
	case r.trigger <- struct{}{}:
		r.metrics.SweepsScheduled.WithLabelValues("queued").Inc()
	default:
		r.metrics.SweepsScheduled.WithLabelValues("coalesced").Inc()
	}
}

// Start runs the worker goroutine. It is a no-op after the first call.
func (r *Reclaimer) Start() {
	if r.started.CompareAndSwap(false, true) {
		go r.run()
	}
}

// Stop terminates the worker and waits for an in-flight sweep to finish.
func (r *Reclaimer) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
	if r.started.Load() {
		<-r.done
	}
}

// Stopped reports whether a started worker has exited.
func (r *Reclaimer) Stopped() bool {
	if !r.started.Load() {
		return false
	}
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *Reclaimer) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var last time.Time
	for {
		select {
		case <-r.trigger:
			if r.cooldown > 0 && !last.IsZero() && time.Since(last) < r.cooldown {
				continue
			}
			last = time.Now()
			r.sweepAndLog("trigger")
		case <-ticker.C:
			last = time.Now()
			r.sweepAndLog("interval")
		case <-r.stopChan:
			r.logger.Info("reclaimer stopped")
			return
		}
	}
}

func (r *Reclaimer) sweepAndLog(reason string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("expiry sweep panicked", zap.String("reason", reason), zap.Any("panic", rec))
		}
	}()

	deleted, err := r.Sweep(context.Background())
	if err != nil {
		r.logger.Error("expiry sweep failed", zap.String("reason", reason), zap.Error(err))
		return
	}
	if deleted > 0 {
		r.logger.Info("reclaimed expired mappings",
			zap.String("reason", reason),
			zap.Int64("count", deleted),
		)
	}
}
