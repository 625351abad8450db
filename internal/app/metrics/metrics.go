// Package metrics holds the Prometheus collectors of the shortening core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ephemurl"

// Outcome labels.
const (
	ResultOK          = "ok"
	ResultNotFound    = "not_found"
	ResultExhausted   = "exhausted"
	ResultUnavailable = "unavailable"
	ResultSkipped     = "skipped"
	ResultError       = "error"
)

type Metrics struct {
	Registrations     *prometheus.CounterVec
	Collisions        prometheus.Counter
	TransientFailures prometheus.Counter
	Resolutions       *prometheus.CounterVec
	Sweeps            *prometheus.CounterVec
	SweepDeleted      prometheus.Counter
	SweepDuration     prometheus.Histogram
	SweepsScheduled   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registrar",
			Name:      "registrations_total",
			Help:      "Registration attempts by final outcome.",
		}, []string{"result"}),
		Collisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registrar",
			Name:      "key_collisions_total",
			Help:      "Inserts rejected by the unique key index.",
		}),
		TransientFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registrar",
			Name:      "transient_failures_total",
			Help:      "Inserts that timed out and were retried.",
		}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Key lookups by outcome.",
		}, []string{"result"}),
		Sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reclaimer",
			Name:      "sweeps_total",
			Help:      "Expiry sweeps by outcome.",
		}, []string{"result"}),
		SweepDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reclaimer",
			Name:      "deleted_total",
			Help:      "Expired mappings deleted by sweeps.",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reclaimer",
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of one sweep statement.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		SweepsScheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reclaimer",
			Name:      "scheduled_total",
			Help:      "Sweep triggers, split into queued and coalesced.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Registrations,
			m.Collisions,
			m.TransientFailures,
			m.Resolutions,
			m.Sweeps,
			m.SweepDeleted,
			m.SweepDuration,
			m.SweepsScheduled,
		)
	}
	return m
}

// Nop returns unregistered collectors for callers that do not export metrics.
func Nop() *Metrics {
	return New(nil)
}
