package service

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/EphemURL/internal/app/metrics"
	"github.com/sifan077/EphemURL/internal/app/model"
	"go.uber.org/zap"
)

// AsyncPublisher is the part of nats.JetStreamContext the publisher uses.
type AsyncPublisher interface {
	PublishAsync(subj string, data []byte, opts ...nats.PubOpt) (nats.PubAckFuture, error)
}

// SweepPublisher schedules sweeps by publishing requests to JetStream,
// where any replica's SweepConsumer picks them up.
//
// Publishing happens on a background goroutine: PublishAsync stalls once too
// many acks are outstanding, and Schedule runs on the redirect path.
type SweepPublisher struct {
	js      AsyncPublisher
	logger  *zap.Logger
	metrics *metrics.Metrics
	origin  string
	now     func() time.Time

	pending  chan time.Time
	stopChan chan struct{}
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
}

// NewSweepPublisher creates a publisher; origin identifies this replica in requests.
// Call Start to begin publishing.
func NewSweepPublisher(js AsyncPublisher, logger *zap.Logger, m *metrics.Metrics, origin string) *SweepPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &SweepPublisher{
		js:       js,
		logger:   logger,
		metrics:  m,
		origin:   origin,
		now:      time.Now,
		pending:  make(chan time.Time, 1),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Schedule hands a request to the publishing goroutine and returns at once.
// While one request is still waiting to go out, further calls are coalesced.
func (p *SweepPublisher) Schedule() {
	select {
	case p.pending <- p.now().UTC():
		p.metrics.SweepsScheduled.WithLabelValues("queued").Inc()
	default:
		p.metrics.SweepsScheduled.WithLabelValues("coalesced").Inc()
	}
}

// Start runs the publishing goroutine. It is a no-op after the first call.
func (p *SweepPublisher) Start() {
	if p.started.CompareAndSwap(false, true) {
		go p.run()
	}
}

// Stop ends the publishing goroutine. A request still pending is dropped.
func (p *SweepPublisher) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
	if p.started.Load() {
		<-p.done
	}
}

func (p *SweepPublisher) run() {
	defer close(p.done)
	for {
		select {
		case <-p.stopChan:
			return
		case at := <-p.pending:
			p.publish(at)
		}
	}
}

// publish sends one request. Requests within the same second share a
// message id, so the stream keeps only one of them.
func (p *SweepPublisher) publish(at time.Time) {
	req := model.SweepRequest{
		ID:          sweepMsgID(at),
		Origin:      p.origin,
		RequestedAt: at,
	}

	data, err := json.Marshal(req)
	if err != nil {
		p.metrics.SweepsScheduled.WithLabelValues(metrics.ResultError).Inc()
		p.logger.Error("failed to encode sweep request", zap.Error(err))
		return
	}

	if _, err := p.js.PublishAsync(model.ReclaimStreamSubject, data, nats.MsgId(req.ID)); err != nil {
		p.metrics.SweepsScheduled.WithLabelValues(metrics.ResultError).Inc()
		p.logger.Warn("failed to publish sweep request", zap.Error(err))
	}
}

func sweepMsgID(t time.Time) string {
	return fmt.Sprintf("sweep-%d", t.Unix())
}
