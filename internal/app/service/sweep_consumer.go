package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/EphemURL/internal/app/model"
	"go.uber.org/zap"
)

const (
	sweepFetchBatch   = 32
	sweepFetchWait    = 2 * time.Second
	sweepRetryBackoff = time.Second
	sweepAckWait      = 30 * time.Second
)

// Sweeper runs one expiry sweep.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// SweepConsumer drains sweep requests from JetStream and runs them.
type SweepConsumer struct {
	js       nats.JetStreamContext
	sweeper  Sweeper
	logger   *zap.Logger
	stopChan chan struct{}
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
}

// NewSweepConsumer creates a new sweep request consumer.
func NewSweepConsumer(js nats.JetStreamContext, sweeper Sweeper, logger *zap.Logger) *SweepConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepConsumer{
		js:       js,
		sweeper:  sweeper,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start ensures the work-queue stream and durable consumer exist, then
// begins consuming in the background. It is a no-op once consuming.
func (c *SweepConsumer) Start() error {
	if c.started.Load() {
		return nil
	}

	if _, err := c.js.StreamInfo(model.ReclaimStreamName); err != nil {
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:       model.ReclaimStreamName,
			Subjects:   []string{model.ReclaimStreamSubject},
			Retention:  nats.WorkQueuePolicy,
			MaxBytes:   model.ReclaimStreamMaxBytes,
			Duplicates: model.ReclaimDedupWindow,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	if _, err := c.js.ConsumerInfo(model.ReclaimStreamName, model.ReclaimConsumerName); err != nil {
		_, err = c.js.AddConsumer(model.ReclaimStreamName, &nats.ConsumerConfig{
			Durable:   model.ReclaimConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
			AckWait:   sweepAckWait,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.ReclaimStreamSubject, model.ReclaimConsumerName,
		nats.Bind(model.ReclaimStreamName, model.ReclaimConsumerName))
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	if !c.started.CompareAndSwap(false, true) {
		_ = sub.Unsubscribe()
		return nil
	}
	go c.consume(sub)
	return nil
}

// Stop ends the consume loop after the current fetch returns. It is safe to
// call more than once, and without a successful Start.
func (c *SweepConsumer) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
	if c.started.Load() {
		<-c.done
	}
}

func (c *SweepConsumer) consume(sub *nats.Subscription) {
	defer close(c.done)
	defer func() { _ = sub.Unsubscribe() }()

	for {
		select {
		case <-c.stopChan:
			c.logger.Info("sweep consumer stopped")
			return
		default:
		}

		msgs, err := sub.Fetch(sweepFetchBatch, nats.MaxWait(sweepFetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				c.logger.Warn("sweep consumer subscription closed", zap.Error(err))
				return
			}
			c.logger.Error("failed to fetch sweep requests", zap.Error(err))
			select {
			case <-time.After(sweepRetryBackoff):
			case <-c.stopChan:
				return
			}
			continue
		}

		if _, err := c.handleBatch(context.Background(), msgs); err != nil {
			c.logger.Error("expiry sweep failed", zap.Int("requests", len(msgs)), zap.Error(err))
		}
	}
}

// handleBatch runs a single sweep for all msgs; one sweep satisfies them all.
func (c *SweepConsumer) handleBatch(ctx context.Context, msgs []*nats.Msg) (int64, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	deleted, err := c.sweeper.Sweep(ctx)
	if err != nil {
		for _, msg := range msgs {
			if nakErr := msg.Nak(); nakErr != nil {
				c.logger.Debug("failed to nak sweep request", zap.Error(nakErr))
			}
		}
		return 0, err
	}

	for _, msg := range msgs {
		if ackErr := msg.Ack(); ackErr != nil {
			c.logger.Debug("failed to ack sweep request", zap.Error(ackErr))
		}
	}

	c.logger.Debug("sweep requests handled",
		zap.Int("requests", len(msgs)),
		zap.Int64("deleted", deleted),
	)
	return deleted, nil
}
