package main

import (
	"context"
	"errors"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/marketplace-orderflow/internal/metrics"
	"github.com/imrishuroy/marketplace-orderflow/internal/notifications"
	"github.com/imrishuroy/marketplace-orderflow/internal/worker"
)

// JobRunner runs one notification job.
type JobRunner interface {
	Run(ctx context.Context, target notifications.Target) error
}

// Processor handles SQS batches of queued notifications.
type Processor struct {
	runner      JobRunner
	validator   *notifications.Validator
	concurrency int
	metrics     metrics.Recorder
	logger      *zap.Logger
}

// NewProcessor returns a Processor running up to concurrency records at once.
func NewProcessor(runner JobRunner, validator *notifications.Validator, concurrency int, recorder metrics.Recorder, logger *zap.Logger) *Processor {
	if concurrency < 1 {
		concurrency = 1
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Processor{
		runner:      runner,
		validator:   validator,
		concurrency: concurrency,
		metrics:     recorder,
		logger:      logger.Named("sqs"),
	}
}

// Handle processes every record of the batch. A record is reported back for
// redelivery only when its job never ran because the key lock was unavailable.
// Reconciliation failures are acknowledged: the marketplace re-sends the
// notification and the failure is already logged and counted by the reconciler.
// Invalid records are dropped.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	p.logger.Debug("received batch", zap.Int("records", len(ev.Records)))

	var (
		mu       sync.Mutex
		failures []events.SQSBatchItemFailure
	)
	g := new(errgroup.Group)
	g.SetLimit(p.concurrency)
	for _, rec := range ev.Records {
		rec := rec
		g.Go(func() error {
			if err := p.processRecord(ctx, rec); err != nil {
				mu.Lock()
				failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return events.SQSEventResponse{BatchItemFailures: failures}, nil
}

func (p *Processor) processRecord(ctx context.Context, rec events.SQSMessage) error {
	_, target, err := p.validator.Decode([]byte(rec.Body))
	if err != nil {
		var ve *notifications.ValidationError
		if errors.As(err, &ve) {
			p.logger.Warn("invalid queued notification dropped",
				zap.String("message_id", rec.MessageId), zap.String("field", ve.Field), zap.String("reason", ve.Reason))
			p.metrics.NotificationDropped(ctx, "invalid")
			return nil
		}
		return err
	}
	err = p.runner.Run(ctx, target)
	if err == nil || errors.Is(err, worker.ErrLockUnavailable) {
		return err
	}
	p.logger.Warn("notification failed, acknowledged",
		zap.String("message_id", rec.MessageId), zap.String("key", target.Key()), zap.Error(err))
	return nil
}
