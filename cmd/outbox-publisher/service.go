package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderportal/pkg/config"
	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/angelmondragon/orderportal/pkg/enums"
	"github.com/angelmondragon/orderportal/pkg/logger"
	"github.com/angelmondragon/orderportal/pkg/metrics"
	"github.com/angelmondragon/orderportal/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxIdleBackoff        = 10 * time.Second
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxStore interface {
	FetchUnpublishedForPublish(ctx context.Context, tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
	CountPending(ctx context.Context, maxAttempts int) (int64, error)
}

type deadLetters interface {
	InsertTx(ctx context.Context, tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config   config.OutboxConfig
	Logger   *logger.Logger
	DB       txRunner
	Broker   interface{ Ping(context.Context) error }
	Sink     sink
	Outbox   outboxStore
	DLQ      deadLetters
	Registry resolver
	Metrics  *metrics.OutboxMetrics
}

// Service drains outbox_events to Pub/Sub. Each cycle claims a batch with
// SKIP LOCKED, publishes every row concurrently, then settles each row in the
// claiming transaction: published, retried later, or dead-lettered.
type Service struct {
	logg     *logger.Logger
	db       txRunner
	broker   interface{ Ping(context.Context) error }
	sink     sink
	outbox   outboxStore
	dlq      deadLetters
	registry resolver
	metrics  *metrics.OutboxMetrics

	batchSize      int
	maxAttempts    int
	pollInterval   time.Duration
	publishTimeout time.Duration
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Broker == nil || p.Sink == nil:
		return nil, errors.New("pubsub client is required")
	case p.Outbox == nil || p.DLQ == nil:
		return nil, errors.New("outbox repositories are required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	}
	s := &Service{
		logg:           p.Logger,
		db:             p.DB,
		broker:         p.Broker,
		sink:           p.Sink,
		outbox:         p.Outbox,
		dlq:            p.DLQ,
		registry:       p.Registry,
		metrics:        p.Metrics,
		batchSize:      orDefault(p.Config.BatchSize, defaultBatchSize),
		maxAttempts:    orDefault(p.Config.MaxAttempts, defaultMaxAttempts),
		pollInterval:   orDefault(time.Duration(p.Config.PollIntervalMS)*time.Millisecond, defaultPollInterval),
		publishTimeout: orDefault(p.Config.PublishTimeout, defaultPublishTimeout),
	}
	return s, nil
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if err := s.broker.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping: %w", err)
	}
	s.logg.Info(ctx, "outbox publisher ready")

	wait := s.pollInterval
	for {
		busy, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox.batch_failed", err)
			wait = min(wait*2, maxIdleBackoff)
		case busy:
			wait = s.pollInterval
			continue
		default:
			wait = s.pollInterval
		}
		if err := sleep(ctx, jitter(wait)); err != nil {
			return err
		}
	}
}

type outcome int

const (
	published outcome = iota
	retrying
	deadLettered
)

func (o outcome) label() string {
	return [...]string{metrics.DeliveryPublished, metrics.DeliveryRetried, metrics.DeliveryDeadLettered}[o]
}

type inflight struct {
	event      models.OutboxEvent
	resolveErr error
	topic      string
	result     pendingPublish
}

// processBatch reports whether it claimed any rows.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var counts [3]int
	claimed := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.outbox.FetchUnpublishedForPublish(ctx, tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}
		claimed = len(events)
		if claimed == 0 {
			return nil
		}

		publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
		defer cancel()

		batch := make([]inflight, len(events))
		for i, event := range events {
			batch[i] = s.start(publishCtx, event)
		}
		for _, item := range batch {
			result, err := s.settle(ctx, publishCtx, tx, item)
			if err != nil {
				return err
			}
			counts[result]++
			s.metrics.ObserveDelivery(string(item.event.EventType), result.label())
		}
		return nil
	})
	if err != nil {
		return claimed > 0, err
	}
	if claimed > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"claimed":       claimed,
			"published":     counts[published],
			"retried":       counts[retrying],
			"dead_lettered": counts[deadLettered],
		}), "outbox.batch_settled")
		s.reportPending(ctx)
	}
	return claimed > 0, nil
}

func (s *Service) start(ctx context.Context, event models.OutboxEvent) inflight {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return inflight{event: event, resolveErr: err}
	}
	topic := resolved.Route.Topic
	return inflight{event: event, topic: topic, result: s.sink.Publish(ctx, topic, message(event))}
}

// settle waits for one publish and records its result. A returned error rolls
// back the whole batch, which is then retried as a unit.
func (s *Service) settle(ctx, publishCtx context.Context, tx *gorm.DB, item inflight) (outcome, error) {
	event := item.event
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event_id":      event.ID.String(),
		"event_type":    event.EventType,
		"aggregate_id":  event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	})

	if item.resolveErr != nil {
		reason := enums.OutboxDLQReasonInvalidEnvelope
		if !event.EventType.IsValid() {
			reason = enums.OutboxDLQReasonUnknownEvent
		}
		return deadLettered, s.deadLetter(logCtx, tx, event, reason, item.resolveErr)
	}

	_, err := item.result.Get(publishCtx)
	if err == nil {
		if err := s.outbox.MarkPublishedTx(ctx, tx, event.ID); err != nil {
			return published, fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Debug(s.logg.WithField(logCtx, "topic", item.topic), "outbox.published")
		return published, nil
	}

	var permanent registry.NonRetryableError
	if errors.As(err, &permanent) {
		return deadLettered, s.deadLetter(logCtx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}
	if event.AttemptCount+1 >= s.maxAttempts {
		return deadLettered, s.deadLetter(logCtx, tx, event, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("gave up after %d attempts: %w", event.AttemptCount+1, err))
	}

	s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "outbox.publish_failed")
	if err := s.outbox.MarkFailedTx(ctx, tx, event.ID, err); err != nil {
		return retrying, fmt.Errorf("mark failed %s: %w", event.ID, err)
	}
	return retrying, nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"error_reason": reason,
		"error":        cause.Error(),
	}), "outbox.dead_lettered")

	msg := cause.Error()
	err := s.dlq.InsertTx(ctx, tx, models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.outbox.MarkTerminalTx(ctx, tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) reportPending(ctx context.Context) {
	pending, err := s.outbox.CountPending(ctx, s.maxAttempts)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "outbox.pending_count_failed")
		return
	}
	s.metrics.SetPending(pending)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// jitter spreads d by up to a quarter so replicas do not poll in lockstep.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(d/4+1)
}
