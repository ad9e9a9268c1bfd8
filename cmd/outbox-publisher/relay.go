package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/captures-backend/pkg/db/models"
	"github.com/angelmondragon/captures-backend/pkg/enums"
	"github.com/angelmondragon/captures-backend/pkg/outbox/registry"
)

// flight tracks one claimed row from dispatch until it is settled.
type flight struct {
	event    models.OutboxEvent
	resolved *registry.ResolvedEvent
	pub      publisher
	result   publishResult
	err      error
}

type verdict int

const (
	verdictPublished verdict = iota
	verdictRetry
	verdictDeadLetter
)

// processBatch claims a batch, puts every row in flight at once and then
// settles them in fetch order. Only bookkeeping failures abort the batch.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil || len(events) == 0 {
			return err
		}
		processed = true

		publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
		defer cancel()

		flights := make([]*flight, 0, len(events))
		for _, event := range events {
			flights = append(flights, s.dispatch(publishCtx, event))
		}
		for _, f := range flights {
			if f.err == nil {
				_, f.err = f.result.Get(publishCtx)
			}
			if err := s.settle(ctx, tx, f); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

// dispatch resolves the row and starts its publish without waiting on it.
func (s *Service) dispatch(ctx context.Context, event models.OutboxEvent) *flight {
	f := &flight{event: event}
	f.resolved, f.err = s.registry.Resolve(event)
	if f.err != nil {
		return f
	}

	topic := f.resolved.Descriptor.Topic
	if f.pub = s.publishers(topic); f.pub == nil {
		f.err = registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
		return f
	}
	if f.result = f.pub.Publish(ctx, s.message(f)); f.result == nil {
		f.err = registry.NewNonRetryableError(fmt.Errorf("%w for topic %s", errNilPublishResult, topic))
	}
	return f
}

func (s *Service) message(f *flight) *gcppubsub.Message {
	msg := &gcppubsub.Message{
		Data: f.event.Payload,
		Attributes: map[string]string{
			"event_id":       f.resolved.Envelope.EventID,
			"event_type":     string(f.event.EventType),
			"aggregate_type": string(f.event.AggregateType),
			"aggregate_id":   f.event.AggregateID,
			"created_at":     f.event.CreatedAt.Format(time.RFC3339Nano),
			"schema_version": strconv.Itoa(f.resolved.Envelope.Version),
		},
	}
	if s.ordered {
		msg.OrderingKey = f.resolved.OrderingKey
	}
	return msg
}

// judge decides what happens to a row after its publish attempt.
func (s *Service) judge(f *flight) (verdict, enums.OutboxDLQErrorReason, error) {
	switch {
	case f.err == nil:
		return verdictPublished, "", nil
	case registry.IsNonRetryable(f.err) && !f.event.EventType.IsValid():
		return verdictDeadLetter, enums.OutboxDLQReasonUnknownEvent, f.err
	case registry.IsNonRetryable(f.err):
		return verdictDeadLetter, enums.OutboxDLQReasonNonRetryable, f.err
	case f.event.AttemptCount+1 >= s.maxAttempts:
		return verdictDeadLetter, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", f.err)
	default:
		return verdictRetry, "", f.err
	}
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, f *flight) error {
	event := f.event
	label := string(event.EventType)
	logCtx := s.logg.WithFields(ctx, s.fields(f))

	if f.err != nil && f.pub != nil && s.ordered {
		f.pub.ResumePublish(f.resolved.OrderingKey)
	}

	v, reason, cause := s.judge(f)
	switch v {
	case verdictPublished:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncPublished(label)
		s.logg.Info(logCtx, "outbox event published")

	case verdictRetry:
		if err := s.repo.MarkFailedTx(tx, event.ID, cause); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
		s.metrics.IncFailed(label)
		s.logg.Warn(s.logg.WithField(logCtx, "error", cause.Error()), "outbox publish failed")

	case verdictDeadLetter:
		if err := s.repo.DeadLetterTx(tx, event, reason, cause, s.maxAttempts); err != nil {
			return err
		}
		s.metrics.IncDeadLettered(label)
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"error":        cause.Error(),
			"error_reason": reason,
		}), "outbox event dead lettered")
	}
	return nil
}

func (s *Service) fields(f *flight) map[string]any {
	fields := map[string]any{
		"outbox_id":      f.event.ID.String(),
		"event_type":     f.event.EventType,
		"aggregate_type": f.event.AggregateType,
		"aggregate_id":   f.event.AggregateID,
		"attempt_count":  f.event.AttemptCount,
	}
	if r := f.resolved; r != nil {
		fields["topic"] = r.Descriptor.Topic
		fields["event_id"] = r.Envelope.EventID
		if s.ordered {
			fields["ordering_key"] = r.OrderingKey
		}
	}
	return fields
}
