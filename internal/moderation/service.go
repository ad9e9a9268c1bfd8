package moderation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/captures-backend/internal/audit"
	"github.com/angelmondragon/captures-backend/internal/captures"
	"github.com/angelmondragon/captures-backend/pkg/auth"
	"github.com/angelmondragon/captures-backend/pkg/db"
	"github.com/angelmondragon/captures-backend/pkg/db/models"
	"github.com/angelmondragon/captures-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/captures-backend/pkg/errors"
	"github.com/angelmondragon/captures-backend/pkg/logger"
	"github.com/angelmondragon/captures-backend/pkg/metrics"
	"github.com/angelmondragon/captures-backend/pkg/outbox"
	"github.com/angelmondragon/captures-backend/pkg/outbox/payloads"
	"gorm.io/gorm"
)

const maxReasonLength = 500

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type auditAppender interface {
	AppendTx(ctx context.Context, tx *gorm.DB, entry audit.Entry) (*models.AuditEntry, error)
}

// Service applies moderation decisions. Every effective change commits
// together with its audit entry and outbox event.
type Service interface {
	Transition(ctx context.Context, input TransitionInput) (*models.Capture, error)
	PromoteBatch(ctx context.Context, batchKey string, actor auth.Actor) (BatchResult, error)
	SoftDelete(ctx context.Context, input SoftDeleteInput) (*models.Capture, error)
	Restore(ctx context.Context, input RestoreInput) (*models.Capture, error)
}

// ServiceParams groups the moderation service dependencies.
type ServiceParams struct {
	Captures captures.Repository
	Audit    auditAppender
	Tx       txRunner
	Outbox   outboxPublisher
	Logger   *logger.Logger
	Metrics  *metrics.ModerationMetrics
}

type service struct {
	captures captures.Repository
	audit    auditAppender
	tx       txRunner
	outbox   outboxPublisher
	logg     *logger.Logger
	metrics  *metrics.ModerationMetrics
	now      func() time.Time
}

// NewService builds the moderation service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Captures == nil {
		return nil, fmt.Errorf("captures repository required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit ledger required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		captures: params.Captures,
		audit:    params.Audit,
		tx:       params.Tx,
		outbox:   params.Outbox,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Capture, error) {
	if err := validateCall(input.CaptureID, input.Actor); err != nil {
		s.observe(operationTransition, "", err)
		return nil, err
	}
	if err := validateDecision(input.Target); err != nil {
		s.observe(operationTransition, "", err)
		return nil, err
	}
	ctx = s.logg.WithCaptureID(ctx, input.CaptureID)

	var (
		result  *models.Capture
		from    enums.ModerationState
		changed bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.captures.WithTx(tx)
		capture, err := loadForMutation(ctx, repo, input.CaptureID, input.ExpectedVersion)
		if err != nil {
			return err
		}
		if capture.Deleted {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "capture is deleted").
				WithDetails(map[string]any{"capture_id": capture.ID})
		}
		from = capture.State
		if capture.State == input.Target {
			result = capture
			return nil
		}

		updated, err := compareAndSwap(ctx, repo, capture, map[string]any{
			"moderation_state": input.Target,
		})
		if err != nil {
			return err
		}

		to := input.Target
		entry, err := s.audit.AppendTx(ctx, tx, audit.Entry{
			Actor:       input.Actor,
			Action:      enums.AuditActionCaptureTransitioned,
			Description: fmt.Sprintf("%s changed capture %d from %s to %s", input.Actor.Name, capture.ID, from, to),
			CaptureID:   &capture.ID,
			FromState:   &from,
			ToState:     &to,
			Metadata:    map[string]any{"version": updated.Version},
		})
		if err != nil {
			return err
		}

		if err := s.emit(ctx, tx, input.Actor, enums.EventCaptureTransitioned, enums.AggregateCapture, captureAggregateID(capture.ID), payloads.CaptureTransitionedEvent{
			CaptureID: capture.ID,
			FromState: from,
			ToState:   to,
			Version:   updated.Version,
			AuditID:   entry.ID,
		}); err != nil {
			return err
		}
		if to == enums.ModerationStateDeclined {
			if err := s.emit(ctx, tx, input.Actor, enums.EventCaptureDeclined, enums.AggregateCapture, captureAggregateID(capture.ID), payloads.CaptureDeclinedEvent{
				CaptureID:  capture.ID,
				EventName:  updated.EventName,
				AuthorID:   updated.AuthorID,
				AuthorName: updated.AuthorName,
				ImagePath:  updated.ImagePath,
				DeclinedAt: updated.UpdatedAt,
			}); err != nil {
				return err
			}
		}

		result = updated
		changed = true
		return nil
	})
	if err != nil {
		s.observe(operationTransition, "", err)
		return nil, err
	}

	if !changed {
		s.observe(operationTransition, outcomeNoop, nil)
		return result, nil
	}
	s.observe(operationTransition, outcomeOK, nil)
	s.metrics.IncTransition(string(from), string(input.Target))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"actor_id":   input.Actor.ID.String(),
		"from_state": from,
		"to_state":   input.Target,
		"version":    result.Version,
	})
	s.logg.Info(logCtx, "capture transitioned")
	return result, nil
}

func (s *service) PromoteBatch(ctx context.Context, batchKey string, actor auth.Actor) (BatchResult, error) {
	key := captures.DeriveBatchKey(batchKey)
	result := BatchResult{BatchKey: key, Promoted: []int64{}, Blocked: []int64{}}
	if key == "" {
		err := pkgerrors.New(pkgerrors.CodeValidation, "batch key is required")
		s.observe(operationPromote, "", err)
		return result, err
	}
	if err := actor.Validate(); err != nil {
		s.observe(operationPromote, "", err)
		return result, err
	}
	ctx = s.logg.WithBatchKey(ctx, key)

	var promoted []int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.captures.WithTx(tx)
		members, err := repo.ListBatchMembers(ctx, key)
		if err != nil {
			return db.Classify(err, "load batch members")
		}
		if len(members) == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "batch not found").
				WithDetails(map[string]any{"batch_key": key})
		}

		var blocked []int64
		for _, member := range members {
			if member.State != enums.ModerationStateApproved {
				blocked = append(blocked, member.ID)
			}
		}
		if len(blocked) > 0 {
			result.Blocked = blocked
			return pkgerrors.New(pkgerrors.CodePartialBatch, "batch has members that are not approved").
				WithDetails(map[string]any{"batch_key": key, "blocked": blocked})
		}

		ids := make([]int64, 0, len(members))
		for i := range members {
			member := &members[i]
			if _, err := compareAndSwap(ctx, repo, member, map[string]any{
				"upload_type": enums.UploadTypeDirect,
			}); err != nil {
				return err
			}
			if _, err := s.audit.AppendTx(ctx, tx, audit.Entry{
				Actor:       actor,
				Action:      enums.AuditActionCapturePromoted,
				Description: fmt.Sprintf("%s promoted capture %d from batch %s to direct", actor.Name, member.ID, key),
				CaptureID:   &member.ID,
				Metadata:    map[string]any{"batch_key": key, "batch_size": len(members)},
			}); err != nil {
				return err
			}
			ids = append(ids, member.ID)
		}

		if err := s.emit(ctx, tx, actor, enums.EventBatchPromoted, enums.AggregateBatch, key, payloads.BatchPromotedEvent{
			BatchKey:   key,
			CaptureIDs: ids,
		}); err != nil {
			return err
		}
		promoted = ids
		return nil
	})
	if err != nil {
		s.observe(operationPromote, "", err)
		if pkgerrors.IsCode(err, pkgerrors.CodePartialBatch) {
			logCtx := s.logg.WithField(ctx, "blocked", result.Blocked)
			s.logg.Warn(logCtx, "batch promotion blocked")
		}
		return result, err
	}

	result.Promoted = promoted
	s.observe(operationPromote, outcomeOK, nil)
	s.metrics.ObserveBatch(len(promoted))
	s.logg.Info(s.logg.WithField(ctx, "promoted", len(promoted)), "batch promoted")
	return result, nil
}

func (s *service) SoftDelete(ctx context.Context, input SoftDeleteInput) (*models.Capture, error) {
	reason := strings.TrimSpace(input.Reason)
	if err := validateCall(input.CaptureID, input.Actor); err != nil {
		s.observe(operationSoftDelete, "", err)
		return nil, err
	}
	if reason == "" || len(reason) > maxReasonLength {
		err := pkgerrors.New(pkgerrors.CodeValidation, "delete reason is required and must be at most 500 characters")
		s.observe(operationSoftDelete, "", err)
		return nil, err
	}

	updates := map[string]any{
		"deleted":        true,
		"deleted_at":     s.now(),
		"deleted_reason": reason,
	}
	return s.toggleDeleted(ctx, operationSoftDelete, input.CaptureID, input.Actor, input.ExpectedVersion, true, updates, func(tx *gorm.DB, updated *models.Capture) error {
		if _, err := s.audit.AppendTx(ctx, tx, audit.Entry{
			Actor:       input.Actor,
			Action:      enums.AuditActionCaptureDeleted,
			Description: fmt.Sprintf("Deleted a capture with id %d as %s", updated.ID, reason),
			CaptureID:   &updated.ID,
			Metadata:    map[string]any{"reason": reason, "state": updated.State},
		}); err != nil {
			return err
		}
		return s.emit(ctx, tx, input.Actor, enums.EventCaptureDeleted, enums.AggregateCapture, captureAggregateID(updated.ID), payloads.CaptureDeletedEvent{
			CaptureID: updated.ID,
			State:     updated.State,
			Reason:    reason,
			Version:   updated.Version,
		})
	})
}

func (s *service) Restore(ctx context.Context, input RestoreInput) (*models.Capture, error) {
	if err := validateCall(input.CaptureID, input.Actor); err != nil {
		s.observe(operationRestore, "", err)
		return nil, err
	}

	updates := map[string]any{
		"deleted":        false,
		"deleted_at":     nil,
		"deleted_reason": nil,
	}
	return s.toggleDeleted(ctx, operationRestore, input.CaptureID, input.Actor, input.ExpectedVersion, false, updates, func(tx *gorm.DB, updated *models.Capture) error {
		if _, err := s.audit.AppendTx(ctx, tx, audit.Entry{
			Actor:       input.Actor,
			Action:      enums.AuditActionCaptureRestored,
			Description: fmt.Sprintf("Restored a capture with id %d", updated.ID),
			CaptureID:   &updated.ID,
			Metadata:    map[string]any{"state": updated.State},
		}); err != nil {
			return err
		}
		return s.emit(ctx, tx, input.Actor, enums.EventCaptureRestored, enums.AggregateCapture, captureAggregateID(updated.ID), payloads.CaptureRestoredEvent{
			CaptureID: updated.ID,
			State:     updated.State,
			Version:   updated.Version,
		})
	})
}

// toggleDeleted drives both soft delete and restore. A capture already in the
// wanted state is returned unchanged with no ledger entry.
func (s *service) toggleDeleted(
	ctx context.Context,
	operation string,
	captureID int64,
	actor auth.Actor,
	expected *int64,
	wantDeleted bool,
	updates map[string]any,
	record func(tx *gorm.DB, updated *models.Capture) error,
) (*models.Capture, error) {
	ctx = s.logg.WithCaptureID(ctx, captureID)

	var (
		result  *models.Capture
		changed bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.captures.WithTx(tx)
		capture, err := loadForMutation(ctx, repo, captureID, expected)
		if err != nil {
			return err
		}
		if capture.Deleted == wantDeleted {
			result = capture
			return nil
		}
		updated, err := compareAndSwap(ctx, repo, capture, updates)
		if err != nil {
			return err
		}
		if err := record(tx, updated); err != nil {
			return err
		}
		result = updated
		changed = true
		return nil
	})
	if err != nil {
		s.observe(operation, "", err)
		return nil, err
	}

	if !changed {
		s.observe(operation, outcomeNoop, nil)
		return result, nil
	}
	s.observe(operation, outcomeOK, nil)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"actor_id": actor.ID.String(),
		"deleted":  result.Deleted,
		"version":  result.Version,
	})
	msg := "capture restored"
	if wantDeleted {
		msg = "capture soft deleted"
	}
	s.logg.Info(logCtx, msg)
	return result, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, actor auth.Actor, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, aggregateID string, data any) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   aggregateID,
		Actor: &outbox.ActorRef{
			UserID: actor.ID,
			Name:   actor.Name,
			Role:   string(actor.Role),
		},
		Data:       data,
		OccurredAt: s.now(),
	})
	if err != nil {
		return db.Classify(err, "emit "+string(eventType))
	}
	return nil
}

func (s *service) observe(operation, outcome string, err error) {
	if err != nil {
		outcome = string(pkgerrors.CodeOf(err))
	}
	s.metrics.ObserveOperation(operation, outcome)
}

func validateCall(captureID int64, actor auth.Actor) error {
	if captureID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "capture id must be positive")
	}
	return actor.Validate()
}

// validateDecision rejects targets outside {approved, declined}. Pending is
// only ever an initial state.
func validateDecision(target enums.ModerationState) error {
	if strings.TrimSpace(string(target)) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "target state is required")
	}
	if !target.IsDecision() {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, "target state must be approved or declined").
			WithDetails(map[string]any{"target": target})
	}
	return nil
}

func captureAggregateID(id int64) string {
	return strconv.FormatInt(id, 10)
}
