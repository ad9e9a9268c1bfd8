package controls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/captures-backend/internal/audit"
	"github.com/angelmondragon/captures-backend/pkg/db"
	"github.com/angelmondragon/captures-backend/pkg/db/models"
	"github.com/angelmondragon/captures-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/captures-backend/pkg/errors"
	"github.com/angelmondragon/captures-backend/pkg/logger"
	"github.com/angelmondragon/captures-backend/pkg/outbox"
	"github.com/angelmondragon/captures-backend/pkg/outbox/payloads"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type auditAppender interface {
	AppendTx(ctx context.Context, tx *gorm.DB, entry audit.Entry) (*models.AuditEntry, error)
}

// Service reads and changes the typed admin controls.
type Service interface {
	List(ctx context.Context) ([]ControlDTO, error)
	Get(ctx context.Context, key string) (ControlDTO, error)
	Set(ctx context.Context, input SetInput) (ControlDTO, error)
}

// ServiceParams groups the controls service dependencies. Location is used
// to read timestamps given without an offset and defaults to UTC.
type ServiceParams struct {
	Repo     *Repository
	Audit    auditAppender
	Tx       txRunner
	Outbox   outboxPublisher
	Logger   *logger.Logger
	Location *time.Location
}

type service struct {
	repo   *Repository
	audit  auditAppender
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	loc    *time.Location
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("controls repository required")
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
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	return &service{
		repo:   params.Repo,
		audit:  params.Audit,
		tx:     params.Tx,
		outbox: params.Outbox,
		logg:   params.Logger,
		loc:    loc,
	}, nil
}

func (s *service) List(ctx context.Context) ([]ControlDTO, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, db.Classify(err, "list controls")
	}
	byKey := make(map[string]*models.ControlSetting, len(rows))
	for i := range rows {
		byKey[rows[i].Key] = &rows[i]
	}
	out := make([]ControlDTO, 0, len(definitions))
	for _, def := range definitions {
		out = append(out, toDTO(def, byKey[def.Key]))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, key string) (ControlDTO, error) {
	def, err := lookupOrReject(key)
	if err != nil {
		return ControlDTO{}, err
	}
	row, err := s.repo.Find(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return toDTO(def, nil), nil
		}
		return ControlDTO{}, db.Classify(err, "load control")
	}
	return toDTO(def, row), nil
}

// Set validates and normalises the value, then stores it together with its
// ledger entry and outbox event. Storing the current value again is a no-op.
func (s *service) Set(ctx context.Context, input SetInput) (ControlDTO, error) {
	if err := input.Actor.Validate(); err != nil {
		return ControlDTO{}, err
	}
	def, err := lookupOrReject(input.Key)
	if err != nil {
		return ControlDTO{}, err
	}
	value, err := Normalize(def, input.Value, s.loc)
	if err != nil {
		return ControlDTO{}, err
	}

	var (
		result  *models.ControlSetting
		changed bool
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.Find(ctx, def.Key)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return db.Classify(err, "load control")
		}

		var currentVersion int64
		previous := ""
		if current != nil {
			currentVersion = current.Version
			previous = current.Value
		}
		if input.ExpectedVersion != nil && *input.ExpectedVersion != currentVersion {
			return versionConflict(def.Key, *input.ExpectedVersion, currentVersion)
		}
		if current != nil && current.Value == value && current.Kind == def.Kind {
			result = current
			return nil
		}

		if current == nil {
			row := &models.ControlSetting{
				Key:           def.Key,
				Kind:          def.Kind,
				SchemaVersion: SchemaVersion,
				Value:         value,
				Version:       1,
				UpdatedBy:     &input.Actor.ID,
			}
			if err := repo.Create(ctx, row); err != nil {
				return db.Classify(err, "create control")
			}
		} else {
			ok, err := repo.CompareAndSwap(ctx, def.Key, currentVersion, map[string]any{
				"kind":           def.Kind,
				"schema_version": SchemaVersion,
				"value":          value,
				"updated_by":     input.Actor.ID,
			})
			if err != nil {
				return db.Classify(err, "update control")
			}
			if !ok {
				return versionConflict(def.Key, currentVersion, currentVersion+1)
			}
		}

		stored, err := repo.Find(ctx, def.Key)
		if err != nil {
			return db.Classify(err, "reload control")
		}

		if _, err := s.audit.AppendTx(ctx, tx, audit.Entry{
			Actor:       input.Actor,
			Action:      enums.AuditActionControlUpdated,
			Description: fmt.Sprintf("%s set %s to %s", input.Actor.Name, def.Key, value),
			Metadata: map[string]any{
				"key":      def.Key,
				"previous": previous,
				"value":    value,
				"version":  stored.Version,
			},
		}); err != nil {
			return err
		}

		err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventControlUpdated,
			AggregateType: enums.AggregateControl,
			AggregateID:   def.Key,
			Actor: &outbox.ActorRef{
				UserID: input.Actor.ID,
				Name:   input.Actor.Name,
				Role:   string(input.Actor.Role),
			},
			Data: payloads.ControlUpdatedEvent{
				Key:     def.Key,
				Kind:    def.Kind,
				Value:   value,
				Version: stored.Version,
			},
		})
		if err != nil {
			return db.Classify(err, "emit control_updated")
		}

		result = stored
		changed = true
		return nil
	})
	if err != nil {
		return ControlDTO{}, err
	}

	if changed && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"control_key": def.Key,
			"actor_id":    input.Actor.ID.String(),
			"version":     result.Version,
		})
		s.logg.Info(logCtx, "control updated")
	}
	return toDTO(def, result), nil
}

func lookupOrReject(key string) (Definition, error) {
	def, ok := Lookup(key)
	if !ok {
		known := make([]string, 0, len(definitions))
		for _, d := range definitions {
			known = append(known, d.Key)
		}
		return Definition{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown control key").
			WithDetails(map[string]any{"key": key, "known": known})
	}
	return def, nil
}

func versionConflict(key string, expected, current int64) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "control was modified by another request").
		WithDetails(map[string]any{
			"key":              key,
			"expected_version": expected,
			"current_version":  current,
		})
}
