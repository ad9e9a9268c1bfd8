package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"github.com/angelmondragon/captures-backend/pkg/db"
	"github.com/angelmondragon/captures-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/captures-backend/pkg/errors"
	"github.com/angelmondragon/captures-backend/pkg/pagination"
	"gorm.io/gorm"
)

const maxDescriptionLength = 2000

// Service is the append-only audit ledger.
type Service interface {
	Append(ctx context.Context, entry Entry) (*models.AuditEntry, error)
	AppendTx(ctx context.Context, tx *gorm.DB, entry Entry) (*models.AuditEntry, error)
	Query(ctx context.Context, filter Filter, params pagination.Params) (*Page, error)
	Iterate(ctx context.Context, filter Filter) iter.Seq2[models.AuditEntry, error]
}

type service struct {
	repo Repository
}

// NewService wires the ledger with its repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Append(ctx context.Context, entry Entry) (*models.AuditEntry, error) {
	return s.AppendTx(ctx, nil, entry)
}

// AppendTx writes the entry through tx so it commits or rolls back with the
// caller's change. A nil tx appends on the base connection.
func (s *service) AppendTx(ctx context.Context, tx *gorm.DB, entry Entry) (*models.AuditEntry, error) {
	row, err := buildRow(entry)
	if err != nil {
		return nil, err
	}
	if err := s.repo.WithTx(tx).Create(ctx, row); err != nil {
		return nil, db.Classify(err, "append audit entry")
	}
	return row, nil
}

func buildRow(entry Entry) (*models.AuditEntry, error) {
	if err := entry.Actor.Validate(); err != nil {
		return nil, err
	}
	if !entry.Action.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid audit action").
			WithDetails(map[string]any{"action": entry.Action})
	}
	description := strings.TrimSpace(entry.Description)
	if description == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "audit description is required")
	}
	if len(description) > maxDescriptionLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "audit description is too long")
	}
	if entry.FromState != nil && !entry.FromState.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid from state")
	}
	if entry.ToState != nil && !entry.ToState.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid to state")
	}

	category := strings.TrimSpace(entry.Category)
	if category == "" {
		category = defaultCategory(entry.Action)
	}

	var metadata json.RawMessage
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "audit metadata must be json")
		}
		metadata = raw
	}

	return &models.AuditEntry{
		ActorID:     entry.Actor.ID,
		ActorName:   strings.TrimSpace(entry.Actor.Name),
		ActorRole:   entry.Actor.Role,
		Category:    category,
		Action:      entry.Action,
		Description: description,
		CaptureID:   entry.CaptureID,
		FromState:   entry.FromState,
		ToState:     entry.ToState,
		Metadata:    metadata,
	}, nil
}

func (s *service) Query(ctx context.Context, filter Filter, params pagination.Params) (*Page, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	afterID, err := pagination.AfterID(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, filter, afterID, pagination.FetchLimit(params.Limit))
	if err != nil {
		return nil, db.Classify(err, "query audit entries")
	}

	page, next := pagination.Trim(rows, params.Limit, func(e models.AuditEntry) int64 { return e.ID })
	items := make([]EntryDTO, 0, len(page))
	for _, e := range page {
		items = append(items, ToDTO(e))
	}
	return &Page{Items: items, Cursor: next}, nil
}

// Iterate walks every matching entry in insertion order, fetching one page at
// a time. Each call of the returned sequence starts again from the beginning.
func (s *service) Iterate(ctx context.Context, filter Filter) iter.Seq2[models.AuditEntry, error] {
	return func(yield func(models.AuditEntry, error) bool) {
		if err := validateFilter(filter); err != nil {
			yield(models.AuditEntry{}, err)
			return
		}
		var afterID int64
		for {
			if err := ctx.Err(); err != nil {
				yield(models.AuditEntry{}, err)
				return
			}
			rows, err := s.repo.List(ctx, filter, afterID, pagination.MaxLimit)
			if err != nil {
				yield(models.AuditEntry{}, db.Classify(err, "iterate audit entries"))
				return
			}
			for _, row := range rows {
				if !yield(row, nil) {
					return
				}
			}
			if len(rows) < pagination.MaxLimit {
				return
			}
			afterID = rows[len(rows)-1].ID
		}
	}
}

func validateFilter(filter Filter) error {
	if filter.Action != nil && !filter.Action.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid audit action filter")
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return pkgerrors.New(pkgerrors.CodeValidation, "time range start must be before its end")
	}
	return nil
}
