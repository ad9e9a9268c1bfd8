package audit

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/captures-backend/pkg/auth"
	"github.com/angelmondragon/captures-backend/pkg/db/models"
	"github.com/angelmondragon/captures-backend/pkg/enums"
	"github.com/google/uuid"
)

// Default categories, named after the admin screens that produce them.
const (
	CategoryCaptureManagement = "CaptureManagementAudit"
	CategoryBatchManagement   = "BatchManagementAudit"
	CategoryControlManagement = "ControlManagementAudit"
	CategoryGeneral           = "GeneralAudit"
)

// Entry is the input for a new ledger row.
type Entry struct {
	Actor       auth.Actor
	Category    string
	Action      enums.AuditAction
	Description string
	CaptureID   *int64
	FromState   *enums.ModerationState
	ToState     *enums.ModerationState
	Metadata    map[string]any
}

// Filter narrows ledger queries. Zero values match everything; the time range
// is half open, [From, To).
type Filter struct {
	ActorID   *uuid.UUID
	Category  string
	CaptureID *int64
	Action    *enums.AuditAction
	From      *time.Time
	To        *time.Time
}

// Page is one cursor page of ledger entries in insertion order.
type Page struct {
	Items  []EntryDTO `json:"items"`
	Cursor string     `json:"cursor"`
}

// EntryDTO is the API representation of a ledger entry.
type EntryDTO struct {
	ID          int64                  `json:"id"`
	ActorID     uuid.UUID              `json:"actor_id"`
	ActorName   string                 `json:"actor_name"`
	ActorRole   enums.ActorRole        `json:"actor_role"`
	Category    string                 `json:"category"`
	Action      enums.AuditAction      `json:"action"`
	Description string                 `json:"description"`
	CaptureID   *int64                 `json:"capture_id,omitempty"`
	FromState   *enums.ModerationState `json:"from_state,omitempty"`
	ToState     *enums.ModerationState `json:"to_state,omitempty"`
	Metadata    json.RawMessage        `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// ToDTO maps a stored entry to its API shape.
func ToDTO(e models.AuditEntry) EntryDTO {
	return EntryDTO{
		ID:          e.ID,
		ActorID:     e.ActorID,
		ActorName:   e.ActorName,
		ActorRole:   e.ActorRole,
		Category:    e.Category,
		Action:      e.Action,
		Description: e.Description,
		CaptureID:   e.CaptureID,
		FromState:   e.FromState,
		ToState:     e.ToState,
		Metadata:    e.Metadata,
		CreatedAt:   e.CreatedAt,
	}
}

func defaultCategory(action enums.AuditAction) string {
	switch action {
	case enums.AuditActionCaptureTransitioned, enums.AuditActionCaptureDeleted, enums.AuditActionCaptureRestored:
		return CategoryCaptureManagement
	case enums.AuditActionCapturePromoted:
		return CategoryBatchManagement
	case enums.AuditActionControlUpdated:
		return CategoryControlManagement
	default:
		return CategoryGeneral
	}
}
