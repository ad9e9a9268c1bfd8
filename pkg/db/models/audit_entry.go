package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/captures-backend/pkg/enums"
)

// AuditEntry is one immutable row of the audit ledger. IDs are assigned in
// insertion order and double as pagination cursors.
type AuditEntry struct {
	ID          int64                  `gorm:"column:id;primaryKey;autoIncrement"`
	ActorID     uuid.UUID              `gorm:"column:actor_id;type:uuid;not null;index:audit_entries_actor_id_idx"`
	ActorName   string                 `gorm:"column:actor_name;not null"`
	ActorRole   enums.ActorRole        `gorm:"column:actor_role;type:text;not null"`
	Category    string                 `gorm:"column:category;not null;index:audit_entries_category_idx"`
	Action      enums.AuditAction      `gorm:"column:action;type:text;not null"`
	Description string                 `gorm:"column:description;not null"`
	CaptureID   *int64                 `gorm:"column:capture_id;index:audit_entries_capture_id_idx"`
	FromState   *enums.ModerationState `gorm:"column:from_state;type:text"`
	ToState     *enums.ModerationState `gorm:"column:to_state;type:text"`
	Metadata    json.RawMessage        `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
}
