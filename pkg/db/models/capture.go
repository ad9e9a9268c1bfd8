package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/captures-backend/pkg/enums"
)

// Capture is one moderatable photo together with its lifecycle bookkeeping.
type Capture struct {
	ID             int64                 `gorm:"column:id;primaryKey;autoIncrement"`
	EventName      string                `gorm:"column:event_name;not null"`
	EventCategory  string                `gorm:"column:event_category;not null"`
	UploadType     enums.UploadType      `gorm:"column:upload_type;type:text;not null"`
	BatchKey       string                `gorm:"column:batch_key;not null;index:captures_batch_key_idx"`
	State          enums.ModerationState `gorm:"column:moderation_state;type:text;not null;index:captures_state_idx"`
	Deleted        bool                  `gorm:"column:deleted;not null"`
	DeletedAt      *time.Time            `gorm:"column:deleted_at"`
	DeletedReason  *string               `gorm:"column:deleted_reason"`
	ImagePath      string                `gorm:"column:image_path;not null"`
	CompressedPath *string               `gorm:"column:compressed_path"`
	AuthorID       *uuid.UUID            `gorm:"column:author_id;type:uuid"`
	AuthorName     string                `gorm:"column:author_name;not null"`
	Version        int64                 `gorm:"column:version;not null"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
