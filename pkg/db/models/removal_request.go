package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/captures-backend/pkg/enums"
)

// RemovalRequest is a person's request to take down a capture. Rows are
// never edited; the outcome lives in RemovalResolution.
type RemovalRequest struct {
	ID          int64      `gorm:"column:id;primaryKey;autoIncrement"`
	CaptureID   int64      `gorm:"column:capture_id;not null;index:removal_requests_capture_id_idx"`
	ImagePath   string     `gorm:"column:image_path;not null"`
	Name        string     `gorm:"column:name;not null"`
	Email       string     `gorm:"column:email;not null"`
	Description string     `gorm:"column:description;not null"`
	IDCardPath  string     `gorm:"column:id_card_path;not null"`
	SubmittedBy *uuid.UUID `gorm:"column:submitted_by;type:uuid"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// RemovalResolution records that a moderator acted on a removal request. At
// most one exists per request.
type RemovalResolution struct {
	ID        int64           `gorm:"column:id;primaryKey;autoIncrement"`
	RequestID int64           `gorm:"column:request_id;not null;uniqueIndex:removal_resolutions_request_id_key"`
	CaptureID int64           `gorm:"column:capture_id;not null"`
	ActorID   uuid.UUID       `gorm:"column:actor_id;type:uuid;not null"`
	ActorName string          `gorm:"column:actor_name;not null"`
	ActorRole enums.ActorRole `gorm:"column:actor_role;type:text;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}
