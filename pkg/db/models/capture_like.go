package models

import (
	"time"

	"github.com/google/uuid"
)

// CaptureLike links a user to a liked capture. Row existence is the like.
type CaptureLike struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:capture_likes_user_capture_key"`
	CaptureID int64     `gorm:"column:capture_id;not null;index:capture_likes_capture_id_idx;uniqueIndex:capture_likes_user_capture_key"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
