package models

import (
	"time"

	"github.com/google/uuid"
)

// DownloadLog is an append-only record of a single download.
type DownloadLog struct {
	ID         int64      `gorm:"column:id;primaryKey;autoIncrement"`
	CaptureID  int64      `gorm:"column:capture_id;not null;index:download_logs_capture_id_idx"`
	UserID     uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index:download_logs_user_id_idx"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	ExportedAt *time.Time `gorm:"column:exported_at"`
}
