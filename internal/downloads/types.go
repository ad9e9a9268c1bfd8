package downloads

import (
	"time"

	"github.com/angelmondragon/captures-backend/pkg/db/models"
	"github.com/google/uuid"
)

// DownloadResult is returned after a download is logged.
type DownloadResult struct {
	CaptureID      int64 `json:"capture_id"`
	TotalDownloads int64 `json:"total_downloads"`
}

// LogFilter narrows raw log listings. From is inclusive and To exclusive.
type LogFilter struct {
	CaptureID *int64
	UserID    *uuid.UUID
	From      *time.Time
	To        *time.Time
}

// LogDTO is the admin view of one download.
type LogDTO struct {
	ID         int64      `json:"id"`
	CaptureID  int64      `json:"capture_id"`
	UserID     uuid.UUID  `json:"user_id"`
	CreatedAt  time.Time  `json:"created_at"`
	ExportedAt *time.Time `json:"exported_at,omitempty"`
}

// LogPage is one cursor page of the raw log.
type LogPage struct {
	Items  []LogDTO `json:"items"`
	Cursor string   `json:"cursor"`
}

func toLogDTO(row models.DownloadLog) LogDTO {
	return LogDTO{
		ID:         row.ID,
		CaptureID:  row.CaptureID,
		UserID:     row.UserID,
		CreatedAt:  row.CreatedAt,
		ExportedAt: row.ExportedAt,
	}
}
