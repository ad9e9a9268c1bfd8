package downloads

import (
	"context"
	"time"

	"github.com/angelmondragon/captures-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository encapsulates download log persistence. Rows are only ever
// inserted; exported_at is the one column written afterwards.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a download log repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// LogQuery is the repository-level filter for raw log listings.
type LogQuery struct {
	CaptureID *int64
	UserID    *uuid.UUID
	From      *time.Time
	To        *time.Time
	AfterID   int64
	Limit     int
}

// CaptureCount is the number of downloads recorded for one capture.
type CaptureCount struct {
	CaptureID int64 `json:"capture_id"`
	Downloads int64 `json:"downloads"`
}

func (r *Repository) Insert(ctx context.Context, entry *models.DownloadLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *Repository) CountForCapture(ctx context.Context, captureID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DownloadLog{}).
		Where("capture_id = ?", captureID).
		Count(&count).Error
	return count, err
}

// CountsByCapture groups the log by capture. An empty id list counts every capture.
func (r *Repository) CountsByCapture(ctx context.Context, captureIDs []int64) ([]CaptureCount, error) {
	q := r.db.WithContext(ctx).
		Model(&models.DownloadLog{}).
		Select("capture_id, COUNT(*) AS downloads")
	if len(captureIDs) > 0 {
		q = q.Where("capture_id IN ?", captureIDs)
	}
	var rows []CaptureCount
	if err := q.Group("capture_id").Order("capture_id ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) List(ctx context.Context, query LogQuery) ([]models.DownloadLog, error) {
	q := r.db.WithContext(ctx).Model(&models.DownloadLog{})
	if query.CaptureID != nil {
		q = q.Where("capture_id = ?", *query.CaptureID)
	}
	if query.UserID != nil {
		q = q.Where("user_id = ?", *query.UserID)
	}
	if query.From != nil {
		q = q.Where("created_at >= ?", query.From.UTC())
	}
	if query.To != nil {
		q = q.Where("created_at < ?", query.To.UTC())
	}
	if query.AfterID > 0 {
		q = q.Where("id > ?", query.AfterID)
	}
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}
	var rows []models.DownloadLog
	if err := q.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListUnexported returns the oldest rows not yet shipped to the warehouse.
func (r *Repository) ListUnexported(ctx context.Context, limit int) ([]models.DownloadLog, error) {
	var rows []models.DownloadLog
	if err := r.db.WithContext(ctx).
		Where("exported_at IS NULL").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkExported stamps exported_at on rows that have not been stamped yet.
func (r *Repository) MarkExported(ctx context.Context, ids []int64, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.DownloadLog{}).
		Where("id IN ? AND exported_at IS NULL", ids).
		Update("exported_at", at.UTC())
	return res.RowsAffected, res.Error
}
