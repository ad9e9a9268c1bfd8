package likes

import (
	"context"

	"github.com/angelmondragon/captures-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository encapsulates capture like persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a likes repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Add inserts the like and ignores duplicates.
func (r *Repository) Add(ctx context.Context, userID uuid.UUID, captureID int64) error {
	return r.db.WithContext(ctx).
		Exec(`INSERT INTO capture_likes (user_id, capture_id, created_at) VALUES (?, ?, ?) ON CONFLICT (user_id, capture_id) DO NOTHING`,
			userID, captureID, r.db.NowFunc()).
		Error
}

// Remove deletes the like if it exists.
func (r *Repository) Remove(ctx context.Context, userID uuid.UUID, captureID int64) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND capture_id = ?", userID, captureID).
		Delete(&models.CaptureLike{}).
		Error
}

// Exists reports whether the user currently likes the capture.
func (r *Repository) Exists(ctx context.Context, userID uuid.UUID, captureID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CaptureLike{}).
		Where("user_id = ? AND capture_id = ?", userID, captureID).
		Count(&count).Error
	return count > 0, err
}

// CountForCapture is a live count of like rows.
func (r *Repository) CountForCapture(ctx context.Context, captureID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CaptureLike{}).
		Where("capture_id = ?", captureID).
		Count(&count).Error
	return count, err
}

// ListCaptureIDs returns the ids of non-deleted captures the user likes.
func (r *Repository) ListCaptureIDs(ctx context.Context, userID uuid.UUID) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Table("capture_likes cl").
		Joins("JOIN captures c ON c.id = cl.capture_id").
		Where("cl.user_id = ? AND c.deleted = ?", userID, false).
		Order("cl.capture_id ASC").
		Pluck("cl.capture_id", &ids).Error
	return ids, err
}
