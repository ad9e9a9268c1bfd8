package requests

import (
	"context"

	"github.com/angelmondragon/captures-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository persists removal requests and their resolutions. Both tables
// are insert-only.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a removal request repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListQuery is the repository-level filter for request listings.
type ListQuery struct {
	CaptureID  *int64
	Unresolved bool
	AfterID    int64
	Limit      int
}

func (r *Repository) Insert(ctx context.Context, request *models.RemovalRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *Repository) FindByID(ctx context.Context, id int64) (*models.RemovalRequest, error) {
	var request models.RemovalRequest
	if err := r.db.WithContext(ctx).First(&request, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *Repository) List(ctx context.Context, query ListQuery) ([]models.RemovalRequest, error) {
	q := r.db.WithContext(ctx).Model(&models.RemovalRequest{})
	if query.CaptureID != nil {
		q = q.Where("capture_id = ?", *query.CaptureID)
	}
	if query.Unresolved {
		q = q.Where("NOT EXISTS (SELECT 1 FROM removal_resolutions rr WHERE rr.request_id = removal_requests.id)")
	}
	if query.AfterID > 0 {
		q = q.Where("id > ?", query.AfterID)
	}
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}

	var rows []models.RemovalRequest
	if err := q.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) InsertResolution(ctx context.Context, resolution *models.RemovalResolution) error {
	return r.db.WithContext(ctx).Create(resolution).Error
}

// FindResolution returns gorm.ErrRecordNotFound while the request is open.
func (r *Repository) FindResolution(ctx context.Context, requestID int64) (*models.RemovalResolution, error) {
	var resolution models.RemovalResolution
	if err := r.db.WithContext(ctx).First(&resolution, "request_id = ?", requestID).Error; err != nil {
		return nil, err
	}
	return &resolution, nil
}

// ResolutionsFor loads the resolutions of the given requests, keyed by request id.
func (r *Repository) ResolutionsFor(ctx context.Context, requestIDs []int64) (map[int64]models.RemovalResolution, error) {
	out := make(map[int64]models.RemovalResolution, len(requestIDs))
	if len(requestIDs) == 0 {
		return out, nil
	}
	var rows []models.RemovalResolution
	if err := r.db.WithContext(ctx).
		Where("request_id IN ?", requestIDs).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.RequestID] = row
	}
	return out, nil
}
