package captures

import (
	"context"

	"github.com/angelmondragon/captures-backend/pkg/db/models"
	"github.com/angelmondragon/captures-backend/pkg/enums"
	"gorm.io/gorm"
)

// Repository manages persistence for captures.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, capture *models.Capture) error
	FindByID(ctx context.Context, id int64) (*models.Capture, error)
	FindActiveByID(ctx context.Context, id int64) (*models.Capture, error)
	List(ctx context.Context, query ListQuery) ([]models.Capture, error)
	ListBatchMembers(ctx context.Context, batchKey string) ([]models.Capture, error)
	CompareAndSwap(ctx context.Context, id, expectedVersion int64, updates map[string]any) (bool, error)
}

// ListQuery is the repository-level filter for capture listings. Deleted rows
// are only returned when Deleted is explicitly set to true.
type ListQuery struct {
	State         *enums.ModerationState
	UploadType    *enums.UploadType
	Deleted       bool
	BatchKey      string
	EventCategory string
	AfterID       int64
	Limit         int
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a capture repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, capture *models.Capture) error {
	return r.db.WithContext(ctx).Create(capture).Error
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Capture, error) {
	var capture models.Capture
	if err := r.db.WithContext(ctx).First(&capture, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &capture, nil
}

// FindActiveByID returns gorm.ErrRecordNotFound for soft-deleted captures.
func (r *repository) FindActiveByID(ctx context.Context, id int64) (*models.Capture, error) {
	var capture models.Capture
	if err := r.db.WithContext(ctx).
		Where("id = ? AND deleted = ?", id, false).
		First(&capture).Error; err != nil {
		return nil, err
	}
	return &capture, nil
}

func (r *repository) List(ctx context.Context, query ListQuery) ([]models.Capture, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Capture{}).
		Where("deleted = ?", query.Deleted)
	if query.State != nil {
		q = q.Where("moderation_state = ?", *query.State)
	}
	if query.UploadType != nil {
		q = q.Where("upload_type = ?", *query.UploadType)
	}
	if query.BatchKey != "" {
		q = q.Where("batch_key = ?", query.BatchKey)
	}
	if query.EventCategory != "" {
		q = q.Where("event_category = ?", query.EventCategory)
	}
	if query.AfterID > 0 {
		q = q.Where("id > ?", query.AfterID)
	}
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}

	var rows []models.Capture
	if err := q.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListBatchMembers returns the non-deleted batch captures sharing batchKey, ordered by id.
func (r *repository) ListBatchMembers(ctx context.Context, batchKey string) ([]models.Capture, error) {
	var rows []models.Capture
	if err := r.db.WithContext(ctx).
		Where("batch_key = ? AND upload_type = ? AND deleted = ?", batchKey, enums.UploadTypeBatch, false).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CompareAndSwap applies updates and bumps the version only when the stored
// version still equals expectedVersion. It reports whether a row changed.
func (r *repository) CompareAndSwap(ctx context.Context, id, expectedVersion int64, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["version"] = gorm.Expr("version + 1")

	res := r.db.WithContext(ctx).
		Model(&models.Capture{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
