package controls

import (
	"context"

	"github.com/angelmondragon/captures-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository persists control settings.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a control settings repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Find(ctx context.Context, key string) (*models.ControlSetting, error) {
	var setting models.ControlSetting
	if err := r.db.WithContext(ctx).First(&setting, "key = ?", key).Error; err != nil {
		return nil, err
	}
	return &setting, nil
}

func (r *Repository) List(ctx context.Context) ([]models.ControlSetting, error) {
	var rows []models.ControlSetting
	if err := r.db.WithContext(ctx).Order("key ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) Create(ctx context.Context, setting *models.ControlSetting) error {
	return r.db.WithContext(ctx).Create(setting).Error
}

// CompareAndSwap writes updates and bumps the version only when the stored
// version still equals expectedVersion.
func (r *Repository) CompareAndSwap(ctx context.Context, key string, expectedVersion int64, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["version"] = gorm.Expr("version + 1")
	res := r.db.WithContext(ctx).
		Model(&models.ControlSetting{}).
		Where("key = ? AND version = ?", key, expectedVersion).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
