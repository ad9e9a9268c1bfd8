package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/captures-backend/pkg/enums"
)

// ControlSetting stores the normalised value of one typed admin control.
type ControlSetting struct {
	Key           string            `gorm:"column:key;primaryKey"`
	Kind          enums.ControlKind `gorm:"column:kind;type:text;not null"`
	SchemaVersion int               `gorm:"column:schema_version;not null"`
	Value         string            `gorm:"column:value;not null"`
	Version       int64             `gorm:"column:version;not null"`
	UpdatedBy     *uuid.UUID        `gorm:"column:updated_by;type:uuid"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
