package controls

import (
	"time"

	"github.com/angelmondragon/captures-backend/pkg/auth"
	"github.com/angelmondragon/captures-backend/pkg/db/models"
	"github.com/angelmondragon/captures-backend/pkg/enums"
	"github.com/google/uuid"
)

// SetInput changes one control. ExpectedVersion guards against lost updates
// when provided.
type SetInput struct {
	Key             string
	Value           string
	Actor           auth.Actor
	ExpectedVersion *int64
}

// ControlDTO is a control setting as shown to admins. Unset keys have an
// empty Value and version 0.
type ControlDTO struct {
	Key           string            `json:"key"`
	Kind          enums.ControlKind `json:"kind"`
	Description   string            `json:"description"`
	Value         string            `json:"value"`
	Version       int64             `json:"version"`
	SchemaVersion int               `json:"schema_version"`
	UpdatedBy     *uuid.UUID        `json:"updated_by,omitempty"`
	UpdatedAt     *time.Time        `json:"updated_at,omitempty"`
}

func toDTO(def Definition, row *models.ControlSetting) ControlDTO {
	dto := ControlDTO{
		Key:           def.Key,
		Kind:          def.Kind,
		Description:   def.Description,
		SchemaVersion: SchemaVersion,
	}
	if row == nil {
		return dto
	}
	updatedAt := row.UpdatedAt
	dto.Value = row.Value
	dto.Version = row.Version
	dto.SchemaVersion = row.SchemaVersion
	dto.UpdatedBy = row.UpdatedBy
	dto.UpdatedAt = &updatedAt
	return dto
}
