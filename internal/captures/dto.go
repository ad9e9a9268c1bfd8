package captures

import (
	"time"

	"github.com/angelmondragon/captures-backend/pkg/db/models"
	"github.com/angelmondragon/captures-backend/pkg/enums"
	"github.com/angelmondragon/captures-backend/pkg/pagination"
	"github.com/google/uuid"
)

// CreateInput is the hand-off from the upload subsystem. Paths arrive already
// resolved by blob storage.
type CreateInput struct {
	EventName      string           `json:"event_name" validate:"required,max=200"`
	EventCategory  string           `json:"event_category" validate:"max=100"`
	UploadType     enums.UploadType `json:"upload_type" validate:"required,oneof=direct batch"`
	ImagePath      string           `json:"image_path" validate:"required"`
	CompressedPath *string          `json:"compressed_path"`
	AuthorID       *uuid.UUID       `json:"author_id"`
	AuthorName     string           `json:"author_name" validate:"max=200"`
}

// ListParams configures capture listings. BatchKey accepts either a key or
// the event name it derives from.
type ListParams struct {
	State         *enums.ModerationState
	UploadType    *enums.UploadType
	Deleted       bool
	BatchKey      string
	EventCategory string
	Limit         int
	Cursor        string
}

// PublishedParams configures the public gallery.
type PublishedParams struct {
	pagination.Params
	Category         string
	IncludeDownloads bool
}

// ListResult is one page of captures.
type ListResult struct {
	Items  []CaptureDTO `json:"items"`
	Cursor string       `json:"cursor"`
}

// CaptureDTO is the API representation of a capture.
type CaptureDTO struct {
	ID             int64                 `json:"id"`
	EventName      string                `json:"event_name"`
	EventCategory  string                `json:"event_category"`
	UploadType     enums.UploadType      `json:"upload_type"`
	BatchKey       string                `json:"batch_key"`
	State          enums.ModerationState `json:"moderation_state"`
	Deleted        bool                  `json:"deleted"`
	DeletedAt      *time.Time            `json:"deleted_at,omitempty"`
	DeletedReason  *string               `json:"deleted_reason,omitempty"`
	ImagePath      string                `json:"image_path"`
	CompressedPath *string               `json:"compressed_path,omitempty"`
	AuthorID       *uuid.UUID            `json:"author_id,omitempty"`
	AuthorName     string                `json:"author_name"`
	Version        int64                 `json:"version"`
	Downloads      *int64                `json:"downloads,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// ToDTO maps the persisted model to its API shape.
func ToDTO(c models.Capture) CaptureDTO {
	return CaptureDTO{
		ID:             c.ID,
		EventName:      c.EventName,
		EventCategory:  c.EventCategory,
		UploadType:     c.UploadType,
		BatchKey:       c.BatchKey,
		State:          c.State,
		Deleted:        c.Deleted,
		DeletedAt:      c.DeletedAt,
		DeletedReason:  c.DeletedReason,
		ImagePath:      c.ImagePath,
		CompressedPath: c.CompressedPath,
		AuthorID:       c.AuthorID,
		AuthorName:     c.AuthorName,
		Version:        c.Version,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}
