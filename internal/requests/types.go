package requests

import (
	"strconv"
	"time"

	"github.com/angelmondragon/captures-backend/pkg/auth"
	"github.com/angelmondragon/captures-backend/pkg/db/models"
	"github.com/angelmondragon/captures-backend/pkg/enums"
	"github.com/angelmondragon/captures-backend/pkg/pagination"
	"github.com/google/uuid"
)

// SubmitInput is the removal form. IDCardPath points at the identity
// document already stored by the upload subsystem.
type SubmitInput struct {
	CaptureID   int64      `json:"capture_id" validate:"required,min=1"`
	Name        string     `json:"name" validate:"required,notblank,max=200"`
	Email       string     `json:"email" validate:"required,email,max=320"`
	Description string     `json:"description" validate:"required,notblank,max=2000"`
	IDCardPath  string     `json:"id_card_path" validate:"required,notblank,max=1000"`
	SubmittedBy *uuid.UUID `json:"-"`
}

// ResolveInput takes the capture named by a request down.
type ResolveInput struct {
	RequestID int64
	Actor     auth.Actor
}

// ListParams configures admin request listings.
type ListParams struct {
	pagination.Params
	CaptureID  *int64
	Unresolved bool
}

// RequestDTO is the admin view of a removal request.
type RequestDTO struct {
	ID          int64          `json:"id"`
	CaptureID   int64          `json:"capture_id"`
	ImagePath   string         `json:"image_path"`
	Name        string         `json:"name"`
	Email       string         `json:"email"`
	Description string         `json:"description"`
	IDCardPath  string         `json:"id_card_path"`
	SubmittedBy *uuid.UUID     `json:"submitted_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	Resolution  *ResolutionDTO `json:"resolution,omitempty"`
}

// ResolutionDTO names the moderator who acted and when.
type ResolutionDTO struct {
	ActorID   uuid.UUID       `json:"actor_id"`
	ActorName string          `json:"actor_name"`
	ActorRole enums.ActorRole `json:"actor_role"`
	CreatedAt time.Time       `json:"created_at"`
}

// Page is one cursor page of requests.
type Page struct {
	Items  []RequestDTO `json:"items"`
	Cursor string       `json:"cursor"`
}

// SubmitReceipt is what the requester gets back. Contact and identity
// details are not echoed.
type SubmitReceipt struct {
	ID        int64     `json:"id"`
	CaptureID int64     `json:"capture_id"`
	CreatedAt time.Time `json:"created_at"`
}

func toDTO(row models.RemovalRequest, resolution *models.RemovalResolution) RequestDTO {
	dto := RequestDTO{
		ID:          row.ID,
		CaptureID:   row.CaptureID,
		ImagePath:   row.ImagePath,
		Name:        row.Name,
		Email:       row.Email,
		Description: row.Description,
		IDCardPath:  row.IDCardPath,
		SubmittedBy: row.SubmittedBy,
		CreatedAt:   row.CreatedAt,
	}
	if resolution != nil {
		dto.Resolution = &ResolutionDTO{
			ActorID:   resolution.ActorID,
			ActorName: resolution.ActorName,
			ActorRole: resolution.ActorRole,
			CreatedAt: resolution.CreatedAt,
		}
	}
	return dto
}

// DeleteReason is the soft-delete reason recorded for a resolved request, so
// the audit entry names the request it came from.
func DeleteReason(requestID int64) string {
	return "removal request " + strconv.FormatInt(requestID, 10)
}
