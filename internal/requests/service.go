package requests

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/angelmondragon/captures-backend/internal/captures"
	"github.com/angelmondragon/captures-backend/internal/moderation"
	"github.com/angelmondragon/captures-backend/pkg/db"
	"github.com/angelmondragon/captures-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/captures-backend/pkg/errors"
	"github.com/angelmondragon/captures-backend/pkg/logger"
	"github.com/angelmondragon/captures-backend/pkg/pagination"
)

const (
	maxNameLength        = 200
	maxEmailLength       = 320
	maxDescriptionLength = 2000
)

var emailCheck = validator.New()

type softDeleter interface {
	SoftDelete(ctx context.Context, input moderation.SoftDeleteInput) (*models.Capture, error)
}

// ServiceParams groups dependencies for the removal request service.
type ServiceParams struct {
	Requests   *Repository
	Captures   captures.Repository
	Moderation softDeleter
	Logger     *logger.Logger
}

// Service takes removal requests from the public and lets moderators act on
// them. Acting on a request soft-deletes its capture through moderation, so
// the audit entry carries the request id as its reason.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (SubmitReceipt, error)
	List(ctx context.Context, params ListParams) (*Page, error)
	Resolve(ctx context.Context, input ResolveInput) (RequestDTO, error)
}

type service struct {
	requests   *Repository
	captures   captures.Repository
	moderation softDeleter
	logg       *logger.Logger
}

// NewService builds a removal request service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Requests == nil {
		return nil, fmt.Errorf("requests repository required")
	}
	if params.Captures == nil {
		return nil, fmt.Errorf("captures repository required")
	}
	if params.Moderation == nil {
		return nil, fmt.Errorf("moderation service required")
	}
	return &service{
		requests:   params.Requests,
		captures:   params.Captures,
		moderation: params.Moderation,
		logg:       params.Logger,
	}, nil
}

// Submit records the request against a live capture. The capture's image
// path is copied so the request still shows what was reported after the
// capture is gone from the gallery.
func (s *service) Submit(ctx context.Context, input SubmitInput) (SubmitReceipt, error) {
	if input.CaptureID <= 0 {
		return SubmitReceipt{}, pkgerrors.New(pkgerrors.CodeValidation, "capture id must be positive")
	}
	row := models.RemovalRequest{
		CaptureID:   input.CaptureID,
		Name:        strings.TrimSpace(input.Name),
		Email:       strings.TrimSpace(input.Email),
		Description: strings.TrimSpace(input.Description),
		IDCardPath:  strings.TrimSpace(input.IDCardPath),
		SubmittedBy: input.SubmittedBy,
	}
	if err := validateSubmission(row); err != nil {
		return SubmitReceipt{}, err
	}

	capture, err := s.captures.FindActiveByID(ctx, input.CaptureID)
	if err != nil {
		return SubmitReceipt{}, db.Classify(err, "load capture")
	}
	row.ImagePath = capture.ImagePath

	if err := s.requests.Insert(ctx, &row); err != nil {
		return SubmitReceipt{}, db.Classify(err, "insert removal request")
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithCaptureID(ctx, row.CaptureID), map[string]any{
			"request_id": row.ID,
		})
		s.logg.Info(logCtx, "removal request submitted")
	}
	return SubmitReceipt{ID: row.ID, CaptureID: row.CaptureID, CreatedAt: row.CreatedAt}, nil
}

func validateSubmission(row models.RemovalRequest) error {
	details := map[string]string{}
	if row.Name == "" || len(row.Name) > maxNameLength {
		details["name"] = "is required and must be at most 200 characters"
	}
	if len(row.Email) > maxEmailLength || emailCheck.Var(row.Email, "required,email") != nil {
		details["email"] = "must be a valid email address"
	}
	if row.Description == "" || len(row.Description) > maxDescriptionLength {
		details["description"] = "is required and must be at most 2000 characters"
	}
	if row.IDCardPath == "" {
		details["id_card_path"] = "is required"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return nil
}

func (s *service) List(ctx context.Context, params ListParams) (*Page, error) {
	afterID, err := pagination.AfterID(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.requests.List(ctx, ListQuery{
		CaptureID:  params.CaptureID,
		Unresolved: params.Unresolved,
		AfterID:    afterID,
		Limit:      pagination.FetchLimit(params.Limit),
	})
	if err != nil {
		return nil, db.Classify(err, "list removal requests")
	}

	page, next := pagination.Trim(rows, params.Limit, func(r models.RemovalRequest) int64 { return r.ID })
	ids := make([]int64, 0, len(page))
	for _, row := range page {
		ids = append(ids, row.ID)
	}
	resolutions, err := s.requests.ResolutionsFor(ctx, ids)
	if err != nil {
		return nil, db.Classify(err, "load removal resolutions")
	}

	items := make([]RequestDTO, 0, len(page))
	for _, row := range page {
		var resolution *models.RemovalResolution
		if r, ok := resolutions[row.ID]; ok {
			resolution = &r
		}
		items = append(items, toDTO(row, resolution))
	}
	return &Page{Items: items, Cursor: next}, nil
}

// Resolve soft-deletes the reported capture and records who did it. A
// request resolves once; repeating the call returns the first resolution.
func (s *service) Resolve(ctx context.Context, input ResolveInput) (RequestDTO, error) {
	if input.RequestID <= 0 {
		return RequestDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "request id must be positive")
	}
	if err := input.Actor.Validate(); err != nil {
		return RequestDTO{}, err
	}
	if !input.Actor.CanModerate() {
		return RequestDTO{}, pkgerrors.New(pkgerrors.CodeForbidden, "moderator role required")
	}

	request, err := s.requests.FindByID(ctx, input.RequestID)
	if err != nil {
		return RequestDTO{}, db.Classify(err, "load removal request")
	}
	existing, err := s.findResolution(ctx, request.ID)
	if err != nil {
		return RequestDTO{}, err
	}
	if existing != nil {
		return toDTO(*request, existing), nil
	}

	if _, err := s.moderation.SoftDelete(ctx, moderation.SoftDeleteInput{
		CaptureID: request.CaptureID,
		Actor:     input.Actor,
		Reason:    DeleteReason(request.ID),
	}); err != nil {
		return RequestDTO{}, err
	}

	resolution := &models.RemovalResolution{
		RequestID: request.ID,
		CaptureID: request.CaptureID,
		ActorID:   input.Actor.ID,
		ActorName: input.Actor.Name,
		ActorRole: input.Actor.Role,
	}
	if err := s.requests.InsertResolution(ctx, resolution); err != nil {
		classified := db.Classify(err, "insert removal resolution")
		if !pkgerrors.IsCode(classified, pkgerrors.CodeConflict) {
			return RequestDTO{}, classified
		}
		// Lost a race with another moderator; theirs stands.
		if resolution, err = s.findResolution(ctx, request.ID); err != nil || resolution == nil {
			return RequestDTO{}, classified
		}
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithCaptureID(ctx, request.CaptureID), map[string]any{
			"request_id": request.ID,
			"actor_id":   input.Actor.ID.String(),
		})
		s.logg.Info(logCtx, "removal request resolved")
	}
	return toDTO(*request, resolution), nil
}

func (s *service) findResolution(ctx context.Context, requestID int64) (*models.RemovalResolution, error) {
	resolution, err := s.requests.FindResolution(ctx, requestID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, db.Classify(err, "load removal resolution")
	}
	return resolution, nil
}
