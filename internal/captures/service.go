package captures

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/captures-backend/pkg/db"
	"github.com/angelmondragon/captures-backend/pkg/db/models"
	"github.com/angelmondragon/captures-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/captures-backend/pkg/errors"
	"github.com/angelmondragon/captures-backend/pkg/pagination"
)

// Service exposes capture creation and read paths. Mutations of an existing
// capture belong to the moderation service.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Capture, error)
	Get(ctx context.Context, id int64) (*models.Capture, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	ListPublished(ctx context.Context, params PublishedParams) (*ListResult, error)
}

// DownloadCounter reports how many downloads were logged per capture. Ids
// with no downloads may be absent from the result.
type DownloadCounter interface {
	DownloadTotals(ctx context.Context, captureIDs []int64) (map[int64]int64, error)
}

// Option configures optional service collaborators.
type Option func(*service)

// WithDownloadCounter lets ListPublished attach download counts for moderators.
func WithDownloadCounter(counter DownloadCounter) Option {
	return func(s *service) { s.downloads = counter }
}

type service struct {
	repo      Repository
	downloads DownloadCounter
}

// NewService wires a capture service with the provided repository.
func NewService(repo Repository, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("captures repository required")
	}
	s := &service{repo: repo}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Capture, error) {
	eventName := strings.TrimSpace(input.EventName)
	if eventName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event name is required")
	}
	if strings.TrimSpace(input.ImagePath) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "image path is required")
	}
	uploadType := input.UploadType
	if uploadType == "" {
		uploadType = enums.UploadTypeDirect
	}
	if !uploadType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid upload type").
			WithDetails(map[string]any{"upload_type": input.UploadType})
	}

	capture := &models.Capture{
		EventName:      eventName,
		EventCategory:  strings.TrimSpace(input.EventCategory),
		UploadType:     uploadType,
		BatchKey:       DeriveBatchKey(eventName),
		State:          enums.ModerationStatePending,
		ImagePath:      strings.TrimSpace(input.ImagePath),
		CompressedPath: input.CompressedPath,
		AuthorID:       input.AuthorID,
		AuthorName:     strings.TrimSpace(input.AuthorName),
	}
	if err := s.repo.Create(ctx, capture); err != nil {
		return nil, db.Classify(err, "create capture")
	}
	return capture, nil
}

func (s *service) Get(ctx context.Context, id int64) (*models.Capture, error) {
	if id <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "capture id must be positive")
	}
	capture, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, db.Classify(err, "load capture")
	}
	return capture, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.State != nil && !params.State.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid moderation state")
	}
	if params.UploadType != nil && !params.UploadType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid upload type")
	}
	afterID, err := pagination.AfterID(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	query := ListQuery{
		State:         params.State,
		UploadType:    params.UploadType,
		Deleted:       params.Deleted,
		BatchKey:      DeriveBatchKey(params.BatchKey),
		EventCategory: strings.TrimSpace(params.EventCategory),
		Limit:         pagination.FetchLimit(params.Limit),
		AfterID:       afterID,
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, db.Classify(err, "list captures")
	}

	page, next := pagination.Trim(rows, params.Limit, func(c models.Capture) int64 { return c.ID })
	items := make([]CaptureDTO, 0, len(page))
	for _, c := range page {
		items = append(items, ToDTO(c))
	}
	return &ListResult{Items: items, Cursor: next}, nil
}

// ListPublished returns the public gallery: approved, directly published and
// not deleted. Download counts are attached only when IncludeDownloads is set
// and a counter is wired.
func (s *service) ListPublished(ctx context.Context, params PublishedParams) (*ListResult, error) {
	approved := enums.ModerationStateApproved
	direct := enums.UploadTypeDirect
	result, err := s.List(ctx, ListParams{
		State:         &approved,
		UploadType:    &direct,
		EventCategory: params.Category,
		Limit:         params.Limit,
		Cursor:        params.Cursor,
	})
	if err != nil || !params.IncludeDownloads || s.downloads == nil || len(result.Items) == 0 {
		return result, err
	}

	ids := make([]int64, 0, len(result.Items))
	for _, item := range result.Items {
		ids = append(ids, item.ID)
	}
	totals, err := s.downloads.DownloadTotals(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range result.Items {
		n := totals[result.Items[i].ID]
		result.Items[i].Downloads = &n
	}
	return result, nil
}
