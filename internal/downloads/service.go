package downloads

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/captures-backend/internal/captures"
	"github.com/angelmondragon/captures-backend/pkg/db"
	"github.com/angelmondragon/captures-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/captures-backend/pkg/errors"
	"github.com/angelmondragon/captures-backend/pkg/logger"
	"github.com/angelmondragon/captures-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ServiceParams groups dependencies for the downloads service.
type ServiceParams struct {
	Downloads *Repository
	Captures  captures.Repository
	Logger    *logger.Logger
}

// Service records downloads and reports them raw or aggregated.
type Service interface {
	LogDownload(ctx context.Context, captureID int64, userID uuid.UUID) (DownloadResult, error)
	ListLogs(ctx context.Context, filter LogFilter, params pagination.Params) (*LogPage, error)
	Count(ctx context.Context, captureID int64) (int64, error)
	CountsByCapture(ctx context.Context, captureIDs []int64) ([]CaptureCount, error)
	DownloadTotals(ctx context.Context, captureIDs []int64) (map[int64]int64, error)
}

type service struct {
	downloads *Repository
	captures  captures.Repository
	logg      *logger.Logger
}

// NewService builds a downloads service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Downloads == nil {
		return nil, fmt.Errorf("downloads repository required")
	}
	if params.Captures == nil {
		return nil, fmt.Errorf("captures repository required")
	}
	return &service{
		downloads: params.Downloads,
		captures:  params.Captures,
		logg:      params.Logger,
	}, nil
}

// LogDownload always appends a row; repeat downloads by the same user count again.
func (s *service) LogDownload(ctx context.Context, captureID int64, userID uuid.UUID) (DownloadResult, error) {
	if userID == uuid.Nil {
		return DownloadResult{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if captureID <= 0 {
		return DownloadResult{}, pkgerrors.New(pkgerrors.CodeValidation, "capture id must be positive")
	}
	if _, err := s.captures.FindActiveByID(ctx, captureID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return DownloadResult{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "capture not found")
		}
		return DownloadResult{}, db.Classify(err, "load capture")
	}

	if err := s.downloads.Insert(ctx, &models.DownloadLog{CaptureID: captureID, UserID: userID}); err != nil {
		return DownloadResult{}, db.Classify(err, "insert download log")
	}
	total, err := s.downloads.CountForCapture(ctx, captureID)
	if err != nil {
		return DownloadResult{}, db.Classify(err, "count downloads")
	}
	if s.logg != nil {
		logCtx := s.logg.WithUserID(s.logg.WithCaptureID(ctx, captureID), userID.String())
		s.logg.Info(logCtx, "capture download logged")
	}
	return DownloadResult{CaptureID: captureID, TotalDownloads: total}, nil
}

func (s *service) ListLogs(ctx context.Context, filter LogFilter, params pagination.Params) (*LogPage, error) {
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}
	afterID, err := pagination.AfterID(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query := LogQuery{
		CaptureID: filter.CaptureID,
		UserID:    filter.UserID,
		From:      filter.From,
		To:        filter.To,
		Limit:     pagination.FetchLimit(params.Limit),
		AfterID:   afterID,
	}
	rows, err := s.downloads.List(ctx, query)
	if err != nil {
		return nil, db.Classify(err, "list download logs")
	}
	page, next := pagination.Trim(rows, params.Limit, func(r models.DownloadLog) int64 { return r.ID })
	items := make([]LogDTO, 0, len(page))
	for _, row := range page {
		items = append(items, toLogDTO(row))
	}
	return &LogPage{Items: items, Cursor: next}, nil
}

func (s *service) Count(ctx context.Context, captureID int64) (int64, error) {
	if captureID <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "capture id must be positive")
	}
	total, err := s.downloads.CountForCapture(ctx, captureID)
	if err != nil {
		return 0, db.Classify(err, "count downloads")
	}
	return total, nil
}

func (s *service) CountsByCapture(ctx context.Context, captureIDs []int64) ([]CaptureCount, error) {
	if len(captureIDs) > pagination.MaxLimit {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "too many capture ids").
			WithDetails(map[string]any{"max": pagination.MaxLimit})
	}
	rows, err := s.downloads.CountsByCapture(ctx, captureIDs)
	if err != nil {
		return nil, db.Classify(err, "count downloads by capture")
	}
	if rows == nil {
		rows = []CaptureCount{}
	}
	return rows, nil
}

// DownloadTotals is CountsByCapture keyed by capture id, the shape the
// gallery listing merges into its items.
func (s *service) DownloadTotals(ctx context.Context, captureIDs []int64) (map[int64]int64, error) {
	rows, err := s.CountsByCapture(ctx, captureIDs)
	if err != nil {
		return nil, err
	}
	totals := make(map[int64]int64, len(rows))
	for _, row := range rows {
		totals[row.CaptureID] = row.Downloads
	}
	return totals, nil
}
