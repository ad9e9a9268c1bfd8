package likes

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/captures-backend/internal/captures"
	"github.com/angelmondragon/captures-backend/pkg/db"
	"github.com/angelmondragon/captures-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/captures-backend/pkg/errors"
	"github.com/angelmondragon/captures-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ServiceParams groups dependencies for the likes service.
type ServiceParams struct {
	Likes    *Repository
	Captures captures.Repository
	Logger   *logger.Logger
}

// Service exposes per-user like toggling for captures.
type Service interface {
	ToggleLike(ctx context.Context, userID uuid.UUID, captureID int64, want bool) (LikeResult, error)
	Status(ctx context.Context, userID uuid.UUID, captureID int64) (LikeResult, error)
	LikedCaptureIDs(ctx context.Context, userID uuid.UUID) (LikedIDsDTO, error)
}

type service struct {
	likes    *Repository
	captures captures.Repository
	logg     *logger.Logger
}

// NewService builds a likes service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Likes == nil {
		return nil, fmt.Errorf("likes repository required")
	}
	if params.Captures == nil {
		return nil, fmt.Errorf("captures repository required")
	}
	return &service{
		likes:    params.Likes,
		captures: params.Captures,
		logg:     params.Logger,
	}, nil
}

// ToggleLike sets the like to want. Repeating the same call changes nothing.
// Only live captures take new likes; an existing like can be withdrawn while
// the capture is hidden.
func (s *service) ToggleLike(ctx context.Context, userID uuid.UUID, captureID int64, want bool) (LikeResult, error) {
	find := s.captures.FindActiveByID
	if !want {
		find = s.captures.FindByID
	}
	if err := s.ensureCapture(ctx, userID, captureID, find); err != nil {
		return LikeResult{}, err
	}

	if want {
		if err := s.likes.Add(ctx, userID, captureID); err != nil {
			return LikeResult{}, db.Classify(err, "add like")
		}
	} else {
		if err := s.likes.Remove(ctx, userID, captureID); err != nil {
			return LikeResult{}, db.Classify(err, "remove like")
		}
	}

	total, err := s.likes.CountForCapture(ctx, captureID)
	if err != nil {
		return LikeResult{}, db.Classify(err, "count likes")
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithCaptureID(ctx, captureID), map[string]any{
			"user_id": userID.String(),
			"liked":   want,
		})
		s.logg.Info(logCtx, "capture like toggled")
	}
	return LikeResult{CaptureID: captureID, Liked: want, TotalLikes: total}, nil
}

func (s *service) Status(ctx context.Context, userID uuid.UUID, captureID int64) (LikeResult, error) {
	if err := s.ensureCapture(ctx, userID, captureID, s.captures.FindActiveByID); err != nil {
		return LikeResult{}, err
	}
	liked, err := s.likes.Exists(ctx, userID, captureID)
	if err != nil {
		return LikeResult{}, db.Classify(err, "load like")
	}
	total, err := s.likes.CountForCapture(ctx, captureID)
	if err != nil {
		return LikeResult{}, db.Classify(err, "count likes")
	}
	return LikeResult{CaptureID: captureID, Liked: liked, TotalLikes: total}, nil
}

func (s *service) LikedCaptureIDs(ctx context.Context, userID uuid.UUID) (LikedIDsDTO, error) {
	if userID == uuid.Nil {
		return LikedIDsDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	ids, err := s.likes.ListCaptureIDs(ctx, userID)
	if err != nil {
		return LikedIDsDTO{}, db.Classify(err, "list liked captures")
	}
	if ids == nil {
		ids = []int64{}
	}
	return LikedIDsDTO{CaptureIDs: ids}, nil
}

func (s *service) ensureCapture(ctx context.Context, userID uuid.UUID, captureID int64, find func(context.Context, int64) (*models.Capture, error)) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if captureID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "capture id must be positive")
	}
	if _, err := find(ctx, captureID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "capture not found")
		}
		return db.Classify(err, "load capture")
	}
	return nil
}
