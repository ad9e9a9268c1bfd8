package moderation

import (
	"context"
	"errors"

	"github.com/angelmondragon/captures-backend/internal/captures"
	"github.com/angelmondragon/captures-backend/pkg/db"
	"github.com/angelmondragon/captures-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/captures-backend/pkg/errors"
	"gorm.io/gorm"
)

// loadForMutation reads the capture inside tx and checks the caller's
// expected version against it.
func loadForMutation(ctx context.Context, repo captures.Repository, id int64, expected *int64) (*models.Capture, error) {
	capture, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "capture not found").
				WithDetails(map[string]any{"capture_id": id})
		}
		return nil, db.Classify(err, "load capture")
	}
	if expected != nil && *expected != capture.Version {
		return nil, versionConflict(id, *expected, capture.Version)
	}
	return capture, nil
}

// compareAndSwap is the single mutation primitive for captures: the update
// lands only if the stored version is still capture.Version, and the version
// is bumped with it. On a miss the row is re-read to report why.
func compareAndSwap(ctx context.Context, repo captures.Repository, capture *models.Capture, updates map[string]any) (*models.Capture, error) {
	ok, err := repo.CompareAndSwap(ctx, capture.ID, capture.Version, updates)
	if err != nil {
		return nil, db.Classify(err, "update capture")
	}
	current, err := repo.FindByID(ctx, capture.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "capture not found").
				WithDetails(map[string]any{"capture_id": capture.ID})
		}
		return nil, db.Classify(err, "reload capture")
	}
	if !ok {
		return nil, versionConflict(capture.ID, capture.Version, current.Version)
	}
	return current, nil
}

func versionConflict(id, expected, current int64) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "capture was modified by another request").
		WithDetails(map[string]any{
			"capture_id":       id,
			"expected_version": expected,
			"current_version":  current,
		})
}
