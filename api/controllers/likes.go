package controllers

import (
	"net/http"

	"github.com/angelmondragon/captures-backend/api/responses"
	"github.com/angelmondragon/captures-backend/api/validators"
	"github.com/angelmondragon/captures-backend/internal/likes"
	"github.com/angelmondragon/captures-backend/pkg/logger"
)

type likePayload struct {
	Liked *bool `json:"liked" validate:"required"`
}

// CaptureLike sets the caller's like on a capture. Repeating the same call
// changes nothing.
func CaptureLike(svc likes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("likes"))
			return
		}
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		captureID, err := validators.ParseIDParam(r, "captureId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload likePayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.ToggleLike(ctx, actor.ID, captureID, *payload.Liked)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func CaptureLikeStatus(svc likes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("likes"))
			return
		}
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		captureID, err := validators.ParseIDParam(r, "captureId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Status(ctx, actor.ID, captureID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// LikedCaptureIDs returns the ids of every visible capture the caller liked.
func LikedCaptureIDs(svc likes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("likes"))
			return
		}
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.LikedCaptureIDs(ctx, actor.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
