package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/captures-backend/api/responses"
	"github.com/angelmondragon/captures-backend/api/validators"
	"github.com/angelmondragon/captures-backend/internal/captures"
	"github.com/angelmondragon/captures-backend/internal/moderation"
	"github.com/angelmondragon/captures-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/captures-backend/pkg/errors"
	"github.com/angelmondragon/captures-backend/pkg/logger"
)

type transitionPayload struct {
	Target          string `json:"target" validate:"required"`
	ExpectedVersion *int64 `json:"expected_version" validate:"omitempty,min=0"`
}

type softDeletePayload struct {
	Reason          string `json:"reason" validate:"required,notblank,max=500"`
	ExpectedVersion *int64 `json:"expected_version" validate:"omitempty,min=0"`
}

type restorePayload struct {
	ExpectedVersion *int64 `json:"expected_version" validate:"omitempty,min=0"`
}

// CaptureTransition approves or declines one capture.
func CaptureTransition(svc moderation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("moderation"))
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

		var payload transitionPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		capture, err := svc.Transition(ctx, moderation.TransitionInput{
			CaptureID:       captureID,
			Target:          enums.ModerationState(strings.ToLower(strings.TrimSpace(payload.Target))),
			Actor:           actor,
			ExpectedVersion: payload.ExpectedVersion,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, captures.ToDTO(*capture))
	}
}

// BatchPromote approves every pending member of a batch group at once, or
// none of them.
func BatchPromote(svc moderation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("moderation"))
			return
		}
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		groupKey := strings.TrimSpace(chi.URLParam(r, "groupKey"))
		if groupKey == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "group key is required"))
			return
		}

		result, err := svc.PromoteBatch(ctx, groupKey, actor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func CaptureSoftDelete(svc moderation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("moderation"))
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

		var payload softDeletePayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		capture, err := svc.SoftDelete(ctx, moderation.SoftDeleteInput{
			CaptureID:       captureID,
			Actor:           actor,
			Reason:          validators.SanitizeString(payload.Reason, 500),
			ExpectedVersion: payload.ExpectedVersion,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, captures.ToDTO(*capture))
	}
}

// CaptureRestore reverses a soft delete. The body is optional.
func CaptureRestore(svc moderation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("moderation"))
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

		var payload restorePayload
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		capture, err := svc.Restore(ctx, moderation.RestoreInput{
			CaptureID:       captureID,
			Actor:           actor,
			ExpectedVersion: payload.ExpectedVersion,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, captures.ToDTO(*capture))
	}
}
