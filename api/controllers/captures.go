package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/captures-backend/api/middleware"
	"github.com/angelmondragon/captures-backend/api/responses"
	"github.com/angelmondragon/captures-backend/api/validators"
	"github.com/angelmondragon/captures-backend/internal/captures"
	"github.com/angelmondragon/captures-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/captures-backend/pkg/errors"
	"github.com/angelmondragon/captures-backend/pkg/logger"
)

// AdminCaptureList lists captures for the moderation queue. ?state= narrows
// by moderation state and ?deleted=true shows the soft-deleted view.
func AdminCaptureList(svc captures.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("captures"))
			return
		}

		page, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		deleted, err := validators.ParseQueryBool(r, "deleted", false)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		params := captures.ListParams{
			Deleted:  deleted,
			BatchKey: strings.TrimSpace(r.URL.Query().Get("batch")),
			Limit:    page.Limit,
			Cursor:   page.Cursor,
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("state")); raw != "" {
			state, err := enums.ParseModerationState(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid state filter"))
				return
			}
			params.State = &state
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("upload_type")); raw != "" {
			uploadType, err := enums.ParseUploadType(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid upload type filter"))
				return
			}
			params.UploadType = &uploadType
		}

		result, err := svc.List(ctx, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminCaptureDetail(svc captures.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("captures"))
			return
		}
		captureID, err := validators.ParseIDParam(r, "captureId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		capture, err := svc.Get(ctx, captureID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, captures.ToDTO(*capture))
	}
}

// AdminCaptureCreate is where the upload subsystem hands over a new capture.
func AdminCaptureCreate(svc captures.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("captures"))
			return
		}

		var input captures.CreateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		capture, err := svc.Create(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithCaptureID(ctx, capture.ID), "capture created")
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, captures.ToDTO(*capture))
	}
}

// PublicCaptureList serves the gallery: approved, direct uploads only.
// ?category= narrows by event category. Moderators also see download counts.
func PublicCaptureList(svc captures.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("captures"))
			return
		}
		page, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		params := captures.PublishedParams{
			Params:   page,
			Category: strings.TrimSpace(r.URL.Query().Get("category")),
		}
		if actor, ok := middleware.ActorFromContext(ctx); ok && actor.CanModerate() {
			params.IncludeDownloads = true
		}
		result, err := svc.ListPublished(ctx, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
