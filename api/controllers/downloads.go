package controllers

import (
	"net/http"

	"github.com/angelmondragon/captures-backend/api/responses"
	"github.com/angelmondragon/captures-backend/api/validators"
	"github.com/angelmondragon/captures-backend/internal/downloads"
	pkgerrors "github.com/angelmondragon/captures-backend/pkg/errors"
	"github.com/angelmondragon/captures-backend/pkg/logger"
)

// CaptureDownload appends one row to the download log for the caller.
func CaptureDownload(svc downloads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("downloads"))
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

		result, err := svc.LogDownload(ctx, captureID, actor.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func AdminDownloadLogs(svc downloads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("downloads"))
			return
		}

		var filter downloads.LogFilter
		var err error
		if filter.CaptureID, err = validators.ParseQueryInt64(r, "capture_id"); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if filter.UserID, err = validators.ParseQueryUUID(r, "user_id"); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if filter.From, err = validators.ParseQueryTime(r, "from"); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if filter.To, err = validators.ParseQueryTime(r, "to"); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		page, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.ListLogs(ctx, filter, page)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminDownloadCounts aggregates downloads for ?ids=1,2,3.
func AdminDownloadCounts(svc downloads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("downloads"))
			return
		}
		ids, err := validators.ParseQueryInt64List(r, "ids")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if len(ids) == 0 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "ids query parameter is required"))
			return
		}

		counts, err := svc.CountsByCapture(ctx, ids)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": counts})
	}
}
