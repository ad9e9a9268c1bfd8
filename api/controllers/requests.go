package controllers

import (
	"net/http"

	"github.com/angelmondragon/captures-backend/api/middleware"
	"github.com/angelmondragon/captures-backend/api/responses"
	"github.com/angelmondragon/captures-backend/api/validators"
	"github.com/angelmondragon/captures-backend/internal/requests"
	"github.com/angelmondragon/captures-backend/pkg/logger"
)

// RemovalRequestSubmit takes a takedown request for one capture. Callers do
// not need an account; a verified caller is recorded as the submitter.
func RemovalRequestSubmit(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("removal requests"))
			return
		}
		var input requests.SubmitInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if actor, ok := middleware.ActorFromContext(ctx); ok {
			input.SubmittedBy = &actor.ID
		}

		receipt, err := svc.Submit(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, receipt)
	}
}

// AdminRemovalRequests lists requests oldest first. ?unresolved=true hides
// requests a moderator already acted on.
func AdminRemovalRequests(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("removal requests"))
			return
		}

		var params requests.ListParams
		var err error
		if params.CaptureID, err = validators.ParseQueryInt64(r, "capture_id"); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if params.Unresolved, err = validators.ParseQueryBool(r, "unresolved", false); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if params.Params, err = validators.ParsePagination(r); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		page, err := svc.List(ctx, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func RemovalRequestResolve(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("removal requests"))
			return
		}
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		requestID, err := validators.ParseIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Resolve(ctx, requests.ResolveInput{RequestID: requestID, Actor: actor})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
