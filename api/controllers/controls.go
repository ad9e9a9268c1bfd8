package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/captures-backend/api/responses"
	"github.com/angelmondragon/captures-backend/api/validators"
	"github.com/angelmondragon/captures-backend/internal/controls"
	"github.com/angelmondragon/captures-backend/pkg/logger"
)

type controlPayload struct {
	Value           string `json:"value" validate:"required,notblank,max=100"`
	ExpectedVersion *int64 `json:"expected_version" validate:"omitempty,min=0"`
}

func ControlsList(svc controls.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("controls"))
			return
		}
		items, err := svc.List(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": items})
	}
}

func ControlGet(svc controls.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("controls"))
			return
		}
		item, err := svc.Get(ctx, strings.TrimSpace(chi.URLParam(r, "key")))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// ControlSet validates and stores one control value for the calling admin.
func ControlSet(svc controls.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("controls"))
			return
		}
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload controlPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		item, err := svc.Set(ctx, controls.SetInput{
			Key:             strings.TrimSpace(chi.URLParam(r, "key")),
			Value:           payload.Value,
			Actor:           actor,
			ExpectedVersion: payload.ExpectedVersion,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}
