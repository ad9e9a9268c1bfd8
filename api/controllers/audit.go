package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/captures-backend/api/responses"
	"github.com/angelmondragon/captures-backend/api/validators"
	"github.com/angelmondragon/captures-backend/internal/audit"
	"github.com/angelmondragon/captures-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/captures-backend/pkg/errors"
	"github.com/angelmondragon/captures-backend/pkg/logger"
)

type auditNotePayload struct {
	Category    string         `json:"category" validate:"max=100"`
	Description string         `json:"description" validate:"required,notblank,max=2000"`
	CaptureID   *int64         `json:"capture_id" validate:"omitempty,min=1"`
	Metadata    map[string]any `json:"metadata"`
}

// AuditQuery pages through the ledger in insertion order. Supported filters:
// actor_id, category, capture_id, action, from and to.
func AuditQuery(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("audit"))
			return
		}

		filter, err := parseAuditFilter(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		page, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Query(ctx, filter, page)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AuditAppend records a free-form note by the calling admin. Lifecycle
// actions are only written by the services that perform them.
func AuditAppend(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("audit"))
			return
		}
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload auditNotePayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		entry, err := svc.Append(ctx, audit.Entry{
			Actor:       actor,
			Category:    validators.SanitizeString(payload.Category, 100),
			Action:      enums.AuditActionNote,
			Description: validators.SanitizeString(payload.Description, 2000),
			CaptureID:   payload.CaptureID,
			Metadata:    payload.Metadata,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, audit.ToDTO(*entry))
	}
}

func parseAuditFilter(r *http.Request) (audit.Filter, error) {
	var filter audit.Filter
	var err error

	if filter.ActorID, err = validators.ParseQueryUUID(r, "actor_id"); err != nil {
		return filter, err
	}
	if filter.CaptureID, err = validators.ParseQueryInt64(r, "capture_id"); err != nil {
		return filter, err
	}
	if filter.From, err = validators.ParseQueryTime(r, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = validators.ParseQueryTime(r, "to"); err != nil {
		return filter, err
	}
	filter.Category = strings.TrimSpace(r.URL.Query().Get("category"))
	if raw := strings.TrimSpace(r.URL.Query().Get("action")); raw != "" {
		action, parseErr := enums.ParseAuditAction(raw)
		if parseErr != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid action filter")
		}
		filter.Action = &action
	}
	return filter, nil
}
