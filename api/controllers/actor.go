package controllers

import (
	"net/http"

	"github.com/angelmondragon/captures-backend/api/middleware"
	"github.com/angelmondragon/captures-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/captures-backend/pkg/errors"
)

func requestActor(r *http.Request) (auth.Actor, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return auth.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return actor, nil
}

func serviceUnavailable(name string) error {
	return pkgerrors.New(pkgerrors.CodeInternal, name+" service unavailable")
}
