package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/captures-backend/api/responses"
	"github.com/angelmondragon/captures-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/captures-backend/pkg/errors"
	"github.com/angelmondragon/captures-backend/pkg/logger"
)

// Auth requires a valid bearer token and puts the actor it names on the
// request context.
func Auth(verifier *auth.Verifier, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "token verifier not configured"))
				return
			}

			actor, err := verifier.VerifyRequest(r)
			switch {
			case errors.Is(err, auth.ErrMissingToken):
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			case err != nil:
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithActor(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithUserID(ctx, actor.ID.String())
				ctx = logg.WithActorRole(ctx, string(actor.Role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth seeds the actor when a bearer token is present and lets
// anonymous requests through. A token that fails verification is rejected.
func OptionalAuth(verifier *auth.Verifier, logg *logger.Logger) func(http.Handler) http.Handler {
	required := Auth(verifier, logg)
	return func(next http.Handler) http.Handler {
		withActor := required(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil || !hasBearer(r) {
				next.ServeHTTP(w, r)
				return
			}
			withActor.ServeHTTP(w, r)
		})
	}
}

func hasBearer(r *http.Request) bool {
	return strings.TrimSpace(r.Header.Get("Authorization")) != ""
}
