package auth

import (
	"strings"

	"github.com/angelmondragon/captures-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/captures-backend/pkg/errors"
	"github.com/google/uuid"
)

// Actor identifies who performs a mutating call. It is always passed
// explicitly; nothing reads a process-wide current user.
type Actor struct {
	ID   uuid.UUID
	Name string
	Role enums.ActorRole
}

// Validate rejects actors that cannot be attributed in the audit ledger.
func (a Actor) Validate() error {
	if a.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor id is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor name is required")
	}
	if !a.Role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor role is invalid")
	}
	return nil
}

// CanModerate reports whether the actor may use the admin surface.
func (a Actor) CanModerate() bool {
	return a.Role == enums.ActorRoleAdmin || a.Role == enums.ActorRoleModerator
}
