package auth

import (
	"github.com/angelmondragon/captures-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Name   string
	Role   enums.ActorRole
	JTI    string
}

// AccessTokenClaims represents the identity token issued by the external
// identity provider and verified by the API.
type AccessTokenClaims struct {
	UserID uuid.UUID       `json:"user_id"`
	Name   string          `json:"name"`
	Role   enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}

// Actor returns the identity carried by the token.
func (c AccessTokenClaims) Actor() Actor {
	return Actor{ID: c.UserID, Name: c.Name, Role: c.Role}
}
