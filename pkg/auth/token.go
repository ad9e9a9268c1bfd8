package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang-jwt/jwt/v5/request"
	"github.com/google/uuid"

	"github.com/angelmondragon/captures-backend/pkg/config"
)

var signingMethod = jwt.SigningMethodHS256

var ErrMissingToken = errors.New("missing bearer token")

// Verifier checks HS256 identity tokens from the gallery identity provider.
// The API never issues tokens of its own.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(cfg config.JWTConfig) (*Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Verifier{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{signingMethod.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(cfg.Leeway),
		),
	}, nil
}

// Verify parses raw and returns the actor it names. A token whose identity
// could not be attributed in the audit ledger is rejected.
func (v *Verifier) Verify(raw string) (Actor, error) {
	claims := &AccessTokenClaims{}
	if _, err := v.parser.ParseWithClaims(raw, claims, v.key); err != nil {
		return Actor{}, err
	}
	actor := claims.Actor()
	if err := actor.Validate(); err != nil {
		return Actor{}, fmt.Errorf("token identity incomplete: %w", err)
	}
	return actor, nil
}

// VerifyRequest reads the Authorization bearer token from r.
func (v *Verifier) VerifyRequest(r *http.Request) (Actor, error) {
	raw, err := request.BearerExtractor{}.ExtractToken(r)
	if err != nil || strings.TrimSpace(raw) == "" {
		return Actor{}, ErrMissingToken
	}
	return v.Verify(strings.TrimSpace(raw))
}

func (v *Verifier) key(*jwt.Token) (any, error) {
	return v.secret, nil
}

// MintAccessToken signs a token the way the identity provider does. Only
// local tooling and tests use it.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	if payload.UserID == uuid.Nil {
		return "", errors.New("user id is required")
	}
	if !payload.Role.IsValid() {
		return "", fmt.Errorf("invalid actor role %q", payload.Role)
	}
	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}

	signed, err := jwt.NewWithClaims(signingMethod, AccessTokenClaims{
		UserID: payload.UserID,
		Name:   strings.TrimSpace(payload.Name),
		Role:   payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenTTL())),
			ID:        jti,
		},
	}).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}
