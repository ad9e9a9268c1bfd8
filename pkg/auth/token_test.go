package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/captures-backend/pkg/config"
	"github.com/angelmondragon/captures-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/captures-backend/pkg/errors"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "captures-identity",
		ExpirationMinutes: 30,
	}
}

func mustVerifier(t *testing.T, cfg config.JWTConfig) *Verifier {
	t.Helper()
	v, err := NewVerifier(cfg)
	require.NoError(t, err)
	return v
}

func mint(t *testing.T, cfg config.JWTConfig, at time.Time, payload AccessTokenPayload) string {
	t.Helper()
	token, err := MintAccessToken(cfg, at, payload)
	require.NoError(t, err)
	return token
}

func TestVerifyReturnsActor(t *testing.T) {
	cfg := testJWTConfig()
	userID := uuid.New()
	token := mint(t, cfg, time.Now().UTC(), AccessTokenPayload{UserID: userID, Name: "Ana Moderator", Role: enums.ActorRoleModerator})

	actor, err := mustVerifier(t, cfg).Verify(token)
	require.NoError(t, err)
	require.Equal(t, userID, actor.ID)
	require.Equal(t, "Ana Moderator", actor.Name)
	require.True(t, actor.CanModerate())
}

func TestVerifyRejects(t *testing.T) {
	cfg := testJWTConfig()
	v := mustVerifier(t, cfg)
	member := AccessTokenPayload{UserID: uuid.New(), Name: "someone", Role: enums.ActorRoleMember}

	otherIssuer := cfg
	otherIssuer.Issuer = "someone-else"
	otherSecret := cfg
	otherSecret.Secret = "different"

	cases := map[string]string{
		"expired":      mint(t, cfg, time.Now().Add(-2*time.Hour), member),
		"wrong issuer": mint(t, otherIssuer, time.Now(), member),
		"wrong secret": mint(t, otherSecret, time.Now(), member),
		"no name":      mint(t, cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.ActorRoleAdmin}),
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			require.Error(t, err)
		})
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, AccessTokenClaims{
		UserID:           uuid.New(),
		Name:             "x",
		Role:             enums.ActorRoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: cfg.Issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Verify(unsigned)
	require.Error(t, err, "alg none is refused")
}

func TestVerifyToleratesSmallClockSkew(t *testing.T) {
	cfg := testJWTConfig()
	cfg.ExpirationMinutes = 1
	cfg.Leeway = time.Minute
	token := mint(t, cfg, time.Now().Add(-90*time.Second), AccessTokenPayload{UserID: uuid.New(), Name: "n", Role: enums.ActorRoleAdmin})

	_, err := mustVerifier(t, cfg).Verify(token)
	require.NoError(t, err)
}

func TestVerifyRequest(t *testing.T) {
	cfg := testJWTConfig()
	v := mustVerifier(t, cfg)

	req := httptest.NewRequest("GET", "/", nil)
	_, err := v.VerifyRequest(req)
	require.ErrorIs(t, err, ErrMissingToken)

	req.Header.Set("Authorization", "Basic abc")
	_, err = v.VerifyRequest(req)
	require.ErrorIs(t, err, ErrMissingToken)

	token := mint(t, cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Name: "n", Role: enums.ActorRoleMember})
	req.Header.Set("Authorization", "bearer "+token)
	actor, err := v.VerifyRequest(req)
	require.NoError(t, err)
	require.Equal(t, enums.ActorRoleMember, actor.Role)
}

func TestNewVerifierAndMintValidate(t *testing.T) {
	_, err := NewVerifier(config.JWTConfig{Issuer: "x"})
	require.Error(t, err)

	cfg := testJWTConfig()
	_, err = MintAccessToken(cfg, time.Now(), AccessTokenPayload{Role: enums.ActorRoleAdmin})
	require.Error(t, err)
	_, err = MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: "root"})
	require.Error(t, err)
}

func TestActorValidate(t *testing.T) {
	valid := Actor{ID: uuid.New(), Name: "Admin", Role: enums.ActorRoleAdmin}
	require.NoError(t, valid.Validate())

	cases := map[string]Actor{
		"missing id":   {Name: "Admin", Role: enums.ActorRoleAdmin},
		"missing name": {ID: uuid.New(), Name: "  ", Role: enums.ActorRoleAdmin},
		"bad role":     {ID: uuid.New(), Name: "Admin", Role: "owner"},
	}
	for name, actor := range cases {
		t.Run(name, func(t *testing.T) {
			err := actor.Validate()
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
		})
	}

	require.False(t, Actor{Role: enums.ActorRoleMember}.CanModerate())
}
