package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/flowjournal/flowpush/internal/config"
)

func newAuth(t *testing.T, password string) *AuthService {
	t.Helper()
	cfg := &config.Config{}
	cfg.Auth.Username = "admin"
	cfg.Auth.Password = password
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.TokenTTL = time.Hour
	return NewAuthService(cfg)
}

func TestAuthenticate_PlainAndBcrypt(t *testing.T) {
	a := newAuth(t, "s3cret")
	tok, err := a.Authenticate(" admin ", "s3cret")
	require.NoError(t, err)

	claims, err := a.Validate(tok)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin())
	assert.Equal(t, "admin", claims.Subject)

	_, err = a.Authenticate("admin", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	b := newAuth(t, string(hash))
	_, err = b.Authenticate("admin", "hashed-pass")
	require.NoError(t, err)
	_, err = b.Authenticate("admin", string(hash))
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_EmptyPasswordDisablesLogin(t *testing.T) {
	a := newAuth(t, "")
	_, err := a.Authenticate("admin", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidate_UserToken(t *testing.T) {
	a := newAuth(t, "x")
	tok, err := a.IssueToken("user-123", "authenticated")
	require.NoError(t, err)

	claims, err := a.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.Subject)
	assert.False(t, claims.IsAdmin())
}

func TestIsAdmin_RequiresOperatorIssuerAndAudience(t *testing.T) {
	a := newAuth(t, "s3cret")
	tok, err := a.Authenticate("admin", "s3cret")
	require.NoError(t, err)
	claims, err := a.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, OperatorIssuer, claims.Issuer)
	assert.Contains(t, []string(claims.Audience), OperatorAudience)
	assert.True(t, claims.IsAdmin())

	// an identity provider token that happens to carry role=admin
	idp, err := a.IssueToken("user-123", RoleAdmin)
	require.NoError(t, err)
	claims, err = a.Validate(idp)
	require.NoError(t, err)
	assert.False(t, claims.IsAdmin())

	for name, mc := range map[string]jwt.MapClaims{
		"issuer only":    {"sub": "u1", "role": RoleAdmin, "iss": OperatorIssuer},
		"audience only":  {"sub": "u1", "role": RoleAdmin, "aud": OperatorAudience},
		"other audience": {"sub": "u1", "role": RoleAdmin, "iss": OperatorIssuer, "aud": "authenticated"},
		"no role":        {"sub": "u1", "iss": OperatorIssuer, "aud": OperatorAudience},
	} {
		mc["exp"] = time.Now().Add(time.Hour).Unix()
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		claims, err := a.Validate(signed)
		require.NoError(t, err, name)
		assert.False(t, claims.IsAdmin(), name)
	}
}

func TestValidate_Rejections(t *testing.T) {
	a := newAuth(t, "x")

	other := newAuth(t, "x")
	other.secret = []byte("different")
	foreign, err := other.IssueToken("u1", "")
	require.NoError(t, err)

	expiredSvc := newAuth(t, "x")
	expiredSvc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := expiredSvc.IssueToken("u1", "")
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"wrong secret": foreign,
		"expired":      expired,
		"no subject":   noSubject,
		"alg none":     none,
		"garbage":      "not.a.jwt",
	} {
		_, err := a.Validate(tok)
		assert.ErrorIs(t, err, ErrUnauthorized, name)
	}
}
