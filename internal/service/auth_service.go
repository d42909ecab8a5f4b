package service

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/flowjournal/flowpush/internal/config"
)

const (
	// RoleAdmin marks operator tokens issued by Authenticate.
	RoleAdmin = "admin"

	// Operator tokens are scoped to this service so identity provider tokens
	// carrying their own role claim never pass as operators.
	OperatorIssuer   = "flowpush"
	OperatorAudience = "flowpush-operator"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// AuthService validates bearer tokens and issues operator tokens. User tokens
// come from the identity provider and share its HS256 secret.
type AuthService struct {
	username string
	password string
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

// Claims represents JWT payload. Subject carries the user id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token was issued to an operator by this service.
func (c *Claims) IsAdmin() bool {
	return c != nil &&
		c.Role == RoleAdmin &&
		c.Issuer == OperatorIssuer &&
		slices.Contains(c.Audience, OperatorAudience)
}

// NewAuthService builds AuthService from config.
func NewAuthService(cfg *config.Config) *AuthService {
	authCfg := cfg.Auth
	username := strings.TrimSpace(authCfg.Username)
	if username == "" {
		username = "admin"
	}
	ttl := authCfg.TokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &AuthService{
		username: username,
		password: strings.TrimSpace(authCfg.Password),
		secret:   []byte(strings.TrimSpace(authCfg.JWTSecret)),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Authenticate validates operator credentials and returns an admin token.
func (a *AuthService) Authenticate(username, password string) (string, error) {
	if a.password == "" || !a.matchUsername(username) || !a.matchPassword(password) {
		return "", ErrInvalidCredentials
	}
	return a.issue(Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  a.username,
			Issuer:   OperatorIssuer,
			Audience: jwt.ClaimStrings{OperatorAudience},
		},
	})
}

// IssueToken signs a user token for subject with the configured lifetime.
// It never yields operator access, whatever role says.
func (a *AuthService) IssueToken(subject, role string) (string, error) {
	return a.issue(Claims{
		Role:             role,
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
	})
}

func (a *AuthService) issue(claims Claims) (string, error) {
	now := a.now()
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(a.ttl))
	claims.IssuedAt = jwt.NewNumericDate(now)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses a token and returns its claims if valid.
func (a *AuthService) Validate(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}
	return claims, nil
}

func (a *AuthService) matchUsername(input string) bool {
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(input)), []byte(a.username)) == 1
}

func (a *AuthService) matchPassword(input string) bool {
	if strings.HasPrefix(a.password, "$2a$") || strings.HasPrefix(a.password, "$2b$") || strings.HasPrefix(a.password, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(a.password), []byte(input)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(input), []byte(a.password)) == 1
}
