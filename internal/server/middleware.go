package server

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/flowjournal/flowpush/internal/model"
	"github.com/flowjournal/flowpush/internal/service"
)

// requireUser resolves the bearer token to a user id. Push API error bodies
// keep the {error} shape browsers already handle.
func (s *Server) requireUser(c *fiber.Ctx) error {
	token := extractBearerToken(c.Get(fiber.HeaderAuthorization))
	if token == "" {
		return s.fail(c, http.StatusUnauthorized, "Missing Authorization header")
	}
	claims, err := s.authSvc.Validate(token)
	if err != nil {
		s.log.Debug(c.UserContext(), "bearer token rejected", "err", err)
		return s.fail(c, http.StatusUnauthorized, "Invalid JWT")
	}
	c.Locals(localClaims, claims)
	c.Locals(localUserID, claims.Subject)
	return c.Next()
}

func (s *Server) requireAdmin(c *fiber.Ctx) error {
	if !claimsFrom(c).IsAdmin() {
		return c.Status(http.StatusForbidden).JSON(model.ErrorWithCode(model.ForbiddenCode, "admin role required"))
	}
	return c.Next()
}

func (s *Server) rateLimit(c *fiber.Ctx) error {
	userID := userIDFrom(c)
	if !s.limiter.Allow(userID) {
		s.log.Warn(c.UserContext(), "notify rate limited", "user_id", userID)
		return s.fail(c, http.StatusTooManyRequests, "Too many requests")
	}
	return c.Next()
}

func userIDFrom(c *fiber.Ctx) string {
	id, _ := c.Locals(localUserID).(string)
	return id
}

func claimsFrom(c *fiber.Ctx) *service.Claims {
	claims, _ := c.Locals(localClaims).(*service.Claims)
	return claims
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
