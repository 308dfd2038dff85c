package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apperrors "github.com/spec-kit/lead-service/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller. Every holder of the shared
// token is the same staff principal.
type Principal struct {
	Subject string
}

const staffSubject = "staff"

// AuthMiddleware validates the shared bearer token guarding staff routes.
type AuthMiddleware struct {
	expected []byte
	logger   *zap.Logger
}

// NewAuthMiddleware constructs middleware. An empty token makes every protected request fail closed.
func NewAuthMiddleware(token string, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	if token == "" {
		logger.Warn("API_SECRET_TOKEN not set; protected endpoints will reject every request")
	}
	return &AuthMiddleware{expected: []byte(token), logger: logger}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	if len(m.expected) == 0 {
		return apperrors.NewServerMisconfigured("authentication is not configured")
	}

	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return unauthorized(c, "missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return unauthorized(c, "invalid authorization header")
	}

	presented := []byte(strings.TrimSpace(parts[1]))
	if subtle.ConstantTimeCompare(presented, m.expected) != 1 {
		return unauthorized(c, "invalid token")
	}

	c.Locals(principalKey, &Principal{Subject: staffSubject})
	return c.Next()
}

func unauthorized(c *fiber.Ctx, message string) error {
	c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
	return apperrors.NewUnauthorized(message)
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
