package middleware

import (
	"context"
	"crypto/subtle"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	LocalUserID    = "user_id"
	LocalUserRoles = "user_roles"
	LocalUserEmail = "user_email"

	RoleAdmin = "admin"
)

// Identity resolves the caller from either a gateway-forwarded identity or a bearer JWT.
// Requests carrying neither continue anonymously; invalid credentials are rejected.
//
// Gateway: "X-Service-Token: <token>" plus "X-User-ID" and optional "X-User-Roles".
// Direct:  "Authorization: Bearer <jwt>" with the user id in "sub".
func Identity(verifier *TokenVerifier, gatewayToken string, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(LocalUserID, "")

		if serviceToken := c.Get("X-Service-Token"); serviceToken != "" {
			if gatewayToken == "" || subtle.ConstantTimeCompare([]byte(serviceToken), []byte(gatewayToken)) != 1 {
				log.Warn("invalid gateway token", zap.String("path", c.Path()))
				return fiber.NewError(fiber.StatusUnauthorized, "invalid gateway authentication token")
			}
			c.Locals(LocalUserID, strings.TrimSpace(c.Get("X-User-ID")))
			c.Locals(LocalUserRoles, splitRoles(c.Get("X-User-Roles")))
			return c.Next()
		}

		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return c.Next()
		}
		raw, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || verifier == nil {
			return fiber.NewError(fiber.StatusUnauthorized, "unsupported authorization scheme")
		}
		claims, err := verifier.Verify(strings.TrimSpace(raw))
		if err != nil {
			log.Debug("rejected access token", zap.String("path", c.Path()), zap.Error(err))
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}

		c.Locals(LocalUserID, claims.Subject)
		c.Locals(LocalUserRoles, claims.Roles)
		c.Locals(LocalUserEmail, claims.Email)
		return c.Next()
	}
}

// QueryToken lets EventSource clients, which cannot set headers, pass the access token
// as ?token=. It must run before Identity.
func QueryToken() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get(fiber.HeaderAuthorization) == "" {
			if token := strings.TrimSpace(c.Query("token")); token != "" {
				c.Request().Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
			}
		}
		return c.Next()
	}
}

// RequireUser rejects anonymous requests
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if UserID(c) == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
		}
		return c.Next()
	}
}

// AdminChecker reports whether a profile carries the admin flag
type AdminChecker interface {
	IsAdmin(ctx context.Context, profileID string) (bool, error)
}

// RequireAdmin admits callers holding the admin role or whose profile is flagged admin
func RequireAdmin(checker AdminChecker, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := UserID(c)
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
		}
		if slices.Contains(UserRoles(c), RoleAdmin) {
			return c.Next()
		}
		ok, err := checker.IsAdmin(c.UserContext(), userID)
		if err != nil {
			log.Error("admin lookup failed", zap.String("user_id", userID), zap.Error(err))
			return fiber.NewError(fiber.StatusInternalServerError, "could not verify permissions")
		}
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "admin access required")
		}
		return c.Next()
	}
}

func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}

func UserRoles(c *fiber.Ctx) []string {
	roles, _ := c.Locals(LocalUserRoles).([]string)
	return roles
}

func UserEmail(c *fiber.Ctx) string {
	email, _ := c.Locals(LocalUserEmail).(string)
	return email
}

func splitRoles(raw string) []string {
	var roles []string
	for _, r := range strings.Split(raw, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}
