package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"go.uber.org/zap"
)

const (
	// SessionUserKey is the session field holding the logged-in Discord id.
	SessionUserKey = "discord_id"

	localUserID  = "user_id"
	localIsAdmin = "is_admin"
)

// Session resolves the logged-in user from the session store into the
// request locals. It never writes the session.
func Session(store *session.Store, admins []string, logger *zap.Logger) fiber.Handler {
	adminSet := make(map[string]struct{}, len(admins))
	for _, id := range admins {
		adminSet[id] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		sess, err := store.Get(c)
		if err != nil {
			logger.Warn("failed to load session", zap.String("request_id", requestID(c)), zap.Error(err))
			return c.Next()
		}

		if id, ok := sess.Get(SessionUserKey).(string); ok && id != "" {
			c.Locals(localUserID, id)
			if _, admin := adminSet[id]; admin {
				c.Locals(localIsAdmin, true)
			}
		}
		return c.Next()
	}
}

// CurrentUser returns the Discord id of the logged-in user, or "".
func CurrentUser(c *fiber.Ctx) string {
	id, _ := c.Locals(localUserID).(string)
	return id
}

// IsAdmin reports whether the logged-in user is in the admin set.
func IsAdmin(c *fiber.Ctx) bool {
	admin, _ := c.Locals(localIsAdmin).(bool)
	return admin
}

// RequireLogin sends anonymous visitors to the login flow.
func RequireLogin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if CurrentUser(c) == "" {
			if c.Method() != fiber.MethodGet {
				return fiber.NewError(fiber.StatusUnauthorized, "Please log in first.")
			}
			return c.Redirect("/login", fiber.StatusSeeOther)
		}
		return c.Next()
	}
}

// RequireAdmin rejects everyone outside the admin set.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !IsAdmin(c) {
			return fiber.NewError(fiber.StatusForbidden, "Access denied.")
		}
		return c.Next()
	}
}
