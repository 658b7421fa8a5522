package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/InviteGate/internal/http/middleware"
	"github.com/sifan077/InviteGate/internal/http/view"
	"go.uber.org/zap"
)

const healthTimeout = 2 * time.Second

// HomeDeps groups dependencies required by the landing and health routes.
type HomeDeps struct {
	Logger *zap.Logger
	CSRF   *middleware.CSRF
	// Ping checks the database; nil skips the check.
	Ping func(ctx context.Context) error
}

type HomeHandler struct {
	logger *zap.Logger
	csrf   *middleware.CSRF
	ping   func(ctx context.Context) error
}

func NewHomeHandler(deps HomeDeps) *HomeHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HomeHandler{logger: logger, csrf: deps.CSRF, ping: deps.Ping}
}

func (h *HomeHandler) Register(router fiber.Router) {
	router.Get("/", h.Landing)
	router.Get("/health", h.Health)
}

// Landing sends logged-in users to their links.
func (h *HomeHandler) Landing(c *fiber.Ctx) error {
	if middleware.CurrentUser(c) != "" {
		return c.Redirect("/manage", fiber.StatusSeeOther)
	}
	return render(c, fiber.StatusOK, view.PageLanding, basePage(c, h.csrf, h.logger, ""))
}

// Health reports liveness plus database reachability.
func (h *HomeHandler) Health(c *fiber.Ctx) error {
	status, code := "ok", fiber.StatusOK
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			status, code = "degraded", fiber.StatusServiceUnavailable
		}
	}
	return c.Status(code).JSON(fiber.Map{
		"service": "InviteGate",
		"status":  status,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}
