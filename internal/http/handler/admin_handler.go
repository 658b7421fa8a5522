package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/InviteGate/internal/app/model"
	"github.com/sifan077/InviteGate/internal/app/repository"
	"github.com/sifan077/InviteGate/internal/app/service"
	"github.com/sifan077/InviteGate/internal/http/middleware"
	"github.com/sifan077/InviteGate/internal/http/view"
	"go.uber.org/zap"
)

const recentAuditEvents = 50

// AdminDeps groups dependencies required by the admin routes.
type AdminDeps struct {
	Logger   *zap.Logger
	CSRF     *middleware.CSRF
	Accounts service.AccountService
	// AuditEvents is optional; without it the activity table is hidden.
	AuditEvents repository.AuditEventRepository
}

// AdminHandler serves account search and invite limit adjustments.
type AdminHandler struct {
	logger   *zap.Logger
	csrf     *middleware.CSRF
	accounts service.AccountService
	events   repository.AuditEventRepository
}

func NewAdminHandler(deps AdminDeps) *AdminHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{
		logger:   logger,
		csrf:     deps.CSRF,
		accounts: deps.Accounts,
		events:   deps.AuditEvents,
	}
}

func (h *AdminHandler) Register(router fiber.Router) {
	admin := router.Group("/admin", middleware.RequireLogin(), middleware.RequireAdmin())
	admin.Get("/", h.Search)
	admin.Post("/increase", h.Increase)
	admin.Post("/decrease", h.Decrease)
}

func (h *AdminHandler) Search(c *fiber.Ctx) error {
	return h.renderAdmin(c, fiber.StatusOK, strings.TrimSpace(c.Query("user_id")), "", "")
}

func (h *AdminHandler) Increase(c *fiber.Ctx) error {
	return h.adjust(c, h.accounts.IncreaseLimit)
}

func (h *AdminHandler) Decrease(c *fiber.Ctx) error {
	return h.adjust(c, h.accounts.DecreaseLimit)
}

type adjustFunc func(ctx context.Context, actorID, discordID string) (*model.Account, error)

func (h *AdminHandler) adjust(c *fiber.Ctx, fn adjustFunc) error {
	target := strings.TrimSpace(c.FormValue("user_id"))
	if target == "" {
		return h.renderAdmin(c, fiber.StatusBadRequest, "", "", "Missing user_id.")
	}

	account, err := fn(c.UserContext(), middleware.CurrentUser(c), target)
	if err != nil {
		f := describe(err)
		if errors.Is(err, service.ErrNotFound) {
			f.message = fmt.Sprintf("No account with Discord id %s.", target)
		}
		if f.status >= fiber.StatusInternalServerError {
			h.logger.Error("failed to adjust invite limit", zap.String("account", target), zap.Error(err))
		}
		return h.renderAdmin(c, f.status, target, "", f.message)
	}

	notice := fmt.Sprintf("Invite limit for %s is now %d.", account.DiscordID, account.InviteLimit)
	return h.renderAdmin(c, fiber.StatusOK, target, notice, "")
}

func (h *AdminHandler) renderAdmin(c *fiber.Ctx, status int, query, notice, errMsg string) error {
	ctx := c.UserContext()
	accounts, err := h.accounts.Search(ctx, query)
	if err != nil {
		return fail(c, h.csrf, h.logger, err, "/")
	}

	var events []model.AuditEvent
	if h.events != nil {
		if events, err = h.events.ListRecent(ctx, recentAuditEvents); err != nil {
			h.logger.Warn("failed to load audit events", zap.Error(err))
		}
	}

	page := basePage(c, h.csrf, h.logger, "Admin")
	page.Notice = notice
	page.Error = errMsg
	return render(c, status, view.PageAdmin, view.AdminPage{
		Page:     page,
		Query:    query,
		Accounts: accounts,
		Events:   events,
	})
}
