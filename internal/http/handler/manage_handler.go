package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/InviteGate/internal/app/service"
	"github.com/sifan077/InviteGate/internal/http/middleware"
	"github.com/sifan077/InviteGate/internal/http/view"
	"github.com/sifan077/InviteGate/internal/infra/captcha"
	"go.uber.org/zap"
)

// ManageDeps groups dependencies required by the mapping management routes.
type ManageDeps struct {
	Logger         *zap.Logger
	CSRF           *middleware.CSRF
	Mappings       service.MappingService
	CaptchaSiteKey string
}

// ManageHandler lets a logged-in owner create, list and delete mappings.
type ManageHandler struct {
	logger   *zap.Logger
	csrf     *middleware.CSRF
	mappings service.MappingService
	siteKey  string
}

func NewManageHandler(deps ManageDeps) *ManageHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManageHandler{
		logger:   logger,
		csrf:     deps.CSRF,
		mappings: deps.Mappings,
		siteKey:  deps.CaptchaSiteKey,
	}
}

func (h *ManageHandler) Register(router fiber.Router) {
	auth := middleware.RequireLogin()
	router.Get("/create", auth, h.CreateForm)
	router.Post("/create", auth, h.Create)
	router.Get("/manage", auth, h.Manage)
	router.Post("/delete", auth, h.Delete)
}

func (h *ManageHandler) CreateForm(c *fiber.Ctx) error {
	return h.renderCreate(c, fiber.StatusOK, view.CreatePage{})
}

func (h *ManageHandler) Create(c *fiber.Ctx) error {
	input := service.CreateMappingInput{
		OwnerID:         middleware.CurrentUser(c),
		CustomURL:       strings.TrimSpace(c.FormValue("custom_url")),
		DiscordInvite:   c.FormValue("discord_invite"),
		CaptchaResponse: c.FormValue(captcha.FormField),
		RemoteIP:        c.IP(),
	}

	if _, err := h.mappings.Create(c.UserContext(), input); err != nil {
		f := describe(err)
		if f.status >= fiber.StatusInternalServerError {
			h.logger.Error("failed to create mapping", zap.String("custom_url", input.CustomURL), zap.Error(err))
		}
		return h.renderCreate(c, f.status, view.CreatePage{
			Page:          view.Page{Error: f.message},
			CustomURL:     input.CustomURL,
			DiscordInvite: input.DiscordInvite,
		})
	}

	return c.Redirect("/manage", fiber.StatusSeeOther)
}

func (h *ManageHandler) renderCreate(c *fiber.Ctx, status int, data view.CreatePage) error {
	owned, err := h.mappings.ListOwned(c.UserContext(), middleware.CurrentUser(c))
	if err != nil {
		return fail(c, h.csrf, h.logger, err, "/")
	}

	errMsg := data.Error
	data.Page = basePage(c, h.csrf, h.logger, "New link")
	data.Error = errMsg
	data.SiteKey = h.siteKey
	data.Remaining = owned.Remaining()
	return render(c, status, view.PageCreate, data)
}

func (h *ManageHandler) Manage(c *fiber.Ctx) error {
	owned, err := h.mappings.ListOwned(c.UserContext(), middleware.CurrentUser(c))
	if err != nil {
		return fail(c, h.csrf, h.logger, err, "/")
	}

	return render(c, fiber.StatusOK, view.PageManage, view.ManagePage{
		Page:        basePage(c, h.csrf, h.logger, "My links"),
		BaseURL:     c.BaseURL(),
		Mappings:    owned.Mappings,
		InviteLimit: owned.Account.InviteLimit,
		Remaining:   owned.Remaining(),
	})
}

func (h *ManageHandler) Delete(c *fiber.Ctx) error {
	customURL := c.FormValue("custom_url")
	if err := h.mappings.Delete(c.UserContext(), middleware.CurrentUser(c), customURL); err != nil {
		return fail(c, h.csrf, h.logger, err, "/manage")
	}
	return c.Redirect("/manage", fiber.StatusSeeOther)
}
