package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/sifan077/InviteGate/internal/app/service"
	"github.com/sifan077/InviteGate/internal/http/middleware"
	"github.com/sifan077/InviteGate/internal/http/view"
	"github.com/sifan077/InviteGate/internal/infra/captcha"
	"github.com/sifan077/InviteGate/internal/infra/discord"
	"go.uber.org/zap"
)

// Session fields holding a pending join between the OAuth callback and the
// CAPTCHA submit. The authorization code never leaves the server.
const (
	sessionJoinCode  = "join_code"
	sessionJoinState = "join_state"
)

// Authorizer builds Discord authorize URLs.
type Authorizer interface {
	AuthCodeURL(state, redirectURI string, scopes ...string) string
}

// Joiner runs the delegated join.
type Joiner interface {
	Join(ctx context.Context, req service.JoinRequest) (*service.JoinResult, error)
}

// JoinDeps groups dependencies required by the vanity invite routes.
type JoinDeps struct {
	Logger         *zap.Logger
	Sessions       *session.Store
	CSRF           *middleware.CSRF
	Mappings       service.MappingService
	Join           Joiner
	OAuth          Authorizer
	RedirectURI    string
	CaptchaSiteKey string
}

// JoinHandler implements invite redemption: authorize, CAPTCHA, join.
type JoinHandler struct {
	logger      *zap.Logger
	sessions    *session.Store
	csrf        *middleware.CSRF
	mappings    service.MappingService
	join        Joiner
	oauth       Authorizer
	redirectURI string
	siteKey     string
}

func NewJoinHandler(deps JoinDeps) *JoinHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JoinHandler{
		logger:      logger,
		sessions:    deps.Sessions,
		csrf:        deps.CSRF,
		mappings:    deps.Mappings,
		join:        deps.Join,
		oauth:       deps.OAuth,
		redirectURI: deps.RedirectURI,
		siteKey:     deps.CaptchaSiteKey,
	}
}

func (h *JoinHandler) Register(router fiber.Router) {
	router.Get("/invite/:custom_url", h.Invite)
	router.Get("/callback/join", h.Callback)
	router.Get("/verify/:custom_url", h.VerifyForm)
	router.Post("/verify/:custom_url", h.Verify)
}

// Invite handles GET /invite/:custom_url. Unknown names get a 404 without
// any upstream call.
func (h *JoinHandler) Invite(c *fiber.Ctx) error {
	customURL := c.Params("custom_url")

	ok, err := h.mappings.Exists(c.UserContext(), customURL)
	if err != nil {
		return fail(c, h.csrf, h.logger, err, "/")
	}
	if !ok {
		return fail(c, h.csrf, h.logger, service.ErrNotFound, "")
	}

	authURL := h.oauth.AuthCodeURL(customURL, h.redirectURI, discord.ScopeIdentify, discord.ScopeGuildsJoin)
	return c.Redirect(authURL, fiber.StatusFound)
}

// Callback parks the authorization code in the session and sends the user to
// the CAPTCHA page.
func (h *JoinHandler) Callback(c *fiber.Ctx) error {
	state := c.Query("state")
	if c.Query("error") != "" {
		return h.message(c, fiber.StatusBadRequest, "Authorization cancelled",
			"Discord authorization was cancelled.", inviteURL(state))
	}

	code := c.Query("code")
	if code == "" {
		return fail(c, h.csrf, h.logger, service.ErrUpstreamAuth, inviteURL(state))
	}
	if !service.ValidCustomURL(state) {
		return fail(c, h.csrf, h.logger, service.ErrNotFound, "")
	}

	sess, err := h.sessions.Get(c)
	if err != nil {
		return err
	}
	sess.Set(sessionJoinCode, code)
	sess.Set(sessionJoinState, state)
	if err := sess.Save(); err != nil {
		return err
	}

	return c.Redirect("/verify/"+state, fiber.StatusSeeOther)
}

func (h *JoinHandler) VerifyForm(c *fiber.Ctx) error {
	customURL := c.Params("custom_url")

	sess, err := h.sessions.Get(c)
	if err != nil {
		return err
	}
	if _, ok := pendingJoin(sess, customURL); !ok {
		return h.expired(c, customURL)
	}

	return h.renderVerify(c, sess, fiber.StatusOK, customURL, "")
}

// Verify runs the join with the parked code. The code is discarded after any
// attempt that got past the CAPTCHA, since Discord accepts it only once.
func (h *JoinHandler) Verify(c *fiber.Ctx) error {
	customURL := c.Params("custom_url")

	sess, err := h.sessions.Get(c)
	if err != nil {
		return err
	}
	code, ok := pendingJoin(sess, customURL)
	if !ok {
		return h.expired(c, customURL)
	}

	result, err := h.join.Join(c.UserContext(), service.JoinRequest{
		Code:            code,
		State:           customURL,
		CaptchaResponse: c.FormValue(captcha.FormField),
		RemoteIP:        c.IP(),
	})

	if errors.Is(err, service.ErrCaptchaRejected) {
		return h.renderVerify(c, sess, fiber.StatusBadRequest, customURL, describe(err).message)
	}

	sess.Delete(sessionJoinCode)
	sess.Delete(sessionJoinState)
	if saveErr := sess.Save(); saveErr != nil {
		h.logger.Warn("failed to clear pending join", zap.Error(saveErr))
	}

	if err != nil {
		return fail(c, h.csrf, h.logger, err, inviteURL(customURL))
	}

	message := fmt.Sprintf("You have joined %s.", guildLabel(result))
	if result.AlreadyMember {
		message = fmt.Sprintf("You are already a member of %s.", guildLabel(result))
	}
	return h.message(c, fiber.StatusOK, "Welcome!", message, "")
}

func (h *JoinHandler) renderVerify(c *fiber.Ctx, sess *session.Session, status int, customURL, errMsg string) error {
	token, err := h.csrf.TokenFor(sess)
	if err != nil {
		return err
	}
	if err := sess.Save(); err != nil {
		return err
	}

	return render(c, status, view.PageVerify, view.VerifyPage{
		Page: view.Page{
			Title:     "Verify",
			User:      middleware.CurrentUser(c),
			IsAdmin:   middleware.IsAdmin(c),
			CSRFToken: token,
			Error:     errMsg,
		},
		SiteKey:   h.siteKey,
		CustomURL: customURL,
	})
}

func (h *JoinHandler) expired(c *fiber.Ctx, customURL string) error {
	return h.message(c, fiber.StatusBadRequest, "Link expired",
		"This join attempt is no longer valid. Open the invite link again.", inviteURL(customURL))
}

func (h *JoinHandler) message(c *fiber.Ctx, status int, heading, message, backURL string) error {
	return render(c, status, view.PageMessage, view.MessagePage{
		Page:    basePage(c, h.csrf, h.logger, heading),
		Heading: heading,
		Message: message,
		BackURL: backURL,
	})
}

// pendingJoin returns the parked code when it belongs to customURL.
func pendingJoin(sess *session.Session, customURL string) (string, bool) {
	code, _ := sess.Get(sessionJoinCode).(string)
	state, _ := sess.Get(sessionJoinState).(string)
	if code == "" || state == "" || state != customURL {
		return "", false
	}
	return code, true
}

func inviteURL(customURL string) string {
	if !service.ValidCustomURL(customURL) {
		return ""
	}
	return "/invite/" + customURL
}

func guildLabel(r *service.JoinResult) string {
	if r.GuildName != "" {
		return r.GuildName
	}
	return "the server"
}
