package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/sifan077/InviteGate/internal/app/service"
	"github.com/sifan077/InviteGate/internal/infra/discord"
	"github.com/sifan077/InviteGate/internal/http/middleware"
	httpUtil "github.com/sifan077/InviteGate/internal/http/util"
	"github.com/sifan077/InviteGate/internal/http/view"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const loginStateTTL = 10 * time.Minute

// OAuthClient is the Discord OAuth2 surface the login flow needs.
type OAuthClient interface {
	AuthCodeURL(state, redirectURI string, scopes ...string) string
	Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error)
	CurrentUser(ctx context.Context, token *oauth2.Token) (*discord.User, error)
}

// AuthDeps groups dependencies required by the login routes.
type AuthDeps struct {
	Logger      *zap.Logger
	Sessions    *session.Store
	CSRF        *middleware.CSRF
	OAuth       OAuthClient
	Accounts    service.AccountService
	RedirectURI string
	Secret      []byte
}

// AuthHandler implements Discord login and logout.
type AuthHandler struct {
	logger      *zap.Logger
	sessions    *session.Store
	csrf        *middleware.CSRF
	oauth       OAuthClient
	accounts    service.AccountService
	redirectURI string
	states      *httpUtil.TokenSigner
}

func NewAuthHandler(deps AuthDeps) *AuthHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		logger:      logger,
		sessions:    deps.Sessions,
		csrf:        deps.CSRF,
		oauth:       deps.OAuth,
		accounts:    deps.Accounts,
		redirectURI: deps.RedirectURI,
		states:      httpUtil.NewTokenSigner(deps.Secret, "login-state", loginStateTTL),
	}
}

func (h *AuthHandler) Register(router fiber.Router) {
	router.Get("/login", h.Login)
	router.Get("/callback/login", h.Callback)
	router.Post("/logout", h.Logout)
}

// Login redirects to Discord with a state bound to the session.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	sess, err := h.sessions.Get(c)
	if err != nil {
		return err
	}
	state, err := h.states.Issue(sess.ID())
	if err != nil {
		return err
	}
	if err := sess.Save(); err != nil {
		return err
	}
	return c.Redirect(h.oauth.AuthCodeURL(state, h.redirectURI, discord.ScopeIdentify, discord.ScopeEmail), fiber.StatusFound)
}

// Callback finishes the login: exchange, identity, account upsert, new session.
func (h *AuthHandler) Callback(c *fiber.Ctx) error {
	if c.Query("error") != "" {
		return h.message(c, fiber.StatusBadRequest, "Login cancelled", "Discord login was cancelled.")
	}
	code := c.Query("code")
	if code == "" {
		return h.message(c, fiber.StatusBadRequest, "Login failed", "Discord did not send an authorization code.")
	}

	sess, err := h.sessions.Get(c)
	if err != nil {
		return err
	}
	if err := h.states.Validate(sess.ID(), c.Query("state")); err != nil {
		h.logger.Info("login state rejected", zap.Error(err))
		return h.message(c, fiber.StatusBadRequest, "Login expired", "Your login attempt expired. Please try again.")
	}

	ctx := c.UserContext()
	token, err := h.oauth.Exchange(ctx, code, h.redirectURI)
	if err != nil {
		h.logger.Warn("login code exchange failed", zap.Error(err))
		return fail(c, h.csrf, h.logger, service.ErrUpstreamAuth, "/")
	}
	user, err := h.oauth.CurrentUser(ctx, token)
	if err != nil {
		h.logger.Warn("login identity lookup failed", zap.Error(err))
		return fail(c, h.csrf, h.logger, service.ErrUpstreamAuth, "/")
	}

	if _, err := h.accounts.Login(ctx, user.ID, user.Email); err != nil {
		return fail(c, h.csrf, h.logger, err, "/")
	}

	if err := sess.Regenerate(); err != nil {
		return err
	}
	sess.Set(middleware.SessionUserKey, user.ID)
	if err := sess.Save(); err != nil {
		return err
	}

	h.logger.Info("user logged in", zap.String("discord_id", user.ID))
	return c.Redirect("/manage", fiber.StatusSeeOther)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	sess, err := h.sessions.Get(c)
	if err != nil {
		return err
	}
	if err := sess.Destroy(); err != nil {
		return err
	}
	return c.Redirect("/", fiber.StatusSeeOther)
}

func (h *AuthHandler) message(c *fiber.Ctx, status int, heading, message string) error {
	return render(c, status, view.PageMessage, view.MessagePage{
		Page:    basePage(c, h.csrf, h.logger, heading),
		Heading: heading,
		Message: message,
		BackURL: "/login",
	})
}
