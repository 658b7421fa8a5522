package middleware

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	httpUtil "github.com/sifan077/InviteGate/internal/http/util"
)

const (
	CSRFField = "csrf_token"

	csrfTTL = time.Hour
)

var errCSRF = fiber.NewError(fiber.StatusForbidden, "Your form expired. Reload the page and try again.")

// CSRF binds form tokens to the session id.
type CSRF struct {
	store  *session.Store
	tokens *httpUtil.TokenSigner
}

func NewCSRF(store *session.Store, secret []byte) *CSRF {
	return &CSRF{
		store:  store,
		tokens: httpUtil.NewTokenSigner(secret, "csrf", csrfTTL),
	}
}

// TokenFor issues a token for sess. The caller must Save sess so the
// session cookie reaches the browser.
func (x *CSRF) TokenFor(sess *session.Session) (string, error) {
	return x.tokens.Issue(sess.ID())
}

// Token loads the session, issues a token and saves the session.
func (x *CSRF) Token(c *fiber.Ctx) (string, error) {
	sess, err := x.store.Get(c)
	if err != nil {
		return "", err
	}
	token, err := x.TokenFor(sess)
	if err != nil {
		return "", err
	}
	if err := sess.Save(); err != nil {
		return "", err
	}
	return token, nil
}

// Protect rejects unsafe requests whose token does not match the session.
func (x *CSRF) Protect() fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		sess, err := x.store.Get(c)
		if err != nil {
			return err
		}
		if sess.Fresh() {
			return errCSRF
		}
		if err := x.tokens.Validate(sess.ID(), c.FormValue(CSRFField)); err != nil {
			if errors.Is(err, httpUtil.ErrInvalidToken) {
				return errCSRF
			}
			return err
		}
		return c.Next()
	}
}
