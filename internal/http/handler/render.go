package handler

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/InviteGate/internal/http/middleware"
	"github.com/sifan077/InviteGate/internal/http/view"
	"go.uber.org/zap"
)

func render(c *fiber.Ctx, status int, page string, data any) error {
	html, err := view.Render(page, data)
	if err != nil {
		return err
	}
	return c.Status(status).Type("html", "utf-8").SendString(html)
}

// basePage fills the layout fields. Logged-in pages get a CSRF token for the
// logout form, which also (re)sets the session cookie.
func basePage(c *fiber.Ctx, csrf *middleware.CSRF, logger *zap.Logger, title string) view.Page {
	p := view.Page{
		Title:   title,
		User:    middleware.CurrentUser(c),
		IsAdmin: middleware.IsAdmin(c),
	}
	if p.User != "" && csrf != nil {
		token, err := csrf.Token(c)
		if err != nil {
			logger.Warn("failed to issue csrf token", zap.Error(err))
		}
		p.CSRFToken = token
	}
	return p
}

// fail renders the message page for a service error.
func fail(c *fiber.Ctx, csrf *middleware.CSRF, logger *zap.Logger, err error, backURL string) error {
	f := describe(err)
	if f.status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return render(c, f.status, view.PageMessage, view.MessagePage{
		Page:    basePage(c, csrf, logger, f.heading),
		Heading: f.heading,
		Message: f.message,
		BackURL: backURL,
	})
}

// ErrorHandler renders errors that escape handlers and middleware.
func ErrorHandler(csrf *middleware.CSRF, logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		message := "Something went wrong. Please try again later."

		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
			if status < fiber.StatusInternalServerError {
				message = fe.Message
			}
			if status == fiber.StatusNotFound {
				message = "Page not found."
			}
		}

		html, renderErr := view.Render(view.PageMessage, view.MessagePage{
			Page:    basePage(c, csrf, logger, http.StatusText(status)),
			Heading: http.StatusText(status),
			Message: message,
			BackURL: "/",
		})
		if renderErr != nil {
			logger.Error("failed to render error page", zap.Error(renderErr))
			return c.Status(status).SendString(message)
		}
		return c.Status(status).Type("html", "utf-8").SendString(html)
	}
}
