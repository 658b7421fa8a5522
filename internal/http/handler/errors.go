package handler

import (
	"errors"
	"net/http"

	"github.com/sifan077/InviteGate/internal/app/service"
)

type failure struct {
	status  int
	heading string
	message string
}

// describe maps service errors to a status and the text shown to the user.
// Upstream response bodies never reach the page.
func describe(err error) failure {
	switch {
	case errors.Is(err, service.ErrInvalidCustomURL):
		return failure{http.StatusBadRequest, "Invalid custom URL", "Custom URLs may only contain letters, digits, dashes and underscores."}
	case errors.Is(err, service.ErrInvalidInviteURL):
		return failure{http.StatusBadRequest, "Invalid Discord invite", "Invites must look like https://discord.gg/<code>."}
	case errors.Is(err, service.ErrValidation):
		return failure{http.StatusBadRequest, "Invalid input", "Please check the form and try again."}
	case errors.Is(err, service.ErrCaptchaRejected):
		return failure{http.StatusBadRequest, "CAPTCHA failed", "CAPTCHA verification failed. Please try again."}
	case errors.Is(err, service.ErrNotFound):
		return failure{http.StatusNotFound, "URL not found", "That link does not exist."}
	case errors.Is(err, service.ErrUpstreamAuth):
		return failure{http.StatusBadGateway, "Discord authorization failed", "Discord did not accept the authorization. Open the invite link again."}
	case errors.Is(err, service.ErrInvalidInvite):
		return failure{http.StatusUnprocessableEntity, "Invalid invite", "The Discord invite behind this link is no longer valid."}
	case errors.Is(err, service.ErrJoinFailed):
		return failure{http.StatusBadGateway, "Failed to join", "Discord refused to add you to the server."}
	case errors.Is(err, service.ErrLimitExceeded):
		return failure{http.StatusForbidden, "Invite limit reached", "You have reached your invite limit. Delete a link or ask an admin for more."}
	case errors.Is(err, service.ErrConflict):
		return failure{http.StatusConflict, "Already taken", "That custom URL is already in use."}
	case errors.Is(err, service.ErrLimitFloor):
		return failure{http.StatusConflict, "Limit already at zero", "The invite limit is already 0 and cannot go lower."}
	default:
		return failure{http.StatusInternalServerError, "Something went wrong", "Please try again later."}
	}
}
