package service

import (
	"errors"
	"fmt"
)

// Terminal conditions surfaced to handlers. Each is rendered as a message;
// none is retried.
var (
	ErrUpstreamAuth    = errors.New("discord authorization failed")
	ErrCaptchaRejected = errors.New("captcha verification failed")
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrInvalidInvite   = errors.New("invalid discord invite")
	ErrJoinFailed      = errors.New("failed to join the server")
	ErrLimitExceeded   = errors.New("invite limit reached")
	ErrConflict        = errors.New("custom url already exists")
	ErrLimitFloor      = errors.New("invite limit cannot go below zero")
	ErrStore           = errors.New("storage failure")
)

var (
	ErrInvalidCustomURL = fmt.Errorf("%w: custom url may only contain letters, digits, dashes and underscores", ErrValidation)
	ErrInvalidInviteURL = fmt.Errorf("%w: discord invite must look like https://discord.gg/<code>", ErrValidation)
)

// Outcome maps an error to a low-cardinality label for metrics and audit events.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrUpstreamAuth):
		return "upstream_auth"
	case errors.Is(err, ErrCaptchaRejected):
		return "captcha_rejected"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInvite):
		return "invalid_invite"
	case errors.Is(err, ErrJoinFailed):
		return "join_failed"
	case errors.Is(err, ErrLimitExceeded):
		return "limit_exceeded"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrLimitFloor):
		return "limit_floor"
	case errors.Is(err, ErrStore):
		return "store"
	default:
		return "error"
	}
}

func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStore, err)
}
