package middleware

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Logger creates a logging middleware using zap
func Logger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", statusOf(c, err)),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.IP()),
			zap.String("user_agent", c.Get(fiber.HeaderUserAgent)),
		}
		if rid := requestID(c); rid != "" {
			fields = append(fields, zap.String("request_id", rid))
		}
		if user := CurrentUser(c); user != "" {
			fields = append(fields, zap.String("user", user))
		}

		var fe *fiber.Error
		switch {
		case err == nil:
			logger.Info("request", fields...)
		case errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError:
			logger.Info("request rejected", append(fields, zap.String("reason", fe.Message))...)
		default:
			logger.Error("request error", append(fields, zap.Error(err))...)
		}

		return err
	}
}

// statusOf reports the status the error handler will write for err.
func statusOf(c *fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}
