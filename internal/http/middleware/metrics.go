package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	infraPrometheus "github.com/sifan077/InviteGate/internal/infra/prometheus"
)

// Metrics observes request latency labelled by the matched route pattern.
func Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		if route == "" {
			route = "unmatched"
		}
		infraPrometheus.HTTPRequestDuration.
			WithLabelValues(c.Method(), route, strconv.Itoa(statusOf(c, err))).
			Observe(time.Since(start).Seconds())
		return err
	}
}
