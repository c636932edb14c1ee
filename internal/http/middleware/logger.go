package middleware

import (
	"io"
	"time"

	"github.com/gofiber/fiber/v2"

	"docapi/internal/logger"
)

// LoggerWithWriter is AccessLog writing to w with timestamps in loc.
func LoggerWithWriter(w io.Writer, loc *time.Location) fiber.Handler {
	return AccessLog(logger.New(w, loc))
}

// AccessLog writes one line per request to log.
// Fields:
// - request_id (taken from context locals set by RequestID middleware)
// - method
// - path
// - status
// - latency (in milliseconds, as float)
// - ts
func AccessLog(log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		// The error handler has not run yet, so take the status from the error.
		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			}
		}

		entry := map[string]any{
			"request_id": RequestIDFrom(c),
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"latency":    float64(time.Since(start).Microseconds()) / 1000,
		}
		if status >= fiber.StatusInternalServerError {
			entry["level"] = "error"
		}
		log.Log(entry)

		return err
	}
}
