package transport

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ErrorHandler converts unhandled route errors into JSON responses.
// Client errors land at Warn, server errors at Error.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
		}

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		}
		if reqID := c.Get(fiber.HeaderXRequestID); reqID != "" {
			fields = append(fields, zap.String("requestId", reqID))
		}

		if code >= fiber.StatusInternalServerError {
			logger.Error("request failed", fields...)
		} else {
			logger.Warn("request rejected", fields...)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
