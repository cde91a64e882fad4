// Package fiberlog connects Fiber request handling to pkg/log, so request
// logs carry the request id and reach every configured transporter,
// including a Logentries sink.
package fiberlog

import (
	"errors"
	"time"

	"logentries-sink/pkg/log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// RequestIDConfig returns the configuration for Fiber's requestid middleware.
// Uses X-Request-ID header, generates UUID if not present.
func RequestIDConfig() requestid.Config {
	return requestid.Config{
		Header:     "X-Request-ID",
		ContextKey: "requestid",
	}
}

// RequestIDToContext bridges Fiber's requestid to the pkg/log context and
// stores logger there for handlers to pick up with log.FromContext. A nil
// logger leaves the context logger unset.
// Must be used AFTER requestid.New() middleware.
func RequestIDToContext(logger *log.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		if id, ok := c.Locals("requestid").(string); ok && id != "" {
			ctx = log.WithRequestID(ctx, id)
		}
		if logger != nil {
			ctx = log.WithLogger(ctx, logger)
		}
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// RequestLogger logs one entry per request. 5xx responses are logged at
// ERROR and 4xx at WARN. The logger comes from the request context, falling
// back to log.Default().
// Must be used AFTER RequestIDToContext.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()
		if err != nil {
			// The error handler sets the final status after the chain returns.
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}

		ctx := c.UserContext()
		fields := []any{
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"latency_ms", latency.Milliseconds(),
			"ip", c.IP(),
			"user_agent", c.Get("User-Agent"),
		}
		if err != nil {
			fields = append(fields, log.ErrorKey, err.Error())
		}

		logger := log.FromContext(ctx)
		switch {
		case status >= 500:
			logger.ErrorCtx(ctx, "request completed", fields...)
		case status >= 400:
			logger.WarnCtx(ctx, "request completed", fields...)
		default:
			logger.InfoCtx(ctx, "request completed", fields...)
		}

		return err
	}
}
