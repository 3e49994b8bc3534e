package middleware

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/dbmend/dbmend/internal/domain"
)

// ActorHeader carries the identity operators pass on mutating requests.
const ActorHeader = "X-Actor-Id"

// AuditWriter defines how audit records are persisted.
type AuditWriter interface {
	WriteAudit(actorID, action, resource, resourceID, details, ip, userAgent string) error
}

// Actor returns the request's actor id, defaulting to anonymous.
func Actor(c fiber.Ctx) string {
	if id := c.Get(ActorHeader); id != "" {
		return id
	}
	return "anonymous"
}

// AuditMiddleware writes an audit row for every request.
func AuditMiddleware(writer AuditWriter) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		// Capture request data BEFORE handler execution (Fiber reuses context objects)
		method := c.Method()
		path := c.Path()
		ip := c.IP()
		userAgent := c.Get("User-Agent")
		actorID := Actor(c)

		err := c.Next()

		statusCode := c.Response().StatusCode()
		details := map[string]interface{}{
			"method":      method,
			"path":        path,
			"status":      statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
		}
		detailsJSON, _ := json.Marshal(details)

		// Write audit log asynchronously — all values are captured, safe to use in goroutine
		go func() {
			if writeErr := writer.WriteAudit(
				actorID,
				domain.AuditActionRequest,
				"api",
				path,
				string(detailsJSON),
				ip,
				userAgent,
			); writeErr != nil {
				slog.Error("failed to write audit log", "error", writeErr)
			}
		}()

		return err
	}
}
