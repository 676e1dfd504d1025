package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hbarwallet/hbarwallet/internal/notification"
)

// RegisterNotificationRoutes wires the caller's notification inbox.
func RegisterNotificationRoutes(r fiber.Router, h *notification.Handler) {
	group := r.Group("/notifications")
	group.Get("/", h.List)
	group.Delete("/", h.Clear)
	group.Delete("/:id", h.Delete)
}
