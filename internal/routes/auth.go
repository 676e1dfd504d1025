package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hbarwallet/hbarwallet/internal/auth"
)

// RegisterAuthRoutes wires authentication endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	if rateLimiter != nil {
		group.Post("/login", rateLimiter, h.Login)
	} else {
		group.Post("/login", h.Login)
	}
	group.Post("/refresh", h.Refresh)
	group.Post("/logout", h.Logout)
}

// RegisterAccountRoutes wires auth endpoints that require a signed-in caller.
func RegisterAccountRoutes(r fiber.Router, h *auth.Handler) {
	r.Post("/auth/change-password", h.ChangePassword)
}
