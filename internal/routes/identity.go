package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hbarwallet/hbarwallet/internal/identity"
)

// RegisterIdentityRoutes wires sign-up; the handler provisions the wallet.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Post("/identity/register", h.Register)
}
