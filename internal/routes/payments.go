package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hbarwallet/hbarwallet/internal/payments"
)

// RegisterPaymentRoutes wires money-moving endpoints behind the transfer limiter.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler, limiter fiber.Handler) {
	group := r.Group("/wallet", limiter)
	group.Post("/transfer", h.Transfer)
	group.Post("/withdraw", h.Withdraw)
}
