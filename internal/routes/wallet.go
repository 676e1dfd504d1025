package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hbarwallet/hbarwallet/internal/wallet"
)

// RegisterWalletRoutes wires wallet-related endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	group := r.Group("/wallet")
	group.Post("/create", h.Create)
	group.Get("/me", h.Me)
	group.Get("/balance/:accountId", h.Balance)
	group.Get("/transactions/:accountId", h.Transactions)
	group.Post("/nft", h.LinkNFT)
	group.Get("/nfts", h.NFTs)
}

// RegisterAdminRoutes wires the cross-wallet views; requireAdmin gates them.
func RegisterAdminRoutes(r fiber.Router, h *wallet.Handler, requireAdmin fiber.Handler) {
	group := r.Group("/admin", requireAdmin)
	group.Get("/transactions", h.AllTransactions)
}
