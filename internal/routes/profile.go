package routes

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/hbarwallet/hbarwallet/internal/identity"
	"github.com/hbarwallet/hbarwallet/internal/wallet"
)

// RegisterProfileRoute exposes the caller's profile with a summary of their wallet.
func RegisterProfileRoute(r fiber.Router, idRepo identity.Repository, wallets *wallet.Service) {
	r.Get("/me", func(c *fiber.Ctx) error {
		uid, _ := c.Locals("user_id").(string)
		if uid == "" {
			return fiber.NewError(http.StatusUnauthorized, "unauthorized")
		}
		user, err := idRepo.FindByID(c.UserContext(), uid)
		if err != nil {
			return fiber.NewError(http.StatusNotFound, "user not found")
		}
		resp := fiber.Map{
			"user": fiber.Map{
				"id":            user.ID,
				"email":         user.Email,
				"first_name":    user.FirstName,
				"last_name":     user.LastName,
				"phone":         user.Phone,
				"token_version": user.TokenVersion,
				"created_at":    user.CreatedAt,
				"last_login":    user.LastLogin,
			},
		}
		w, err := wallets.GetByOwner(c.UserContext(), uid)
		switch {
		case err == nil:
			resp["wallet"] = fiber.Map{
				"id":         w.ID,
				"account_id": w.LedgerAddress,
				"created_at": w.CreatedAt,
			}
		case errors.Is(err, wallet.ErrNotFound):
			resp["wallet"] = nil
		default:
			return err
		}
		return c.Status(http.StatusOK).JSON(resp)
	})
}
