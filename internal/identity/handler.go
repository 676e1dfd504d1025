package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/hbarwallet/hbarwallet/internal/wallet"
)

// WalletProvisioner creates the wallet of a freshly registered user.
type WalletProvisioner interface {
	Create(ctx context.Context, owner string) (wallet.Wallet, bool, error)
}

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
	wallets WalletProvisioner
	logger  *slog.Logger
}

// NewHandler constructs an identity HTTP handler. When wallets is non-nil a
// wallet is provisioned at registration.
func NewHandler(service *Service, wallets WalletProvisioner, logger *slog.Logger) *Handler {
	return &Handler{service: service, wallets: wallets, logger: logger}
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

type registerResponse struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	WalletID      string `json:"wallet_id,omitempty"`
	LedgerAddress string `json:"account_id,omitempty"`
}

// Register handles user onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	user, err := h.service.Register(c.UserContext(), Registration{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	switch {
	case errors.Is(err, ErrEmailTaken):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidInput):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case err != nil:
		h.logger.Error("register user", slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "registration failed")
	}

	resp := registerResponse{UserID: user.ID, Email: user.Email, FirstName: user.FirstName, LastName: user.LastName}
	if h.wallets != nil {
		// A failed provisioning is recoverable through POST /wallet/create.
		w, _, err := h.wallets.Create(c.UserContext(), user.ID)
		if err != nil {
			h.logger.Warn("wallet provisioning failed", slog.String("owner", user.ID), slog.Any("error", err))
		} else {
			resp.WalletID = w.ID
			resp.LedgerAddress = w.LedgerAddress
		}
	}
	return c.Status(http.StatusCreated).JSON(resp)
}
