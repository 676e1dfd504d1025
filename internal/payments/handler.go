package payments

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/hbarwallet/hbarwallet/internal/ledger"
	"github.com/hbarwallet/hbarwallet/internal/wallet"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	ReceiverAccount string `json:"receiverAccount"`
	// accepted for clients that send snake_case
	ReceiverAccountAlt string          `json:"receiver_account"`
	Amount             decimal.Decimal `json:"amount"`
}

func (r transferRequest) receiver() string {
	if r.ReceiverAccount != "" {
		return r.ReceiverAccount
	}
	return r.ReceiverAccountAlt
}

type withdrawRequest struct {
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
}

type transferResponse struct {
	TransactionID   string           `json:"transaction_id"`
	ExplorerURL     string           `json:"explorer_url,omitempty"`
	Status          string           `json:"status"`
	From            string           `json:"from"`
	To              string           `json:"to"`
	Amount          decimal.Decimal  `json:"amount"`
	Fee             decimal.Decimal  `json:"fee"`
	SenderBalance   decimal.Decimal  `json:"sender_balance"`
	ReceiverBalance *decimal.Decimal `json:"receiver_balance,omitempty"`
	Warnings        []string         `json:"warnings,omitempty"`
	CompletedAt     time.Time        `json:"completed_at"`
}

func toResponse(res Result) transferResponse {
	out := transferResponse{
		TransactionID: res.TransactionID,
		ExplorerURL:   res.ExplorerURL,
		Status:        res.Status,
		From:          res.SenderAddress,
		To:            res.Recipient,
		Amount:        ledger.ToHbar(res.Amount),
		Fee:           ledger.ToHbar(res.Fee),
		SenderBalance: ledger.ToHbar(res.SenderBalance),
		Warnings:      res.Warnings,
		CompletedAt:   res.CompletedAt,
	}
	if res.ReceiverBalance != nil {
		bal := ledger.ToHbar(*res.ReceiverBalance)
		out.ReceiverBalance = &bal
	}
	return out
}

func parseAmount(op string, amount decimal.Decimal) (int64, error) {
	tinybars, err := ledger.ToTinybars(amount)
	if err != nil {
		return 0, wallet.E(wallet.ErrValidation, op, err)
	}
	return tinybars, nil
}

// Transfer sends HBAR from the caller's wallet to another account.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	const op = "payments.Transfer"
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}

	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return wallet.WriteError(c, wallet.Validationf(op, "invalid body: %v", err))
	}
	amount, err := parseAmount(op, req.Amount)
	if err != nil {
		return wallet.WriteError(c, err)
	}

	res, err := h.service.Transfer(c.UserContext(), TransferInput{
		SenderOwner:     uid,
		ReceiverAddress: req.receiver(),
		Amount:          amount,
	})
	if err != nil {
		return wallet.WriteError(c, err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(res))
}

// Withdraw sends HBAR from the caller's wallet to an external EVM address.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	const op = "payments.Withdraw"
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}

	var req withdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return wallet.WriteError(c, wallet.Validationf(op, "invalid body: %v", err))
	}
	amount, err := parseAmount(op, req.Amount)
	if err != nil {
		return wallet.WriteError(c, err)
	}

	res, err := h.service.Withdraw(c.UserContext(), WithdrawInput{
		SenderOwner: uid,
		Recipient:   req.Recipient,
		Amount:      amount,
	})
	if err != nil {
		return wallet.WriteError(c, err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(res))
}
