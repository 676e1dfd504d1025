package wallet

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/hbarwallet/hbarwallet/internal/ledger"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service     *Service
	explorerURL string
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service, explorerURL string) *Handler {
	return &Handler{service: service, explorerURL: explorerURL}
}

type walletResponse struct {
	ID         string          `json:"id"`
	Owner      string          `json:"owner"`
	AccountID  string          `json:"account_id"`
	PublicKey  string          `json:"public_key"`
	Balance    decimal.Decimal `json:"balance"`
	Cached     bool            `json:"cached"`
	NFTTokenID *string         `json:"nft_token_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type transactionResponse struct {
	Type         Kind            `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Counterparty string          `json:"counterparty,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Status       Status          `json:"status"`
	Reference    string          `json:"external_reference,omitempty"`
}

func toWalletResponse(w Wallet, bal Balance) walletResponse {
	return walletResponse{
		ID:         w.ID,
		Owner:      w.Owner,
		AccountID:  w.LedgerAddress,
		PublicKey:  w.Keys.PublicKey,
		Balance:    ledger.ToHbar(bal.Amount),
		Cached:     bal.Cached,
		NFTTokenID: w.NFTTokenID,
		CreatedAt:  w.CreatedAt,
	}
}

func toTransactionResponses(records []Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(records))
	for _, t := range records {
		out = append(out, transactionResponse{
			Type:         t.Kind,
			Amount:       ledger.ToHbar(t.Amount),
			Counterparty: t.Counterparty,
			Timestamp:    t.Timestamp,
			Status:       t.Status,
			Reference:    t.ExternalReference,
		})
	}
	return out
}

type entryResponse struct {
	transactionResponse
	WalletID  string `json:"wallet_id"`
	Owner     string `json:"owner"`
	AccountID string `json:"account_id"`
}

func owner(c *fiber.Ctx) (string, error) {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return "", fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	return uid, nil
}

// Create provisions a wallet for the authenticated owner, or returns the
// existing one.
func (h *Handler) Create(c *fiber.Ctx) error {
	uid, err := owner(c)
	if err != nil {
		return err
	}
	w, created, err := h.service.Create(c.UserContext(), uid)
	if err != nil {
		return WriteError(c, err)
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{
		"created": created,
		"wallet":  toWalletResponse(w, Balance{Amount: w.CachedBalance}),
	})
}

// Me returns the caller's wallet with a reconciled balance.
func (h *Handler) Me(c *fiber.Ctx) error {
	uid, err := owner(c)
	if err != nil {
		return err
	}
	w, err := h.service.GetByOwner(c.UserContext(), uid)
	if IsNotFound(err) {
		return c.Status(http.StatusOK).JSON(fiber.Map{"needs_creation": true})
	}
	if err != nil {
		return WriteError(c, err)
	}
	bal, err := h.service.Reconcile(c.UserContext(), w)
	if err != nil {
		return WriteError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"needs_creation": false,
		"wallet":         toWalletResponse(w, bal),
		"explorer_url":   h.explorerURL + "/account/" + w.LedgerAddress,
	})
}

// Balance returns the reconciled balance for an account.
func (h *Handler) Balance(c *fiber.Ctx) error {
	address := c.Params("accountId")
	bal, err := h.service.Balance(c.UserContext(), address)
	if err != nil {
		return WriteError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"account_id": address,
		"balance":    ledger.ToHbar(bal.Amount),
		"cached":     bal.Cached,
		"timestamp":  bal.AsOf,
	})
}

// Transactions lists the account's records, newest first.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	address := c.Params("accountId")
	records, err := h.service.Transactions(c.UserContext(), address)
	if err != nil {
		return WriteError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"account_id":   address,
		"transactions": toTransactionResponses(records),
	})
}

// AllTransactions lists the most recent records of every wallet. Callers
// must be gated as administrators by the router.
func (h *Handler) AllTransactions(c *fiber.Ctx) error {
	entries, err := h.service.RecentTransactions(c.UserContext(), c.QueryInt("limit"))
	if err != nil {
		return WriteError(c, err)
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			transactionResponse: toTransactionResponses([]Transaction{e.Transaction})[0],
			WalletID:            e.WalletID,
			Owner:               e.Owner,
			AccountID:           e.LedgerAddress,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": out, "count": len(out)})
}

type linkNFTRequest struct {
	TokenID string  `json:"token_id"`
	Serials []int64 `json:"serials"`
}

// LinkNFT associates an NFT token with the caller's wallet.
func (h *Handler) LinkNFT(c *fiber.Ctx) error {
	uid, err := owner(c)
	if err != nil {
		return err
	}
	var req linkNFTRequest
	if err := c.BodyParser(&req); err != nil {
		return WriteError(c, Validationf("wallet.LinkNFT", "invalid body: %v", err))
	}
	w, err := h.service.LinkNFT(c.UserContext(), uid, req.TokenID, req.Serials)
	if err != nil {
		return WriteError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"account_id":   w.LedgerAddress,
		"nft_token_id": w.NFTTokenID,
	})
}

// NFTs lists the caller's linked token and mint records.
func (h *Handler) NFTs(c *fiber.Ctx) error {
	uid, err := owner(c)
	if err != nil {
		return err
	}
	holdings, err := h.service.NFTs(c.UserContext(), uid)
	if err != nil {
		return WriteError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"token_id": holdings.TokenID,
		"mints":    toTransactionResponses(holdings.Mints),
	})
}

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool {
	return err != nil && errors.Is(err, ErrNotFound)
}
