package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hbarwallet/hbarwallet/internal/ledger"
)

func newHandlerApp(t *testing.T) (*fiber.App, *Service) {
	t.Helper()
	svc, _ := newTestService(t)
	h := NewHandler(svc, "https://hashscan.io/testnet")

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if uid := c.Get("X-Test-User"); uid != "" {
			c.Locals("user_id", uid)
		}
		return c.Next()
	})
	app.Post("/wallet/create", h.Create)
	app.Get("/wallet/me", h.Me)
	app.Get("/wallet/balance/:accountId", h.Balance)
	app.Get("/wallet/transactions/:accountId", h.Transactions)
	app.Post("/wallet/nft", h.LinkNFT)
	app.Get("/wallet/nfts", h.NFTs)
	app.Get("/admin/transactions", h.AllTransactions)
	return app, svc
}

func doJSON(t *testing.T, app *fiber.App, method, path, user, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(payload) > 0 {
		require.NoError(t, json.Unmarshal(payload, &decoded), string(payload))
	}
	return resp.StatusCode, decoded
}

func TestHandlerCreateThenMe(t *testing.T) {
	app, _ := newHandlerApp(t)

	status, body := doJSON(t, app, http.MethodGet, "/wallet/me", "u1", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["needs_creation"])

	status, body = doJSON(t, app, http.MethodPost, "/wallet/create", "u1", "")
	assert.Equal(t, http.StatusCreated, status)
	wallet := body["wallet"].(map[string]any)
	assert.Equal(t, "10", wallet["balance"])
	assert.NotContains(t, wallet, "private_key")

	status, _ = doJSON(t, app, http.MethodPost, "/wallet/create", "u1", "")
	assert.Equal(t, http.StatusOK, status)

	status, body = doJSON(t, app, http.MethodGet, "/wallet/me", "u1", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["needs_creation"])
}

func TestHandlerRequiresUser(t *testing.T) {
	app, _ := newHandlerApp(t)
	status, _ := doJSON(t, app, http.MethodPost, "/wallet/create", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestHandlerBalanceAndTransactions(t *testing.T) {
	app, svc := newHandlerApp(t)
	w, _, err := svc.Create(context.Background(), "u2")
	require.NoError(t, err)

	status, body := doJSON(t, app, http.MethodGet, "/wallet/balance/"+w.LedgerAddress, "u2", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "10", body["balance"])
	assert.Equal(t, false, body["cached"])

	status, body = doJSON(t, app, http.MethodGet, "/wallet/transactions/"+w.LedgerAddress, "u2", "")
	assert.Equal(t, http.StatusOK, status)
	txs := body["transactions"].([]any)
	require.Len(t, txs, 1)
	assert.Equal(t, "receive", txs[0].(map[string]any)["type"])

	status, body = doJSON(t, app, http.MethodGet, "/wallet/balance/0.0.999999", "u2", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body["error"].(map[string]any)["kind"])
}

func TestHandlerNFT(t *testing.T) {
	app, svc := newHandlerApp(t)
	_, _, err := svc.Create(context.Background(), "u3")
	require.NoError(t, err)

	status, body := doJSON(t, app, http.MethodPost, "/wallet/nft", "u3", `{"token_id":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation", body["error"].(map[string]any)["kind"])

	status, _ = doJSON(t, app, http.MethodPost, "/wallet/nft", "u3", `{"token_id":"0.0.5005","serials":[3]}`)
	assert.Equal(t, http.StatusOK, status)

	status, body = doJSON(t, app, http.MethodGet, "/wallet/nfts", "u3", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "0.0.5005", body["token_id"])
	assert.Len(t, body["mints"], 1)
}

func TestWriteErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{E(ErrNotFound, "op", nil), http.StatusNotFound, "not_found"},
		{E(ErrInsufficientFunds, "op", nil), http.StatusBadRequest, "insufficient_funds"},
		{Validationf("op", "bad"), http.StatusBadRequest, "validation"},
		{FromLedger("op", &ledger.RejectedError{Status: "INVALID_SIGNATURE"}), http.StatusUnprocessableEntity, "transfer_failed"},
		{FromLedger("op", ledger.ErrTimeout), http.StatusGatewayTimeout, "timeout"},
		{FromLedger("op", ledger.ErrUnavailable), http.StatusServiceUnavailable, "ledger_unavailable"},
		{E(ErrPersistence, "op", errors.New("pq: connection refused")), http.StatusInternalServerError, "persistence"},
	}
	for i, tc := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error { return WriteError(c, tc.err) })
			status, body := doJSON(t, app, http.MethodGet, "/", "", "")
			assert.Equal(t, tc.status, status)
			e := body["error"].(map[string]any)
			assert.Equal(t, tc.kind, e["kind"])
			assert.NotContains(t, e["message"], "connection refused")
		})
	}

	var werr *Error
	require.True(t, errors.As(FromLedger("op", &ledger.RejectedError{Status: "INVALID_SIGNATURE"}), &werr))
	assert.Equal(t, "INVALID_SIGNATURE", werr.LedgerStatus)
}

func TestHandlerAllTransactions(t *testing.T) {
	app, svc := newHandlerApp(t)
	ctx := context.Background()
	first, _, err := svc.Create(ctx, "u4")
	require.NoError(t, err)
	second, _, err := svc.Create(ctx, "u5")
	require.NoError(t, err)
	_, err = svc.Append(ctx, first.ID, -ledger.TinybarsPerHbar, Transaction{Kind: KindSend, Amount: -ledger.TinybarsPerHbar, Counterparty: second.LedgerAddress})
	require.NoError(t, err)

	status, body := doJSON(t, app, http.MethodGet, "/admin/transactions", "ops", "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 3, body["count"])
	txs := body["transactions"].([]any)
	newest := txs[0].(map[string]any)
	assert.Equal(t, "send", newest["type"])
	assert.Equal(t, "-1", newest["amount"])
	assert.Equal(t, "u4", newest["owner"])
	assert.Equal(t, first.LedgerAddress, newest["account_id"])
	assert.Equal(t, "u5", txs[1].(map[string]any)["owner"])
	assert.Equal(t, "u4", txs[2].(map[string]any)["owner"])

	status, body = doJSON(t, app, http.MethodGet, "/admin/transactions?limit=1", "ops", "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])
}
