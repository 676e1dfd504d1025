package payments

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPaymentsApp(f *fixture) *fiber.App {
	h := NewHandler(f.svc)
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", c.Get("X-Test-User"))
		return c.Next()
	})
	app.Post("/wallet/transfer", h.Transfer)
	app.Post("/wallet/withdraw", h.Withdraw)
	return app
}

func post(t *testing.T, app *fiber.App, path, user, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set("X-Test-User", user)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded), string(payload))
	return resp.StatusCode, decoded
}

func TestHandlerTransfer(t *testing.T) {
	f := newFixture(t)
	bob := f.create(t, "bob")
	f.create(t, "alice")
	app := newPaymentsApp(f)

	status, body := post(t, app, "/wallet/transfer", "alice", `{"receiverAccount":"`+bob.LedgerAddress+`","amount":"5"}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "4.9999", body["sender_balance"])
	assert.Equal(t, "0.0001", body["fee"])
	assert.Equal(t, "15", body["receiver_balance"])
	assert.Contains(t, body["explorer_url"], "/tx/")
	assert.Equal(t, bob.LedgerAddress, body["to"])

	// snake_case body is still accepted
	status, body = post(t, app, "/wallet/transfer", "alice", `{"receiver_account":"`+bob.LedgerAddress+`","amount":"1"}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "3.9998", body["sender_balance"])
}

func TestHandlerTransferErrors(t *testing.T) {
	f := newFixture(t)
	bob := f.create(t, "bob")
	f.create(t, "alice")
	app := newPaymentsApp(f)

	status, body := post(t, app, "/wallet/transfer", "alice", `{"receiver_account":"`+bob.LedgerAddress+`","amount":"100"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "insufficient_funds", body["error"].(map[string]any)["kind"])

	status, body = post(t, app, "/wallet/transfer", "alice", `{"receiver_account":"`+bob.LedgerAddress+`","amount":"0.000000001"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation", body["error"].(map[string]any)["kind"])

	status, body = post(t, app, "/wallet/transfer", "alice", `{"receiver_account":"0.0.777777","amount":"1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "INVALID_ACCOUNT_ID", body["error"].(map[string]any)["ledger_status"])

	assert.Equal(t, int32(1), f.spy.submits.Load())
}

func TestHandlerWithdraw(t *testing.T) {
	f := newFixture(t)
	f.create(t, "alice")
	app := newPaymentsApp(f)

	status, body := post(t, app, "/wallet/withdraw", "alice", `{"recipient":"0x00000000000000000000000000000000000004d2","amount":1.5}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "8.4999", body["sender_balance"])
	assert.NotContains(t, body, "receiver_balance")

	status, _ = post(t, app, "/wallet/withdraw", "alice", `{"recipient":"0.0.12","amount":1}`)
	assert.Equal(t, http.StatusBadRequest, status)
}
