package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inboxes(t *testing.T) map[string]Inbox {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]Inbox{
		"redis":  NewRedisInbox(client),
		"memory": NewMemoryInbox(),
	}
}

func TestInboxListDeleteClear(t *testing.T) {
	for name, inbox := range inboxes(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, inbox.Send(ctx, Message{Kind: KindTransferReceived, Destination: "u1", Body: "first"}))
			require.NoError(t, inbox.Send(ctx, Message{Kind: KindTransferSent, Destination: "u1", Body: "second"}))
			require.NoError(t, inbox.Send(ctx, Message{Kind: KindTransferSent, Destination: "u2", Body: "other"}))

			items, err := inbox.List(ctx, "u1")
			require.NoError(t, err)
			require.Len(t, items, 2)
			assert.Equal(t, "second", items[0].Body)
			assert.Equal(t, "first", items[1].Body)
			assert.NotEmpty(t, items[0].ID)
			assert.False(t, items[0].SentAt.IsZero())

			require.NoError(t, inbox.Delete(ctx, "u1", items[0].ID))
			assert.ErrorIs(t, inbox.Delete(ctx, "u1", items[0].ID), ErrNotFound)
			// ids are scoped to their owner
			assert.ErrorIs(t, inbox.Delete(ctx, "u2", items[1].ID), ErrNotFound)

			items, err = inbox.List(ctx, "u1")
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, "first", items[0].Body)

			require.NoError(t, inbox.Clear(ctx, "u1"))
			items, err = inbox.List(ctx, "u1")
			require.NoError(t, err)
			assert.Empty(t, items)

			others, err := inbox.List(ctx, "u2")
			require.NoError(t, err)
			assert.Len(t, others, 1)
		})
	}
}

func TestInboxIsCapped(t *testing.T) {
	for name, inbox := range inboxes(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < InboxCapacity+5; i++ {
				require.NoError(t, inbox.Send(ctx, Message{Destination: "u1", Body: fmt.Sprint(i)}))
			}
			items, err := inbox.List(ctx, "u1")
			require.NoError(t, err)
			require.Len(t, items, InboxCapacity)
			assert.Equal(t, fmt.Sprint(InboxCapacity+4), items[0].Body)
		})
	}
}

func TestHandlerServesOwnInbox(t *testing.T) {
	inbox := NewMemoryInbox()
	ctx := context.Background()
	require.NoError(t, inbox.Send(ctx, Message{Kind: KindTransferReceived, Destination: "alice", Body: "You received 5 HBAR"}))
	require.NoError(t, inbox.Send(ctx, Message{Kind: KindTransferReceived, Destination: "bob", Body: "not yours"}))

	h := NewHandler(inbox)
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", c.Get("X-Test-User"))
		return c.Next()
	})
	app.Get("/notifications", h.List)
	app.Delete("/notifications/:id", h.Delete)
	app.Delete("/notifications", h.Clear)

	do := func(method, path, user string) *http.Response {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("X-Test-User", user)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	resp := do(http.MethodGet, "/notifications", "alice")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Notifications []Stored `json:"notifications"`
		Count         int      `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "You received 5 HBAR", body.Notifications[0].Body)
	id := body.Notifications[0].ID

	assert.Equal(t, http.StatusNotFound, do(http.MethodDelete, "/notifications/"+id, "bob").StatusCode)
	assert.Equal(t, http.StatusNoContent, do(http.MethodDelete, "/notifications/"+id, "alice").StatusCode)
	assert.Equal(t, http.StatusNotFound, do(http.MethodDelete, "/notifications/"+id, "alice").StatusCode)

	assert.Equal(t, http.StatusNoContent, do(http.MethodDelete, "/notifications", "bob").StatusCode)
	left, err := inbox.List(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, left)

	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/notifications", "").StatusCode)
}
