package middleware

import (
	"context"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hbarwallet/hbarwallet/internal/identity"
)

func TestRequireAdmin(t *testing.T) {
	repo := identity.NewMemoryRepository()
	ids := identity.NewService(repo)
	ctx := context.Background()
	ops, err := ids.Register(ctx, identity.Registration{Email: "ops@example.com", Password: "correct horse"})
	require.NoError(t, err)
	user, err := ids.Register(ctx, identity.Registration{Email: "user@example.com", Password: "correct horse"})
	require.NoError(t, err)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if uid := c.Get("X-Test-User"); uid != "" {
			c.Locals("user_id", uid)
		}
		return c.Next()
	})
	app.Get("/admin", RequireAdmin(repo, []string{" OPS@example.com "}), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, status(t, app, http.MethodGet, "/admin", map[string]string{"X-Test-User": ops.ID}))
	assert.Equal(t, http.StatusForbidden, status(t, app, http.MethodGet, "/admin", map[string]string{"X-Test-User": user.ID}))
	assert.Equal(t, http.StatusForbidden, status(t, app, http.MethodGet, "/admin", map[string]string{"X-Test-User": "ghost"}))
	assert.Equal(t, http.StatusUnauthorized, status(t, app, http.MethodGet, "/admin", nil))
}
