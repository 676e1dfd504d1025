package notification

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler lets users read and dismiss their notifications.
type Handler struct {
	inbox Inbox
}

// NewHandler constructs a notification handler.
func NewHandler(inbox Inbox) *Handler {
	return &Handler{inbox: inbox}
}

func owner(c *fiber.Ctx) (string, error) {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return "", fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	return uid, nil
}

// List returns the caller's notifications, newest first.
func (h *Handler) List(c *fiber.Ctx) error {
	uid, err := owner(c)
	if err != nil {
		return err
	}
	items, err := h.inbox.List(c.UserContext(), uid)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "notifications unavailable")
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"notifications": items, "count": len(items)})
}

// Delete removes one notification.
func (h *Handler) Delete(c *fiber.Ctx) error {
	uid, err := owner(c)
	if err != nil {
		return err
	}
	err = h.inbox.Delete(c.UserContext(), uid, c.Params("id"))
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case err != nil:
		return fiber.NewError(http.StatusInternalServerError, "notifications unavailable")
	}
	return c.SendStatus(http.StatusNoContent)
}

// Clear removes all of the caller's notifications.
func (h *Handler) Clear(c *fiber.Ctx) error {
	uid, err := owner(c)
	if err != nil {
		return err
	}
	if err := h.inbox.Clear(c.UserContext(), uid); err != nil {
		return fiber.NewError(http.StatusInternalServerError, "notifications unavailable")
	}
	return c.SendStatus(http.StatusNoContent)
}
