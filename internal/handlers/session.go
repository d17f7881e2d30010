package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ahmetk3436/ppmchat/internal/capability"
	"github.com/ahmetk3436/ppmchat/internal/conversation"
)

type SessionHandler struct {
	store *conversation.Store
	roles *capability.Roles
}

func NewSessionHandler(store *conversation.Store, roles *capability.Roles) *SessionHandler {
	return &SessionHandler{store: store, roles: roles}
}

// owns reports whether the caller may touch session id. Without auth every
// caller may.
func owns(c *fiber.Ctx, id string) bool {
	owned, ok := c.Locals("session_id").(string)
	return !ok || owned == "" || owned == id
}

func forbidden(c *fiber.Ctx) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"error":   true,
		"message": "Session belongs to another user",
	})
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	id := c.Params("id")
	if !owns(c, id) {
		return forbidden(c)
	}

	st, ok := h.store.Get(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": "Session not found",
		})
	}
	return c.JSON(fiber.Map{
		"session": st,
		"summary": conversation.Summarize(&st),
	})
}

func (h *SessionHandler) DeleteSession(c *fiber.Ctx) error {
	id := c.Params("id")
	if !owns(c, id) {
		return forbidden(c)
	}

	if !h.store.Clear(id) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": "Session not found",
		})
	}
	if h.roles != nil {
		h.roles.Forget(id)
	}
	return c.JSON(fiber.Map{"message": "Session cleared"})
}

// UpdatePreferences merges the posted key/value pairs into the session's
// preferences. An empty value removes the key.
func (h *SessionHandler) UpdatePreferences(c *fiber.Ctx) error {
	id := c.Params("id")
	if !owns(c, id) {
		return forbidden(c)
	}

	var prefs map[string]string
	if err := c.BodyParser(&prefs); err != nil || len(prefs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Preferences must be a non-empty JSON object of strings",
		})
	}

	return c.JSON(fiber.Map{"preferences": h.store.MergePreferences(id, prefs)})
}
