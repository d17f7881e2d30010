package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ahmetk3436/ppmchat/internal/capability"
	"github.com/ahmetk3436/ppmchat/internal/ppm"
	"github.com/ahmetk3436/ppmchat/internal/schema"
)

type ObjectHandler struct {
	schemas *schema.Cache
	catalog *capability.Catalog
}

func NewObjectHandler(schemas *schema.Cache, catalog *capability.Catalog) *ObjectHandler {
	return &ObjectHandler{schemas: schemas, catalog: catalog}
}

// ListObjects returns the discovered object types. ?refresh=true bypasses
// the discovery cache.
func (h *ObjectHandler) ListObjects(c *fiber.Ctx) error {
	h.schemas.DiscoverObjectTypes(c.UserContext(), c.QueryBool("refresh", false))
	types := h.schemas.ObjectTypes()

	custom := 0
	for _, t := range types {
		if t.IsCustom {
			custom++
		}
	}
	return c.JSON(fiber.Map{
		"objects": types,
		"total":   len(types),
		"custom":  custom,
	})
}

// GetSchema returns the cached schema of one object type plus the fields a
// distribution can group by.
func (h *ObjectHandler) GetSchema(c *fiber.Ctx) error {
	name := c.Params("name")
	entry, err := h.schemas.GetSchema(c.UserContext(), name)
	if err != nil {
		status := fiber.StatusBadGateway
		var rce *ppm.RemoteCallError
		if errors.As(err, &rce) && rce.Kind == ppm.KindNotFound {
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(fiber.Map{
			"error":   true,
			"message": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"schema":    entry,
		"groupable": schema.GroupableFields(entry),
	})
}

// ListTools returns the function definitions the caller is allowed to use.
func (h *ObjectHandler) ListTools(c *fiber.Ctx) error {
	sessionID, _ := c.Locals("session_id").(string)
	if sessionID == "" {
		sessionID = c.Query("session_id")
	}
	tools := h.catalog.ToolDefinitions(sessionID)
	return c.JSON(fiber.Map{
		"tools": tools,
		"total": len(tools),
		"help":  h.catalog.HelpText(sessionID),
	})
}
