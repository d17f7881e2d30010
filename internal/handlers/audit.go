package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/ahmetk3436/ppmchat/internal/audit"
)

type AuditHandler struct {
	recorder audit.Recorder
}

func NewAuditHandler(recorder audit.Recorder) *AuditHandler {
	return &AuditHandler{recorder: recorder}
}

// ListAuditLogs returns paginated mutation records, filterable by session,
// action and object type. A verified caller only sees their own session.
func (h *AuditHandler) ListAuditLogs(c *fiber.Ctx) error {
	q := audit.Query{
		SessionID:  c.Query("session_id"),
		Action:     c.Query("action"),
		ObjectType: c.Query("object_type"),
		Page:       c.QueryInt("page", 1),
		PerPage:    c.QueryInt("per_page", 50),
	}
	if owned, ok := c.Locals("session_id").(string); ok && owned != "" {
		q.SessionID = owned
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 || q.PerPage > 200 {
		q.PerPage = 50
	}

	logs, total, err := h.recorder.List(c.UserContext(), q)
	if err != nil {
		slog.Error("Audit list failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to list audit logs",
		})
	}

	return c.JSON(fiber.Map{
		"logs":     logs,
		"total":    total,
		"page":     q.Page,
		"per_page": q.PerPage,
	})
}
