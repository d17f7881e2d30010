package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ahmetk3436/ppmchat/internal/capability"
	"github.com/ahmetk3436/ppmchat/internal/conversation"
)

var startTime = time.Now()
var Version = "1.0.0"

type SystemHandler struct {
	db           *gorm.DB // nil when the audit trail is in memory
	capabilities capability.Provider
	store        *conversation.Store
}

func NewSystemHandler(db *gorm.DB, capabilities capability.Provider, store *conversation.Store) *SystemHandler {
	return &SystemHandler{db: db, capabilities: capabilities, store: store}
}

// Health reports the proxy's own state. An unreachable PPM backend degrades
// the answer but keeps status 200, since the assistant still replies.
func (h *SystemHandler) Health(c *fiber.Ctx) error {
	dbStatus := "memory"
	statusCode := fiber.StatusOK

	if h.db != nil {
		dbStatus = "ok"
		sqlDB, err := h.db.DB()
		if err != nil {
			dbStatus = "error: " + err.Error()
			statusCode = fiber.StatusServiceUnavailable
		} else if err := sqlDB.Ping(); err != nil {
			dbStatus = "unreachable: " + err.Error()
			statusCode = fiber.StatusServiceUnavailable
		}
	}

	flags := h.capabilities.Flags()
	backend := "ok"
	if !flags.Read {
		backend = "unreachable"
	}

	overall := "ok"
	if statusCode != fiber.StatusOK || !flags.Read {
		overall = "degraded"
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":   overall,
		"service":  "ppmchat",
		"version":  Version,
		"time":     time.Now().UTC().Format(time.RFC3339),
		"uptime":   time.Since(startTime).String(),
		"db":       dbStatus,
		"backend":  backend,
		"sessions": h.store.Len(),
		"capabilities": fiber.Map{
			"read":       flags.Read,
			"write":      flags.Write,
			"delete":     flags.Delete,
			"objects":    flags.AvailableObjects(),
			"custom":     flags.HasCustomObjects,
			"checked_at": flags.CheckedAt,
		},
	})
}
