package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahmetk3436/ppmchat/internal/capability"
	"github.com/ahmetk3436/ppmchat/internal/config"
	"github.com/ahmetk3436/ppmchat/internal/handlers"
	"github.com/ahmetk3436/ppmchat/internal/middleware"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	roles *capability.Roles,
	chatHandler *handlers.ChatHandler,
	sessionHandler *handlers.SessionHandler,
	objectHandler *handlers.ObjectHandler,
	auditHandler *handlers.AuditHandler,
	systemHandler *handlers.SystemHandler,
) {
	// ─── Public ──────────────────────────────────────────────────────────
	app.Get("/api/health", systemHandler.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// ─── Protected routes ────────────────────────────────────────────────
	api := app.Group("/api", middleware.JWTProtected(cfg.JWTSecret, roles))

	// Chat
	api.Post("/chat", chatHandler.Chat)
	api.Use("/chat/ws", chatHandler.UpgradeCheck())
	api.Get("/chat/ws", chatHandler.Stream())

	// Sessions
	api.Get("/sessions/:id", sessionHandler.GetSession)
	api.Delete("/sessions/:id", sessionHandler.DeleteSession)
	api.Put("/sessions/:id/preferences", sessionHandler.UpdatePreferences)

	// Object model
	api.Get("/objects", objectHandler.ListObjects)
	api.Get("/objects/:name/schema", objectHandler.GetSchema)
	api.Get("/tools", objectHandler.ListTools)

	// Audit
	api.Get("/audit", auditHandler.ListAuditLogs)
}
