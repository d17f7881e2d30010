package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	"github.com/ahmetk3436/ppmchat/internal/config"
	"github.com/ahmetk3436/ppmchat/internal/handlers"
	"github.com/ahmetk3436/ppmchat/internal/logger"
	"github.com/ahmetk3436/ppmchat/internal/middleware"
	"github.com/ahmetk3436/ppmchat/internal/routes"
	"github.com/ahmetk3436/ppmchat/internal/telemetry"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "ppmchat",
		Short:         "Conversational proxy for a PPM backend",
		Version:       handlers.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return serve(config.Load())
		},
	}

	var sessionID string
	askCmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one message through the assistant and print the JSON response",
		Long: `Send one message through the full pipeline (intents, planning, execution,
suggestions) against the configured PPM backend, then exit.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return ask(config.Load(), sessionID, strings.Join(args, " "))
		},
	}
	askCmd.Flags().StringVarP(&sessionID, "session", "s", "cli", "conversation session id")

	rootCmd.AddCommand(serveCmd, askCmd)

	// Bare invocation keeps the container entrypoint working.
	rootCmd.RunE = serveCmd.RunE

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func serve(cfg *config.Config) error {
	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Starting ppmchat", "version", handlers.Version)

	shutdownTracing, err := telemetry.Setup(cfg.OTelStdout)
	if err != nil {
		return err
	}

	// ─── Components ─────────────────────────────────────────────────────
	core, err := build(cfg)
	if err != nil {
		return err
	}
	core.start()

	// ─── Handlers ───────────────────────────────────────────────────────
	chatHandler := handlers.NewChatHandler(core.bot)
	sessionHandler := handlers.NewSessionHandler(core.store, core.roles)
	objectHandler := handlers.NewObjectHandler(core.schemas, core.catalog)
	auditHandler := handlers.NewAuditHandler(core.recorder)
	systemHandler := handlers.NewSystemHandler(core.db, core.monitor, core.store)

	// ─── Fiber App ──────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      "ppmchat v" + handlers.Version,
		ServerHeader: "ppmchat",
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: middleware.ErrorHandler,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(recover.New(recover.Config{
		EnableStackTrace: false,
	}))
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())

	// ─── Routes ─────────────────────────────────────────────────────────
	routes.Setup(app, cfg, core.roles, chatHandler, sessionHandler, objectHandler, auditHandler, systemHandler)

	// ─── Graceful Shutdown ──────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("Shutting down ppmchat...")

		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			slog.Error("Fiber shutdown error", "error", err)
		}
	}()

	// ─── Start ──────────────────────────────────────────────────────────
	listenAddr := ":" + cfg.Port
	slog.Info("ppmchat listening", "addr", listenAddr, "ppm", cfg.PPMAPIURL, "read_only", cfg.ReadOnly)

	listenErr := app.Listen(listenAddr)

	core.stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(ctx); err != nil {
		slog.Warn("Tracer shutdown error", "error", err)
	}

	if listenErr != nil {
		return fmt.Errorf("server error: %w", listenErr)
	}
	return nil
}

func ask(cfg *config.Config, sessionID, message string) error {
	// Logs go to stderr so stdout carries only the response.
	cfg.LogLevel = "warn"
	logger.SetupWriter(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	core, err := build(cfg)
	if err != nil {
		return err
	}
	defer core.stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PPMTimeout+cfg.ReasoningTimeout)
	defer cancel()

	resp := core.bot.HandleMessage(ctx, message, sessionID)
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	fmt.Println(string(out))
	if !resp.Success {
		return fmt.Errorf("assistant could not answer")
	}
	return nil
}
