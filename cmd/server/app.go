package main

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/ahmetk3436/ppmchat/internal/assistant"
	"github.com/ahmetk3436/ppmchat/internal/audit"
	"github.com/ahmetk3436/ppmchat/internal/capability"
	"github.com/ahmetk3436/ppmchat/internal/config"
	"github.com/ahmetk3436/ppmchat/internal/conversation"
	"github.com/ahmetk3436/ppmchat/internal/database"
	"github.com/ahmetk3436/ppmchat/internal/deeplink"
	"github.com/ahmetk3436/ppmchat/internal/executor"
	"github.com/ahmetk3436/ppmchat/internal/planner"
	"github.com/ahmetk3436/ppmchat/internal/ppm"
	"github.com/ahmetk3436/ppmchat/internal/reasoning"
	"github.com/ahmetk3436/ppmchat/internal/schema"
)

// components is the assembled assistant core shared by serve and ask.
type components struct {
	db       *gorm.DB
	recorder audit.Recorder
	schemas  *schema.Cache
	store    *conversation.Store
	sweeper  *conversation.Sweeper
	monitor  *capability.Monitor
	roles    *capability.Roles
	catalog  *capability.Catalog
	bot      *assistant.Assistant
	started  bool
}

func build(cfg *config.Config) (*components, error) {
	c := &components{}

	// ─── Audit trail ────────────────────────────────────────────────────
	if cfg.AuditEnabled {
		db, err := database.Connect(cfg)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(db); err != nil {
			database.Close(db)
			return nil, fmt.Errorf("database migration failed: %w", err)
		}
		c.db = db
		c.recorder = audit.NewDBRecorder(db)
	} else {
		slog.Info("Audit trail kept in memory", "reason", "AUDIT_ENABLED=false")
		c.recorder = audit.NewMemoryRecorder(0)
	}

	// ─── PPM backend ────────────────────────────────────────────────────
	api := ppm.NewClient(ppm.Options{
		BaseURL: cfg.PPMAPIURL,
		Auth: ppm.Auth{
			Type:     cfg.PPMAuthType,
			Token:    cfg.PPMAPIToken,
			Cookie:   cfg.PPMSessionCookie,
			Username: cfg.PPMUsername,
			Password: cfg.PPMPassword,
		},
		Timeout:      cfg.PPMTimeout,
		RetryCount:   cfg.PPMRetryCount,
		RetryBackoff: cfg.PPMRetryBackoff,
		RateLimit:    cfg.PPMRateLimit,
	})

	// ─── Core ───────────────────────────────────────────────────────────
	c.schemas = schema.NewCache(api, schema.DefaultTTL)
	c.store = conversation.NewStore(cfg.SessionTTL)
	c.sweeper = conversation.NewSweeper(c.store, cfg.SweepInterval)
	c.monitor = capability.NewMonitor(api, c.schemas, cfg.ReadOnly, cfg.CapabilityRefresh)
	c.roles = capability.NewRoles(c.monitor)
	c.catalog = capability.NewCatalog(c.monitor, c.roles)

	exec := executor.New(api, c.schemas, c.store, c.catalog, c.recorder, cfg.ReadOnly)
	gen := planner.NewGenerator(c.schemas, reasoning.New(cfg))
	links := deeplink.NewBuilder(cfg.PPMUIURL, c.schemas.IsCustom)
	c.bot = assistant.New(c.store, c.schemas, gen, exec, links)

	return c, nil
}

func (c *components) start() {
	c.sweeper.Start()
	c.monitor.Start()
	c.started = true
}

func (c *components) stop() {
	if c.started {
		c.monitor.Stop()
		c.sweeper.Stop()
	}
	if c.db != nil {
		database.Close(c.db)
	}
}
