package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"spanner/internal/analytics"
	"spanner/internal/bot"
	"spanner/internal/config"
	"spanner/internal/httpapi"
	"spanner/internal/modules/audit"
	"spanner/internal/storage"

	"go.uber.org/zap"
)

const (
	shutdownTimeout    = 10 * time.Second
	auditRetentionDays = 30
)

type RunCommand struct {
	Meta
}

func (c *RunCommand) Synopsis() string {
	return "Starts the bot"
}

func (c *RunCommand) Help() string {
	return `Usage: spanner run

  Starts the bot. Configuration is read from config.json, config.yaml or
  ~/.config/spanner-v2/config.json, then from the environment.`
}

func (c *RunCommand) Run(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		c.Ui.Error("Error: " + err.Error())
		return 1
	}

	logger, err := config.BuildLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		c.Ui.Error("Error: " + err.Error())
		return 1
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("storage init failed", zap.Error(err))
		return 1
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		logger.Error("migrations failed", zap.Error(err))
		return 1
	}
	if err := store.CleanupAuditLogs(context.Background(), auditRetentionDays); err != nil {
		logger.Warn("audit log cleanup failed", zap.Error(err))
	}

	auditEmitter := audit.New(store, nil, logger)
	analyticsService := analytics.New(store, logger)

	botSvc, err := bot.New(cfg, logger, store, auditEmitter, analyticsService)
	if err != nil {
		logger.Error("bot init failed", zap.Error(err))
		return 1
	}
	if err := botSvc.Start(); err != nil {
		logger.Error("bot start failed", zap.Error(err))
		return 1
	}
	logger.Info("bot started", zap.String("version", c.Version), zap.Bool("debug", cfg.Debug))

	var server *httpapi.Server
	if cfg.HTTP.Enabled {
		server = httpapi.New(httpapi.Options{Addr: cfg.HTTP.Addr, AdminToken: cfg.AdminToken}, store, analyticsService, logger)
		go func() {
			if err := server.ListenAndServe(); err != nil {
				logger.Error("admin api stopped", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if server != nil {
		_ = server.Shutdown(shutdownCtx)
	}
	botSvc.Close(shutdownCtx)
	return 0
}
