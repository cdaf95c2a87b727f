package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/phrazzld/fesoni/internal/api"
	"github.com/phrazzld/fesoni/internal/config"
	"github.com/phrazzld/fesoni/internal/orchestrator"
	"github.com/phrazzld/fesoni/internal/platform/logger"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var monitorInterval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts.configPath, monitorInterval, cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&monitorInterval, "monitor-interval", orchestrator.DefaultMonitorInterval,
		"period of the background health check")
	return cmd
}

// loadConfig reads the configuration. When watch is set and a config file is
// given, later edits to the file change the log level without a restart.
func loadConfig(path string, watch bool) (*config.Config, error) {
	if !watch || path == "" {
		return config.Load(path)
	}
	return config.Watch(path, func(cfg *config.Config, err error) {
		if err != nil {
			slog.Error("ignoring invalid config reload", "error", err)
			return
		}
		if err := logger.SetLevel(cfg.Server.LogLevel); err != nil {
			slog.Error("failed to apply reloaded log level", "error", err)
			return
		}
		slog.Info("config reloaded", "log_level", cfg.Server.LogLevel)
	})
}

func runServe(ctx context.Context, configPath string, monitorInterval time.Duration, logOut io.Writer) error {
	cfg, err := loadConfig(configPath, true)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.SetupWithWriter(cfg.Server, logOut)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	log.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"llm_provider", cfg.LLM.Provider)

	app, err := newApplication(ctx, cfg, log, nil, nil)
	if err != nil {
		return err
	}
	defer app.cleanup()

	if err := app.orchestrator.Initialize(ctx); err != nil {
		log.Warn("starting in fallback mode", "error", err)
	}
	go app.orchestrator.MonitorHealth(ctx, monitorInterval)

	handler := api.NewHandler(app.queue, app.channel, app.orchestrator, app.router, log)
	return app.startHTTPServer(ctx, handler.Routes())
}

// startHTTPServer serves router until ctx is canceled or the listener fails,
// then shuts the server down gracefully.
func (app *application) startHTTPServer(ctx context.Context, router http.Handler) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverCtx, cancelServer := context.WithCancel(ctx)
	defer cancelServer()

	serveErr := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", "port", app.config.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("server failed", "error", err)
			serveErr <- err
			cancelServer()
		}
	}()

	<-serverCtx.Done()
	app.logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("server shutdown failed", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	default:
	}

	app.logger.Info("server shutdown completed")
	return nil
}
