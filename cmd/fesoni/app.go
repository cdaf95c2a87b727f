package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/fesoni/internal/catalog"
	"github.com/phrazzld/fesoni/internal/clock"
	"github.com/phrazzld/fesoni/internal/config"
	"github.com/phrazzld/fesoni/internal/document"
	"github.com/phrazzld/fesoni/internal/gateway"
	"github.com/phrazzld/fesoni/internal/notify"
	"github.com/phrazzld/fesoni/internal/orchestrator"
	"github.com/phrazzld/fesoni/internal/platform/gemini"
	"github.com/phrazzld/fesoni/internal/platform/lavinmq"
	"github.com/phrazzld/fesoni/internal/stylist"
	"github.com/phrazzld/fesoni/internal/task"
)

// application holds the shared dependencies of every command so that they
// are built in one place and released together.
type application struct {
	config *config.Config
	logger *slog.Logger
	clock  clock.Clock

	channel      *notify.Channel
	queue        *task.Queue
	router       *gateway.Router
	orchestrator *orchestrator.Orchestrator
}

// newApplication wires the notification channel, task queue, gateway router,
// the remote collaborators and the orchestrator from cfg. client is shared by
// the gateway transport and the bus publisher.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	clk clock.Clock,
	client *http.Client,
) (*application, error) {
	if clk == nil {
		clk = clock.Real{}
	}
	if client == nil {
		client = &http.Client{}
	}

	var bus notify.Bus = notify.NopBus{}
	if cfg.Notify.BusURL != "" {
		publisher, err := lavinmq.NewPublisher(lavinmq.Config{
			URL:           cfg.Notify.BusURL,
			Username:      cfg.Notify.Username,
			Password:      cfg.Notify.Password,
			VHost:         cfg.Notify.VHost,
			HealthTimeout: cfg.Notify.PublishTimeout,
		}, client, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize notification bus: %w", err)
		}
		bus = publisher
		logger.Info("notification bus configured", "vhost", cfg.Notify.VHost)
	} else {
		logger.Info("no notification bus configured, notifications stay local")
	}

	channel := notify.New(bus, clk, logger, notify.Config{
		RecentLimit:    cfg.Notify.RecentLimit,
		RecentTTL:      cfg.Notify.RecentTTL,
		PublishTimeout: cfg.Notify.PublishTimeout,
	})

	queue := task.NewQueue(task.Config{
		MaxAttempts:  cfg.Queue.MaxAttempts,
		RetryBackoff: cfg.Queue.RetryBackoff,
		PurgeDelay:   cfg.Queue.PurgeDelay,
		WorkTimeout:  cfg.Queue.WorkTimeout,
	}, clk, channel, logger)

	router, err := gateway.NewRouter(cfg.Gateway, gateway.NewHTTPTransport(client), clk, logger)
	if err != nil {
		queue.Close()
		return nil, fmt.Errorf("failed to initialize gateway router: %w", err)
	}

	stylistOpts := []stylist.Option{stylist.WithDescribeStagger(cfg.LLM.DescribeStagger)}
	if cfg.LLM.Provider == "gemini" {
		analyzer, err := gemini.NewAnalyzer(ctx, cfg.LLM, router, logger)
		if err != nil {
			queue.Close()
			return nil, fmt.Errorf("failed to initialize gemini analyzer: %w", err)
		}
		stylistOpts = append(stylistOpts, stylist.WithModel(analyzer))
		logger.Info("using gemini for aesthetic analysis", "model", cfg.LLM.GeminiModel)
	}
	stylistClient := stylist.New(router, cfg.LLM.ChatModel, queue, channel, clk, logger, stylistOpts...)

	orch := orchestrator.New(orchestrator.Deps{
		Stylist:   stylistClient,
		Expander:  stylistClient.Profiles(),
		Catalog:   catalog.New(router, queue, channel, logger),
		Documents: document.New(router, queue, channel, clk, logger),
		Gateway:   router,
		Tasks:     queue,
		Notifier:  channel,
		Clock:     clk,
		Logger:    logger,
	})

	return &application{
		config:       cfg,
		logger:       logger,
		clock:        clk,
		channel:      channel,
		queue:        queue,
		router:       router,
		orchestrator: orch,
	}, nil
}

// cleanup stops the queue and waits for in-flight notification publishes.
func (app *application) cleanup() {
	app.queue.Close()
	app.channel.Wait()
	app.logger.Debug("application resources released")
}
