package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/meishihq/meishi/internal/config"
	"github.com/meishihq/meishi/internal/handlers"
	"github.com/meishihq/meishi/internal/healthcheck"
	"github.com/meishihq/meishi/internal/logger"
	"github.com/meishihq/meishi/internal/pipeline"
	"github.com/meishihq/meishi/internal/platform"
	"github.com/meishihq/meishi/internal/platform/line"
	"github.com/meishihq/meishi/internal/platform/telegram"
	"github.com/meishihq/meishi/internal/pool"
	"github.com/meishihq/meishi/internal/server"
	"github.com/meishihq/meishi/internal/store/notion"
	"github.com/meishihq/meishi/internal/vision"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideTelegramClient,
			provideTelegramFetcher,
			provideLineClient,
			provideVisionClient,
			provideNotionClient,
			provideRegistry,
			providePool,
			provideOrchestrator,
			provideDispatcher,
			provideAggregator,
			provideWebhookHandler,
			providePingHandler,
			provideStatusHandler,
			provideServer,
		),
		fx.Invoke(
			startDispatcher,
			startServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideTelegramClient(log *slog.Logger, cfg config.Config) *telegram.Client {
	return telegram.NewClient(log, cfg.Telegram.BotToken)
}

func provideTelegramFetcher(client *telegram.Client, cfg config.Config) *telegram.Fetcher {
	return telegram.NewFetcher(client, secs(cfg.Pipeline.FetchTimeoutSecs))
}

func provideLineClient(log *slog.Logger, cfg config.Config) *line.Client {
	return line.NewClient(log, cfg.Line.AccessToken, cfg.Line.APIBaseURL, cfg.Line.DataBaseURL, secs(cfg.Pipeline.FetchTimeoutSecs))
}

func provideVisionClient(log *slog.Logger, cfg config.Config) *vision.Client {
	return vision.NewClient(log, cfg.Gemini.APIKey, cfg.Gemini.FallbackAPIKey, cfg.Gemini.Model, cfg.Gemini.BaseURL, secs(cfg.Gemini.TimeoutSeconds))
}

func provideNotionClient(log *slog.Logger, cfg config.Config) *notion.Client {
	return notion.NewClient(log, cfg.Notion.APIKey, cfg.Notion.DatabaseID, cfg.Notion.BaseURL, secs(cfg.Notion.TimeoutSeconds))
}

func provideRegistry(log *slog.Logger, cfg config.Config) *platform.Registry {
	registry := platform.NewRegistry()
	registry.MustRegister(telegram.NewAdapter(log))
	registry.MustRegister(line.NewAdapter(log, cfg.Line.ChannelSecret))
	return registry
}

func providePool(cfg config.Config) *pool.Pool {
	return pool.New(pool.Config{
		FetchSlots:   cfg.Pool.FetchSlots,
		ExtractSlots: cfg.Pool.ExtractSlots,
		StoreSlots:   cfg.Pool.StoreSlots,
		AcquireWait:  secs(cfg.Pool.AcquireWaitSeconds),
	})
}

func provideOrchestrator(log *slog.Logger, cfg config.Config, tgClient *telegram.Client, tgFetcher *telegram.Fetcher, lineClient *line.Client, visionClient *vision.Client, notionClient *notion.Client, p *pool.Pool) *pipeline.Orchestrator {
	collab := pipeline.Collaborators{
		Fetchers: map[platform.Type]platform.Fetcher{
			telegram.Type: tgFetcher,
			line.Type:     lineClient,
		},
		Notifiers: map[platform.Type]platform.Notifier{
			telegram.Type: tgClient,
			line.Type:     lineClient,
		},
		Extractor: visionClient,
		Store:     notionClient,
	}
	return pipeline.NewOrchestrator(log, collab, p, pipeline.Timeouts{
		RunDeadline: secs(cfg.Pipeline.RunDeadlineSeconds),
		Fetch:       secs(cfg.Pipeline.FetchTimeoutSecs),
		Notify:      secs(cfg.Pipeline.NotifyTimeoutSecs),
	})
}

func provideDispatcher(log *slog.Logger, cfg config.Config, orchestrator *pipeline.Orchestrator) *pipeline.Dispatcher {
	return pipeline.NewDispatcher(log, orchestrator, pipeline.DispatcherConfig{
		Workers:     cfg.Pipeline.Workers,
		QueueSize:   cfg.Pipeline.QueueSize,
		DedupWindow: secs(cfg.Pipeline.DedupWindowSeconds),
	})
}

func provideAggregator(log *slog.Logger, cfg config.Config, tgClient *telegram.Client, lineClient *line.Client, visionClient *vision.Client, notionClient *notion.Client) *healthcheck.Aggregator {
	return healthcheck.NewAggregator(log, 10*time.Second,
		healthcheck.NewCredentialsChecker(&cfg),
		healthcheck.NewProbeChecker("telegram", tgClient),
		healthcheck.NewProbeChecker("line", lineClient),
		healthcheck.NewProbeChecker("gemini", visionClient),
		healthcheck.NewProbeChecker("notion", notionClient),
	)
}

func provideWebhookHandler(log *slog.Logger, registry *platform.Registry, dispatcher *pipeline.Dispatcher) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, registry, dispatcher)
}

func providePingHandler(log *slog.Logger, registry *platform.Registry) *handlers.PingHandler {
	types := registry.Types()
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, t.String())
	}
	return handlers.NewPingHandler(log, names)
}

func provideStatusHandler(log *slog.Logger, aggregator *healthcheck.Aggregator) *handlers.StatusHandler {
	return handlers.NewStatusHandler(log, aggregator)
}

func provideServer(log *slog.Logger, cfg config.Config, webhookHandler *handlers.WebhookHandler, pingHandler *handlers.PingHandler, statusHandler *handlers.StatusHandler) *server.Server {
	return server.NewServer(log, cfg.Server.Addr, webhookHandler, pingHandler, statusHandler)
}

func startDispatcher(lc fx.Lifecycle, dispatcher *pipeline.Dispatcher) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			dispatcher.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return dispatcher.Shutdown(ctx)
		},
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("server starting", slog.String("addr", cfg.Server.Addr))
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}
