package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/susu3304/warikanbot/internal/api"
	"github.com/susu3304/warikanbot/internal/bot"
	"github.com/susu3304/warikanbot/internal/config"
	"github.com/susu3304/warikanbot/internal/db"
	"github.com/susu3304/warikanbot/internal/logging"
	"github.com/susu3304/warikanbot/internal/metrics"
	"github.com/susu3304/warikanbot/internal/warikan"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("warikanbot exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := warikan.NewService(store,
		warikan.WithLogger(logger.Named("warikan")),
		warikan.WithMetrics(recorder),
		warikan.WithDefaultBaseCurrency(cfg.BaseCurrency),
	)

	g, ctx := errgroup.WithContext(ctx)

	apiServer := api.New(cfg, svc, api.WithLogger(logger.Named("api")), api.WithMetrics(recorder))
	g.Go(func() error { return apiServer.Run(ctx) })

	if cfg.BotEnabled() {
		discordBot, err := bot.New(svc, bot.Options{
			Token:        cfg.DiscordToken,
			WebBaseURL:   cfg.WebUIBaseURL,
			ReminderTick: cfg.ReminderTick,
			Logger:       logger.Named("bot"),
			Metrics:      recorder,
		})
		if err != nil {
			return fmt.Errorf("create discord bot: %w", err)
		}
		g.Go(func() error { return discordBot.Run(ctx) })
	} else {
		logger.Info("DISCORD_TOKEN is not set; running the API only")
	}

	err = g.Wait()
	logger.Info("Shutting down...")
	return err
}

// openStore connects to Postgres when DATABASE_URL is set and falls back to
// the in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (warikan.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL is not set; data is kept in memory only")
		return warikan.NewMemoryStore(), func() {}, nil
	}

	if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("connected to database")
	return database, database.Close, nil
}
