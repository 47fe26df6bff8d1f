package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fc-rank-search/internal/common/clock"
	"github.com/fc-rank-search/internal/config"
	"github.com/fc-rank-search/internal/fightcade"
	"github.com/fc-rank-search/internal/handler"
	"github.com/fc-rank-search/internal/kafka"
	"github.com/fc-rank-search/internal/playercache"
	"github.com/fc-rank-search/internal/postgres"
	"github.com/fc-rank-search/internal/redis"
	"github.com/fc-rank-search/internal/refresh"
	"github.com/fc-rank-search/internal/resolver"
	"github.com/fc-rank-search/internal/scene"
	"github.com/fc-rank-search/internal/service"
	"github.com/fc-rank-search/internal/snapshot"
	"github.com/fc-rank-search/internal/websocket"
	"github.com/fc-rank-search/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Logging.SlogLevel()}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := &clock.DefaultClock{}

	store, err := snapshot.NewStore(&cfg.Snapshot, clk, logger)
	if err != nil {
		return fmt.Errorf("creating snapshot store: %w", err)
	}

	cache, err := playercache.New(&cfg.Cache, clk, logger)
	if err != nil {
		return fmt.Errorf("creating player cache: %w", err)
	}
	if err := cache.Restore(); err != nil {
		logger.Warn("starting with an empty player cache", "error", err)
	}

	scenes, err := scene.NewRegistry(&cfg.Scenes, clk, logger)
	if err != nil {
		return fmt.Errorf("creating scene registry: %w", err)
	}

	upstream := fightcade.NewClient(&cfg.Upstream, logger)
	res := resolver.New(&cfg.Resolver, store, upstream, cache, scenes, logger)

	wsHub := websocket.NewHub(logger)
	go wsHub.Run()

	checks := map[string]handler.ReadyCheck{}
	refreshOpts := []refresh.Option{refresh.WithNotifier(wsHub)}

	// Redis ranking index, optional
	var index service.RankingIndex
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		rankingIndex, err := redis.NewRankingIndex(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("failed to connect to Redis, continuing without ranking index", "error", err)
		} else {
			defer rankingIndex.Close()
			index = rankingIndex
			checks["redis"] = rankingIndex.Ping
			refreshOpts = append(refreshOpts, refresh.WithIndexer(rankingIndex))

			if _, err := worker.NewIndexSync(store, rankingIndex, logger).SyncAllFromDisk(ctx); err != nil {
				logger.Warn("failed to sync ranking index on startup", "error", err)
			}
		}
	}

	// PostgreSQL refresh history, optional
	var history service.HistoryReader
	if cfg.Postgres.Enabled {
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		repo, err := postgres.NewHistoryRepository(&cfg.Postgres, logger)
		if err != nil {
			logger.Warn("failed to connect to PostgreSQL, continuing without history", "error", err)
		} else {
			defer repo.Close()
			if err := repo.RunMigrations(ctx); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			history = repo
			checks["postgres"] = repo.Ping
			refreshOpts = append(refreshOpts, refresh.WithHistory(repo))
		}
	}

	refresher := refresh.New(upstream, store, clk, logger, refreshOpts...)
	games := service.NewGameService(store, index, history, &cfg.Leaderboard, logger)

	// Kafka refresh queue, optional
	var queue handler.RefreshQueue
	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka refresh queue", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
		producer, err := kafka.NewProducer(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka producer, refreshing in process", "error", err)
		} else {
			defer producer.Close()
			queue = producer
		}

		consumer, err = kafka.NewConsumer(&cfg.Kafka, refresher, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
			consumer = nil
		} else if err := consumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			consumer = nil
		}
	}

	cacheWorker := worker.NewCacheWorker(cache, cfg.Cache.SaveInterval, logger)
	if err := cacheWorker.Start(ctx); err != nil {
		return fmt.Errorf("starting cache worker: %w", err)
	}

	httpHandler := handler.NewHandler(handler.Dependencies{
		Games:     games,
		Resolver:  res,
		Scenes:    scenes,
		Cache:     cache,
		Refresher: refresher,
		Queue:     queue,
		Hub:       wsHub,
		Checks:    checks,
	}, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port, "cache_entries", cache.Len())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("HTTP server error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	wsHub.Stop()

	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// saves the player cache one last time
	if err := cacheWorker.Stop(); err != nil {
		logger.Error("failed to stop cache worker", "error", err)
	}

	logger.Info("server stopped")
	return nil
}
