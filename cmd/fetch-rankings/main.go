package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fc-rank-search/internal/common/clock"
	"github.com/fc-rank-search/internal/config"
	"github.com/fc-rank-search/internal/domain"
	"github.com/fc-rank-search/internal/fightcade"
	"github.com/fc-rank-search/internal/kafka"
	"github.com/fc-rank-search/internal/postgres"
	"github.com/fc-rank-search/internal/redis"
	"github.com/fc-rank-search/internal/refresh"
	"github.com/fc-rank-search/internal/snapshot"
)

var (
	cfgFile    string
	enqueue    bool
	maxPlayers int
	pause      time.Duration

	rootCmd = &cobra.Command{
		Use:   "fetch-rankings [gameId|all] [gameName]",
		Short: "Fetch Fightcade rankings into local snapshots",
		Long: `fetch-rankings pages through the Fightcade ranking list of a game and stores it
as a snapshot the server can search. "all" fetches every popular game in turn.
With no arguments the popular games are listed.`,
		Args:         cobra.MaximumNArgs(2),
		SilenceUsage: true,
		RunE:         run,
	}
)

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "Config file path")
	rootCmd.Flags().BoolVar(&enqueue, "enqueue", false, "Publish refresh requests to Kafka instead of fetching in process")
	rootCmd.Flags().IntVar(&maxPlayers, "max-players", 0, "Cap on players fetched per game (0 uses the configured cap)")
	rootCmd.Flags().DurationVar(&pause, "pause", 2*time.Second, "Pause between games when fetching all")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig(logger *slog.Logger) *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		return config.DefaultConfig()
	}
	return cfg
}

func run(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		printGames(out)
		return nil
	}

	targets := targetsFor(args)

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := loadConfig(logger)
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Logging.SlogLevel()}))

	if enqueue {
		producer, err := kafka.NewProducer(&cfg.Kafka, logger)
		if err != nil {
			return fmt.Errorf("connecting to kafka: %w", err)
		}
		defer producer.Close()
		return enqueueGames(out, producer, targets, maxPlayers)
	}

	store, err := snapshot.NewStore(&cfg.Snapshot, &clock.DefaultClock{}, logger)
	if err != nil {
		return fmt.Errorf("creating snapshot store: %w", err)
	}

	var opts []refresh.Option
	if cfg.Redis.Enabled {
		index, err := redis.NewRankingIndex(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("redis unavailable, skipping ranking index", "error", err)
		} else {
			defer index.Close()
			opts = append(opts, refresh.WithIndexer(index))
		}
	}
	if cfg.Postgres.Enabled {
		repo, err := postgres.NewHistoryRepository(&cfg.Postgres, logger)
		if err != nil {
			logger.Warn("postgres unavailable, skipping fetch history", "error", err)
		} else {
			defer repo.Close()
			if err := repo.RunMigrations(cmd.Context()); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			opts = append(opts, refresh.WithHistory(repo))
		}
	}

	refresher := refresh.New(fightcade.NewClient(&cfg.Upstream, logger), store, &clock.DefaultClock{}, logger, opts...)

	if len(targets) == 1 {
		result, err := refresher.Refresh(cmd.Context(), domain.RefreshRequest{
			GameID:      targets[0].ID,
			GameName:    targets[0].Name,
			MaxPlayers:  maxPlayers,
			RequestedBy: "cli",
		})
		if err != nil {
			return fmt.Errorf("fetching %s: %w", targets[0].ID, err)
		}
		printResult(out, result, store)
		return nil
	}

	fetchAll(cmd.Context(), out, refresher, targets, maxPlayers, pause)
	return nil
}
