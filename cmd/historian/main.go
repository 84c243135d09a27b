// Command historian drains the coordinator's Redis event queue into
// Postgres. Run it alongside the server when durable event history is
// wanted; the coordinator does not depend on it.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/duskforge/lobby/internal/cache"
	"github.com/duskforge/lobby/internal/config"
	"github.com/duskforge/lobby/internal/database"
	"github.com/duskforge/lobby/internal/historian"
)

func main() {
	cfg := &config.Config{}

	cmd := &cobra.Command{
		Use:           "lobby-historian",
		Short:         "Persists the lobby coordinator's event stream into Postgres.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfg)
		},
	}
	cfg.RegisterFlags(cmd.Flags(), viper.New())

	cobra.CheckErr(cmd.Execute())
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	if cfg.RedisAddr == "" {
		return errors.New("redis-addr is required (the historian reads the event queue)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("database-url is required (the historian writes event rows)")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := historian.New(rdb, pool, historian.Options{
		QueueName:     cfg.EventQueueName,
		BatchSize:     cfg.HistorianBatchSize,
		FlushInterval: time.Duration(cfg.HistorianFlushMS) * time.Millisecond,
	}, logger)

	svc.Run(ctx)
	return nil
}
