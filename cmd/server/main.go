// Command server runs the matchmaking and lobby coordinator.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/duskforge/lobby/internal/broadcaster"
	"github.com/duskforge/lobby/internal/cache"
	"github.com/duskforge/lobby/internal/codemint"
	"github.com/duskforge/lobby/internal/config"
	"github.com/duskforge/lobby/internal/connectionhub"
	"github.com/duskforge/lobby/internal/database"
	"github.com/duskforge/lobby/internal/eventsink"
	"github.com/duskforge/lobby/internal/handlers"
	"github.com/duskforge/lobby/internal/matchmaking"
	"github.com/duskforge/lobby/internal/metrics"
	"github.com/duskforge/lobby/internal/persistence"
	"github.com/duskforge/lobby/internal/playerdirectory"
	"github.com/duskforge/lobby/internal/registry"
)

func main() {
	cfg := &config.Config{}

	cmd := &cobra.Command{
		Use:           "lobby-server",
		Short:         "Real-time matchmaking and lobby coordinator for 1v1 game sessions.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
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

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	sinks := []eventsink.Sink{eventsink.NewLogrusSink(logger), metrics.NewSink(m)}

	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		sinks = append(sinks, eventsink.NewRedisSink(rdb, cfg.EventQueueName, logger))
		logger.WithField("addr", cfg.RedisAddr).Info("redis event sink enabled")
	}
	sink := eventsink.Multi(sinks...)

	var dir playerdirectory.Directory = playerdirectory.NewStatic(nil)
	var store persistence.Store
	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		dir = playerdirectory.NewPostgres(pool)
		store = persistence.NewPostgres(pool)
		logger.Info("postgres persistence enabled")
	}

	b := broadcaster.New(logger)
	mint := codemint.New(cfg.CodeLength)
	reg := registry.New(registry.Config{
		MaxPlayers:           cfg.MaxPlayers,
		CountdownSeconds:     cfg.CountdownSeconds,
		PostGameGraceSeconds: cfg.PostGameGraceSeconds,
	}, mint, b, sink, dir, store, logger)
	queue := matchmaking.New(reg, sink, cfg.QueueETASeconds)
	reg.SetLeaveQueueHook(queue.LeaveQueue)
	hub := connectionhub.New(reg, logger, m.WSConnections)

	srv := handlers.NewServer(reg, queue, hub, logger)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Router(cfg.AllowedOrigins, m),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(color.GreenString("lobby coordinator listening on "), color.CyanString(cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
