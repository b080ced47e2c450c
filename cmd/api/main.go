package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"snakes-server/internal/config"
	"snakes-server/internal/server"
)

const shutdownTimeout = 30 * time.Second

func gracefulShutdown(log zerolog.Logger, gameServer *server.Server, httpServer *http.Server, done chan<- struct{}) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log.Info().Msg("shutdown signal received, press Ctrl+C again to force")
	stop()

	// Enough time to snapshot every room and say goodbye to every client.
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := gameServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("error during game server shutdown")
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http server forced to shutdown")
	}

	close(done)
}

func run(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	log := config.NewLogger(cfg)

	ctx := cmd.Context()
	store, err := server.OpenStorage(ctx, cfg)
	if err != nil {
		return err
	}

	gameServer := server.NewServer(cfg, log, server.WithStorage(store))
	if err := gameServer.Start(ctx); err != nil {
		_ = store.Close()
		return err
	}
	httpServer := gameServer.HTTPServer()

	done := make(chan struct{})
	go gracefulShutdown(log, gameServer, httpServer, done)

	log.Info().
		Str("addr", httpServer.Addr).
		Str("storage", cfg.StorageType).
		Dur("rejoin_grace", cfg.RejoinGrace).
		Msg("server listening")

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-done
	log.Info().Msg("graceful shutdown complete")
	return nil
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snakes-server",
		Short: "Multiplayer snakes and ladders game server",
		Long: `snakes-server hosts snakes and ladders rooms for 2 to 4 players over a
websocket protocol. Settings come from flags, the environment and an optional
.env file, in that order of precedence.`,
		RunE:         run,
		SilenceUsage: true,
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
