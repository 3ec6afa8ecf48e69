package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	router "github.com/dkeye/watchparty/internal/adapters/http"
	"github.com/dkeye/watchparty/internal/app"
	"github.com/dkeye/watchparty/internal/config"
	"github.com/dkeye/watchparty/internal/core"
	"github.com/dkeye/watchparty/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "watchparty",
		Short:         "Real-time relay for shared video sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := run(cmd.Context(), configPath)
			if err != nil {
				log.Error().Err(err).Msg("server stopped")
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default config/config.$CONFIG_ENV.yaml)")
	return cmd
}

func run(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogger(cfg)

	st, err := store.Open(ctx, store.Options{
		Driver:        cfg.Store.Driver,
		DSN:           cfg.Store.DSN,
		RedisAddr:     cfg.Store.RedisAddr,
		RedisPassword: cfg.Store.RedisPassword,
		RedisDB:       cfg.Store.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("close store")
		}
	}()

	reg := core.NewRegistry()
	relayRouter := &app.Router{
		Peers:          reg,
		Chats:          st,
		Policy:         app.SimplePolicy{KickSlow: cfg.Relay.KickSlowPeers},
		PersistTimeout: cfg.Relay.PersistTimeout,
	}
	if cfg.Relay.ChatRateLimit > 0 {
		relayRouter.Limiter = app.NewRateLimiter[app.ChatKey](cfg.Relay.ChatRateLimit, cfg.Relay.ChatRateInterval)
	}
	relay := app.NewServer(reg, relayRouter)

	r := router.SetupRouter(ctx, cfg, relay, st)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("watchparty relay started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := relay.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("relay did not drain")
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}

func setupLogger(cfg *config.Config) {
	if cfg.Mode != "debug" {
		// JSON lines outside of local development.
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
