package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/zappabad/bargetrader/internal/api"
	"github.com/zappabad/bargetrader/internal/config"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the game server",
		Long: `Run the HTTP/JSON game server with its websocket event stream.
Example: bargetrader serve --addr :8080 --db-driver sqlite3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, nil)
		},
	}

	cmd.Flags().StringVar(&cfg.ListenAddr, "addr", cfg.ListenAddr, "Listen address")
	cmd.Flags().StringVar(&cfg.AuthToken, "token", cfg.AuthToken, "Bearer token required by the API (optional)")
	return cmd
}

// runServe serves until ctx is done. When ready is non-nil it receives the
// bound address once the listener is up.
func runServe(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	g, closeGame, err := openGame(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeGame()

	srv := api.NewServer(api.Config{AuthToken: cfg.AuthToken}, g)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go srv.Run(runCtx)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}
	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()

	addr := ln.Addr().String()
	log.Info().Str("addr", addr).Bool("auth", cfg.AuthToken != "").Msg("listening")
	if ready != nil {
		ready <- addr
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
