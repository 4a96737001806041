package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/zappabad/bargetrader/internal/api"
	"github.com/zappabad/bargetrader/internal/client"
	"github.com/zappabad/bargetrader/internal/config"
	"github.com/zappabad/bargetrader/internal/logging"
	"github.com/zappabad/bargetrader/tui"
)

func newPlayCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a round in the terminal",
		Long: `Open the trading terminal. Without --server the game runs in this process
against the configured store.
Example: bargetrader play --name alice --server http://localhost:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			remote, _ := cmd.Flags().GetBool("remote")
			if cmd.Flags().Changed("server") {
				remote = true
			}
			return runPlay(cmd.Context(), cfg, name, remote)
		},
	}

	cmd.Flags().String("name", "", "Player name (prompted when empty)")
	cmd.Flags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Game server URL")
	cmd.Flags().Bool("remote", false, "Play against the server at --server")
	cmd.Flags().StringVar(&cfg.AuthToken, "token", cfg.AuthToken, "Bearer token for the server")
	return cmd
}

func runPlay(ctx context.Context, cfg *config.Config, name string, remote bool) error {
	// the terminal owns the screen, so logs go to a file
	logFile, err := os.OpenFile(filepath.Join(cfg.DataDir, "play.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	if err := logging.Setup(cfg.LogLevel, "json", logFile); err != nil {
		return err
	}

	if name == "" {
		if name, err = PromptForName(); err != nil {
			return err
		}
	}

	var backend client.Backend
	if remote {
		backend = client.New(client.Config{BaseURL: cfg.ServerURL, AuthToken: cfg.AuthToken})
	} else {
		g, closeGame, err := openGame(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeGame()
		backend = client.NewLocal(g)
	}

	player, err := backend.Join(ctx, name)
	if err != nil {
		return fmt.Errorf("join as %s: %w", name, err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var events <-chan api.EventJSON
	if events, err = backend.Events(streamCtx); err != nil {
		// polling still keeps the terminal current
		log.Warn().Err(err).Msg("event stream unavailable")
		events = nil
	}

	tcfg := tui.DefaultConfig()
	tcfg.NewsInterval = cfg.ReleaseInterval
	model := tui.NewModel(tcfg, backend, player, events)

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run terminal: %w", err)
	}
	return nil
}
