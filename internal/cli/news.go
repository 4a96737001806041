package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/zappabad/bargetrader/internal/client"
	"github.com/zappabad/bargetrader/internal/config"
	"github.com/zappabad/bargetrader/internal/game"
	"github.com/zappabad/bargetrader/internal/news"
	"github.com/zappabad/bargetrader/internal/news/importer"
)

func newNewsCmd(cfg *config.Config) *cobra.Command {
	newsCmd := &cobra.Command{
		Use:   "news",
		Short: "Manage the market news pool",
	}

	importCmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import messages from a CSV file",
		Long: `Import market news from a CSV file with the columns
content,impact_type,impact_value. The header row is optional.
Example: bargetrader news import messages.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			remote := cmd.Flags().Changed("server")
			return runNewsImport(cmd.Context(), cmd.OutOrStdout(), cfg, args[0], remote)
		},
	}
	importCmd.Flags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Import into a running server instead of the local store")
	importCmd.Flags().StringVar(&cfg.AuthToken, "token", cfg.AuthToken, "Bearer token for the server")
	newsCmd.AddCommand(importCmd)

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the built-in messages into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			return runNewsSeed(cmd.Context(), cmd.OutOrStdout(), cfg, force)
		},
	}
	seedCmd.Flags().Bool("force", false, "Seed even when the pool already has messages")
	newsCmd.AddCommand(seedCmd)

	newsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the message pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNewsList(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	})

	return newsCmd
}

func runNewsImport(ctx context.Context, out io.Writer, cfg *config.Config, path string, remote bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if remote {
		n, err := client.New(client.Config{BaseURL: cfg.ServerURL, AuthToken: cfg.AuthToken}).ImportCSV(ctx, f)
		if err != nil {
			return fmt.Errorf("import into %s: %w", cfg.ServerURL, err)
		}
		fmt.Fprintln(out, okStyle.Render(fmt.Sprintf("Imported %d message(s) into %s.", n, cfg.ServerURL)))
		return nil
	}

	msgs, err := importer.ReadCSV(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return importLocal(ctx, out, cfg, msgs)
}

func runNewsSeed(ctx context.Context, out io.Writer, cfg *config.Config, force bool) error {
	return withPool(ctx, cfg, func(g *game.Game) error {
		if n := g.Feed.Len(); n > 0 && !force {
			return fmt.Errorf("pool already has %d message(s), use --force to add the seed anyway", n)
		}
		msgs, err := g.ImportNews(ctx, importer.Seed())
		if err != nil {
			return err
		}
		fmt.Fprintln(out, okStyle.Render(fmt.Sprintf("Seeded %d message(s).", len(msgs))))
		return nil
	})
}

func runNewsList(ctx context.Context, out io.Writer, cfg *config.Config) error {
	return withPool(ctx, cfg, func(g *game.Game) error {
		msgs := g.Feed.Messages()
		if len(msgs) == 0 {
			fmt.Fprintln(out, mutedStyle.Render("The pool is empty. Run `bargetrader news seed` or `news import`."))
			return nil
		}
		fmt.Fprintln(out, renderMessages(msgs))
		return nil
	})
}

func importLocal(ctx context.Context, out io.Writer, cfg *config.Config, msgs []news.Message) error {
	return withPool(ctx, cfg, func(g *game.Game) error {
		imported, err := g.ImportNews(ctx, msgs)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, okStyle.Render(fmt.Sprintf("Imported %d message(s), pool now %d.", len(imported), g.Feed.Len())))
		return nil
	})
}

// withPool opens the local game without seeding so that the pool reflects
// only what the store holds.
func withPool(ctx context.Context, cfg *config.Config, fn func(g *game.Game) error) error {
	if cfg.DBDriver == config.DriverMemory {
		return fmt.Errorf("news commands need a persistent store, not %q", cfg.DBDriver)
	}
	local := *cfg
	local.SeedNews = false
	g, closeGame, err := openGame(ctx, &local)
	if err != nil {
		return err
	}
	defer closeGame()
	return fn(g)
}
