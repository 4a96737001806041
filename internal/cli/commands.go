// Package cli is the bargetrader command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zappabad/bargetrader/internal/config"
	"github.com/zappabad/bargetrader/internal/logging"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg := config.DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "bargetrader",
		Short: "Barge freight trading game",
		Long: `bargetrader runs a barge freight trading game: players quote a bid and an
offer against AI counterparties while market news moves their valuations.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				cfg.LogLevel = "debug"
			}
			if err := logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr); err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("failed to create directories: %w", err)
			}
			return nil
		},
	}

	rootCmd.AddCommand(newServeCmd(cfg))
	rootCmd.AddCommand(newPlayCmd(cfg))
	rootCmd.AddCommand(newNewsCmd(cfg))
	rootCmd.AddCommand(newConfigCmd(cfg))
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, "Storage driver: memory, sqlite3 or mysql")
	rootCmd.PersistentFlags().StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database file")

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bargetrader %s\n", Version)
		},
	}
}

func newConfigCmd(cfg *config.Config) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), renderConfig(cfg))
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), errorStyle.Render("Configuration is invalid:"))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Configuration is valid."))
			return nil
		},
	})

	return configCmd
}
