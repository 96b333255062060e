// Command musicbot runs the conversational music production bot.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/orhanxakarsu/music-agent/internal/config"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cli carries what every subcommand needs once flags are parsed.
type cli struct {
	configPath string
	cfg        *config.Config
	logger     zerolog.Logger
}

func rootCmd() *cobra.Command {
	c := &cli{}
	cmd := &cobra.Command{
		Use:           "musicbot",
		Short:         "Conversational music production bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.configPath != "" {
				if err := os.Setenv("CONFIG_FILE", c.configPath); err != nil {
					return err
				}
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			c.cfg = cfg
			c.logger = newLogger(cfg.LogLevel)
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "YAML config file (overrides CONFIG_FILE)")

	cmd.AddCommand(
		serveCmd(c),
		migrateCmd(c),
		stateCmd(c),
		resetCmd(c),
	)
	return cmd
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}

func serveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and background jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), c.cfg, c.logger)
		},
	}
}

func migrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := migrate(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
			return nil
		},
	}
}

func stateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "state <identity>",
		Short: "Print the stored checkpoint of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer closeStore()
			cp, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cp == nil {
				return fmt.Errorf("no conversation for %s", args[0])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cp)
		},
	}
}

func resetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <identity>",
		Short: "Delete the stored conversation of an identity",
		Long: `Delete the stored conversation of an identity.

This works on the store directly. Stop the server first when it uses the bolt
store, or call POST /reset/{identity} on the running server instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer closeStore()
			existed, err := store.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if existed {
				fmt.Fprintf(cmd.OutOrStdout(), "conversation %s reset\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "no conversation for %s\n", args[0])
			}
			return nil
		},
	}
}
