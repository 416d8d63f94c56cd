// Command onboardd serves the therapist onboarding API and carries the operator
// commands that run against its database.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/platform/config"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/platform/logger"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cli carries what every subcommand shares once PersistentPreRunE has run.
type cli struct {
	cfg    config.Server
	logger *slog.Logger
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	cmd := &cobra.Command{
		Use:           "onboardd",
		Short:         "Therapist onboarding service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger = logger.WithCommand(logger.New(logger.Config{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
			}), cmd.Name())
			slog.SetDefault(c.logger)
			return nil
		},
	}

	cmd.AddCommand(
		newServeCommand(c),
		newMigrateCommand(c),
		newGrantRoleCommand(c),
	)
	return cmd
}
