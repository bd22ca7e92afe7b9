// Command kankotrictl runs maintenance tasks against a kankotri deployment:
// schema migrations, catalog seeding and offline rendering.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/makemykankotri/kankotri/pkg/config"
	"github.com/makemykankotri/kankotri/pkg/observability"

	// Import PostgreSQL driver
	_ "github.com/lib/pq"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:           "kankotrictl",
		Short:         "Maintenance commands for the kankotri server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			_ = godotenv.Load()
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	logger := func() observability.Logger {
		level := observability.LogLevelWarn
		if verbose {
			level = observability.LogLevelDebug
		}
		return observability.NewStandardLogger("kankotrictl", level)
	}

	cmd.AddCommand(
		newMigrateCmd(logger),
		newSeedCmd(logger),
		newRenderCmd(logger),
	)
	return cmd
}

// loadConfig reads the same configuration the server does
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}
