package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/makemykankotri/kankotri/pkg/database"
	"github.com/makemykankotri/kankotri/pkg/database/migration"
	"github.com/makemykankotri/kankotri/pkg/observability"
)

type migrateOptions struct {
	dir     string
	steps   int
	timeout time.Duration
}

func newMigrateCmd(logger func() observability.Logger) *cobra.Command {
	opts := &migrateOptions{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.PersistentFlags().StringVar(&opts.dir, "dir", "", "migrations directory (defaults to database.migrations_path)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", time.Minute, "give up after this long")

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), opts, logger(), func(ctx context.Context, m *migration.Manager) error {
				return m.Up(ctx)
			})
		},
	}
	up.Flags().IntVar(&opts.steps, "steps", 0, "number of migrations to apply (0 = all)")

	var downSteps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), opts, logger(), func(ctx context.Context, m *migration.Manager) error {
				return m.Down(ctx, downSteps)
			})
		},
	}
	down.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), opts, logger(), func(_ context.Context, m *migration.Manager) error {
				v, dirty, err := m.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d", v)
				if dirty {
					fmt.Fprint(cmd.OutOrStdout(), " (dirty)")
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}

	force := &cobra.Command{
		Use:   "force VERSION",
		Short: "Record VERSION as applied without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return errors.Errorf("invalid version %q", args[0])
			}
			return withMigrator(cmd.Context(), opts, logger(), func(_ context.Context, m *migration.Manager) error {
				return m.Force(v)
			})
		},
	}

	cmd.AddCommand(up, down, version, force)
	return cmd
}

func withMigrator(ctx context.Context, opts *migrateOptions, logger observability.Logger, fn func(context.Context, *migration.Manager) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.dir != "" {
		cfg.Database.MigrationsPath = opts.dir
	}

	db, err := database.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := migration.NewManager(db, migration.Config{
		MigrationsPath: cfg.Database.MigrationsPath,
		Timeout:        opts.timeout,
		Steps:          opts.steps,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = m.Close()
	}()

	return fn(ctx, m)
}
