package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/makemykankotri/kankotri/internal/services"
	"github.com/makemykankotri/kankotri/pkg/catalog"
	"github.com/makemykankotri/kankotri/pkg/database"
	"github.com/makemykankotri/kankotri/pkg/events"
	"github.com/makemykankotri/kankotri/pkg/observability"
	"github.com/makemykankotri/kankotri/pkg/repository"
	"github.com/makemykankotri/kankotri/pkg/validation"
)

const seedAuthor = "kankotrictl"

func newSeedCmd(logger func() observability.Logger) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import a template catalog into the database",
		Long: "Import a YAML template catalog. Templates whose slug already exists are skipped, " +
			"so seeding twice is harmless. Without --file the built-in catalog is used.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			log := logger()

			validator, err := validation.New()
			if err != nil {
				return err
			}
			entries, err := loadCatalog(file, validator)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.Connect(ctx, cfg.Database, log)
			if err != nil {
				return err
			}
			defer db.Close()

			templates := services.NewTemplateService(
				repository.NewTemplateRepository(db, log, nil),
				nil, 0, events.NewBus(log, nil), validator, log, nil,
			)
			defer templates.Close()

			created, err := templates.Import(ctx, entries, seedAuthor)
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d templates\n", created, len(entries))
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog YAML file")
	return cmd
}

// loadCatalog reads path, or the built-in catalog when path is empty
func loadCatalog(path string, v *validation.Validator) ([]catalog.Entry, error) {
	if path == "" {
		return catalog.Default(v)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open catalog")
	}
	defer f.Close()
	return catalog.Load(f, v)
}
