package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/makemykankotri/kankotri/internal/services"
	"github.com/makemykankotri/kankotri/pkg/events"
	"github.com/makemykankotri/kankotri/pkg/observability"
	"github.com/makemykankotri/kankotri/pkg/render"
	"github.com/makemykankotri/kankotri/pkg/repository"
	"github.com/makemykankotri/kankotri/pkg/validation"
)

type renderOptions struct {
	catalog  string
	template string
	data     string
	output   string
}

// newRenderCmd renders a catalog template to HTML without a database, which
// is how catalog authors check their designs
func newRenderCmd(logger func() observability.Logger) *cobra.Command {
	opts := &renderOptions{}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a catalog template with form answers to HTML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			out := cmd.OutOrStdout()
			if opts.output != "" && opts.output != "-" {
				f, err := os.Create(opts.output)
				if err != nil {
					return errors.Wrap(err, "failed to create output file")
				}
				defer f.Close()
				out = f
			}
			return runRender(ctx, opts, cmd.InOrStdin(), out, logger())
		},
	}
	cmd.Flags().StringVarP(&opts.catalog, "catalog", "c", "", "catalog YAML file (defaults to the built-in catalog)")
	cmd.Flags().StringVarP(&opts.template, "template", "t", "", "slug of the template to render (defaults to the first one)")
	cmd.Flags().StringVarP(&opts.data, "data", "d", "", "JSON file with form answers, - for stdin")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write HTML here instead of stdout")
	return cmd
}

func runRender(ctx context.Context, opts *renderOptions, stdin io.Reader, out io.Writer, logger observability.Logger) error {
	validator, err := validation.New()
	if err != nil {
		return err
	}
	entries, err := loadCatalog(opts.catalog, validator)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errors.New("catalog has no templates")
	}

	values, err := readAnswers(opts.data, stdin)
	if err != nil {
		return err
	}

	bus := events.NewBus(logger, nil)
	templates := services.NewTemplateService(repository.NewMemoryTemplateRepository(), nil, 0, bus, validator, logger, nil)
	defer templates.Close()

	// Drafts are published too so any entry can be previewed
	target := ""
	for _, entry := range entries {
		t, err := templates.Create(ctx, entry.Template, seedAuthor)
		if err != nil {
			return errors.Wrapf(err, "failed to load template %q", entry.Template.Name)
		}
		if _, err := templates.Publish(ctx, t.ID); err != nil {
			return err
		}
		if target == "" && (opts.template == "" || opts.template == t.Slug) {
			target = t.Slug
		}
	}
	if target == "" {
		return errors.Errorf("catalog has no template %q", opts.template)
	}

	sanitizer := render.NewSanitizer()
	renderer, err := render.NewHTMLRenderer(sanitizer)
	if err != nil {
		return err
	}
	invitations := services.NewInvitationService(services.InvitationDeps{
		Templates: templates,
		Repo:      repository.NewMemoryInvitationRepository(),
		Renderer:  renderer,
		Sanitizer: sanitizer,
		Validator: validator,
		Bus:       bus,
		Logger:    logger,
	})

	page, err := invitations.Preview(ctx, target, values)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, page)
	return err
}

func readAnswers(path string, stdin io.Reader) (map[string]interface{}, error) {
	if path == "" {
		return map[string]interface{}{}, nil
	}

	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open answers")
		}
		defer f.Close()
		r = f
	}

	values := map[string]interface{}{}
	if err := json.NewDecoder(r).Decode(&values); err != nil {
		return nil, errors.Wrap(err, "answers must be a JSON object")
	}
	return values, nil
}
