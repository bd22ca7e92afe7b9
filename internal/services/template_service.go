// Package services holds the application logic behind the HTTP API:
// template management, invitation publishing and editor sessions.
package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/makemykankotri/kankotri/pkg/cache"
	"github.com/makemykankotri/kankotri/pkg/catalog"
	"github.com/makemykankotri/kankotri/pkg/events"
	"github.com/makemykankotri/kankotri/pkg/models"
	"github.com/makemykankotri/kankotri/pkg/observability"
	"github.com/makemykankotri/kankotri/pkg/repository"
	"github.com/makemykankotri/kankotri/pkg/validation"
)

const (
	// DefaultTemplateCacheTTL applies when no TTL is configured
	DefaultTemplateCacheTTL = 5 * time.Minute

	maxSlugLength   = 80
	maxSlugAttempts = 5
)

var slugInvalidRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL slug from a template name
func Slugify(name string) string {
	slug := slugInvalidRe.ReplaceAllString(strings.ToLower(name), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	if slug == "" {
		slug = "template"
	}
	return slug
}

// TemplateService manages templates. Reads go through the cache, which is
// invalidated by the service's own bus events.
type TemplateService struct {
	repo      repository.TemplateRepository
	cache     cache.Cache
	cacheTTL  time.Duration
	bus       *events.Bus
	validator *validation.Validator
	logger    observability.Logger
	metrics   observability.MetricsClient
	subs      []events.Subscription
}

// NewTemplateService wires a TemplateService. A nil cache disables caching.
func NewTemplateService(
	repo repository.TemplateRepository,
	c cache.Cache,
	cacheTTL time.Duration,
	bus *events.Bus,
	validator *validation.Validator,
	logger observability.Logger,
	metrics observability.MetricsClient,
) *TemplateService {
	if c == nil {
		c = cache.NewNoOpCache()
	}
	if cacheTTL <= 0 {
		cacheTTL = DefaultTemplateCacheTTL
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	s := &TemplateService{
		repo:      repo,
		cache:     c,
		cacheTTL:  cacheTTL,
		bus:       bus,
		validator: validator,
		logger:    logger.WithPrefix("template-service"),
		metrics:   metrics,
	}
	for _, name := range []string{
		events.TemplateUpdated,
		events.TemplateDeleted,
		events.TemplatePublished,
		events.TemplateUnpublished,
	} {
		s.subs = append(s.subs, bus.On(name, s.invalidate))
	}
	return s
}

// Close detaches the cache invalidation handlers
func (s *TemplateService) Close() {
	for _, sub := range s.subs {
		s.bus.Off(sub)
	}
	s.subs = nil
}

func idKey(id uuid.UUID) string   { return "template:id:" + id.String() }
func slugKey(slug string) string { return "template:slug:" + slug }

func (s *TemplateService) invalidate(ctx context.Context, e events.Event) error {
	p, ok := e.Payload.(events.TemplatePayload)
	if !ok {
		return nil
	}
	keys := []string{"template:id:" + p.TemplateID}
	if p.Slug != "" {
		keys = append(keys, slugKey(p.Slug))
	}
	return s.cache.Delete(ctx, keys...)
}

// List returns templates matching filter
func (s *TemplateService) List(ctx context.Context, filter models.TemplateFilter) ([]*models.Template, error) {
	return s.repo.List(ctx, filter)
}

// ListPublished returns published templates matching filter
func (s *TemplateService) ListPublished(ctx context.Context, filter models.TemplateFilter) ([]*models.Template, error) {
	filter.PublishedOnly = true
	return s.repo.List(ctx, filter)
}

// Get returns a template by id, published or not
func (s *TemplateService) Get(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	var t models.Template
	if err := s.cache.Get(ctx, idKey(id), &t); err == nil {
		s.metrics.RecordCounter("template_cache_hits_total", 1, nil)
		return &t, nil
	}

	found, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.store(ctx, found)
	return found, nil
}

// Resolve looks a template up by id or slug
func (s *TemplateService) Resolve(ctx context.Context, idOrSlug string) (*models.Template, error) {
	if id, err := uuid.Parse(idOrSlug); err == nil {
		return s.Get(ctx, id)
	}

	var cachedID string
	if err := s.cache.Get(ctx, slugKey(idOrSlug), &cachedID); err == nil {
		if id, err := uuid.Parse(cachedID); err == nil {
			if t, err := s.Get(ctx, id); err == nil && t.Slug == idOrSlug {
				return t, nil
			}
		}
		// renamed or deleted since it was cached
		_ = s.cache.Delete(ctx, slugKey(idOrSlug))
	}

	t, err := s.repo.GetBySlug(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	s.store(ctx, t)
	return t, nil
}

// GetPublished resolves a template visible to the public
func (s *TemplateService) GetPublished(ctx context.Context, idOrSlug string) (*models.Template, error) {
	t, err := s.Resolve(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	if !t.IsPublished {
		return nil, errors.Wrapf(repository.ErrNotFound, "template %q: %v", idOrSlug, ErrNotPublished)
	}
	return t, nil
}

// View returns a published template and counts the view
func (s *TemplateService) View(ctx context.Context, idOrSlug string) (*models.Template, error) {
	t, err := s.GetPublished(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}

	views, err := s.repo.IncrementViews(ctx, t.ID)
	if err != nil {
		// the page still renders when the counter fails
		s.logger.Warn("Failed to count template view", map[string]interface{}{
			"template_id": t.ID.String(),
			"error":       err.Error(),
		})
	} else {
		t.ViewCount = views
	}
	s.emit(ctx, events.TemplateViewed, t)
	return t, nil
}

// Use counts one invitation created from the template
func (s *TemplateService) Use(ctx context.Context, t *models.Template) (int64, error) {
	uses, err := s.repo.IncrementUses(ctx, t.ID)
	if err != nil {
		return 0, err
	}
	s.emit(ctx, events.TemplateUsed, t)
	return uses, nil
}

// Create validates input and stores a new unpublished template. Without an
// explicit slug one is derived from the name, numbered when taken.
func (s *TemplateService) Create(ctx context.Context, input models.TemplateInput, createdBy string) (*models.Template, error) {
	if err := s.validate(input); err != nil {
		return nil, err
	}

	t := &models.Template{
		CreatedBy: createdBy,
	}
	applyInput(t, input)

	explicit := input.Slug != ""
	base := input.Slug
	if !explicit {
		base = Slugify(input.Name)
	}

	var err error
	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		t.ID = uuid.Nil
		t.Slug = numberedSlug(base, attempt)
		err = s.repo.Create(ctx, t)
		if err == nil || explicit || !errors.Is(err, repository.ErrDuplicateSlug) {
			break
		}
	}
	if err != nil && !explicit && errors.Is(err, repository.ErrDuplicateSlug) {
		t.ID = uuid.Nil
		t.Slug = numberedSlug(base, 0)
		err = s.repo.Create(ctx, t)
	}
	if err != nil {
		return nil, err
	}

	s.emit(ctx, events.TemplateCreated, t)
	return t, nil
}

// numberedSlug appends -n for n > 1 and a random suffix for n == 0
func numberedSlug(base string, n int) string {
	switch {
	case n == 0:
		return trimSlug(base, 9) + "-" + uuid.NewString()[:8]
	case n > 1:
		suffix := fmt.Sprintf("-%d", n)
		return trimSlug(base, len(suffix)) + suffix
	}
	return base
}

func trimSlug(base string, reserve int) string {
	if len(base)+reserve > maxSlugLength {
		return strings.TrimRight(base[:maxSlugLength-reserve], "-")
	}
	return base
}

// Update replaces the content of a template. An empty slug keeps the current one.
func (s *TemplateService) Update(ctx context.Context, id uuid.UUID, input models.TemplateInput) (*models.Template, error) {
	if err := s.validate(input); err != nil {
		return nil, err
	}

	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previousSlug := t.Slug

	applyInput(t, input)
	if input.Slug == "" {
		t.Slug = previousSlug
	}
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	s.emitSlug(ctx, events.TemplateUpdated, t, previousSlug)
	return t, nil
}

// Save stores a template edited in place, re-deriving its editable fields
func (s *TemplateService) Save(ctx context.Context, t *models.Template) error {
	t.EnsureElementIDs()
	t.EditableFields = models.DeriveEditableFields(t.Elements)
	if err := s.repo.Update(ctx, t); err != nil {
		return err
	}
	s.emit(ctx, events.TemplateUpdated, t)
	return nil
}

// Delete removes a template and its invitations
func (s *TemplateService) Delete(ctx context.Context, id uuid.UUID) error {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.emit(ctx, events.TemplateDeleted, t)
	return nil
}

// Publish makes a template visible to the public
func (s *TemplateService) Publish(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	return s.setPublished(ctx, id, true)
}

// Unpublish hides a template from the public
func (s *TemplateService) Unpublish(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	return s.setPublished(ctx, id, false)
}

func (s *TemplateService) setPublished(ctx context.Context, id uuid.UUID, published bool) (*models.Template, error) {
	t, err := s.repo.SetPublished(ctx, id, published)
	if err != nil {
		return nil, err
	}
	name := events.TemplateUnpublished
	if published {
		name = events.TemplatePublished
	}
	s.emit(ctx, name, t)
	return t, nil
}

// Import stores catalog entries, skipping slugs that already exist
func (s *TemplateService) Import(ctx context.Context, entries []catalog.Entry, createdBy string) (created int, err error) {
	for _, entry := range entries {
		input := entry.Template
		if input.Slug != "" {
			if _, err := s.repo.GetBySlug(ctx, input.Slug); err == nil {
				s.logger.Info("Skipping existing template", map[string]interface{}{"slug": input.Slug})
				continue
			} else if !errors.Is(err, repository.ErrNotFound) {
				return created, err
			}
		}

		t, err := s.Create(ctx, input, createdBy)
		if err != nil {
			return created, errors.Wrapf(err, "failed to import template %q", input.Name)
		}
		if entry.Publish {
			if _, err := s.Publish(ctx, t.ID); err != nil {
				return created, err
			}
		}
		created++
	}
	return created, nil
}

func (s *TemplateService) validate(input models.TemplateInput) error {
	if s.validator == nil {
		return nil
	}
	// ids are optional on input but required once encoded
	probe := &models.Template{Elements: input.Elements.Clone()}
	probe.EnsureElementIDs()
	input.Elements = probe.Elements
	return s.validator.ValidateValue(validation.Template, input)
}

func applyInput(t *models.Template, input models.TemplateInput) {
	t.Name = strings.TrimSpace(input.Name)
	t.Slug = input.Slug
	t.Description = input.Description
	t.Category = input.Category
	t.ThumbnailURL = input.ThumbnailURL
	t.Elements = input.Elements.Clone()
	if t.Elements == nil {
		t.Elements = models.ElementList{}
	}
	if input.Layout != nil {
		t.Layout = *input.Layout
	} else if t.Layout.Width == 0 {
		t.Layout = models.DefaultLayout()
	}
	t.EnsureElementIDs()
	t.EditableFields = models.DeriveEditableFields(t.Elements)
}

func (s *TemplateService) store(ctx context.Context, t *models.Template) {
	if err := s.cache.Set(ctx, idKey(t.ID), t, s.cacheTTL); err != nil {
		s.logger.Debug("Failed to cache template", map[string]interface{}{"id": t.ID.String(), "error": err.Error()})
		return
	}
	_ = s.cache.Set(ctx, slugKey(t.Slug), t.ID.String(), s.cacheTTL)
}

func (s *TemplateService) emit(ctx context.Context, name string, t *models.Template) {
	s.bus.Emit(ctx, name, events.TemplatePayload{
		TemplateID: t.ID.String(),
		Slug:       t.Slug,
		Category:   t.Category,
	})
}

// emitSlug also clears the cached lookup of a slug the template no longer uses
func (s *TemplateService) emitSlug(ctx context.Context, name string, t *models.Template, previousSlug string) {
	if previousSlug != "" && previousSlug != t.Slug {
		_ = s.cache.Delete(ctx, slugKey(previousSlug))
	}
	s.emit(ctx, name, t)
}
