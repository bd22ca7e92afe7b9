package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/makemykankotri/kankotri/internal/plugins"
	"github.com/makemykankotri/kankotri/pkg/events"
	"github.com/makemykankotri/kankotri/pkg/feature"
	"github.com/makemykankotri/kankotri/pkg/models"
	"github.com/makemykankotri/kankotri/pkg/observability"
	"github.com/makemykankotri/kankotri/pkg/plugin"
	"github.com/makemykankotri/kankotri/pkg/render"
	"github.com/makemykankotri/kankotri/pkg/repository"
	"github.com/makemykankotri/kankotri/pkg/validation"
)

const (
	shareCodeLength   = 10
	maxShareCodeTries = 5
)

// Submission is a filled-in form keyed by field key
type Submission struct {
	Template string                 `json:"template"`
	Values   map[string]interface{} `json:"values"`
}

// Published is the outcome of publishing an invitation
type Published struct {
	Invitation *models.Invitation  `json:"invitation"`
	URL        string              `json:"url"`
	ShareLinks []plugins.ShareLink `json:"shareLinks,omitempty"`
}

// InvitationService validates, stores and renders invitations
type InvitationService struct {
	templates *TemplateService
	repo      repository.InvitationRepository
	renderer  *render.HTMLRenderer
	sanitizer *render.Sanitizer
	validator *validation.Validator
	flags     *feature.Flags
	registry  *plugin.Registry
	bus       *events.Bus
	publicURL string
	logger    observability.Logger
	metrics   observability.MetricsClient

	newShareCode func() string
}

// InvitationDeps groups the collaborators of an InvitationService
type InvitationDeps struct {
	Templates *TemplateService
	Repo      repository.InvitationRepository
	Renderer  *render.HTMLRenderer
	Sanitizer *render.Sanitizer
	Validator *validation.Validator
	Flags     *feature.Flags
	Registry  *plugin.Registry
	Bus       *events.Bus
	PublicURL string
	Logger    observability.Logger
	Metrics   observability.MetricsClient
}

// NewInvitationService creates an InvitationService
func NewInvitationService(deps InvitationDeps) *InvitationService {
	if deps.Logger == nil {
		deps.Logger = observability.NewNoopLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewNoopMetricsClient()
	}
	if deps.Sanitizer == nil {
		deps.Sanitizer = render.NewSanitizer()
	}
	return &InvitationService{
		templates:    deps.Templates,
		repo:         deps.Repo,
		renderer:     deps.Renderer,
		sanitizer:    deps.Sanitizer,
		validator:    deps.Validator,
		flags:        deps.Flags,
		registry:     deps.Registry,
		bus:          deps.Bus,
		publicURL:    deps.PublicURL,
		logger:       deps.Logger.WithPrefix("invitation-service"),
		metrics:      deps.Metrics,
		newShareCode: randomShareCode,
	}
}

func randomShareCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:shareCodeLength]
}

// Form returns the input form of a published template
func (s *InvitationService) Form(ctx context.Context, idOrSlug string) (*render.Form, error) {
	t, err := s.templates.GetPublished(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	return render.BuildForm(t), nil
}

// Preview renders a published template with partial answers. Required
// fields are not enforced.
func (s *InvitationService) Preview(ctx context.Context, idOrSlug string, values map[string]interface{}) (string, error) {
	if err := s.checkSubmission(Submission{Template: idOrSlug, Values: values}); err != nil {
		return "", err
	}
	t, err := s.templates.GetPublished(ctx, idOrSlug)
	if err != nil {
		return "", err
	}

	data, err := s.prepare(values)
	if err != nil {
		return "", err
	}
	return s.render(t, data)
}

// Publish validates a submission against the template form and stores it
// under a fresh share code
func (s *InvitationService) Publish(ctx context.Context, sub Submission) (*Published, error) {
	if err := s.checkSubmission(sub); err != nil {
		return nil, err
	}
	t, err := s.templates.GetPublished(ctx, sub.Template)
	if err != nil {
		return nil, err
	}

	if err := render.ValidateSubmission(render.BuildForm(t), sub.Values); err != nil {
		return nil, err
	}
	data, err := s.prepare(sub.Values)
	if err != nil {
		return nil, err
	}

	inv := &models.Invitation{TemplateID: t.ID, Data: data}
	if err := s.create(ctx, inv); err != nil {
		return nil, err
	}

	if _, err := s.templates.Use(ctx, t); err != nil {
		s.logger.Warn("Failed to count template use", map[string]interface{}{
			"template_id": t.ID.String(),
			"error":       err.Error(),
		})
	}
	s.bus.Emit(ctx, events.InvitationPublished, events.InvitationPayload{
		InvitationID: inv.ID.String(),
		TemplateID:   t.ID.String(),
		ShareCode:    inv.ShareCode,
	})

	out := &Published{
		Invitation: inv,
		URL:        plugins.InvitationURL(s.publicURL, inv.ShareCode),
	}
	out.ShareLinks = s.ShareLinks(out.URL, t.Name)
	return out, nil
}

// create inserts inv, drawing a new share code on collision
func (s *InvitationService) create(ctx context.Context, inv *models.Invitation) error {
	for attempt := 0; attempt < maxShareCodeTries; attempt++ {
		inv.ID = uuid.Nil
		inv.ShareCode = s.newShareCode()
		err := s.repo.Create(ctx, inv)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicateShareCode) {
			return err
		}
		s.metrics.RecordCounter("share_code_collisions_total", 1, nil)
	}
	return ErrShareCodeExhaust
}

// Get finds an invitation by id or share code
func (s *InvitationService) Get(ctx context.Context, idOrCode string) (*models.Invitation, error) {
	if id, err := uuid.Parse(idOrCode); err == nil {
		return s.repo.Get(ctx, id)
	}
	return s.repo.GetByShareCode(ctx, idOrCode)
}

// ListByTemplate pages through the invitations made from a template
func (s *InvitationService) ListByTemplate(ctx context.Context, templateID uuid.UUID, limit, offset int) ([]*models.Invitation, error) {
	return s.repo.ListByTemplate(ctx, templateID, limit, offset)
}

// View renders a published invitation page and counts the view. The page
// stays available if its template is later unpublished.
func (s *InvitationService) View(ctx context.Context, idOrCode string) (string, error) {
	inv, err := s.Get(ctx, idOrCode)
	if err != nil {
		return "", err
	}
	t, err := s.templates.Get(ctx, inv.TemplateID)
	if err != nil {
		return "", err
	}

	page, err := s.render(t, map[string]interface{}(inv.Data))
	if err != nil {
		return "", err
	}

	if _, err := s.repo.IncrementViews(ctx, inv.ID); err != nil {
		s.logger.Warn("Failed to count invitation view", map[string]interface{}{
			"invitation_id": inv.ID.String(),
			"error":         err.Error(),
		})
	}
	s.bus.Emit(ctx, events.InvitationViewed, events.InvitationPayload{
		InvitationID: inv.ID.String(),
		TemplateID:   inv.TemplateID.String(),
		ShareCode:    inv.ShareCode,
	})
	return page, nil
}

// ShareLinks returns the social links for a page, or nil while the
// social-share plugin is not installed
func (s *InvitationService) ShareLinks(pageURL, message string) []plugins.ShareLink {
	if s.registry == nil || !s.registry.IsInstalled(plugins.SocialShareName) {
		return nil
	}
	return plugins.ShareLinks(pageURL, message)
}

func (s *InvitationService) checkSubmission(sub Submission) error {
	if sub.Values == nil {
		sub.Values = map[string]interface{}{}
	}
	if s.validator == nil {
		return nil
	}
	return s.validator.ValidateValue(validation.Submission, sub)
}

// prepare sanitizes a copy of the answers and expands dotted keys
func (s *InvitationService) prepare(values map[string]interface{}) (models.JSONMap, error) {
	clean := make(map[string]interface{}, len(values))
	for k, v := range values {
		clean[k] = v
	}
	s.sanitizer.Values(clean)

	data, err := render.ExpandFormData(clean)
	if err != nil {
		return nil, &InputError{Field: "values", Message: err.Error()}
	}
	return data, nil
}

func (s *InvitationService) render(t *models.Template, data interface{}) (string, error) {
	opts := render.Options{Title: t.Name, Description: t.Description}
	if s.flags != nil {
		opts.RichText = s.flags.IsEnabled(feature.RichText)
	}
	return s.renderer.Render(t, data, opts)
}
