package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/makemykankotri/kankotri/pkg/models"
	"github.com/makemykankotri/kankotri/pkg/observability"
)

const invitationColumns = `id, template_id, data, share_code, view_count, created_at`

// InvitationRepository defines the storage operations for invitations
type InvitationRepository interface {
	Create(ctx context.Context, inv *models.Invitation) error
	Get(ctx context.Context, id uuid.UUID) (*models.Invitation, error)
	GetByShareCode(ctx context.Context, code string) (*models.Invitation, error)
	IncrementViews(ctx context.Context, id uuid.UUID) (int64, error)
	ListByTemplate(ctx context.Context, templateID uuid.UUID, limit, offset int) ([]*models.Invitation, error)
}

type invitationRepository struct {
	db     *sqlx.DB
	logger observability.Logger
	observer
}

// NewInvitationRepository creates a new invitation repository
func NewInvitationRepository(db *sqlx.DB, logger observability.Logger, metrics observability.MetricsClient) InvitationRepository {
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &invitationRepository{
		db:       db,
		logger:   logger,
		observer: observer{metrics: metrics},
	}
}

// Create inserts inv, assigning its ID and creation time
func (r *invitationRepository) Create(ctx context.Context, inv *models.Invitation) (err error) {
	ctx, span := observability.StartSpan(ctx, "repository.invitation.Create", map[string]string{"template_id": inv.TemplateID.String()})
	defer span.End()
	defer r.track("invitation_create", &err)()

	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.Data == nil {
		inv.Data = models.JSONMap{}
	}
	inv.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO invitations (id, template_id, data, share_code, view_count, created_at)
		VALUES (:id, :template_id, :data, :share_code, :view_count, :created_at)`

	if _, err = r.db.NamedExecContext(ctx, query, inv); err != nil {
		return mapError(err, "failed to create invitation")
	}

	r.logger.Info("Created invitation", map[string]interface{}{
		"id":          inv.ID.String(),
		"template_id": inv.TemplateID.String(),
	})
	return nil
}

// Get retrieves an invitation by ID
func (r *invitationRepository) Get(ctx context.Context, id uuid.UUID) (_ *models.Invitation, err error) {
	defer r.track("invitation_get", &err)()
	return r.getOne(ctx, "id = $1", id)
}

// GetByShareCode retrieves an invitation by its share code
func (r *invitationRepository) GetByShareCode(ctx context.Context, code string) (_ *models.Invitation, err error) {
	defer r.track("invitation_get_by_code", &err)()
	return r.getOne(ctx, "share_code = $1", code)
}

func (r *invitationRepository) getOne(ctx context.Context, cond string, arg interface{}) (*models.Invitation, error) {
	var inv models.Invitation
	if err := r.db.GetContext(ctx, &inv, "SELECT "+invitationColumns+" FROM invitations WHERE "+cond, arg); err != nil {
		return nil, mapError(err, "failed to get invitation")
	}
	return &inv, nil
}

// IncrementViews bumps the view counter through increment_invitation_views
func (r *invitationRepository) IncrementViews(ctx context.Context, id uuid.UUID) (_ int64, err error) {
	defer r.track("invitation_increment_views", &err)()
	return callCounter(ctx, r.db, "increment_invitation_views", id)
}

// ListByTemplate returns the invitations created from a template, newest first
func (r *invitationRepository) ListByTemplate(ctx context.Context, templateID uuid.UUID, limit, offset int) (_ []*models.Invitation, err error) {
	defer r.track("invitation_list", &err)()

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	invitations := []*models.Invitation{}
	query := "SELECT " + invitationColumns + " FROM invitations WHERE template_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3"
	if err = r.db.SelectContext(ctx, &invitations, query, templateID, limit, offset); err != nil {
		return nil, errors.Wrap(err, "failed to list invitations")
	}
	return invitations, nil
}
