package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/makemykankotri/kankotri/pkg/models"
	"github.com/makemykankotri/kankotri/pkg/observability"
)

// Listing bounds
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

const templateColumns = `id, name, slug, description, category, thumbnail_url, elements, layout,
	editable_fields, is_published, published_at, view_count, use_count, created_by, created_at, updated_at`

// TemplateRepository defines the storage operations for templates
type TemplateRepository interface {
	List(ctx context.Context, filter models.TemplateFilter) ([]*models.Template, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Template, error)
	GetBySlug(ctx context.Context, slug string) (*models.Template, error)
	Create(ctx context.Context, t *models.Template) error
	Update(ctx context.Context, t *models.Template) error
	Delete(ctx context.Context, id uuid.UUID) error
	SetPublished(ctx context.Context, id uuid.UUID, published bool) (*models.Template, error)
	IncrementViews(ctx context.Context, id uuid.UUID) (int64, error)
	IncrementUses(ctx context.Context, id uuid.UUID) (int64, error)
}

// templateRepository implements TemplateRepository
type templateRepository struct {
	db     *sqlx.DB
	logger observability.Logger
	observer
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *sqlx.DB, logger observability.Logger, metrics observability.MetricsClient) TemplateRepository {
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &templateRepository{
		db:       db,
		logger:   logger,
		observer: observer{metrics: metrics},
	}
}

// List returns templates matching filter, newest first
func (r *templateRepository) List(ctx context.Context, filter models.TemplateFilter) (_ []*models.Template, err error) {
	ctx, span := observability.StartSpan(ctx, "repository.template.List", nil)
	defer span.End()
	defer r.track("template_list", &err)()

	var (
		where []string
		args  []interface{}
	)
	if filter.PublishedOnly {
		where = append(where, "is_published = TRUE")
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := "SELECT " + templateColumns + " FROM templates"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	templates := []*models.Template{}
	if err = r.db.SelectContext(ctx, &templates, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list templates")
	}
	return templates, nil
}

// Get retrieves a template by ID
func (r *templateRepository) Get(ctx context.Context, id uuid.UUID) (_ *models.Template, err error) {
	defer r.track("template_get", &err)()
	return r.getOne(ctx, "id = $1", id)
}

// GetBySlug retrieves a template by slug
func (r *templateRepository) GetBySlug(ctx context.Context, slug string) (_ *models.Template, err error) {
	defer r.track("template_get_by_slug", &err)()
	return r.getOne(ctx, "slug = $1", slug)
}

func (r *templateRepository) getOne(ctx context.Context, cond string, arg interface{}) (*models.Template, error) {
	var t models.Template
	query := "SELECT " + templateColumns + " FROM templates WHERE " + cond
	if err := r.db.GetContext(ctx, &t, query, arg); err != nil {
		return nil, mapError(err, "failed to get template")
	}
	return &t, nil
}

// Create inserts t, assigning its ID and timestamps
func (r *templateRepository) Create(ctx context.Context, t *models.Template) (err error) {
	ctx, span := observability.StartSpan(ctx, "repository.template.Create", map[string]string{"slug": t.Slug})
	defer span.End()
	defer r.track("template_create", &err)()

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	query := `
		INSERT INTO templates (
			id, name, slug, description, category, thumbnail_url, elements, layout,
			editable_fields, is_published, published_at, view_count, use_count, created_by, created_at, updated_at
		) VALUES (
			:id, :name, :slug, :description, :category, :thumbnail_url, :elements, :layout,
			:editable_fields, :is_published, :published_at, :view_count, :use_count, :created_by, :created_at, :updated_at
		)`

	if _, err = r.db.NamedExecContext(ctx, query, t); err != nil {
		r.logger.Error("Failed to create template", map[string]interface{}{
			"slug":  t.Slug,
			"error": err.Error(),
		})
		return mapError(err, "failed to create template")
	}

	r.logger.Info("Created template", map[string]interface{}{"id": t.ID.String(), "slug": t.Slug})
	return nil
}

// Update replaces the editable columns of t
func (r *templateRepository) Update(ctx context.Context, t *models.Template) (err error) {
	ctx, span := observability.StartSpan(ctx, "repository.template.Update", map[string]string{"id": t.ID.String()})
	defer span.End()
	defer r.track("template_update", &err)()

	t.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE templates SET
			name = :name, slug = :slug, description = :description, category = :category,
			thumbnail_url = :thumbnail_url, elements = :elements, layout = :layout,
			editable_fields = :editable_fields, updated_at = :updated_at
		WHERE id = :id`

	res, err := r.db.NamedExecContext(ctx, query, t)
	if err != nil {
		return mapError(err, "failed to update template")
	}
	return requireRow(res, "failed to update template")
}

// Delete removes a template and, by cascade, its invitations
func (r *templateRepository) Delete(ctx context.Context, id uuid.UUID) (err error) {
	defer r.track("template_delete", &err)()

	res, err := r.db.ExecContext(ctx, "DELETE FROM templates WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "failed to delete template")
	}
	return requireRow(res, "failed to delete template")
}

// SetPublished toggles publication. The first publication time is kept
// across republishing; unpublishing clears it.
func (r *templateRepository) SetPublished(ctx context.Context, id uuid.UUID, published bool) (_ *models.Template, err error) {
	defer r.track("template_set_published", &err)()

	query := `
		UPDATE templates SET
			is_published = $2,
			published_at = CASE WHEN $2 THEN COALESCE(published_at, NOW()) ELSE NULL END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + templateColumns

	var t models.Template
	if err = r.db.GetContext(ctx, &t, query, id, published); err != nil {
		return nil, mapError(err, "failed to update template publication")
	}
	return &t, nil
}

// IncrementViews bumps the view counter through increment_template_views
func (r *templateRepository) IncrementViews(ctx context.Context, id uuid.UUID) (_ int64, err error) {
	defer r.track("template_increment_views", &err)()
	return callCounter(ctx, r.db, "increment_template_views", id)
}

// IncrementUses bumps the use counter through increment_template_uses
func (r *templateRepository) IncrementUses(ctx context.Context, id uuid.UUID) (_ int64, err error) {
	defer r.track("template_increment_uses", &err)()
	return callCounter(ctx, r.db, "increment_template_uses", id)
}

// callCounter invokes one of the counter functions; a NULL result means the
// row does not exist.
func callCounter(ctx context.Context, db *sqlx.DB, fn string, id uuid.UUID) (int64, error) {
	var n sql.NullInt64
	if err := db.QueryRowxContext(ctx, "SELECT "+fn+"($1)", id).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "failed to call %s", fn)
	}
	if !n.Valid {
		return 0, ErrNotFound
	}
	return n.Int64, nil
}

func requireRow(res sql.Result, msg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
