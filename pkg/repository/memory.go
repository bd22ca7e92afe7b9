package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/makemykankotri/kankotri/pkg/models"
)

// MemoryTemplateRepository is a TemplateRepository held in process memory.
// It backs the offline CLI commands and handler tests.
type MemoryTemplateRepository struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]*models.Template
	now  func() time.Time
}

// NewMemoryTemplateRepository creates an empty repository
func NewMemoryTemplateRepository() *MemoryTemplateRepository {
	return &MemoryTemplateRepository{
		byID: make(map[uuid.UUID]*models.Template),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// List returns templates matching filter, newest first
func (m *MemoryTemplateRepository) List(ctx context.Context, filter models.TemplateFilter) ([]*models.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(filter.Query))
	out := []*models.Template{}
	for _, t := range m.byID {
		if filter.PublishedOnly && !t.IsPublished {
			continue
		}
		if filter.Category != "" && t.Category != filter.Category {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(t.Name), q) && !strings.Contains(strings.ToLower(t.Description), q) {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Slug < out[j].Slug
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, filter.Limit, filter.Offset), nil
}

// Get retrieves a template by ID
func (m *MemoryTemplateRepository) Get(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

// GetBySlug retrieves a template by slug
func (m *MemoryTemplateRepository) GetBySlug(ctx context.Context, slug string) (*models.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, t := range m.byID {
		if t.Slug == slug {
			return t.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryTemplateRepository) slugTaken(slug string, except uuid.UUID) bool {
	for id, t := range m.byID {
		if t.Slug == slug && id != except {
			return true
		}
	}
	return false
}

// Create inserts t, assigning its ID and timestamps
func (m *MemoryTemplateRepository) Create(ctx context.Context, t *models.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.slugTaken(t.Slug, uuid.Nil) {
		return ErrDuplicateSlug
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = m.now()
	t.UpdatedAt = t.CreatedAt
	m.byID[t.ID] = t.Clone()
	return nil
}

// Update replaces the editable columns of t. Publication state and counters
// are left alone.
func (m *MemoryTemplateRepository) Update(ctx context.Context, t *models.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.byID[t.ID]
	if !ok {
		return ErrNotFound
	}
	if m.slugTaken(t.Slug, t.ID) {
		return ErrDuplicateSlug
	}
	next := t.Clone()
	next.IsPublished, next.PublishedAt = existing.IsPublished, existing.PublishedAt
	next.ViewCount, next.UseCount = existing.ViewCount, existing.UseCount
	next.CreatedBy, next.CreatedAt = existing.CreatedBy, existing.CreatedAt
	next.UpdatedAt = m.now()
	m.byID[t.ID] = next
	t.UpdatedAt = next.UpdatedAt
	return nil
}

// Delete removes a template
func (m *MemoryTemplateRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

// SetPublished toggles publication, keeping the first publication time
func (m *MemoryTemplateRepository) SetPublished(ctx context.Context, id uuid.UUID, published bool) (*models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	t.IsPublished = published
	switch {
	case published && t.PublishedAt == nil:
		now := m.now()
		t.PublishedAt = &now
	case !published:
		t.PublishedAt = nil
	}
	t.UpdatedAt = m.now()
	return t.Clone(), nil
}

// IncrementViews bumps the view counter and returns the new value
func (m *MemoryTemplateRepository) IncrementViews(ctx context.Context, id uuid.UUID) (int64, error) {
	return m.increment(id, func(t *models.Template) *int64 { return &t.ViewCount })
}

// IncrementUses bumps the use counter and returns the new value
func (m *MemoryTemplateRepository) IncrementUses(ctx context.Context, id uuid.UUID) (int64, error) {
	return m.increment(id, func(t *models.Template) *int64 { return &t.UseCount })
}

func (m *MemoryTemplateRepository) increment(id uuid.UUID, counter func(*models.Template) *int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.byID[id]
	if !ok {
		return 0, ErrNotFound
	}
	n := counter(t)
	*n++
	return *n, nil
}

// MemoryInvitationRepository is an InvitationRepository held in process memory
type MemoryInvitationRepository struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]*models.Invitation
}

// NewMemoryInvitationRepository creates an empty repository
func NewMemoryInvitationRepository() *MemoryInvitationRepository {
	return &MemoryInvitationRepository{byID: make(map[uuid.UUID]*models.Invitation)}
}

// Create inserts inv, assigning its ID and creation time
func (m *MemoryInvitationRepository) Create(ctx context.Context, inv *models.Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.byID {
		if existing.ShareCode == inv.ShareCode {
			return ErrDuplicateShareCode
		}
	}
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	inv.CreatedAt = time.Now().UTC()
	m.byID[inv.ID] = cloneInvitation(inv)
	return nil
}

// Get retrieves an invitation by ID
func (m *MemoryInvitationRepository) Get(ctx context.Context, id uuid.UUID) (*models.Invitation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inv, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneInvitation(inv), nil
}

// GetByShareCode retrieves an invitation by its share code
func (m *MemoryInvitationRepository) GetByShareCode(ctx context.Context, code string) (*models.Invitation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, inv := range m.byID {
		if inv.ShareCode == code {
			return cloneInvitation(inv), nil
		}
	}
	return nil, ErrNotFound
}

// IncrementViews bumps the view counter and returns the new value
func (m *MemoryInvitationRepository) IncrementViews(ctx context.Context, id uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.byID[id]
	if !ok {
		return 0, ErrNotFound
	}
	inv.ViewCount++
	return inv.ViewCount, nil
}

// ListByTemplate returns the invitations created from a template, newest first
func (m *MemoryInvitationRepository) ListByTemplate(ctx context.Context, templateID uuid.UUID, limit, offset int) ([]*models.Invitation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*models.Invitation{}
	for _, inv := range m.byID {
		if inv.TemplateID == templateID {
			out = append(out, cloneInvitation(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

// Len returns the number of stored invitations
func (m *MemoryInvitationRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

func cloneInvitation(inv *models.Invitation) *models.Invitation {
	out := *inv
	out.Data = inv.Data.Clone()
	return &out
}

// page applies the same limit bounds as the SQL repositories
func page[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit < len(items) {
		items = items[:limit]
	}
	return items
}

var (
	_ TemplateRepository   = (*MemoryTemplateRepository)(nil)
	_ InvitationRepository = (*MemoryInvitationRepository)(nil)
)
