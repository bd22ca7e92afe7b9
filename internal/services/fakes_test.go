package services

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/makemykankotri/kankotri/pkg/models"
	"github.com/makemykankotri/kankotri/pkg/repository"
)

// memoryTemplates counts the reads and writes that reach the repository
type memoryTemplates struct {
	*repository.MemoryTemplateRepository

	mu      sync.Mutex
	gets    int
	updates int
}

func newMemoryTemplates() *memoryTemplates {
	return &memoryTemplates{MemoryTemplateRepository: repository.NewMemoryTemplateRepository()}
}

func (m *memoryTemplates) Get(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	m.count(&m.gets)
	return m.MemoryTemplateRepository.Get(ctx, id)
}

func (m *memoryTemplates) GetBySlug(ctx context.Context, slug string) (*models.Template, error) {
	m.count(&m.gets)
	return m.MemoryTemplateRepository.GetBySlug(ctx, slug)
}

func (m *memoryTemplates) Update(ctx context.Context, t *models.Template) error {
	m.count(&m.updates)
	return m.MemoryTemplateRepository.Update(ctx, t)
}

func (m *memoryTemplates) count(n *int) {
	m.mu.Lock()
	*n++
	m.mu.Unlock()
}

func (m *memoryTemplates) stored(id uuid.UUID) *models.Template {
	t, _ := m.MemoryTemplateRepository.Get(context.Background(), id)
	return t
}

func (m *memoryTemplates) getCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

func (m *memoryTemplates) updateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}
