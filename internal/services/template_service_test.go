package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makemykankotri/kankotri/pkg/cache"
	"github.com/makemykankotri/kankotri/pkg/catalog"
	"github.com/makemykankotri/kankotri/pkg/events"
	"github.com/makemykankotri/kankotri/pkg/models"
	"github.com/makemykankotri/kankotri/pkg/observability"
	"github.com/makemykankotri/kankotri/pkg/repository"
	"github.com/makemykankotri/kankotri/pkg/validation"
)

type templateFixture struct {
	repo    *memoryTemplates
	bus     *events.Bus
	service *TemplateService
	emitted []string
}

func newTemplateFixture(t *testing.T) *templateFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c, err := cache.NewMultiLevelCache(cache.NewRedisCache(client, ""), 64, time.Minute, nil)
	require.NoError(t, err)

	v, err := validation.New()
	require.NoError(t, err)

	f := &templateFixture{
		repo: newMemoryTemplates(),
		bus:  events.NewBus(observability.NewNoopLogger(), nil),
	}
	f.bus.On(events.Wildcard, func(ctx context.Context, e events.Event) error {
		f.emitted = append(f.emitted, e.Name)
		return nil
	})
	f.service = NewTemplateService(f.repo, c, time.Minute, f.bus, v, observability.NewNoopLogger(), nil)
	t.Cleanup(f.service.Close)
	return f
}

func sampleInput(name string) models.TemplateInput {
	return models.TemplateInput{
		Name:     name,
		Category: "traditional",
		Elements: models.ElementList{
			{Type: models.ElementText, Width: 200, Height: 40, Content: "{{bride.name}} weds {{groom.name}}"},
			{Type: models.ElementText, Width: 200, Height: 40, Editable: true, FieldKey: "bride.name", Label: "Bride", Required: true},
			{Type: models.ElementText, Width: 200, Height: 40, Editable: true, FieldKey: "groom.name", Label: "Groom", Required: true},
		},
	}
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Royal Red":             "royal-red",
		"  Shubh   Vivah!! ":    "shubh-vivah",
		"मंगल":                  "template",
		strings.Repeat("a", 90): strings.Repeat("a", 80),
	}
	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestTemplateService_Create(t *testing.T) {
	f := newTemplateFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, sampleInput("Royal Red"), "admin@example.com")
	require.NoError(t, err)

	assert.Equal(t, "royal-red", created.Slug)
	assert.False(t, created.IsPublished)
	assert.Equal(t, models.DefaultLayout(), created.Layout)
	assert.Len(t, created.EditableFields, 2)
	for _, el := range created.Elements {
		assert.NotEmpty(t, el.ID)
	}
	assert.Equal(t, []string{events.TemplateCreated}, f.emitted)

	second, err := f.service.Create(ctx, sampleInput("Royal Red"), "")
	require.NoError(t, err)
	assert.Equal(t, "royal-red-2", second.Slug)
}

func TestTemplateService_CreateExplicitSlugConflict(t *testing.T) {
	f := newTemplateFixture(t)
	ctx := context.Background()

	in := sampleInput("Royal Red")
	in.Slug = "royal"
	_, err := f.service.Create(ctx, in, "")
	require.NoError(t, err)

	_, err = f.service.Create(ctx, in, "")
	assert.ErrorIs(t, err, repository.ErrDuplicateSlug)
}

func TestTemplateService_CreateFallsBackToRandomSuffix(t *testing.T) {
	f := newTemplateFixture(t)
	ctx := context.Background()

	for i := 0; i < maxSlugAttempts; i++ {
		_, err := f.service.Create(ctx, sampleInput("Same"), "")
		require.NoError(t, err)
	}
	last, err := f.service.Create(ctx, sampleInput("Same"), "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(last.Slug, "same-"))
	assert.Len(t, last.Slug, len("same-")+8)
}

func TestTemplateService_CreateRejectsInvalidInput(t *testing.T) {
	f := newTemplateFixture(t)

	in := sampleInput("")
	_, err := f.service.Create(context.Background(), in, "")

	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, f.emitted)
}

func TestTemplateService_PublishedVisibility(t *testing.T) {
	f := newTemplateFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, sampleInput("Royal Red"), "")
	require.NoError(t, err)

	_, err = f.service.GetPublished(ctx, "royal-red")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = f.service.Publish(ctx, created.ID)
	require.NoError(t, err)

	got, err := f.service.GetPublished(ctx, "royal-red")
	require.NoError(t, err)
	assert.True(t, got.IsPublished)

	list, err := f.service.ListPublished(ctx, models.TemplateFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.service.Unpublish(ctx, created.ID)
	require.NoError(t, err)
	_, err = f.service.GetPublished(ctx, created.ID.String())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTemplateService_CacheInvalidatedOnUpdate(t *testing.T) {
	f := newTemplateFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, sampleInput("Royal Red"), "")
	require.NoError(t, err)

	_, err = f.service.Resolve(ctx, "royal-red")
	require.NoError(t, err)
	_, err = f.service.Get(ctx, created.ID)
	require.NoError(t, err)
	reads := f.repo.getCount()

	// served from cache
	_, err = f.service.Resolve(ctx, "royal-red")
	require.NoError(t, err)
	assert.Equal(t, reads, f.repo.getCount())

	in := sampleInput("Royal Red Deluxe")
	in.Slug = "royal-red-deluxe"
	updated, err := f.service.Update(ctx, created.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "royal-red-deluxe", updated.Slug)

	got, err := f.service.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Royal Red Deluxe", got.Name)

	_, err = f.service.Resolve(ctx, "royal-red")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	got, err = f.service.Resolve(ctx, "royal-red-deluxe")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestTemplateService_UpdateKeepsSlug(t *testing.T) {
	f := newTemplateFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, sampleInput("Royal Red"), "")
	require.NoError(t, err)

	updated, err := f.service.Update(ctx, created.ID, sampleInput("Renamed"))
	require.NoError(t, err)
	assert.Equal(t, "royal-red", updated.Slug)
	assert.Equal(t, "Renamed", updated.Name)
}

func TestTemplateService_ViewAndUseCounters(t *testing.T) {
	f := newTemplateFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, sampleInput("Royal Red"), "")
	require.NoError(t, err)
	_, err = f.service.Publish(ctx, created.ID)
	require.NoError(t, err)

	got, err := f.service.View(ctx, "royal-red")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ViewCount)

	got, err = f.service.View(ctx, "royal-red")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ViewCount)

	uses, err := f.service.Use(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, int64(1), uses)

	assert.Contains(t, f.emitted, events.TemplateViewed)
	assert.Contains(t, f.emitted, events.TemplateUsed)
}

func TestTemplateService_Delete(t *testing.T) {
	f := newTemplateFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, sampleInput("Royal Red"), "")
	require.NoError(t, err)
	_, err = f.service.Get(ctx, created.ID)
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(ctx, created.ID))
	_, err = f.service.Get(ctx, created.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, f.service.Delete(ctx, created.ID), repository.ErrNotFound)
}

func TestTemplateService_ImportDefaultCatalog(t *testing.T) {
	f := newTemplateFixture(t)
	ctx := context.Background()

	v, err := validation.New()
	require.NoError(t, err)
	entries, err := catalog.Default(v)
	require.NoError(t, err)

	n, err := f.service.Import(ctx, entries, "seed")
	require.NoError(t, err)
	assert.Equal(t, len(entries), n)

	// second run skips existing slugs
	n, err = f.service.Import(ctx, entries, "seed")
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := f.service.GetPublished(ctx, "royal-red")
	require.NoError(t, err)
	assert.NotEmpty(t, got.EditableFields)
}
