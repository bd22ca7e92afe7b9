package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makemykankotri/kankotri/pkg/config"
	"github.com/makemykankotri/kankotri/pkg/editor"
	"github.com/makemykankotri/kankotri/pkg/events"
	"github.com/makemykankotri/kankotri/pkg/feature"
	"github.com/makemykankotri/kankotri/pkg/models"
	"github.com/makemykankotri/kankotri/pkg/observability"
)

type editorFixture struct {
	*templateFixture
	clock    clockwork.FakeClock
	flags    *feature.Flags
	editor   *EditorService
	template *models.Template
}

func newEditorFixture(t *testing.T) *editorFixture {
	t.Helper()
	tf := newTemplateFixture(t)

	f := &editorFixture{
		templateFixture: tf,
		clock:           clockwork.NewFakeClock(),
		flags:           feature.New(feature.NewMemoryStore(), map[string]bool{feature.AutoSave: true}, observability.NewNoopLogger()),
	}
	f.editor = NewEditorService(tf.service, tf.bus, f.flags, config.EditorConfig{
		HistoryLimit:  10,
		AutoSaveDelay: time.Second,
		SessionTTL:    time.Minute,
	}, f.clock, nil, nil)
	t.Cleanup(func() { f.editor.CloseAll(context.Background()) })

	created, err := tf.service.Create(context.Background(), sampleInput("Royal Red"), "")
	require.NoError(t, err)
	f.template = created
	return f
}

func TestEditorService_OpenIsShared(t *testing.T) {
	f := newEditorFixture(t)
	ctx := context.Background()

	first, err := f.editor.Open(ctx, f.template.ID, "a@example.com")
	require.NoError(t, err)
	second, err := f.editor.Open(ctx, f.template.ID, "b@example.com")
	require.NoError(t, err)

	assert.Equal(t, first.Template.ID, second.Template.ID)
	assert.Equal(t, 1, f.editor.Sessions())

	_, err = f.editor.Open(ctx, uuid.New(), "a@example.com")
	assert.Error(t, err)
}

func TestEditorService_EditUndoRedo(t *testing.T) {
	f := newEditorFixture(t)
	ctx := context.Background()
	id := f.template.ID

	opened, err := f.editor.Open(ctx, id, "admin")
	require.NoError(t, err)

	added, state, err := f.editor.AddElement(id, models.Element{
		Type: models.ElementText, Width: 100, Height: 20, Editable: true, FieldKey: "event.venue", Label: "Venue",
	}, "")
	require.NoError(t, err)
	assert.True(t, state.Dirty)
	assert.Len(t, state.Template.EditableFields, 3)

	content := "Shubh Vivah"
	state, err = f.editor.UpdateElement(id, added.ID, editor.ElementPatch{Content: &content})
	require.NoError(t, err)
	el, ok := state.Template.FindElement(added.ID)
	require.True(t, ok)
	assert.Equal(t, content, el.Content)

	_, err = f.editor.Undo(id)
	require.NoError(t, err)
	state, err = f.editor.Undo(id)
	require.NoError(t, err)
	if diff := cmp.Diff(opened.Template.Elements, state.Template.Elements, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("undo did not restore the opened template (-want +got):\n%s", diff)
	}

	state, err = f.editor.Redo(id)
	require.NoError(t, err)
	_, ok = state.Template.FindElement(added.ID)
	assert.True(t, ok)

	_, err = f.editor.UpdateElement(id, "missing", editor.ElementPatch{Content: &content})
	assert.ErrorIs(t, err, editor.ErrElementNotFound)
}

func TestEditorService_SaveWritesTemplate(t *testing.T) {
	f := newEditorFixture(t)
	ctx := context.Background()
	id := f.template.ID

	_, err := f.editor.Open(ctx, id, "admin")
	require.NoError(t, err)
	_, err = f.editor.SetLayout(id, models.Layout{Width: 800, Height: 600, Orientation: "landscape"})
	require.NoError(t, err)

	f.emitted = nil
	state, err := f.editor.Save(ctx, id)
	require.NoError(t, err)
	assert.False(t, state.Dirty)
	assert.Equal(t, 800.0, f.repo.stored(id).Layout.Width)
	assert.Contains(t, f.emitted, events.EditorSaved)

	// the cached copy was invalidated by the save
	got, err := f.tfService().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "landscape", got.Layout.Orientation)
}

func TestEditorService_EditDuringSaveStaysDirty(t *testing.T) {
	f := newEditorFixture(t)
	ctx := context.Background()
	id := f.template.ID
	require.NoError(t, f.flags.Set(ctx, feature.AutoSave, false))

	_, err := f.editor.Open(ctx, id, "admin")
	require.NoError(t, err)

	// another admin adds an element while the save is in flight
	f.bus.Once(events.TemplateUpdated, func(ctx context.Context, e events.Event) error {
		_, _, err := f.editor.AddElement(id, models.Element{Type: models.ElementText, Width: 50, Height: 10, Content: "late"}, "")
		return err
	})

	state, err := f.editor.Save(ctx, id)
	require.NoError(t, err)
	assert.True(t, state.Dirty)
	assert.Len(t, state.Template.Elements, len(f.repo.stored(id).Elements)+1)

	f.editor.CloseAll(ctx)
	assert.Len(t, f.repo.stored(id).Elements, len(state.Template.Elements))
}

func TestEditorService_AutoSave(t *testing.T) {
	f := newEditorFixture(t)
	ctx := context.Background()
	id := f.template.ID

	_, err := f.editor.Open(ctx, id, "admin")
	require.NoError(t, err)
	els, _ := f.editor.State(id)
	first := els.Template.Elements[0].ID

	require.NoError(t, move(f.editor, id, first, 10, 10))
	f.clock.Advance(500 * time.Millisecond)
	require.NoError(t, move(f.editor, id, first, 20, 20))
	assert.Zero(t, f.repo.updateCount())

	f.clock.Advance(time.Second)
	assert.Eventually(t, func() bool { return f.repo.updateCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		s, _ := f.editor.State(id)
		return !s.Dirty
	}, time.Second, 5*time.Millisecond)
}

func TestEditorService_AutoSaveDisabledByFlag(t *testing.T) {
	f := newEditorFixture(t)
	ctx := context.Background()
	id := f.template.ID
	require.NoError(t, f.flags.Set(ctx, feature.AutoSave, false))

	_, err := f.editor.Open(ctx, id, "admin")
	require.NoError(t, err)
	s, _ := f.editor.State(id)
	require.NoError(t, move(f.editor, id, s.Template.Elements[0].ID, 5, 5))

	f.clock.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, f.repo.updateCount())
}

func TestEditorService_CloseAndSweep(t *testing.T) {
	f := newEditorFixture(t)
	ctx := context.Background()
	id := f.template.ID

	_, err := f.editor.Open(ctx, id, "admin")
	require.NoError(t, err)
	require.NoError(t, f.editor.Close(id))
	assert.ErrorIs(t, f.editor.Close(id), ErrSessionNotFound)

	_, err = f.editor.State(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// an idle dirty session is saved, then closed
	require.NoError(t, f.flags.Set(ctx, feature.AutoSave, false))
	_, err = f.editor.Open(ctx, id, "admin")
	require.NoError(t, err)
	_, err = f.editor.SetLayout(id, models.Layout{Width: 300, Height: 300})
	require.NoError(t, err)

	assert.Zero(t, f.editor.Sweep(ctx))
	f.clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, f.editor.Sweep(ctx))
	assert.Zero(t, f.editor.Sessions())
	assert.Equal(t, 300.0, f.repo.stored(id).Layout.Width)
}

func (f *editorFixture) tfService() *TemplateService {
	return f.templateFixture.service
}

func move(s *EditorService, id uuid.UUID, elementID string, x, y float64) error {
	_, err := s.UpdateElement(id, elementID, editor.ElementPatch{X: &x, Y: &y})
	return err
}
