package editor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makemykankotri/kankotri/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	tpl := &models.Template{
		Name:   "Royal",
		Layout: models.DefaultLayout(),
		Elements: models.ElementList{
			{ID: "title", Type: models.ElementText, Content: "{{bride.name}} & {{groom.name}}", Width: 300, Height: 40, ZIndex: 1},
			{ID: "box", Type: models.ElementContainer, Width: 400, Height: 300, ZIndex: 2},
		},
	}
	return NewStore(tpl, 50)
}

func TestStore_AddElement(t *testing.T) {
	s := newTestStore(t)

	added, err := s.AddElement(models.Element{
		Type:     models.ElementText,
		Editable: true,
		FieldKey: "bride.name",
		Width:    200,
		Height:   30,
	}, "")
	require.NoError(t, err)

	assert.NotEmpty(t, added.ID)
	assert.Equal(t, 3, added.ZIndex)
	assert.True(t, s.IsDirty())
	assert.True(t, s.CanUndo())

	tpl := s.Template()
	require.Len(t, tpl.EditableFields, 1)
	assert.Equal(t, "bride.name", tpl.EditableFields[0].Key)
	assert.Equal(t, added.ID, tpl.EditableFields[0].ElementID)
}

func TestStore_AddElementIntoContainer(t *testing.T) {
	s := newTestStore(t)

	child, err := s.AddElement(models.Element{ID: "venue", Type: models.ElementText, Editable: true, FieldKey: "event.venue"}, "box")
	require.NoError(t, err)
	assert.Equal(t, "venue", child.ID)

	box, ok := s.Template().FindElement("box")
	require.True(t, ok)
	require.Len(t, box.Children, 1)

	_, err = s.AddElement(models.Element{Type: models.ElementText}, "title")
	assert.ErrorIs(t, err, ErrInvalidElement)

	_, err = s.AddElement(models.Element{Type: models.ElementText}, "missing")
	assert.ErrorIs(t, err, ErrElementNotFound)

	_, err = s.AddElement(models.Element{ID: "venue", Type: models.ElementText}, "")
	assert.ErrorIs(t, err, ErrInvalidElement)

	_, err = s.AddElement(models.Element{Type: "video"}, "")
	assert.ErrorIs(t, err, ErrInvalidElement)
}

func TestStore_UpdateMoveResize(t *testing.T) {
	s := newTestStore(t)
	content := "New heading"

	updated, err := s.UpdateElement("title", ElementPatch{
		Content: &content,
		Style:   map[string]string{"color": "maroon"},
	})
	require.NoError(t, err)
	assert.Equal(t, "New heading", updated.Content)
	assert.Equal(t, "maroon", updated.Style["color"])

	updated, err = s.UpdateElement("title", ElementPatch{Style: map[string]string{"color": ""}})
	require.NoError(t, err)
	assert.NotContains(t, updated.Style, "color")

	require.NoError(t, s.MoveElement("title", 15, 25))
	require.NoError(t, s.ResizeElement("title", 320, 50))
	assert.ErrorIs(t, s.ResizeElement("title", 0, 50), ErrInvalidDimensions)
	assert.ErrorIs(t, s.MoveElement("missing", 1, 1), ErrElementNotFound)

	el, _ := s.Template().FindElement("title")
	assert.Equal(t, 15.0, el.X)
	assert.Equal(t, 25.0, el.Y)
	assert.Equal(t, 320.0, el.Width)
	assert.Equal(t, 50.0, el.Height)
}

func TestStore_RemoveElementClearsSelection(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Select("title"))

	require.NoError(t, s.RemoveElement("title"))
	assert.Empty(t, s.Selected())
	_, ok := s.Template().FindElement("title")
	assert.False(t, ok)

	assert.ErrorIs(t, s.RemoveElement("title"), ErrElementNotFound)
}

func TestStore_DuplicateElement(t *testing.T) {
	s := newTestStore(t)

	dup, err := s.DuplicateElement("title")
	require.NoError(t, err)

	assert.NotEqual(t, "title", dup.ID)
	assert.Equal(t, float64(duplicateOffset), dup.X)
	assert.Equal(t, 3, dup.ZIndex)
	assert.Equal(t, dup.ID, s.Selected())

	tpl := s.Template()
	require.Len(t, tpl.Elements, 3)
	assert.Equal(t, dup.ID, tpl.Elements[1].ID, "duplicate sits right after the original")
}

func TestStore_SetLayout(t *testing.T) {
	s := newTestStore(t)

	assert.ErrorIs(t, s.SetLayout(models.Layout{Width: 0, Height: 10}), ErrInvalidDimensions)
	require.NoError(t, s.SetLayout(models.Layout{Width: 800, Height: 600, Orientation: "landscape"}))
	assert.Equal(t, "landscape", s.Template().Layout.Orientation)
}

func TestStore_SelectUnknown(t *testing.T) {
	s := newTestStore(t)
	assert.ErrorIs(t, s.Select("nope"), ErrElementNotFound)
	require.NoError(t, s.Select(""))
	assert.False(t, s.CanUndo(), "selection is not an edit")
}

func TestStore_UndoRedoRestoresSnapshots(t *testing.T) {
	s := newTestStore(t)
	initial := s.Template()

	_, err := s.AddElement(models.Element{ID: "photo", Type: models.ElementImage, Editable: true}, "")
	require.NoError(t, err)
	afterAdd := s.Template()

	require.NoError(t, s.MoveElement("photo", 100, 100))

	_, err = s.Undo()
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(afterAdd, s.Template()))

	undone, err := s.Undo()
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(initial, undone))
	assert.Empty(t, s.Template().EditableFields)

	_, err = s.Undo()
	assert.ErrorIs(t, err, ErrNothingToUndo)

	redone, err := s.Redo()
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(afterAdd, redone))
	assert.Len(t, redone.EditableFields, 1)
}

func TestStore_MarkSaved(t *testing.T) {
	s := newTestStore(t)
	assert.False(t, s.IsDirty())

	require.NoError(t, s.MoveElement("title", 1, 2))
	assert.True(t, s.State().Dirty)

	s.MarkSaved()
	state := s.State()
	assert.False(t, state.Dirty)
	assert.True(t, state.CanUndo)
	assert.False(t, state.CanRedo)
}

func TestStore_AddElementRejectsDuplicateChildIDs(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AddElement(models.Element{
		ID:       "frame",
		Type:     models.ElementContainer,
		Width:    100,
		Height:   100,
		Children: []models.Element{{ID: "title", Type: models.ElementText}},
	}, "")
	assert.ErrorIs(t, err, ErrInvalidElement)

	_, err = s.AddElement(models.Element{
		ID:   "frame",
		Type: models.ElementContainer,
		Children: []models.Element{
			{ID: "a", Type: models.ElementText},
			{ID: "a", Type: models.ElementText},
		},
	}, "")
	assert.ErrorIs(t, err, ErrInvalidElement)

	_, ok := s.Template().FindElement("frame")
	assert.False(t, ok)
	assert.False(t, s.IsDirty())
}

func TestStore_MarkSavedAtIgnoresStaleRevision(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.MoveElement("title", 5, 5))

	saved, rev := s.Snapshot()
	require.NoError(t, s.MoveElement("title", 9, 9))

	assert.False(t, s.MarkSavedAt(rev))
	assert.True(t, s.IsDirty())
	el, _ := saved.FindElement("title")
	assert.Equal(t, 5.0, el.X)

	_, rev = s.Snapshot()
	assert.True(t, s.MarkSavedAt(rev))
	assert.False(t, s.IsDirty())

	_, err := s.Undo()
	require.NoError(t, err)
	assert.False(t, s.MarkSavedAt(rev))
}
