package editor

import (
	"fmt"
	"sync"
	"time"

	"github.com/makemykankotri/kankotri/pkg/models"
)

// duplicateOffset shifts a duplicated element so it does not cover the original
const duplicateOffset = 10

// ElementPatch carries the fields to change on an element; nil means unchanged.
// Style entries with an empty value are removed.
type ElementPatch struct {
	Content     *string           `json:"content,omitempty"`
	Src         *string           `json:"src,omitempty"`
	Images      []string          `json:"images,omitempty"`
	Style       map[string]string `json:"style,omitempty"`
	X           *float64          `json:"x,omitempty"`
	Y           *float64          `json:"y,omitempty"`
	Width       *float64          `json:"width,omitempty"`
	Height      *float64          `json:"height,omitempty"`
	Rotation    *float64          `json:"rotation,omitempty"`
	ZIndex      *int              `json:"zIndex,omitempty"`
	Editable    *bool             `json:"editable,omitempty"`
	FieldKey    *string           `json:"fieldKey,omitempty"`
	Label       *string           `json:"label,omitempty"`
	Placeholder *string           `json:"placeholder,omitempty"`
	Required    *bool             `json:"required,omitempty"`
	FieldType   *models.FieldType `json:"fieldType,omitempty"`
	Group       *string           `json:"group,omitempty"`
}

// State is a read-only view of the store for clients
type State struct {
	Template *models.Template `json:"template"`
	Selected string           `json:"selected,omitempty"`
	Dirty    bool             `json:"dirty"`
	CanUndo  bool             `json:"canUndo"`
	CanRedo  bool             `json:"canRedo"`
}

// Store is the editing session for one template. Every mutation records a
// snapshot in the history and re-derives the editable fields.
type Store struct {
	mu       sync.Mutex
	history  *History
	current  *models.Template
	selected string
	dirty    bool
	revision uint64
	now      func() time.Time
}

// NewStore opens an editing session on t
func NewStore(t *models.Template, historyLimit int) *Store {
	current := t.Clone()
	current.EditableFields = models.DeriveEditableFields(current.Elements)
	return &Store{
		history: NewHistory(current, historyLimit),
		current: current,
		now:     time.Now,
	}
}

// Template returns a copy of the current template
func (s *Store) Template() *models.Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// State returns a snapshot of the session
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Template: s.current.Clone(),
		Selected: s.selected,
		Dirty:    s.dirty,
		CanUndo:  s.history.CanUndo(),
		CanRedo:  s.history.CanRedo(),
	}
}

// Snapshot returns a copy of the current template with its revision. The
// revision changes on every edit, undo and redo.
func (s *Store) Snapshot() (*models.Template, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone(), s.revision
}

// IsDirty reports whether there are edits since the last MarkSaved
func (s *Store) IsDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Selected returns the selected element id, if any
func (s *Store) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// mutate applies fn to a copy of the current template and commits it
func (s *Store) mutate(fn func(t *models.Template) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Clone()
	if err := fn(next); err != nil {
		return err
	}
	next.EditableFields = models.DeriveEditableFields(next.Elements)
	next.UpdatedAt = s.now().UTC()

	s.history.Push(next)
	s.current = next
	s.dirty = true
	s.revision++
	if s.selected != "" {
		if _, ok := next.FindElement(s.selected); !ok {
			s.selected = ""
		}
	}
	return nil
}

// AddElement inserts el at the root, or into the container parentID.
// An empty ID is generated and a zero ZIndex is placed on top.
func (s *Store) AddElement(el models.Element, parentID string) (models.Element, error) {
	if !el.Type.Valid() {
		return models.Element{}, fmt.Errorf("%w: unknown type %q", ErrInvalidElement, el.Type)
	}
	if el.Type != models.ElementContainer && len(el.Children) > 0 {
		return models.Element{}, fmt.Errorf("%w: only containers have children", ErrInvalidElement)
	}
	if el.Width < 0 || el.Height < 0 {
		return models.Element{}, ErrInvalidDimensions
	}

	var added models.Element
	err := s.mutate(func(t *models.Template) error {
		el = el.Clone()
		assignIDs(&el, t, el.ID == "")
		if id, dup := duplicateID(el, t, map[string]bool{}); dup {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidElement, id)
		}

		target := (*[]models.Element)(&t.Elements)
		if parentID != "" {
			parent, ok := t.FindElement(parentID)
			if !ok {
				return fmt.Errorf("parent %q: %w", parentID, ErrElementNotFound)
			}
			if parent.Type != models.ElementContainer {
				return fmt.Errorf("%w: %q is not a container", ErrInvalidElement, parentID)
			}
			target = &parent.Children
		}

		if el.ZIndex == 0 {
			el.ZIndex = topZ(*target) + 1
		}
		*target = append(*target, el)
		added = el.Clone()
		return nil
	})
	return added, err
}

// UpdateElement applies patch to the element with id
func (s *Store) UpdateElement(id string, patch ElementPatch) (models.Element, error) {
	if (patch.Width != nil && *patch.Width <= 0) || (patch.Height != nil && *patch.Height <= 0) {
		return models.Element{}, ErrInvalidDimensions
	}

	var updated models.Element
	err := s.mutate(func(t *models.Template) error {
		el, ok := t.FindElement(id)
		if !ok {
			return fmt.Errorf("element %q: %w", id, ErrElementNotFound)
		}
		applyPatch(el, patch)
		updated = el.Clone()
		return nil
	})
	return updated, err
}

// RemoveElement deletes the element with id and its children
func (s *Store) RemoveElement(id string) error {
	return s.mutate(func(t *models.Template) error {
		if !removeElement((*[]models.Element)(&t.Elements), id) {
			return fmt.Errorf("element %q: %w", id, ErrElementNotFound)
		}
		return nil
	})
}

// MoveElement sets the position of the element with id
func (s *Store) MoveElement(id string, x, y float64) error {
	_, err := s.UpdateElement(id, ElementPatch{X: &x, Y: &y})
	return err
}

// ResizeElement sets the size of the element with id
func (s *Store) ResizeElement(id string, width, height float64) error {
	if width <= 0 || height <= 0 {
		return ErrInvalidDimensions
	}
	_, err := s.UpdateElement(id, ElementPatch{Width: &width, Height: &height})
	return err
}

// DuplicateElement copies the element with id, with fresh ids, directly after it
func (s *Store) DuplicateElement(id string) (models.Element, error) {
	var dup models.Element
	err := s.mutate(func(t *models.Template) error {
		siblings, idx := locate((*[]models.Element)(&t.Elements), id)
		if siblings == nil {
			return fmt.Errorf("element %q: %w", id, ErrElementNotFound)
		}

		copyEl := (*siblings)[idx].Clone()
		assignIDs(&copyEl, t, true)
		copyEl.X += duplicateOffset
		copyEl.Y += duplicateOffset
		copyEl.ZIndex = topZ(*siblings) + 1

		list := append([]models.Element{}, (*siblings)[:idx+1]...)
		list = append(list, copyEl)
		list = append(list, (*siblings)[idx+1:]...)
		*siblings = list

		dup = copyEl.Clone()
		return nil
	})
	if err == nil {
		s.mu.Lock()
		s.selected = dup.ID
		s.mu.Unlock()
	}
	return dup, err
}

// SetLayout replaces the page layout
func (s *Store) SetLayout(layout models.Layout) error {
	if layout.Width <= 0 || layout.Height <= 0 {
		return ErrInvalidDimensions
	}
	return s.mutate(func(t *models.Template) error {
		t.Layout = layout
		return nil
	})
}

// Select marks an element as selected; an empty id clears the selection
func (s *Store) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if _, ok := s.current.FindElement(id); !ok {
			return fmt.Errorf("element %q: %w", id, ErrElementNotFound)
		}
	}
	s.selected = id
	return nil
}

// Undo restores the previous snapshot
func (s *Store) Undo() (*models.Template, error) {
	return s.travel(s.history.Undo)
}

// Redo restores the next snapshot
func (s *Store) Redo() (*models.Template, error) {
	return s.travel(s.history.Redo)
}

func (s *Store) travel(step func() (*models.Template, error)) (*models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, err := step()
	if err != nil {
		return nil, err
	}
	s.current = snapshot
	s.dirty = true
	s.revision++
	if s.selected != "" {
		if _, ok := snapshot.FindElement(s.selected); !ok {
			s.selected = ""
		}
	}
	return snapshot.Clone(), nil
}

// CanUndo reports whether Undo would succeed
func (s *Store) CanUndo() bool {
	return s.history.CanUndo()
}

// CanRedo reports whether Redo would succeed
func (s *Store) CanRedo() bool {
	return s.history.CanRedo()
}

// MarkSaved clears the dirty flag
func (s *Store) MarkSaved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = false
}

// MarkSavedAt clears the dirty flag only if no edit happened since revision
// rev was taken. It reports whether the store is now clean.
func (s *Store) MarkSavedAt(rev uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revision != rev {
		return false
	}
	s.dirty = false
	return true
}

func applyPatch(el *models.Element, p ElementPatch) {
	if p.Content != nil {
		el.Content = *p.Content
	}
	if p.Src != nil {
		el.Src = *p.Src
	}
	if p.Images != nil {
		el.Images = append([]string(nil), p.Images...)
	}
	if len(p.Style) > 0 {
		if el.Style == nil {
			el.Style = make(map[string]string, len(p.Style))
		}
		for k, v := range p.Style {
			if v == "" {
				delete(el.Style, k)
			} else {
				el.Style[k] = v
			}
		}
	}
	setFloat(&el.X, p.X)
	setFloat(&el.Y, p.Y)
	setFloat(&el.Width, p.Width)
	setFloat(&el.Height, p.Height)
	setFloat(&el.Rotation, p.Rotation)
	if p.ZIndex != nil {
		el.ZIndex = *p.ZIndex
	}
	if p.Editable != nil {
		el.Editable = *p.Editable
	}
	if p.FieldKey != nil {
		el.FieldKey = *p.FieldKey
	}
	if p.Label != nil {
		el.Label = *p.Label
	}
	if p.Placeholder != nil {
		el.Placeholder = *p.Placeholder
	}
	if p.Required != nil {
		el.Required = *p.Required
	}
	if p.FieldType != nil {
		el.FieldType = *p.FieldType
	}
	if p.Group != nil {
		el.Group = *p.Group
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

// assignIDs gives el (and, when fresh, all its children) new unique ids
func assignIDs(el *models.Element, t *models.Template, fresh bool) {
	if fresh || el.ID == "" {
		el.ID = newID(t)
	}
	for i := range el.Children {
		assignIDs(&el.Children[i], t, fresh)
	}
}

// duplicateID reports the first id in el's subtree that already exists in t
// or repeats within the subtree
func duplicateID(el models.Element, t *models.Template, seen map[string]bool) (string, bool) {
	if seen[el.ID] {
		return el.ID, true
	}
	if _, exists := t.FindElement(el.ID); exists {
		return el.ID, true
	}
	seen[el.ID] = true
	for _, child := range el.Children {
		if id, dup := duplicateID(child, t, seen); dup {
			return id, true
		}
	}
	return "", false
}

func newID(t *models.Template) string {
	return t.NewElementID()
}

func topZ(elements []models.Element) int {
	top := 0
	for _, e := range elements {
		if e.ZIndex > top {
			top = e.ZIndex
		}
	}
	return top
}

// locate returns the slice holding id and its index within it
func locate(elements *[]models.Element, id string) (*[]models.Element, int) {
	for i := range *elements {
		if (*elements)[i].ID == id {
			return elements, i
		}
		if list, idx := locate(&(*elements)[i].Children, id); list != nil {
			return list, idx
		}
	}
	return nil, -1
}

func removeElement(elements *[]models.Element, id string) bool {
	list, idx := locate(elements, id)
	if list == nil {
		return false
	}
	*list = append((*list)[:idx:idx], (*list)[idx+1:]...)
	return true
}
