// Package models defines the persisted entities of the invitation builder.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ElementType enumerates the kinds of positioned nodes in a template
type ElementType string

// Element types
const (
	ElementText      ElementType = "text"
	ElementImage     ElementType = "image"
	ElementGallery   ElementType = "gallery"
	ElementContainer ElementType = "container"
)

// Valid reports whether the element type is known
func (t ElementType) Valid() bool {
	switch t {
	case ElementText, ElementImage, ElementGallery, ElementContainer:
		return true
	}
	return false
}

// FieldType enumerates the input kinds used on the generated form
type FieldType string

// Field types
const (
	FieldText     FieldType = "text"
	FieldTextarea FieldType = "textarea"
	FieldDate     FieldType = "date"
	FieldTime     FieldType = "time"
	FieldImage    FieldType = "image"
	FieldGallery  FieldType = "gallery"
)

// Element is a positioned content node within a template
type Element struct {
	ID          string            `json:"id"`
	Type        ElementType       `json:"type"`
	X           float64           `json:"x"`
	Y           float64           `json:"y"`
	Width       float64           `json:"width"`
	Height      float64           `json:"height"`
	Rotation    float64           `json:"rotation,omitempty"`
	ZIndex      int               `json:"zIndex,omitempty"`
	Content     string            `json:"content,omitempty"`
	Src         string            `json:"src,omitempty"`
	Images      []string          `json:"images,omitempty"`
	Style       map[string]string `json:"style,omitempty"`
	Children    []Element         `json:"children,omitempty"`
	Editable    bool              `json:"editable,omitempty"`
	FieldKey    string            `json:"fieldKey,omitempty"`
	Label       string            `json:"label,omitempty"`
	Placeholder string            `json:"placeholder,omitempty"`
	Required    bool              `json:"required,omitempty"`
	FieldType   FieldType         `json:"fieldType,omitempty"`
	Group       string            `json:"group,omitempty"`
}

// Clone deep-copies the element and its children
func (e Element) Clone() Element {
	out := e
	if e.Images != nil {
		out.Images = append([]string(nil), e.Images...)
	}
	if e.Style != nil {
		out.Style = make(map[string]string, len(e.Style))
		for k, v := range e.Style {
			out.Style[k] = v
		}
	}
	if e.Children != nil {
		out.Children = make([]Element, len(e.Children))
		for i, child := range e.Children {
			out.Children[i] = child.Clone()
		}
	}
	return out
}

// ElementList is the jsonb column holding a template's element tree
type ElementList []Element

// Value implements driver.Valuer
func (l ElementList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner
func (l *ElementList) Scan(value interface{}) error {
	return scanJSON(value, (*[]Element)(l))
}

// Clone deep-copies the list
func (l ElementList) Clone() ElementList {
	if l == nil {
		return nil
	}
	out := make(ElementList, len(l))
	for i, e := range l {
		out[i] = e.Clone()
	}
	return out
}

// Layout holds page-level settings of a template
type Layout struct {
	Width           float64 `json:"width"`
	Height          float64 `json:"height"`
	BackgroundColor string  `json:"backgroundColor,omitempty"`
	BackgroundImage string  `json:"backgroundImage,omitempty"`
	FontFamily      string  `json:"fontFamily,omitempty"`
	Orientation     string  `json:"orientation,omitempty"`
}

// DefaultLayout is an A5 portrait card
func DefaultLayout() Layout {
	return Layout{Width: 559, Height: 794, BackgroundColor: "#fffaf0", Orientation: "portrait"}
}

// Value implements driver.Valuer
func (l Layout) Value() (driver.Value, error) {
	return json.Marshal(l)
}

// Scan implements sql.Scanner
func (l *Layout) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// EditableField is an element exposed on the user-facing form
type EditableField struct {
	Key         string    `json:"key"`
	Label       string    `json:"label"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required,omitempty"`
	Placeholder string    `json:"placeholder,omitempty"`
	Default     string    `json:"default,omitempty"`
	ElementID   string    `json:"elementId"`
	Group       string    `json:"group,omitempty"`
}

// EditableFieldList is the jsonb column holding derived form fields
type EditableFieldList []EditableField

// Value implements driver.Valuer
func (l EditableFieldList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner
func (l *EditableFieldList) Scan(value interface{}) error {
	return scanJSON(value, (*[]EditableField)(l))
}

// Template is a persisted invitation design
type Template struct {
	ID             uuid.UUID         `json:"id" db:"id"`
	Name           string            `json:"name" db:"name"`
	Slug           string            `json:"slug" db:"slug"`
	Description    string            `json:"description" db:"description"`
	Category       string            `json:"category" db:"category"`
	ThumbnailURL   string            `json:"thumbnailUrl" db:"thumbnail_url"`
	Elements       ElementList       `json:"elements" db:"elements"`
	Layout         Layout            `json:"layout" db:"layout"`
	EditableFields EditableFieldList `json:"editableFields" db:"editable_fields"`
	IsPublished    bool              `json:"isPublished" db:"is_published"`
	PublishedAt    *time.Time        `json:"publishedAt,omitempty" db:"published_at"`
	ViewCount      int64             `json:"viewCount" db:"view_count"`
	UseCount       int64             `json:"useCount" db:"use_count"`
	CreatedBy      string            `json:"createdBy,omitempty" db:"created_by"`
	CreatedAt      time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time         `json:"updatedAt" db:"updated_at"`
}

// Clone returns a deep copy of the template
func (t *Template) Clone() *Template {
	if t == nil {
		return nil
	}
	out := *t
	out.Elements = t.Elements.Clone()
	if t.EditableFields != nil {
		out.EditableFields = append(EditableFieldList(nil), t.EditableFields...)
	}
	if t.PublishedAt != nil {
		at := *t.PublishedAt
		out.PublishedAt = &at
	}
	return &out
}

// FindElement returns the element with the given id, searching containers
func (t *Template) FindElement(id string) (*Element, bool) {
	return findElement(t.Elements, id)
}

func findElement(elements []Element, id string) (*Element, bool) {
	for i := range elements {
		if elements[i].ID == id {
			return &elements[i], true
		}
		if found, ok := findElement(elements[i].Children, id); ok {
			return found, true
		}
	}
	return nil, false
}

// NewElementID returns an element id not yet used in t
func (t *Template) NewElementID() string {
	for {
		id := "el-" + uuid.NewString()[:8]
		if _, taken := t.FindElement(id); !taken {
			return id
		}
	}
}

// EnsureElementIDs assigns ids to elements that have none
func (t *Template) EnsureElementIDs() {
	ensureIDs(t, t.Elements)
}

func ensureIDs(t *Template, elements []Element) {
	for i := range elements {
		if elements[i].ID == "" {
			elements[i].ID = t.NewElementID()
		}
		ensureIDs(t, elements[i].Children)
	}
}

// TemplateInput is the payload for creating or replacing a template
type TemplateInput struct {
	Name         string      `json:"name"`
	Slug         string      `json:"slug,omitempty"`
	Description  string      `json:"description,omitempty"`
	Category     string      `json:"category,omitempty"`
	ThumbnailURL string      `json:"thumbnailUrl,omitempty"`
	Elements     ElementList `json:"elements"`
	Layout       *Layout     `json:"layout,omitempty"`
}

// TemplateFilter narrows template listings
type TemplateFilter struct {
	Category      string
	Query         string
	PublishedOnly bool
	Limit         int
	Offset        int
}
