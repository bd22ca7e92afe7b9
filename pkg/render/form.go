// Package render turns templates into the user-facing form and the HTML
// preview of a filled-in invitation.
package render

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/makemykankotri/kankotri/pkg/models"
)

// Length limits for free-text answers
const (
	MaxTextLength     = 200
	MaxTextareaLength = 2000
	MaxGalleryImages  = 12
)

// Form is the input model derived from a template's editable fields
type Form struct {
	TemplateID   string      `json:"templateId"`
	TemplateName string      `json:"templateName"`
	Groups       []FormGroup `json:"groups"`
}

// FormGroup collects the fields sharing a key prefix
type FormGroup struct {
	Name   string      `json:"name"`
	Label  string      `json:"label"`
	Fields []FormField `json:"fields"`
}

// FormField is a single input with its validation hints
type FormField struct {
	Key         string           `json:"key"`
	Label       string           `json:"label"`
	Type        models.FieldType `json:"type"`
	InputType   string           `json:"inputType"`
	Required    bool             `json:"required"`
	Placeholder string           `json:"placeholder,omitempty"`
	Default     string           `json:"default,omitempty"`
	Pattern     string           `json:"pattern,omitempty"`
	MaxLength   int              `json:"maxLength,omitempty"`
	Multiple    bool             `json:"multiple,omitempty"`
}

// Fields returns every field across groups in form order
func (f *Form) Fields() []FormField {
	var out []FormField
	for _, g := range f.Groups {
		out = append(out, g.Fields...)
	}
	return out
}

// BuildForm creates the form for t. Ungrouped fields come first, then groups
// in order of their first field.
func BuildForm(t *models.Template) *Form {
	fields := t.EditableFields
	if len(fields) == 0 {
		fields = models.DeriveEditableFields(t.Elements)
	}

	form := &Form{TemplateID: t.ID.String(), TemplateName: t.Name}
	index := make(map[string]int)

	for _, ef := range fields {
		ff := formField(ef)
		name := ef.Group
		i, ok := index[name]
		if !ok {
			i = len(form.Groups)
			index[name] = i
			form.Groups = append(form.Groups, FormGroup{Name: name, Label: groupLabel(name)})
		}
		form.Groups[i].Fields = append(form.Groups[i].Fields, ff)
	}

	sort.SliceStable(form.Groups, func(a, b int) bool {
		return form.Groups[a].Name == "" && form.Groups[b].Name != ""
	})
	return form
}

func formField(ef models.EditableField) FormField {
	ff := FormField{
		Key:         ef.Key,
		Label:       ef.Label,
		Type:        ef.Type,
		Required:    ef.Required,
		Placeholder: ef.Placeholder,
		Default:     ef.Default,
	}

	switch ef.Type {
	case models.FieldTextarea:
		ff.InputType = "textarea"
		ff.MaxLength = MaxTextareaLength
	case models.FieldDate:
		ff.InputType = "date"
		ff.Pattern = `\d{4}-\d{2}-\d{2}`
	case models.FieldTime:
		ff.InputType = "time"
		ff.Pattern = `\d{2}:\d{2}`
	case models.FieldImage:
		ff.InputType = "file"
	case models.FieldGallery:
		ff.InputType = "file"
		ff.Multiple = true
	default:
		ff.Type = models.FieldText
		ff.InputType = "text"
		ff.MaxLength = MaxTextLength
	}
	return ff
}

func groupLabel(name string) string {
	if name == "" {
		return "Details"
	}
	return models.UpperFirst(strings.ReplaceAll(name, "_", " "))
}

// ValidationError lists per-field problems with a submission
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid submission: " + strings.Join(parts, "; ")
}

// ValidateSubmission checks values, keyed by field key, against the form.
// Unknown keys are ignored.
func ValidateSubmission(form *Form, values map[string]interface{}) error {
	problems := make(map[string]string)

	for _, f := range form.Fields() {
		raw, present := values[f.Key]
		if msg := validateField(f, raw, present); msg != "" {
			problems[f.Key] = msg
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Fields: problems}
	}
	return nil
}

func validateField(f FormField, raw interface{}, present bool) string {
	if f.Type == models.FieldGallery {
		images, ok := stringList(raw)
		if present && raw != nil && !ok {
			return "must be a list of image URLs"
		}
		if f.Required && len(images) == 0 {
			return "is required"
		}
		if len(images) > MaxGalleryImages {
			return fmt.Sprintf("accepts at most %d images", MaxGalleryImages)
		}
		return ""
	}

	var value string
	switch v := raw.(type) {
	case nil:
	case string:
		value = strings.TrimSpace(v)
	case float64, int, int64, bool:
		value = fmt.Sprint(v)
	default:
		return "must be a single value"
	}

	if value == "" {
		if f.Required {
			return "is required"
		}
		return ""
	}

	switch f.Type {
	case models.FieldDate:
		if _, err := time.Parse("2006-01-02", value); err != nil {
			return "must be a date in YYYY-MM-DD format"
		}
	case models.FieldTime:
		if _, err := time.Parse("15:04", value); err != nil || len(value) != 5 {
			return "must be a time in HH:MM format"
		}
	}

	if f.MaxLength > 0 && len([]rune(value)) > f.MaxLength {
		return fmt.Sprintf("must be at most %d characters", f.MaxLength)
	}
	return ""
}

func stringList(raw interface{}) ([]string, bool) {
	switch v := raw.(type) {
	case nil:
		return nil, true
	case []string:
		return v, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			if s != "" {
				out = append(out, s)
			}
		}
		return out, true
	}
	return nil, false
}
