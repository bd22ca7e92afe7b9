package models

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DeriveEditableFields walks the element tree and returns one form field per
// editable element. Keys come from FieldKey, falling back to the element ID;
// the first element claiming a key wins.
func DeriveEditableFields(elements []Element) EditableFieldList {
	fields := EditableFieldList{}
	seen := make(map[string]struct{})
	collectFields(elements, seen, &fields)
	return fields
}

func collectFields(elements []Element, seen map[string]struct{}, out *EditableFieldList) {
	for _, e := range elements {
		if e.Editable && e.Type != ElementContainer {
			key := e.FieldKey
			if key == "" {
				key = e.ID
			}
			if _, dup := seen[key]; !dup && key != "" {
				seen[key] = struct{}{}
				*out = append(*out, fieldFor(e, key))
			}
		}
		if len(e.Children) > 0 {
			collectFields(e.Children, seen, out)
		}
	}
}

func fieldFor(e Element, key string) EditableField {
	label := e.Label
	if label == "" {
		label = humanize(key)
	}

	f := EditableField{
		Key:         key,
		Label:       label,
		Type:        e.FieldType,
		Required:    e.Required,
		Placeholder: e.Placeholder,
		ElementID:   e.ID,
		Group:       e.Group,
	}

	if f.Type == "" {
		switch e.Type {
		case ElementImage:
			f.Type = FieldImage
		case ElementGallery:
			f.Type = FieldGallery
		default:
			f.Type = FieldText
		}
	}

	switch f.Type {
	case FieldImage:
		f.Default = e.Src
	case FieldText, FieldTextarea:
		if !strings.Contains(e.Content, "{{") {
			f.Default = e.Content
		}
	}

	if f.Group == "" {
		if i := strings.Index(key, "."); i > 0 {
			f.Group = key[:i]
		}
	}
	return f
}

// humanize turns "bride.full_name" into "Bride Full Name"
func humanize(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	for i, p := range parts {
		parts[i] = UpperFirst(p)
	}
	return strings.Join(parts, " ")
}

// UpperFirst upper-cases the first rune of s. Scripts without case, such as
// Gujarati, come back unchanged.
func UpperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
