// Package injector replaces {{ key.path }} placeholders in template text with
// values looked up in a nested data document. Placeholders whose key is
// missing, or resolves to null, an object, or an array, are left verbatim.
package injector

import (
	"encoding/json"
	"regexp"

	"github.com/tidwall/gjson"

	"github.com/makemykankotri/kankotri/pkg/models"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Source is a parsed data document ready for repeated lookups
type Source struct {
	raw string
}

// NewSource encodes data as JSON once so lookups can use gjson paths.
// data may be a map, a struct, raw JSON bytes, or a json.RawMessage.
func NewSource(data interface{}) (*Source, error) {
	switch v := data.(type) {
	case nil:
		return &Source{raw: "{}"}, nil
	case []byte:
		return &Source{raw: string(v)}, nil
	case json.RawMessage:
		return &Source{raw: string(v)}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Source{raw: string(raw)}, nil
}

// Lookup resolves a dot path to its substitution text
func (s *Source) Lookup(key string) (string, bool) {
	res := gjson.Get(s.raw, escapePath(key))
	switch res.Type {
	case gjson.String:
		return res.Str, true
	case gjson.Number:
		return res.Raw, true
	case gjson.True:
		return "true", true
	case gjson.False:
		return "false", true
	default:
		return "", false
	}
}

// escapePath keeps gjson wildcard and modifier characters literal
func escapePath(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		switch c := key[i]; c {
		case '*', '?', '|', '#', '@', '!', '=', '<', '>', '%':
			out = append(out, '\\', c)
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

// Replace substitutes placeholders using the source, passing each resolved
// value through escape when it is non-nil
func (s *Source) Replace(text string, escape func(string) string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]
		value, ok := s.Lookup(key)
		if !ok {
			return match
		}
		if escape != nil {
			return escape(value)
		}
		return value
	})
}

// Inject replaces placeholders in text with values from data
func Inject(text string, data interface{}) (string, error) {
	return InjectEscaped(text, data, nil)
}

// InjectEscaped is Inject with every substituted value passed through escape
func InjectEscaped(text string, data interface{}, escape func(string) string) (string, error) {
	src, err := NewSource(data)
	if err != nil {
		return "", err
	}
	return src.Replace(text, escape), nil
}

// Placeholders lists the distinct keys referenced in text, in order of first use
func Placeholders(text string) []string {
	matches := placeholderRe.FindAllStringSubmatch(text, -1)
	seen := make(map[string]struct{}, len(matches))
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		keys = append(keys, m[1])
	}
	return keys
}

// InjectTemplate returns a copy of t with placeholders in every element's
// content resolved. Editable elements additionally take their own field value:
// text elements as content, image elements as src, gallery elements as images.
func InjectTemplate(t *models.Template, data interface{}) (*models.Template, error) {
	src, err := NewSource(data)
	if err != nil {
		return nil, err
	}
	out := t.Clone()
	injectElements(out.Elements, src)
	return out, nil
}

func injectElements(elements []models.Element, src *Source) {
	for i := range elements {
		e := &elements[i]
		key := e.FieldKey
		if key == "" {
			key = e.ID
		}

		// values supplied by the data are final; only template-authored
		// text is scanned for placeholders
		contentSet, srcSet := false, false
		if e.Editable {
			switch e.Type {
			case models.ElementImage:
				if v, ok := src.Lookup(key); ok && v != "" {
					e.Src, srcSet = v, true
				}
			case models.ElementGallery:
				if images := src.strings(key); len(images) > 0 {
					e.Images = images
				}
			case models.ElementText:
				if v, ok := src.Lookup(key); ok {
					e.Content, contentSet = v, true
				}
			}
		}

		if !contentSet {
			e.Content = src.Replace(e.Content, nil)
		}
		if !srcSet {
			e.Src = src.Replace(e.Src, nil)
		}
		if len(e.Children) > 0 {
			injectElements(e.Children, src)
		}
	}
}

// strings returns the string members of an array value
func (s *Source) strings(key string) []string {
	res := gjson.Get(s.raw, escapePath(key))
	if !res.IsArray() {
		return nil
	}
	var out []string
	for _, item := range res.Array() {
		if item.Type == gjson.String && item.Str != "" {
			out = append(out, item.Str)
		}
	}
	return out
}
