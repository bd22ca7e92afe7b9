package render

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/makemykankotri/kankotri/pkg/models"
)

// ExpandFormData converts flat dot-keyed answers into a nested document:
// {"bride.name": "Asha"} becomes {"bride": {"name": "Asha"}}.
// When a key is both a value and a prefix the nested keys win.
func ExpandFormData(values map[string]interface{}) (models.JSONMap, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := "{}"
	for _, key := range keys {
		if strings.TrimSpace(key) == "" {
			continue
		}
		path := escapeKey(key)
		if parent := parentPath(path); parent != "" {
			if existing := gjson.Get(doc, parent); existing.Exists() && !existing.IsObject() {
				var err error
				if doc, err = sjson.Delete(doc, parent); err != nil {
					return nil, errors.Wrapf(err, "failed to reset %q", key)
				}
			}
		}
		var err error
		doc, err = sjson.Set(doc, path, values[key])
		if err != nil {
			return nil, errors.Wrapf(err, "failed to set %q", key)
		}
	}

	out := models.JSONMap{}
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return nil, errors.Wrap(err, "failed to decode expanded data")
	}
	return out, nil
}

// escapeKey keeps path syntax characters other than the dot literal
func escapeKey(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		switch c := key[i]; c {
		case '*', '?', '|', '#', '@', '!':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func parentPath(path string) string {
	for i := len(path) - 1; i > 0; i-- {
		if path[i] == '.' && path[i-1] != '\\' {
			return path[:i]
		}
	}
	return ""
}
