// Package catalog reads template catalogs written in YAML. A catalog seeds a
// fresh database with ready-made designs.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/makemykankotri/kankotri/pkg/models"
	"github.com/makemykankotri/kankotri/pkg/validation"
)

//go:embed default.yaml
var defaultCatalog []byte

// Entry is one template of a catalog
type Entry struct {
	Template models.TemplateInput
	Publish  bool
}

type document struct {
	Templates []map[string]interface{} `yaml:"templates"`
}

// Load parses a catalog. Every template is checked against the template
// schema; the first invalid one fails the whole load.
func Load(r io.Reader, v *validation.Validator) ([]Entry, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to parse catalog")
	}

	entries := make([]Entry, 0, len(doc.Templates))
	slugs := make(map[string]int)
	for i, raw := range doc.Templates {
		entry, err := decodeEntry(raw, v)
		if err != nil {
			return nil, errors.Wrapf(err, "template %d", i+1)
		}
		if entry.Template.Slug != "" {
			if prev, dup := slugs[entry.Template.Slug]; dup {
				return nil, errors.Errorf("template %d: slug %q already used by template %d", i+1, entry.Template.Slug, prev)
			}
			slugs[entry.Template.Slug] = i + 1
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Default returns the built-in catalog
func Default(v *validation.Validator) ([]Entry, error) {
	return Load(bytes.NewReader(defaultCatalog), v)
}

func decodeEntry(raw map[string]interface{}, v *validation.Validator) (Entry, error) {
	var entry Entry
	if p, ok := raw["publish"]; ok {
		b, ok := p.(bool)
		if !ok {
			return entry, errors.New("publish must be a boolean")
		}
		entry.Publish = b
		delete(raw, "publish")
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return entry, errors.Wrap(err, "failed to encode template")
	}
	if v != nil {
		if err := v.Validate(validation.Template, data); err != nil {
			return entry, err
		}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&entry.Template); err != nil {
		return entry, errors.Wrap(err, "failed to decode template")
	}
	entry.Template.Name = strings.TrimSpace(entry.Template.Name)
	return entry, nil
}
