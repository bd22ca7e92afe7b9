package render

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"io/fs"
	"regexp"
	"sort"
	"strings"

	"github.com/flosch/pongo2/v6"
	"github.com/pkg/errors"

	"github.com/makemykankotri/kankotri/pkg/injector"
	"github.com/makemykankotri/kankotri/pkg/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var styleKeyRe = regexp.MustCompile(`^[a-z-]+$`)

// Options control a single render
type Options struct {
	// RichText keeps sanitized markup in static text content instead of escaping it
	RichText    bool
	Title       string
	Description string
	Language    string
}

// HTMLRenderer renders a template with data into a standalone HTML page
type HTMLRenderer struct {
	page      *pongo2.Template
	element   *pongo2.Template
	sanitizer *Sanitizer
}

// NewHTMLRenderer loads the embedded page templates
func NewHTMLRenderer(sanitizer *Sanitizer) (*HTMLRenderer, error) {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open embedded templates")
	}
	set := pongo2.NewSet("kankotri", pongo2.NewFSLoader(sub))

	page, err := set.FromFile("invitation.html")
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse page template")
	}
	element, err := set.FromFile("element.html")
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse element template")
	}

	if sanitizer == nil {
		sanitizer = NewSanitizer()
	}
	return &HTMLRenderer{page: page, element: element, sanitizer: sanitizer}, nil
}

// elementView is what the element template sees
type elementView struct {
	ID       string
	Type     string
	Style    string
	Content  string
	Src      string
	Alt      string
	Images   []string
	Children string
}

// Render produces the HTML page for t filled with data
func (r *HTMLRenderer) Render(t *models.Template, data interface{}, opts Options) (string, error) {
	src, err := injector.NewSource(data)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode invitation data")
	}

	filled, err := injector.InjectTemplate(t, data)
	if err != nil {
		return "", errors.Wrap(err, "failed to inject invitation data")
	}

	body, err := r.renderElements(t.Elements, filled.Elements, src, opts)
	if err != nil {
		return "", err
	}

	title := opts.Title
	if title == "" {
		title = t.Name
	}
	lang := opts.Language
	if lang == "" {
		lang = "en"
	}

	var buf bytes.Buffer
	err = r.page.ExecuteWriter(pongo2.Context{
		"title":       title,
		"description": opts.Description,
		"lang":        lang,
		"slug":        t.Slug,
		"layout":      t.Layout,
		"body":        r.sanitizer.Page(body),
	}, &buf)
	if err != nil {
		return "", errors.Wrap(err, "failed to render invitation page")
	}
	return buf.String(), nil
}

// renderElements walks the original and the filled trees side by side; text
// content is rebuilt from the original so injected values can be escaped.
func (r *HTMLRenderer) renderElements(original, filled []models.Element, src *injector.Source, opts Options) (string, error) {
	ordered := make([]int, len(filled))
	for i := range ordered {
		ordered[i] = i
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		return filled[ordered[a]].ZIndex < filled[ordered[b]].ZIndex
	})

	var out strings.Builder
	for _, i := range ordered {
		orig, el := original[i], filled[i]

		view := elementView{
			ID:     el.ID,
			Type:   string(el.Type),
			Style:  elementStyle(el),
			Src:    el.Src,
			Alt:    el.Label,
			Images: el.Images,
		}

		switch el.Type {
		case models.ElementContainer:
			children, err := r.renderElements(orig.Children, el.Children, src, opts)
			if err != nil {
				return "", err
			}
			view.Children = children
		case models.ElementImage, models.ElementGallery:
		default:
			view.Content = r.textContent(orig, src, opts)
		}

		var buf bytes.Buffer
		if err := r.element.ExecuteWriter(pongo2.Context{"el": view}, &buf); err != nil {
			return "", errors.Wrapf(err, "failed to render element %s", el.ID)
		}
		out.Write(buf.Bytes())
	}
	return out.String(), nil
}

func (r *HTMLRenderer) textContent(el models.Element, src *injector.Source, opts Options) string {
	if el.Editable {
		key := el.FieldKey
		if key == "" {
			key = el.ID
		}
		if v, ok := src.Lookup(key); ok {
			return lineBreaks(html.EscapeString(v))
		}
	}

	if opts.RichText {
		return r.sanitizer.RichText(src.Replace(el.Content, html.EscapeString))
	}
	return lineBreaks(src.Replace(html.EscapeString(el.Content), html.EscapeString))
}

func lineBreaks(s string) string {
	return strings.ReplaceAll(s, "\n", "<br>")
}

// elementStyle builds the inline CSS positioning an element on the page
func elementStyle(el models.Element) string {
	var b strings.Builder
	fmt.Fprintf(&b, "left: %gpx; top: %gpx; width: %gpx; height: %gpx; z-index: %d;",
		el.X, el.Y, el.Width, el.Height, el.ZIndex)
	if el.Rotation != 0 {
		fmt.Fprintf(&b, " transform: rotate(%gdeg);", el.Rotation)
	}

	keys := make([]string, 0, len(el.Style))
	for k := range el.Style {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := el.Style[k]
		css := toKebab(k)
		if !styleKeyRe.MatchString(css) || !cssValueRe.MatchString(v) {
			continue
		}
		fmt.Fprintf(&b, " %s: %s;", css, v)
	}
	return b.String()
}

// toKebab maps editor style keys such as fontSize to font-size
func toKebab(key string) string {
	var b strings.Builder
	for i, r := range key {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
