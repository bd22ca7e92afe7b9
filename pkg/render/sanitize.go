package render

import (
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var cssValueRe = regexp.MustCompile(`^[#%(),.\w\s-]+$`)

// layoutStyles are the CSS properties the editor can emit on elements
var layoutStyles = []string{
	"position", "left", "top", "width", "height", "z-index", "transform",
	"color", "background-color", "opacity", "border", "border-radius",
	"font-family", "font-size", "font-weight", "font-style", "line-height",
	"letter-spacing", "text-align", "text-transform", "text-decoration",
	"padding", "margin", "object-fit", "overflow", "white-space",
}

// Sanitizer cleans user supplied text and rendered markup
type Sanitizer struct {
	strictOnce sync.Once
	strict     *bluemonday.Policy
	ugcOnce    sync.Once
	ugc        *bluemonday.Policy
	pageOnce   sync.Once
	page       *bluemonday.Policy
}

// NewSanitizer creates a Sanitizer; policies are built on first use
func NewSanitizer() *Sanitizer {
	return &Sanitizer{}
}

// Text strips every tag and returns plain text
func (s *Sanitizer) Text(raw string) string {
	s.strictOnce.Do(func() {
		s.strict = bluemonday.StrictPolicy()
	})
	return strings.TrimSpace(html.UnescapeString(s.strict.Sanitize(raw)))
}

// RichText keeps basic formatting markup safe for user generated content
func (s *Sanitizer) RichText(raw string) string {
	s.ugcOnce.Do(func() {
		s.ugc = bluemonday.UGCPolicy()
	})
	return s.ugc.Sanitize(raw)
}

// Page cleans a rendered invitation body, keeping positioning styles
func (s *Sanitizer) Page(raw string) string {
	s.pageOnce.Do(func() {
		policy := bluemonday.UGCPolicy()
		policy.AllowElements("div", "span", "img", "p", "br", "strong", "em", "u")
		policy.AllowAttrs("class").Matching(regexp.MustCompile(`^[\w\s-]+$`)).Globally()
		policy.AllowAttrs("data-element-id").Matching(regexp.MustCompile(`^[\w-]+$`)).Globally()
		policy.AllowAttrs("src", "alt", "loading").OnElements("img")
		policy.AllowURLSchemes("http", "https")
		policy.AllowRelativeURLs(true)
		policy.AllowStyles(layoutStyles...).Matching(cssValueRe).Globally()
		s.page = policy
	})
	return s.page.Sanitize(raw)
}

// Values applies Text to every string in a flat answer map, in place
func (s *Sanitizer) Values(values map[string]interface{}) {
	for k, v := range values {
		switch val := v.(type) {
		case string:
			values[k] = s.Text(val)
		case []interface{}:
			for i, item := range val {
				if str, ok := item.(string); ok {
					val[i] = s.Text(str)
				}
			}
		case []string:
			for i, item := range val {
				val[i] = s.Text(item)
			}
		}
	}
}
