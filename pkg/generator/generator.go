// Package generator produces invitation copy from a few wedding details.
package generator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Kind selects what kind of copy to write
type Kind string

const (
	KindInvitation  Kind = "invitation"
	KindWelcome     Kind = "welcome"
	KindStory       Kind = "story"
	KindEventDetail Kind = "event_detail"
)

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	switch k {
	case KindInvitation, KindWelcome, KindStory, KindEventDetail:
		return true
	}
	return false
}

// Defaults applied to empty request fields
const (
	DefaultTone     = "warm"
	DefaultLanguage = "English"
)

// ErrInvalidRequest is returned for requests that cannot be generated
var ErrInvalidRequest = errors.New("invalid generation request")

// Request describes the copy to generate
type Request struct {
	Kind     Kind              `json:"kind"`
	Details  map[string]string `json:"details"`
	Tone     string            `json:"tone,omitempty"`
	Language string            `json:"language,omitempty"`
}

// Content is generated copy
type Content struct {
	Kind   Kind   `json:"kind"`
	Text   string `json:"text"`
	Model  string `json:"model"`
	Tokens int    `json:"tokens,omitempty"`
}

// Generator writes invitation copy
type Generator interface {
	Generate(ctx context.Context, req Request) (*Content, error)
}

// Normalize validates req and fills defaults
func (r Request) Normalize() (Request, error) {
	if !r.Kind.Valid() {
		return r, errors.Wrapf(ErrInvalidRequest, "unknown kind %q", r.Kind)
	}
	details := make(map[string]string, len(r.Details))
	for k, v := range r.Details {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k != "" && v != "" {
			details[k] = v
		}
	}
	if len(details) == 0 {
		return r, errors.Wrap(ErrInvalidRequest, "details are required")
	}
	r.Details = details
	if r.Tone == "" {
		r.Tone = DefaultTone
	}
	if r.Language == "" {
		r.Language = DefaultLanguage
	}
	return r, nil
}

var kindInstructions = map[Kind]string{
	KindInvitation:  "Write the main wording of a wedding invitation card (kankotri), 60 to 90 words.",
	KindWelcome:     "Write a short welcome message for guests arriving at the wedding, 30 to 50 words.",
	KindStory:       "Write the couple's story for the invitation, 80 to 120 words.",
	KindEventDetail: "Write a description of a single wedding ceremony for the invitation, 30 to 60 words.",
}

// Prompt builds the user prompt for req; req must be normalized
func Prompt(req Request) string {
	var b strings.Builder
	b.WriteString(kindInstructions[req.Kind])
	fmt.Fprintf(&b, "\nTone: %s.\nLanguage: %s.\nDetails:\n", req.Tone, req.Language)
	for _, k := range sortedKeys(req.Details) {
		fmt.Fprintf(&b, "- %s: %s\n", k, req.Details[k])
	}
	b.WriteString("Reply with the text only, no heading and no quotes.")
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
