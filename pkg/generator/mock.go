package generator

import (
	"context"
	"fmt"
	"strings"
)

// MockModelID is reported by MockGenerator
const MockModelID = "mock"

// MockGenerator builds deterministic copy from the request details. It is
// used in development and whenever no model is configured.
type MockGenerator struct{}

// NewMockGenerator creates a MockGenerator
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate implements Generator
func (m *MockGenerator) Generate(ctx context.Context, req Request) (*Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}

	d := req.Details
	couple := joinNonEmpty(" & ", d["bride"], d["groom"])
	if couple == "" {
		couple = "the couple"
	}

	var text string
	switch req.Kind {
	case KindInvitation:
		text = fmt.Sprintf("With the blessings of our elders, %s request the pleasure of your company as they begin their journey together.", couple)
		if when := joinNonEmpty(" at ", d["date"], d["venue"]); when != "" {
			text += " Join us on " + when + "."
		}
	case KindWelcome:
		text = fmt.Sprintf("Welcome! %s are delighted to celebrate this day with you.", couple)
	case KindStory:
		text = fmt.Sprintf("Every love story is beautiful, and the story of %s is our favourite.", couple)
	case KindEventDetail:
		event := d["event"]
		if event == "" {
			event = "the ceremony"
		}
		text = fmt.Sprintf("Please join %s for %s.", couple, event)
	}

	var extra []string
	for _, k := range sortedKeys(d) {
		switch k {
		case "bride", "groom", "date", "venue", "event":
			continue
		}
		extra = append(extra, fmt.Sprintf("%s: %s", k, d[k]))
	}
	if len(extra) > 0 {
		text += " (" + strings.Join(extra, ", ") + ")"
	}

	return &Content{Kind: req.Kind, Text: text, Model: MockModelID}, nil
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
