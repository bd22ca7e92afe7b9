package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makemykankotri/kankotri/pkg/observability"
)

func TestRenderDefaultCatalog(t *testing.T) {
	var out bytes.Buffer
	stdin := strings.NewReader(`{"bride.name": "Asha", "groom.name": "Ravi"}`)

	err := runRender(context.Background(), &renderOptions{data: "-"}, stdin, &out, observability.NewNoopLogger())
	require.NoError(t, err)

	page := out.String()
	assert.Contains(t, page, "<!DOCTYPE html>")
	assert.Contains(t, page, "Asha")
	assert.Contains(t, page, "Ravi")
}

func TestRenderUnknownTemplate(t *testing.T) {
	var out bytes.Buffer
	err := runRender(context.Background(), &renderOptions{template: "no-such-design"}, nil, &out, observability.NewNoopLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-design")
	assert.Empty(t, out.String())
}

func TestRenderCommandWritesFile(t *testing.T) {
	dir := t.TempDir()
	answers := filepath.Join(dir, "answers.json")
	require.NoError(t, os.WriteFile(answers, []byte(`{"couple.names": "Meera and Arjun"}`), 0o600))
	output := filepath.Join(dir, "invite.html")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"render", "--template", "marigold-minimal", "--data", answers, "--output", output})
	require.NoError(t, cmd.Execute())

	page, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(page), "Meera and Arjun")
}

func TestReadAnswers(t *testing.T) {
	values, err := readAnswers("", nil)
	require.NoError(t, err)
	assert.Empty(t, values)

	_, err = readAnswers("-", strings.NewReader(`["not", "an", "object"]`))
	assert.Error(t, err)

	_, err = readAnswers(filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.Error(t, err)
}
