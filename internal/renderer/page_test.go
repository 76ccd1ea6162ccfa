package renderer

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alicanerdogan/livemarkdown/internal/registry"
)

func TestPageStructure(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Page("My <Title>", "<p>Some content</p>").Render(context.Background(), &buf))
	out := buf.String()

	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Contains(t, out, `<html lang="en">`)
	assert.Contains(t, out, `<meta charset="UTF-8">`)
	assert.Contains(t, out, `<meta name="viewport" content="width=device-width, initial-scale=1.0">`)
	assert.Contains(t, out, "<title>My &lt;Title&gt;</title>")
	assert.Contains(t, out, "<p>Some content</p>")
	assert.Contains(t, out, "<style>")
	assert.Contains(t, out, "new EventSource")
	assert.Contains(t, out, "</html>")
}

func TestPageDefaultTitle(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Page("", "<h1>Test Content</h1>").Render(context.Background(), &buf))
	assert.Contains(t, buf.String(), "<title>Markdown Document</title>")
}

func TestIndexListsDocuments(t *testing.T) {
	docs := []registry.Document{
		{ID: "a-md-11111111", Path: "/tmp/a.md"},
		{ID: "b-md-22222222", Path: "/tmp/<b>.md"},
	}

	var buf bytes.Buffer
	require.NoError(t, Index(docs).Render(context.Background(), &buf))
	out := buf.String()

	assert.Contains(t, out, "<h1>Documents</h1>")
	assert.Contains(t, out, `<a href="/document/a-md-11111111">/tmp/a.md</a>`)
	assert.Contains(t, out, "/tmp/&lt;b&gt;.md")
}

func TestIndexEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Index(nil).Render(context.Background(), &buf))
	assert.Contains(t, buf.String(), "No documents registered.")
}

func TestErrorPlaceholderEscapes(t *testing.T) {
	out := ErrorPlaceholder(fmt.Errorf("open <x>: denied"))
	assert.Contains(t, out, "livemarkdown-error")
	assert.Contains(t, out, "open &lt;x&gt;: denied")
	assert.Contains(t, ErrorPlaceholder(nil), "unknown error")
}

func TestTitle(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		expected string
	}{
		{"first h1", `<p>intro</p><h1 id="x">Hello <em>World</em></h1><h1>Second</h1>`, "Hello World"},
		{"nested", `<div><section><h1>Deep</h1></section></div>`, "Deep"},
		{"no heading", `<h2>Only h2</h2>`, DefaultTitle},
		{"empty heading", `<h1>  </h1>`, DefaultTitle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Title(tt.fragment, DefaultTitle))
		})
	}
}
