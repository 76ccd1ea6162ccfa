// Package renderer turns markdown documents into the HTML served by the
// preview pages.
//
// Rendering uses goldmark with the GitHub flavoured extensions, footnotes and
// definition lists. Every block element carries a data-sourcepos attribute
// of the form "line:col-line:col" pointing back into the source file, which
// is what editors send as cursor positions and what the browser client uses
// to highlight the block under the cursor.
package renderer

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/alicanerdogan/livemarkdown/internal/errors"
)

// SourceposAttribute is the attribute written on block elements.
const SourceposAttribute = "data-sourcepos"

const frontMatterDelimiter = "---"

// Markdown renders markdown to HTML. It is safe for concurrent use.
type Markdown struct {
	md goldmark.Markdown
}

// NewMarkdown creates a renderer with the default extension set.
func NewMarkdown() *Markdown {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Footnote,
			extension.DefinitionList,
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithASTTransformers(
				util.Prioritized(sourcePosTransformer{}, 100),
			),
		),
	)
	return &Markdown{md: md}
}

// Render converts source to an HTML fragment.
func (m *Markdown) Render(source []byte) (string, error) {
	var buf bytes.Buffer
	if err := m.md.Convert(blankFrontMatter(source), &buf); err != nil {
		return "", errors.NewInternalError(errors.ErrCodeRender, "cannot render markdown", err)
	}
	return buf.String(), nil
}

// blankFrontMatter replaces a leading "---" delimited block with empty lines,
// so it is not rendered while line numbers of the body stay unchanged.
func blankFrontMatter(source []byte) []byte {
	lines := bytes.SplitAfter(source, []byte("\n"))
	if len(lines) < 2 || string(bytes.TrimRight(lines[0], "\r\n")) != frontMatterDelimiter {
		return source
	}
	for i := 1; i < len(lines); i++ {
		if string(bytes.TrimRight(lines[i], " \t\r\n")) != frontMatterDelimiter {
			continue
		}
		out := make([]byte, 0, len(source))
		out = append(out, bytes.Repeat([]byte("\n"), i+1)...)
		for _, rest := range lines[i+1:] {
			out = append(out, rest...)
		}
		return out
	}
	return source
}

type sourcePosTransformer struct{}

func (sourcePosTransformer) Transform(doc *ast.Document, reader text.Reader, _ parser.Context) {
	index := newLineIndex(reader.Source())

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Type() != ast.TypeBlock || n.Kind() == ast.KindDocument {
			return ast.WalkContinue, nil
		}
		if start, stop, ok := blockSpan(n); ok {
			n.SetAttributeString(SourceposAttribute, []byte(index.span(start, stop)))
		}
		return ast.WalkContinue, nil
	})
}

// blockSpan returns the byte range covered by n's own lines and those of its
// block descendants. Container blocks such as lists have no lines of their
// own.
func blockSpan(n ast.Node) (int, int, bool) {
	var start, stop int
	found := false

	if lines := n.Lines(); lines != nil && lines.Len() > 0 {
		start = lines.At(0).Start
		stop = lines.At(lines.Len() - 1).Stop
		found = true
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if c.Type() != ast.TypeBlock {
			continue
		}
		s, e, ok := blockSpan(c)
		if !ok {
			continue
		}
		if !found || s < start {
			start = s
		}
		if !found || e > stop {
			stop = e
		}
		found = true
	}
	return start, stop, found
}

type lineIndex struct {
	source []byte
	starts []int
}

func newLineIndex(source []byte) lineIndex {
	starts := []int{0}
	for i, b := range source {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return lineIndex{source: source, starts: starts}
}

func (li lineIndex) line(offset int) int {
	return sort.Search(len(li.starts), func(i int) bool { return li.starts[i] > offset }) - 1
}

// span formats [start, stop) as "l:c-l:c", both ends inclusive and 1-based.
// The start column is the first non-blank character of the start line so
// markers like "#", ">" or "-" are included.
func (li lineIndex) span(start, stop int) string {
	for stop > start && (li.source[stop-1] == '\n' || li.source[stop-1] == '\r') {
		stop--
	}
	if stop <= start {
		stop = start + 1
	}

	startLine := li.line(start)
	startCol := 1
	for off := li.starts[startLine]; off < start && (li.source[off] == ' ' || li.source[off] == '\t'); off++ {
		startCol++
	}

	endLine := li.line(stop - 1)
	endCol := stop - li.starts[endLine]

	return fmt.Sprintf("%d:%d-%d:%d", startLine+1, startCol, endLine+1, endCol)
}

// RenderFile reads and renders the markdown file at path.
func (m *Markdown) RenderFile(path string) (string, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return "", errors.NewIOError(errors.ErrCodeFileRead, "cannot read document", err).WithPath(path)
	}
	return m.Render(source)
}
