package renderer

import (
	"context"
	_ "embed"
	"fmt"
	"html"
	"io"

	"github.com/a-h/templ"

	"github.com/alicanerdogan/livemarkdown/internal/registry"
)

// DefaultTitle is used when a document has no level one heading.
const DefaultTitle = "Markdown Document"

//go:embed assets/livemarkdown.css
var styles string

//go:embed assets/livemarkdown.js
var script string

// Styles returns the stylesheet embedded in every page.
func Styles() string {
	return styles
}

// Page wraps a rendered document body in a complete HTML page that keeps
// itself up to date through the document's update stream.
func Page(title, body string) templ.Component {
	if title == "" {
		title = DefaultTitle
	}
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s</title>
    <style>%s</style>
</head>
<body>
<main>
%s
</main>
<script>
%s
</script>
</body>
</html>`, templ.EscapeString(title), styles, body, script)
		return err
	})
}

// Index lists the registered documents, linking each one to its page.
func Index(docs []registry.Document) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, "<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"UTF-8\">\n<title>Documents</title>\n<style>"+styles+"</style>\n</head>\n<body>\n<main>\n<h1>Documents</h1>\n"); err != nil {
			return err
		}
		if len(docs) == 0 {
			if _, err := io.WriteString(w, "<p class=\"livemarkdown-empty\">No documents registered.</p>\n"); err != nil {
				return err
			}
		} else {
			if _, err := io.WriteString(w, "<ul>\n"); err != nil {
				return err
			}
			for _, doc := range docs {
				href := templ.EscapeString("/document/" + doc.ID)
				if _, err := fmt.Fprintf(w, "<li><a href=\"%s\">%s</a></li>\n", href, templ.EscapeString(doc.Path)); err != nil {
					return err
				}
			}
			if _, err := io.WriteString(w, "</ul>\n"); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</main>\n</body>\n</html>")
		return err
	})
}

// ErrorPlaceholder renders err as the fragment pushed to clients when a
// document cannot be read or rendered.
func ErrorPlaceholder(err error) string {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return `<div class="livemarkdown-error"><p>Unable to render document</p><pre>` +
		html.EscapeString(msg) + `</pre></div>`
}
