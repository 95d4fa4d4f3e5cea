// Package export renders finished scripts as downloadable documents.
package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

// Supported formats.
const (
	FormatTXT  = "txt"
	FormatHTML = "html"
	FormatMD   = "md"
)

// UnsupportedFormatError is returned for a format outside Formats().
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return "Unsupported format: " + e.Format
}

// Document is a rendered script ready to be served as an attachment.
type Document struct {
	Format      string
	ContentType string
	Body        []byte
}

// Filename returns the attachment name, e.g. "script.html".
func (d *Document) Filename() string {
	return "script." + d.Format
}

// ContentDisposition returns the Content-Disposition header value.
func (d *Document) ContentDisposition() string {
	return fmt.Sprintf("attachment; filename=%q", d.Filename())
}

// Formats lists the supported formats.
func Formats() []string {
	return []string{FormatTXT, FormatHTML, FormatMD}
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(
		gmhtml.WithHardWraps(),
		renderer.WithNodeRenderers(util.Prioritized(literalHTML{}, 100)),
	),
)

// literalHTML renders markup found in a script as visible text. Narration
// such as "press <Enter>" must survive export, and nothing is executed.
type literalHTML struct{}

func (literalHTML) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindRawHTML, renderRawHTML)
	reg.Register(ast.KindHTMLBlock, renderHTMLBlock)
}

func renderRawHTML(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkSkipChildren, nil
	}
	segs := node.(*ast.RawHTML).Segments
	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		_, _ = w.Write(util.EscapeHTML(seg.Value(source)))
	}
	return ast.WalkSkipChildren, nil
}

func renderHTMLBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.HTMLBlock)
	var lines [][]byte
	for i := 0; i < n.Lines().Len(); i++ {
		seg := n.Lines().At(i)
		lines = append(lines, seg.Value(source))
	}
	if n.HasClosure() {
		lines = append(lines, n.ClosureLine.Value(source))
	}

	_, _ = w.WriteString("<p>")
	for i, line := range lines {
		if i > 0 {
			_, _ = w.WriteString("<br>\n")
		}
		_, _ = w.Write(util.EscapeHTML(bytes.TrimRight(line, "\r\n")))
	}
	_, _ = w.WriteString("</p>\n")
	return ast.WalkSkipChildren, nil
}

var page = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>body{max-width:42rem;margin:2rem auto;font-family:Georgia,serif;line-height:1.6}</style>
</head>
<body>
{{.Body}}</body>
</html>
`))

// Render formats script. Format names are case-insensitive.
func Render(script, format string) (*Document, error) {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case FormatTXT:
		return &Document{Format: f, ContentType: "text/plain", Body: []byte(script)}, nil
	case FormatHTML:
		body, err := renderHTML(script)
		if err != nil {
			return nil, err
		}
		return &Document{Format: f, ContentType: "text/html", Body: body}, nil
	case FormatMD:
		return &Document{Format: f, ContentType: "text/markdown", Body: []byte(renderMarkdown(script))}, nil
	default:
		return nil, &UnsupportedFormatError{Format: format}
	}
}

func renderHTML(script string) ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(script), &body); err != nil {
		return nil, fmt.Errorf("export: render markdown: %w", err)
	}

	var out bytes.Buffer
	err := page.Execute(&out, struct {
		Title string
		Body  template.HTML
	}{
		Title: "Script",
		Body:  template.HTML(body.String()),
	})
	if err != nil {
		return nil, fmt.Errorf("export: render page: %w", err)
	}
	return out.Bytes(), nil
}

func renderMarkdown(script string) string {
	if strings.HasPrefix(strings.TrimLeft(script, " \t\r\n"), "#") {
		return script
	}
	return "# Script\n\n" + script
}
