package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_TXT(t *testing.T) {
	doc, err := Render("Hello world.\n\nSecond paragraph.", "txt")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", doc.ContentType)
	assert.Equal(t, "Hello world.\n\nSecond paragraph.", string(doc.Body))
	assert.Equal(t, `attachment; filename="script.txt"`, doc.ContentDisposition())
}

func TestRender_HTML(t *testing.T) {
	doc, err := Render("Hello world.", "html")
	require.NoError(t, err)
	assert.Equal(t, "text/html", doc.ContentType)
	assert.Equal(t, "script.html", doc.Filename())

	body := string(doc.Body)
	assert.Contains(t, body, "<!DOCTYPE html>")
	assert.Contains(t, body, "<title>Script</title>")
	assert.Contains(t, body, "<body>\n<p>Hello world.</p>")
}

func TestRender_HTMLKeepsMarkupAsText(t *testing.T) {
	doc, err := Render("Before <script>alert(1)</script> after.", "HTML")
	require.NoError(t, err)
	body := string(doc.Body)
	assert.NotContains(t, body, "<script>alert(1)</script>")
	assert.Contains(t, body, "Before &lt;script&gt;alert(1)&lt;/script&gt; after.")

	doc, err = Render("Type <Enter> to continue, then compare x <y> z.", "html")
	require.NoError(t, err)
	body = string(doc.Body)
	assert.NotContains(t, body, "raw HTML omitted")
	assert.Contains(t, body, "Type &lt;Enter&gt; to continue, then compare x &lt;y&gt; z.")
}

func TestRender_HTMLBlockKeptAsText(t *testing.T) {
	doc, err := Render("Intro line.\n\n<div>\nnarration\n</div>\n\nOutro.", "html")
	require.NoError(t, err)
	body := string(doc.Body)
	assert.NotContains(t, body, "raw HTML omitted")
	assert.Contains(t, body, "&lt;div&gt;")
	assert.Contains(t, body, "narration")
	assert.Contains(t, body, "&lt;/div&gt;")
	assert.Contains(t, body, "<p>Outro.</p>")
}

func TestRender_Markdown(t *testing.T) {
	doc, err := Render("Plain narration.", "md")
	require.NoError(t, err)
	assert.Equal(t, "text/markdown", doc.ContentType)
	assert.Equal(t, "# Script\n\nPlain narration.", string(doc.Body))

	doc, err = Render("## Introduction\n\nAlready headed.", "md")
	require.NoError(t, err)
	assert.Equal(t, "## Introduction\n\nAlready headed.", string(doc.Body))
}

func TestRender_Unsupported(t *testing.T) {
	_, err := Render("Hello", "xml")
	var unsupported *UnsupportedFormatError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "xml", unsupported.Format)
	assert.Equal(t, "Unsupported format: xml", err.Error())
}
