// Package ingest turns uploaded files into plain source text for generation.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrUndecodable is returned for content that is not UTF-8 or BOM-marked
// UTF-16 text.
var ErrUndecodable = errors.New("content is not valid UTF-8 text")

var (
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}

	excessiveLinesRe = regexp.MustCompile(`\n{3,}`)
)

// File is a decoded upload.
type File struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	// Converted is true when the upload was HTML rendered to Markdown.
	Converted bool `json:"converted,omitempty"`
}

// Decoder decodes uploads. It is safe for concurrent use.
type Decoder struct {
	converter *md.Converter
}

// NewDecoder creates a Decoder.
func NewDecoder() *Decoder {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	converter.Remove("script", "style", "noscript", "iframe", "nav", "footer")
	return &Decoder{converter: converter}
}

// Decode returns the text of an uploaded file. HTML files (by extension)
// are converted to Markdown.
func (d *Decoder) Decode(filename string, data []byte) (*File, error) {
	text, err := Text(data)
	if err != nil {
		return nil, err
	}

	f := &File{Filename: filepath.Base(filename), Content: text}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".html", ".htm":
		markdown, err := d.converter.ConvertString(text)
		if err != nil {
			return nil, fmt.Errorf("convert html: %w", err)
		}
		f.Content = cleanMarkdown(markdown)
		f.Converted = true
	}
	return f, nil
}

// Text decodes data as UTF-8, stripping a byte order mark. UTF-16 is
// accepted only when it carries a BOM. Content with NUL bytes is treated as
// binary and rejected.
func Text(data []byte) (string, error) {
	utf16 := bytes.HasPrefix(data, bomUTF16LE) || bytes.HasPrefix(data, bomUTF16BE)
	switch {
	case utf16 && len(data)%2 != 0:
		return "", fmt.Errorf("%w: truncated UTF-16", ErrUndecodable)
	case !utf16 && !utf8.Valid(data):
		return "", ErrUndecodable
	}

	out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if bytes.IndexByte(out, 0) >= 0 {
		return "", fmt.Errorf("%w: binary content", ErrUndecodable)
	}
	return string(out), nil
}

func cleanMarkdown(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	content = strings.Join(lines, "\n")
	content = excessiveLinesRe.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}
