// Package extract turns uploaded documents into plain text for analysis.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/charmap"
)

var ErrUnsupportedFormat = errors.New("unsupported document format")

// Text extracts the document text, choosing the decoder by the file
// extension. Supported: .txt, .html, .htm.
func Text(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return decodeText(data)
	case ".html", ".htm":
		return HTML(data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// decodeText accepts UTF-8 and falls back to Latin-1 for anything else.
func decodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data), nil
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode latin-1 text: %w", err)
	}
	return string(out), nil
}

var blockTags = map[string]bool{
	"p": true, "div": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "blockquote": true, "pre": true,
	"table": true, "tr": true, "td": true, "th": true, "dt": true, "dd": true,
	"br": true, "hr": true, "header": true, "footer": true, "main": true,
}

// HTML returns the visible text of an HTML document with one blank line
// between block elements. Scripts and styles are dropped.
func HTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}
	doc.Find("script, style, noscript, template, head").Remove()

	w := &blockWriter{}
	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	w.walk(root)
	w.flush()
	return strings.Join(w.blocks, "\n\n"), nil
}

type blockWriter struct {
	blocks []string
	cur    strings.Builder
}

func (w *blockWriter) walk(s *goquery.Selection) {
	s.Contents().Each(func(_ int, n *goquery.Selection) {
		name := goquery.NodeName(n)
		switch {
		case name == "#text":
			w.cur.WriteString(n.Text())
			w.cur.WriteByte(' ')
		case blockTags[name]:
			w.flush()
			w.walk(n)
			w.flush()
		case strings.HasPrefix(name, "#"):
		default:
			w.walk(n)
		}
	})
}

func (w *blockWriter) flush() {
	text := strings.Join(strings.Fields(w.cur.String()), " ")
	w.cur.Reset()
	if text != "" {
		w.blocks = append(w.blocks, text)
	}
}
