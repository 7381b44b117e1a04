package main

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	metaBeginRE = regexp.MustCompile(`^-{3}`)
	metaEndRE   = regexp.MustCompile(`^(-{3}|\.{3})`)
	metaLineRE  = regexp.MustCompile(`^[ ]{0,3}([A-Za-z0-9_-]+):\s*(.*)$`)
	metaMoreRE  = regexp.MustCompile(`^[ ]{4,}(.*)$`)
)

type markdownRenderer struct {
	md goldmark.Markdown
}

func newMarkdownRenderer() *markdownRenderer {
	return &markdownRenderer{
		md: goldmark.New(
			goldmark.WithParserOptions(
				// {#id .class} attribute lists on headings.
				parser.WithAttribute(),
			),
			goldmark.WithRendererOptions(
				html.WithUnsafe(),
			),
			goldmark.WithExtensions(
				highlighting.NewHighlighting(
					highlighting.WithGuessLanguage(false),
					highlighting.WithFormatOptions(
						chromahtml.WithClasses(true),
					),
				),
			),
		),
	}
}

// Render splits the metadata header off src and converts the remaining
// Markdown to HTML.
func (r *markdownRenderer) Render(src []byte) (meta map[string][]string, out string, err error) {
	meta, body := splitMeta(string(src))

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(body), &buf); err != nil {
		return nil, "", fmt.Errorf("converting markdown: %w", err)
	}
	return meta, buf.String(), nil
}

// splitMeta parses a "Key: value" metadata header.
// Keys are lower-cased, indented lines continue the previous key and
// the header ends at the first blank line or ---/... marker.
func splitMeta(src string) (meta map[string][]string, body string) {
	meta = map[string][]string{}
	lines := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")

	i := 0
	if len(lines) > 0 && metaBeginRE.MatchString(lines[0]) {
		i++
	}

	var key string
	for ; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" || metaEndRE.MatchString(line) {
			i++
			break
		}
		if m := metaLineRE.FindStringSubmatch(line); m != nil {
			key = strings.ToLower(m[1])
			meta[key] = append(meta[key], strings.TrimSpace(m[2]))
			continue
		}
		if m := metaMoreRE.FindStringSubmatch(line); m != nil && key != "" {
			meta[key] = append(meta[key], strings.TrimSpace(m[1]))
			continue
		}
		// First body line.
		break
	}

	if i >= len(lines) {
		return meta, ""
	}
	return meta, strings.Join(lines[i:], "\n")
}
