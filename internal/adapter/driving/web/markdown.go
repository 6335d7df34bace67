package web

import (
	"bytes"
	"html"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// maxDescriptionBytes bounds how much of a product description is rendered.
const maxDescriptionBytes = 16 << 10

// descriptionMarkdown renders GFM without passing raw HTML through; goldmark
// replaces inline HTML with a comment.
var descriptionMarkdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// descriptionPolicy is the UGC policy with external links opened in a new tab
// and marked nofollow.
var descriptionPolicy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}()

// RenderMarkdown converts a product description written in markdown to
// sanitized HTML. Returns empty string for empty input.
func RenderMarkdown(src string) string {
	if src == "" {
		return ""
	}
	src = truncateUTF8(src, maxDescriptionBytes)

	var buf bytes.Buffer
	if err := descriptionMarkdown.Convert([]byte(src), &buf); err != nil {
		return "<p>" + html.EscapeString(src) + "</p>"
	}

	return descriptionPolicy.Sanitize(buf.String())
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
