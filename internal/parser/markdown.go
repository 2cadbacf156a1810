// Package parser extracts structured post content from raw markdown files:
// the title (first H1 or frontmatter), publish date, body text, and a short
// excerpt, plus a helper for stripping HTML fragments out of post
// descriptions.
package parser

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// maxTitleLength bounds extracted titles.
const maxTitleLength = 200

// excerptLength is the size of the generated excerpt.
const excerptLength = 200

// blankRuns collapses runs of blank lines in post bodies.
var blankRuns = regexp.MustCompile(`\n\s*\n`)

// PostContent is a parsed blog post.
type PostContent struct {
	Title   string // first H1, frontmatter title, fallback, or filename-derived
	Date    string // frontmatter date, may be empty
	Body    string // full text with blank runs collapsed
	Excerpt string // leading excerptLength characters of the body
}

// ParsePost parses raw markdown into a PostContent. The title comes from
// the first H1, then YAML frontmatter, then fallbackTitle (typically the
// metadata index title), and finally from the filename.
func ParsePost(content []byte, markdownPath, fallbackTitle string) *PostContent {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(content))

	title := firstH1(doc, content)
	if title == "" {
		title = frontmatterField(content, "title")
	}
	if title == "" {
		title = strings.TrimSpace(fallbackTitle)
	}
	if title == "" {
		title = titleFromFilename(markdownPath)
	}
	title = truncateRunes(title, maxTitleLength)

	date := frontmatterField(content, "date")

	body := strings.TrimSpace(blankRuns.ReplaceAllString(string(content), "\n\n"))

	excerpt := body
	if utf8.RuneCountInString(excerpt) > excerptLength {
		excerpt = truncateRunes(excerpt, excerptLength) + "..."
	}

	return &PostContent{
		Title:   title,
		Date:    date,
		Body:    body,
		Excerpt: excerpt,
	}
}

// firstH1 returns the text of the first level-1 heading, or "".
func firstH1(doc ast.Node, source []byte) string {
	for walker := doc.FirstChild(); walker != nil; walker = walker.NextSibling() {
		if heading, ok := walker.(*ast.Heading); ok && heading.Level == 1 {
			if txt := nodeText(heading, source); txt != "" {
				return txt
			}
		}
	}
	return ""
}

// nodeText extracts plain text from an AST node and its inline children.
func nodeText(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	for walker := node.FirstChild(); walker != nil; walker = walker.NextSibling() {
		switch n := walker.(type) {
		case *ast.Text:
			segment := n.Segment
			if segment.Start < len(source) && segment.Stop <= len(source) {
				buf.Write(segment.Value(source))
			}
		case *ast.Link, *ast.Emphasis:
			buf.WriteString(nodeText(walker, source))
		}
	}
	return strings.TrimSpace(buf.String())
}

// frontmatterField extracts a scalar field from YAML frontmatter, handling
// quoted values. Returns "" when the document has no frontmatter or the
// field is absent.
func frontmatterField(content []byte, field string) string {
	contentStr := string(content)
	if !strings.HasPrefix(contentStr, "---") {
		return ""
	}

	lines := strings.Split(contentStr, "\n")
	endIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			endIdx = i
			break
		}
	}
	if endIdx <= 1 {
		return ""
	}

	prefix := field + ":"
	for i := 1; i < endIdx; i++ {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, prefix) {
			value := strings.TrimSpace(strings.TrimPrefix(line, prefix))
			value = strings.Trim(value, "\"'")
			if value != "" {
				return value
			}
		}
	}
	return ""
}

// titleFromFilename derives a readable title from a markdown path:
// "_d/managing-time.md" becomes "Managing Time".
func titleFromFilename(markdownPath string) string {
	if markdownPath == "" {
		return "Untitled"
	}

	parts := strings.Split(markdownPath, "/")
	name := parts[len(parts)-1]
	name = strings.TrimSuffix(name, ".md")
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")

	words := strings.Fields(name)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	if len(words) == 0 {
		return "Untitled"
	}
	return strings.Join(words, " ")
}

// truncateRunes caps s at n runes, cutting on a rune boundary.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
