package parser

import (
	"strings"

	"golang.org/x/net/html"
)

// StripHTML removes markup from an HTML fragment, returning the visible
// text with whitespace normalized. Post descriptions in the metadata index
// sometimes carry inline HTML; tool output should be plain text.
func StripHTML(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}

	var buf strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	depth := 0 // depth inside script/style elements
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return strings.Join(strings.Fields(buf.String()), " ")
		case html.TextToken:
			if depth == 0 {
				buf.Write(tokenizer.Text())
				buf.WriteByte(' ')
			}
		case html.StartTagToken, html.EndTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				if tt == html.StartTagToken {
					depth++
				} else if depth > 0 {
					depth--
				}
			}
		}
	}
}
