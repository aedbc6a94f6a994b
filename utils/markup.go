package utils

import (
	"html"
	"regexp"
	"strings"
)

var emphasisPattern = regexp.MustCompile(`\*\*(.+?)\*\*`)

// SanitizeUserText escapes user-entered chat text for insertion as markup.
// No formatting is interpreted for user turns.
func SanitizeUserText(text string) string {
	return html.EscapeString(text)
}

// RenderAssistantText escapes assistant text, then applies the only two
// substitutions the surface understands: **...** emphasis and literal
// newlines to line breaks. Everything else renders as plain text, so a
// reply containing markup cannot inject into the surface.
func RenderAssistantText(text string) string {
	escaped := html.EscapeString(text)
	escaped = emphasisPattern.ReplaceAllString(escaped, "<strong>$1</strong>")
	return strings.ReplaceAll(escaped, "\n", "<br>")
}
