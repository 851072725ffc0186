// Package render turns deployment events into Telegram messages.
//
// Output targets Telegram's legacy "Markdown" parse mode. Every value that
// comes from the webhook is passed through EscapeMarkdown before it is
// interpolated, so untrusted text cannot open or close an entity.
package render

import "strings"

// markdownSpecials are the characters legacy Markdown treats as entity markers.
const markdownSpecials = "_*`["

// EscapeMarkdown prefixes every unescaped '_', '*', '`' and '[' with a backslash.
//
// An occurrence already preceded by a backslash is left untouched, which
// makes the pass idempotent: EscapeMarkdown(EscapeMarkdown(s)) == EscapeMarkdown(s).
func EscapeMarkdown(s string) string {
	if !strings.ContainsAny(s, markdownSpecials) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if strings.IndexByte(markdownSpecials, c) >= 0 && (i == 0 || s[i-1] != '\\') {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}
