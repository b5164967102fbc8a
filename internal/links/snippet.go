package links

import (
	"strings"
	"unicode/utf8"
)

const ellipsis = "…"

// Snippet returns a window of width runes centred on the earliest keyword
// occurrence in content, or the leading width runes when no keyword occurs.
// Whitespace runs are collapsed first.
func Snippet(content string, keywords []string, width int) string {
	text := strings.Join(strings.Fields(content), " ")
	runes := []rune(text)
	n := len(runes)
	if width <= 0 || n == 0 {
		return ""
	}
	if n <= width {
		return text
	}

	pos, kwLen := firstKeyword(text, keywords)
	if pos < 0 {
		return string(runes[:width]) + ellipsis
	}

	start := pos + kwLen/2 - width/2
	if start < 0 {
		start = 0
	}
	if start > n-width {
		start = n - width
	}
	end := start + width

	var b strings.Builder
	if start > 0 {
		b.WriteString(ellipsis)
	}
	b.WriteString(string(runes[start:end]))
	if end < n {
		b.WriteString(ellipsis)
	}
	return b.String()
}

// firstKeyword returns the rune offset and rune length of the earliest
// keyword match, or -1.
func firstKeyword(text string, keywords []string) (int, int) {
	lower := strings.ToLower(text)
	if utf8.RuneCountInString(lower) != utf8.RuneCountInString(text) {
		lower = text
	}

	best, bestLen := -1, 0
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		i := strings.Index(lower, kw)
		if i < 0 {
			continue
		}
		pos := utf8.RuneCountInString(lower[:i])
		if best < 0 || pos < best {
			best, bestLen = pos, utf8.RuneCountInString(kw)
		}
	}
	return best, bestLen
}
