// Package textnorm normalizes user utterances and corpus text before matching.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var urlPattern = regexp.MustCompile(`https?://[\w\-./?%&=:#@~+]+`)

// stopWords are dropped as whole tokens: particles, connectives and generic interrogatives.
var stopWords = map[string]bool{
	"은": true, "는": true, "이": true, "가": true, "을": true, "를": true,
	"에": true, "의": true, "도": true, "로": true, "과": true, "와": true,
	"에서": true, "에게": true, "한": true, "하다": true, "있다": true,
	"그리고": true, "그런데": true, "또는": true, "및": true, "좀": true, "요": true,
	"어떻게": true, "무엇": true, "어디": true, "언제": true, "왜": true, "누구": true,
	"뭐": true, "뭐야": true, "뭐예요": true,
}

// particleSuffixes are stripped from the end of a token, longest first.
var particleSuffixes = []string{
	"에서", "에게", "한테", "으로", "까지", "부터", "이랑",
	"은", "는", "을", "를",
}

// Normalize lower-cases text, removes URLs and punctuation, strips trailing
// particles and drops stop words. Normalize(Normalize(x)) == Normalize(x).
func Normalize(text string) string {
	return strings.Join(tokens(text), " ")
}

// ExtractKeywords returns the distinct normalized tokens of at least two
// runes, in order of first appearance.
func ExtractKeywords(text string) []string {
	seen := make(map[string]bool)
	var keywords []string
	for _, tok := range tokens(text) {
		if utf8.RuneCountInString(tok) < 2 || seen[tok] {
			continue
		}
		seen[tok] = true
		keywords = append(keywords, tok)
	}
	return keywords
}

// StripURLs removes every http(s) URL from text.
func StripURLs(text string) string {
	return urlPattern.ReplaceAllString(text, " ")
}

// FirstURL returns the first http(s) URL in text, or "".
func FirstURL(text string) string {
	return urlPattern.FindString(text)
}

func tokens(text string) []string {
	text = strings.ToLower(StripURLs(text))
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) {
			return r
		}
		return ' '
	}, text)

	var out []string
	for _, tok := range strings.Fields(cleaned) {
		tok = stripParticles(tok)
		if stopWords[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func stripParticles(tok string) string {
	for {
		stripped := false
		for _, suffix := range particleSuffixes {
			if !strings.HasSuffix(tok, suffix) {
				continue
			}
			rest := strings.TrimSuffix(tok, suffix)
			if utf8.RuneCountInString(rest) < 2 {
				continue
			}
			tok = rest
			stripped = true
			break
		}
		if !stripped {
			return tok
		}
	}
}
