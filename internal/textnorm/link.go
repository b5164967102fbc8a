package textnorm

import (
	"regexp"
	"strings"
)

var trailingSeparators = regexp.MustCompile(`[\s\-:·,]+$`)

// defaultLinkBodies supply the answer body when an answer is nothing but a URL.
var defaultLinkBodies = []struct {
	host string
	body string
}{
	{"ktbookmall.com", "교과서 구매는 아래 링크에서 가능합니다."},
	{"goepj.kr", "자세한 내용은 아래 링크에서 확인하실 수 있습니다."},
	{"docs.google.com", "학사일정은 아래 링크에서 확인하실 수 있습니다."},
}

const genericLinkBody = "자세한 내용은 아래 링크를 참고해주세요."

// SplitLink detaches the first URL from an answer so it can be rendered as a
// link button. The returned body never ends in a dangling separator.
func SplitLink(text string) (body, link string) {
	link = FirstURL(text)
	if link == "" {
		return text, ""
	}

	body = strings.TrimSpace(strings.Replace(text, link, "", 1))
	body = trailingSeparators.ReplaceAllString(body, "")
	if body != "" {
		return body, link
	}

	for _, d := range defaultLinkBodies {
		if strings.Contains(link, d.host) {
			return d.body, link
		}
	}
	return genericLinkBody, link
}
