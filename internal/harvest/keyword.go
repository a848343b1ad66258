package harvest

import (
	"regexp"
)

var (
	bracketed   = regexp.MustCompile(`[\[({【].*?[\])}】]`)
	notKeywordy = regexp.MustCompile(`[^\x{4e00}-\x{9fa5}a-zA-Z0-9]`)
)

// DeriveKeyword turns a product title into a search keyword: bracketed
// segments and every character outside ASCII letters, digits and CJK are
// removed, then the middle half is kept when more than two characters remain.
// Results shorter than two characters fall back to the first five characters
// of the raw title.
func DeriveKeyword(title string) string {
	kw := bracketed.ReplaceAllString(title, " ")
	kw = notKeywordy.ReplaceAllString(kw, "")

	runes := []rune(kw)
	if n := len(runes); n > 2 {
		runes = runes[n/4 : n*3/4]
	}
	if len(runes) < 2 {
		raw := []rune(title)
		if len(raw) > 5 {
			raw = raw[:5]
		}
		return string(raw)
	}
	return string(runes)
}
