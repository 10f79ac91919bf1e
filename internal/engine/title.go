package engine

import (
	"strings"

	"golang.org/x/net/html"
)

// ExtractTitle returns the text of the first <title> element in body, or
// an empty string when none exists. The tokenizer is tolerant of broken
// markup, so decode errors simply end the scan.
func ExtractTitle(body string) string {
	z := html.NewTokenizer(strings.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := z.TagName()
			if !strings.EqualFold(string(name), "title") {
				continue
			}
			if z.Next() == html.TextToken {
				return strings.TrimSpace(string(z.Text()))
			}
			return ""
		}
	}
}
