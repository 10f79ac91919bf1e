// Package filter decides which result records are emitted.
package filter

import (
	"regexp"
	"strings"
)

// Filter is the AND-composition of up to three predicates: a status-code
// set, a literal substring match, and a regex match. Predicates that were
// not configured pass trivially. A nil Filter passes everything.
type Filter struct {
	statuses  map[int]struct{}
	substring string
	pattern   *regexp.Regexp
}

// New compiles a filter from its raw parts. Returns nil when no predicate
// is configured.
func New(statuses []int, substring, pattern string) (*Filter, error) {
	f := &Filter{substring: substring}

	if len(statuses) > 0 {
		f.statuses = make(map[int]struct{}, len(statuses))
		for _, code := range statuses {
			f.statuses[code] = struct{}{}
		}
	}

	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		f.pattern = re
	}

	if f.statuses == nil && f.substring == "" && f.pattern == nil {
		return nil, nil
	}
	return f, nil
}

// NeedsBody reports whether matching requires the decoded response body.
func (f *Filter) NeedsBody() bool {
	if f == nil {
		return false
	}
	return f.substring != "" || f.pattern != nil
}

// Match reports whether a record with the given status and decoded body
// survives all configured predicates.
func (f *Filter) Match(status int, body string) bool {
	if f == nil {
		return true
	}
	if f.statuses != nil {
		if _, ok := f.statuses[status]; !ok {
			return false
		}
	}
	if f.substring != "" && !strings.Contains(body, f.substring) {
		return false
	}
	if f.pattern != nil && !f.pattern.MatchString(body) {
		return false
	}
	return true
}
