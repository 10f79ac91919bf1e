// Package fuzz expands a raw HTTP request template across a wordlist.
package fuzz

import (
	"fmt"
	"strings"

	"github.com/funnyzak/reqs/pkg/request"
	"github.com/funnyzak/reqs/pkg/urlutil"
)

// DefaultKeyword is the sentinel substituted when none is supplied.
const DefaultKeyword = "FUZZ"

// Expand replaces every occurrence of keyword in the raw request template
// with each wordlist entry and parses each expansion into a descriptor.
// The returned descriptors carry the originating word.
func Expand(rawRequest string, wordlist []string, keyword string) ([]request.Descriptor, error) {
	if keyword == "" {
		keyword = DefaultKeyword
	}

	descriptors := make([]request.Descriptor, 0, len(wordlist))
	for _, word := range wordlist {
		d, err := ParseRaw(strings.ReplaceAll(rawRequest, keyword, word))
		if err != nil {
			return nil, fmt.Errorf("word %q: %w", word, err)
		}
		d.Word = word
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

// ParseRaw parses a raw HTTP request template into a descriptor. The
// first line is "METHOD PATH [HTTP/VER]", the host comes from the Host
// header (https when it carries :443), and the body is everything after
// the first blank line. Templates use either \n or \r\n line endings.
//
// Templates are parsed textually rather than with http.ReadRequest: they
// arrive from JSON with bare-\n endings and may be non-compliant until
// the keyword is substituted.
func ParseRaw(raw string) (request.Descriptor, error) {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	head, body, _ := strings.Cut(raw, "\n\n")

	lines := strings.Split(head, "\n")
	first := strings.Fields(lines[0])
	if len(first) < 2 {
		return request.Descriptor{}, fmt.Errorf("malformed request line %q", lines[0])
	}
	method, target := first[0], first[1]

	var host string
	var headers []request.Header
	for _, h := range request.ParseHeaders(lines[1:]) {
		if strings.EqualFold(h.Name, "Host") {
			host = h.Value
			continue
		}
		headers = append(headers, h)
	}

	var rawURL string
	if strings.Contains(target, "://") {
		// Absolute-form target already names the origin.
		rawURL = target
	} else {
		if host == "" {
			return request.Descriptor{}, fmt.Errorf("template has no Host header")
		}
		scheme := "http"
		if strings.HasSuffix(host, ":443") {
			scheme = "https"
		}
		if !strings.HasPrefix(target, "/") {
			target = "/" + target
		}
		rawURL = scheme + "://" + host + target
	}

	return request.Descriptor{
		Method:  method,
		URL:     urlutil.Normalize(rawURL),
		Body:    body,
		Headers: headers,
	}, nil
}
