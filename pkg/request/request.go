package request

import (
	"net/http"
	"net/url"
	"strings"
)

// Methods that may appear as the leading token of a request line. The
// match is case-sensitive: a lowercase "get" is treated as part of a URL.
var knownMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodDelete:  {},
	http.MethodPatch:   {},
	http.MethodHead:    {},
	http.MethodOptions: {},
}

// IsKnownMethod reports whether token is one of the recognized HTTP methods.
func IsKnownMethod(token string) bool {
	_, ok := knownMethods[token]
	return ok
}

// Header is a single name/value pair. Duplicates are allowed and order is
// preserved so reconstructed raw requests match what was configured.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Descriptor is one parsed request directive. Descriptors are immutable
// after parse and consumed exactly once by the engine.
type Descriptor struct {
	Method  string
	URL     string
	Body    string
	Headers []Header // extra headers from a raw-request template
	Word    string   // wordlist entry that produced this descriptor
}

// Empty reports whether the descriptor carries no target and should be
// skipped by the engine.
func (d Descriptor) Empty() bool {
	return d.URL == ""
}

// ParseLine parses one request line. Two shapes are accepted:
//
//	URL
//	METHOD URL [BODY...]
//
// The first whitespace-delimited token is taken as the method only when it
// matches a known method; otherwise the whole line is the URL and the
// method defaults to GET. The body is the remainder rejoined by single
// spaces. Blank input yields an empty descriptor.
func ParseLine(line string) Descriptor {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Descriptor{}
	}

	if len(fields) > 1 && IsKnownMethod(fields[0]) {
		return Descriptor{
			Method: fields[0],
			URL:    fields[1],
			Body:   strings.Join(fields[2:], " "),
		}
	}

	return Descriptor{
		Method: http.MethodGet,
		URL:    strings.TrimSpace(line),
	}
}

// ParseHeaders parses raw "Name: Value" header lines. Each line is split
// on the first colon and both sides are trimmed. Lines without a colon are
// dropped. Duplicate names are preserved.
func ParseHeaders(lines []string) []Header {
	headers := make([]Header, 0, len(lines))
	for _, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		headers = append(headers, Header{
			Name:  name,
			Value: strings.TrimSpace(value),
		})
	}
	return headers
}

// Result is the record emitted for one completed descriptor. Fields are
// declared in lexicographic key order so JSONL output comes out with
// sorted keys. Existing keys are part of the output contract and must not
// be renamed or dropped.
type Result struct {
	ContentLength  uint64 `json:"content_length"`
	Error          string `json:"error,omitempty"`
	IPAddress      string `json:"ip_address,omitempty"`
	Method         string `json:"method"`
	RawRequest     string `json:"raw_request,omitempty"`
	ResponseBody   string `json:"response_body,omitempty"`
	ResponseTimeMS uint64 `json:"response_time_ms"`
	StatusCode     int    `json:"status_code"`
	Title          string `json:"title,omitempty"`
	URL            string `json:"url"`
	Word           string `json:"word,omitempty"`
}

// Failed reports whether the result is a synthetic transport-failure
// record rather than a completed HTTP exchange.
func (r *Result) Failed() bool {
	return r.StatusCode == 0
}

// FormatRaw reconstructs the request as it would appear on the wire:
//
//	METHOD path?query HTTP/{1.1|2.0}
//	Host: host[:port]
//	Name: Value
//	...
//
//	body
//
// The reconstruction is informational and is not replayed byte-for-byte.
func FormatRaw(method string, u *url.URL, headers []Header, http2 bool, body string) string {
	target := u.Path
	if target == "" {
		target = "/"
	}
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	version := "HTTP/1.1"
	if http2 {
		version = "HTTP/2.0"
	}

	var b strings.Builder
	b.WriteString(method + " " + target + " " + version + "\n")
	b.WriteString("Host: " + u.Host + "\n")
	for _, h := range headers {
		b.WriteString(h.Name + ": " + h.Value + "\n")
	}
	if body != "" {
		b.WriteString("\n" + body)
	}
	return b.String()
}
