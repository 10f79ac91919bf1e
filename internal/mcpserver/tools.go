package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/funnyzak/reqs/internal/filter"
	"github.com/funnyzak/reqs/internal/fuzz"
	"github.com/funnyzak/reqs/internal/output"
	"github.com/funnyzak/reqs/pkg/request"
	"github.com/funnyzak/reqs/pkg/urlutil"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// jsonDefault marshals v into a json.RawMessage for use as a Schema default.
func jsonDefault(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

type sendRequestsArgs struct {
	Requests       []string `json:"requests"`
	FilterStatus   []int    `json:"filter_status"`
	FilterString   string   `json:"filter_string"`
	FilterRegex    string   `json:"filter_regex"`
	FollowRedirect *bool    `json:"follow_redirect"`
	HTTP2          *bool    `json:"http2"`
	Headers        []string `json:"headers"`
	IncludeReq     bool     `json:"include_req"`
	IncludeRes     bool     `json:"include_res"`
}

func (s *Server) addSendRequestsTool() {
	s.mcp.AddTool(
		&mcp.Tool{
			Name:        "send_requests",
			Title:       "Send HTTP Requests",
			Description: "Send HTTP requests and return response metadata. Accepts a list of requests with optional filters (filter_status, filter_string, filter_regex), HTTP options (follow_redirect, http2, headers), and output options (include_req, include_res) for analysis.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"requests": {
						Type:        "array",
						Items:       &jsonschema.Schema{Type: "string"},
						Description: "List of HTTP requests. Each request is a URL or a 'METHOD URL BODY' string (e.g. 'POST https://example.com data=value').",
					},
					"filter_status": {
						Type:        "array",
						Items:       &jsonschema.Schema{Type: "integer"},
						Description: "Only return responses with these HTTP status codes (e.g. [200, 404]).",
					},
					"filter_string": {
						Type:        "string",
						Description: "Only return responses whose body contains this string.",
					},
					"filter_regex": {
						Type:        "string",
						Description: "Only return responses whose body matches this regex pattern.",
					},
					"follow_redirect": {
						Type:        "boolean",
						Description: "Whether to follow HTTP redirects. Defaults to true.",
					},
					"http2": {
						Type:        "boolean",
						Description: "Use HTTP/2 for requests. Defaults to the server's launch setting (HTTP/1.1 unless started with --http2).",
					},
					"headers": {
						Type:        "array",
						Items:       &jsonschema.Schema{Type: "string"},
						Description: "Custom headers to add to every request (e.g. [\"User-Agent: my-app\", \"Authorization: Bearer token\"]).",
					},
					"include_req": {
						Type:        "boolean",
						Description: "Include raw HTTP request details in the output.",
					},
					"include_res": {
						Type:        "boolean",
						Description: "Include the response body in the output.",
					},
				},
				Required: []string{"requests"},
			},
		},
		s.handleSendRequests,
	)
}

func (s *Server) handleSendRequests(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args sendRequestsArgs
	if err := parseArgs(req, &args); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	return s.sendRequests(ctx, args)
}

func (s *Server) sendRequests(ctx context.Context, args sendRequestsArgs) (*mcp.CallToolResult, error) {
	if len(args.Requests) == 0 {
		return errorResult("requests parameter must be a non-empty array of strings"), nil
	}

	flt, err := filter.New(args.FilterStatus, args.FilterString, args.FilterRegex)
	if err != nil {
		return errorResult(fmt.Sprintf("invalid filter_regex: %v", err)), nil
	}

	// Unlike the CLI, MCP callers follow redirects unless they opt out.
	followRedirect := true
	if args.FollowRedirect != nil {
		followRedirect = *args.FollowRedirect
	}
	useHTTP2 := s.cfg.HTTP.HTTP2
	if args.HTTP2 != nil {
		useHTTP2 = *args.HTTP2
	}

	// Launch headers first, call headers after, so call values win on
	// servers that take the last occurrence.
	headerLines := make([]string, 0, len(s.cfg.HTTP.Headers)+len(args.Headers))
	headerLines = append(headerLines, s.cfg.HTTP.Headers...)
	headerLines = append(headerLines, args.Headers...)

	descriptors := make([]request.Descriptor, 0, len(args.Requests))
	for _, line := range args.Requests {
		d := request.ParseLine(line)
		if d.Empty() {
			continue
		}
		d.URL = urlutil.Normalize(d.URL)
		descriptors = append(descriptors, d)
	}

	return s.runBatch(ctx, descriptors, callPolicy{
		followRedirect: followRedirect,
		http2:          useHTTP2,
		headers:        request.ParseHeaders(headerLines),
		includeReq:     args.IncludeReq,
		includeRes:     args.IncludeRes,
		flt:            flt,
	})
}

type fuzzRequestArgs struct {
	RawRequest string   `json:"raw_request"`
	Wordlist   []string `json:"wordlist"`
	FuzzKey    string   `json:"fuzz_key"`
}

func (s *Server) addFuzzRequestTool() {
	s.mcp.AddTool(
		&mcp.Tool{
			Name:        "fuzz_request",
			Title:       "Fuzz HTTP Request",
			Description: "Substitute a keyword in a raw HTTP request template with each entry of a wordlist and send one request per word. Each result carries the word that produced it.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"raw_request": {
						Type:        "string",
						Description: "Raw HTTP request template: 'METHOD PATH HTTP/VER' first line, 'Host:' header, optional body after a blank line.",
					},
					"wordlist": {
						Type:        "array",
						Items:       &jsonschema.Schema{Type: "string"},
						Description: "Words substituted for the fuzz keyword, one request per word.",
					},
					"fuzz_key": {
						Type:        "string",
						Description: "Keyword replaced in the template. Defaults to \"FUZZ\".",
						Default:     jsonDefault(fuzz.DefaultKeyword),
					},
				},
				Required: []string{"raw_request", "wordlist"},
			},
		},
		s.handleFuzzRequest,
	)
}

func (s *Server) handleFuzzRequest(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args fuzzRequestArgs
	if err := parseArgs(req, &args); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	return s.fuzzRequest(ctx, args)
}

func (s *Server) fuzzRequest(ctx context.Context, args fuzzRequestArgs) (*mcp.CallToolResult, error) {
	if args.RawRequest == "" {
		return errorResult("raw_request parameter is required"), nil
	}
	if len(args.Wordlist) == 0 {
		return errorResult("wordlist parameter must be a non-empty array of strings"), nil
	}

	descriptors, err := fuzz.Expand(args.RawRequest, args.Wordlist, args.FuzzKey)
	if err != nil {
		return errorResult(fmt.Sprintf("invalid raw_request template: %v", err)), nil
	}

	return s.runBatch(ctx, descriptors, callPolicy{
		followRedirect: true,
		http2:          s.cfg.HTTP.HTTP2,
		headers:        request.ParseHeaders(s.cfg.HTTP.Headers),
	})
}

// runBatch executes descriptors under the merged policy and returns the
// aggregated JSONL output as one text content block.
func (s *Server) runBatch(ctx context.Context, descriptors []request.Descriptor, p callPolicy) (*mcp.CallToolResult, error) {
	eng, err := s.newEngine(p)
	if err != nil {
		return errorResult(fmt.Sprintf("building HTTP client: %v", err)), nil
	}

	feed := make(chan request.Descriptor, len(descriptors))
	for _, d := range descriptors {
		feed <- d
	}
	close(feed)

	var buf bytes.Buffer
	fm := output.New(&buf, output.Options{
		Format:     output.FormatJSONL,
		IncludeReq: p.includeReq,
		IncludeRes: p.includeRes,
	})
	if err := eng.Run(ctx, feed, fm.Write); err != nil {
		return errorResult(fmt.Sprintf("request batch failed: %v", err)), nil
	}
	if err := fm.Flush(); err != nil {
		return errorResult(fmt.Sprintf("rendering results: %v", err)), nil
	}

	return textResult(strings.TrimRight(buf.String(), "\n")), nil
}
