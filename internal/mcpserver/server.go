// Package mcpserver exposes the request engine as a Model Context
// Protocol server over stdio (one JSON-RPC 2.0 message per line).
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/funnyzak/reqs/internal/config"
	"github.com/funnyzak/reqs/internal/engine"
	"github.com/funnyzak/reqs/internal/filter"
	"github.com/funnyzak/reqs/internal/httpclient"
	"github.com/funnyzak/reqs/internal/logger"
	"github.com/funnyzak/reqs/internal/pacing"
	"github.com/funnyzak/reqs/pkg/request"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the MCP server with the request engine. The launch
// configuration supplies defaults; tool calls may override a subset of it
// per call. The rate limiter is shared across all calls so the
// process-wide ceiling holds regardless of how requests arrive.
type Server struct {
	cfg     *config.Config
	log     logger.Logger
	limiter *pacing.Limiter
	jitter  *pacing.Jitter
	mcp     *mcp.Server
}

// New creates an MCP server with both tools registered.
func New(cfg *config.Config, version string, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		cfg:     cfg,
		log:     log,
		limiter: pacing.NewLimiter(cfg.Network.RateLimit),
	}
	if cfg.Network.RandomDelay != "" {
		// Validated at startup; a parse failure here means Validate was skipped.
		min, max, err := config.ParseDelayRange(cfg.Network.RandomDelay)
		if err == nil {
			s.jitter = pacing.NewJitter(min, max)
		}
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "reqs",
			Title:   "HTTP Request Testing Tool",
			Version: version,
		},
		&mcp.ServerOptions{
			Instructions: "Send HTTP requests and return response metadata.",
		},
	)

	s.addSendRequestsTool()
	s.addFuzzRequestTool()

	return s
}

// Run serves MCP over stdio until ctx is cancelled or stdin closes.
func (s *Server) Run(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// callPolicy is the merged per-call request policy: launch configuration
// with any tool-call overrides applied.
type callPolicy struct {
	followRedirect bool
	http2          bool
	headers        []request.Header
	includeReq     bool
	includeRes     bool
	flt            *filter.Filter
}

// newEngine builds a per-call client and engine for the merged policy.
func (s *Server) newEngine(p callPolicy) (*engine.Engine, error) {
	client, err := httpclient.New(httpclient.Options{
		Timeout:        time.Duration(s.cfg.Network.Timeout) * time.Second,
		FollowRedirect: p.followRedirect,
		VerifySSL:      s.cfg.Network.VerifySSL,
		Proxy:          s.cfg.Network.Proxy,
		HTTP2:          p.http2,
	})
	if err != nil {
		return nil, err
	}

	return engine.New(client, s.limiter, s.jitter, p.flt, engine.Options{
		Retry:       s.cfg.Network.Retry,
		RetryDelay:  time.Duration(s.cfg.Network.Delay) * time.Millisecond,
		Concurrency: s.cfg.Network.Concurrency,
		HTTP2:       p.http2,
		IncludeReq:  p.includeReq,
		IncludeRes:  p.includeRes,
		Headers:     p.headers,
	}, s.log), nil
}

// textResult creates a CallToolResult with a single text content block.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// errorResult creates an IsError CallToolResult so the client sees the
// failure description instead of a protocol-level exception.
func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// parseArgs unmarshals the raw JSON arguments from a tool call into dst.
func parseArgs(req *mcp.CallToolRequest, dst any) error {
	if len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, dst); err != nil {
		return fmt.Errorf("parsing tool arguments: %w", err)
	}
	return nil
}
