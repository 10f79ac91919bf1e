package engine

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"strings"
	"time"

	"github.com/funnyzak/reqs/pkg/request"
)

// attempt performs one HTTP send/receive cycle: jitter, rate token,
// build, send, full body read, metadata extraction. Transport failures
// yield a synthetic record with StatusCode 0 and the error text.
func (e *Engine) attempt(ctx context.Context, d request.Descriptor) (*request.Result, string) {
	e.jitter.Sleep(ctx)

	res := &request.Result{Method: d.Method, URL: d.URL, Word: d.Word}

	if err := e.limiter.Wait(ctx); err != nil {
		res.Error = err.Error()
		return res, ""
	}

	var bodyReader io.Reader
	if d.Body != "" {
		bodyReader = strings.NewReader(d.Body)
	}
	req, err := http.NewRequestWithContext(ctx, d.Method, d.URL, bodyReader)
	if err != nil {
		res.Error = err.Error()
		return res, ""
	}

	// Global headers first, then any template headers from the descriptor.
	headers := make([]request.Header, 0, len(e.opts.Headers)+len(d.Headers))
	headers = append(headers, e.opts.Headers...)
	headers = append(headers, d.Headers...)
	for _, h := range headers {
		if strings.EqualFold(h.Name, "Host") {
			req.Host = h.Value
			continue
		}
		req.Header.Add(h.Name, h.Value)
	}

	if e.opts.IncludeReq {
		res.RawRequest = request.FormatRaw(d.Method, req.URL, headers, e.opts.HTTP2, d.Body)
	}

	// Best-effort peer capture; GotConn fires before Do returns, so the
	// plain write is safe to read afterwards.
	var peer string
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			addr := info.Conn.RemoteAddr()
			if addr == nil {
				return
			}
			if host, _, err := net.SplitHostPort(addr.String()); err == nil {
				peer = host
			} else {
				peer = addr.String()
			}
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		res.ResponseTimeMS = uint64(time.Since(start).Milliseconds())
		res.Error = err.Error()
		return res, ""
	}
	defer resp.Body.Close()

	// The body is always read in full: content_length counts bytes
	// actually received, and full reads keep the connection reusable.
	needText := e.opts.IncludeRes || e.opts.IncludeTitle || e.filter.NeedsBody()
	var read int64
	var bodyText string
	if needText {
		raw, rerr := io.ReadAll(resp.Body)
		read = int64(len(raw))
		bodyText = string(raw)
		if rerr != nil {
			e.log.Debug("Response body read truncated", "url", d.URL, "error", rerr)
		}
	} else {
		read, _ = io.Copy(io.Discard, resp.Body)
	}
	res.ResponseTimeMS = uint64(time.Since(start).Milliseconds())

	res.StatusCode = resp.StatusCode
	res.ContentLength = uint64(read)
	res.IPAddress = peer
	if e.opts.IncludeTitle {
		res.Title = ExtractTitle(bodyText)
	}
	if e.opts.IncludeRes {
		res.ResponseBody = bodyText
	}

	return res, bodyText
}
