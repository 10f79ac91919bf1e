// Package engine drives batches of request descriptors through the HTTP
// client under the shared pacing, retry, and concurrency policy.
package engine

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/funnyzak/reqs/internal/filter"
	"github.com/funnyzak/reqs/internal/logger"
	"github.com/funnyzak/reqs/internal/pacing"
	"github.com/funnyzak/reqs/pkg/request"
	"golang.org/x/sync/errgroup"
)

// Options is the per-run request policy.
type Options struct {
	// Retry is the number of additional attempts after a failure; retries
	// run sequentially with RetryDelay between them.
	Retry      int
	RetryDelay time.Duration
	// Concurrency caps simultaneously outstanding requests; 0 means no cap.
	Concurrency int
	// HTTP2 is only used for labeling reconstructed raw requests; the
	// client itself was already built for the right protocol.
	HTTP2        bool
	IncludeReq   bool
	IncludeRes   bool
	IncludeTitle bool
	// Headers are applied to every request, before any descriptor headers.
	Headers []request.Header
}

// Stats summarizes a finished run.
type Stats struct {
	Dispatched uint64 // descriptors accepted
	Emitted    uint64 // records that survived filtering
	Failed     uint64 // descriptors whose final attempt failed
	BytesRead  uint64 // response body bytes across all attempts
}

// Engine owns the shared client, limiter, and jitter for one run. It is
// safe for concurrent use; all mutable state is internal counters.
type Engine struct {
	client  *http.Client
	limiter *pacing.Limiter
	jitter  *pacing.Jitter
	filter  *filter.Filter
	opts    Options
	log     logger.Logger

	dispatched atomic.Uint64
	emitted    atomic.Uint64
	failed     atomic.Uint64
	bytesRead  atomic.Uint64
}

// New creates an engine. limiter, jitter, and flt may be nil to disable
// the corresponding policy.
func New(client *http.Client, limiter *pacing.Limiter, jitter *pacing.Jitter, flt *filter.Filter, opts Options, log logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		client:  client,
		limiter: limiter,
		jitter:  jitter,
		filter:  flt,
		opts:    opts,
		log:     log,
	}
}

// Run drains descriptors, dispatching each under the concurrency cap, and
// hands surviving results to emit in completion order. Run returns after
// every accepted descriptor's task has terminated. On context
// cancellation it stops accepting input and waits for in-flight work;
// attempts that were cancelled before producing a response are dropped
// rather than emitted as failures.
func (e *Engine) Run(ctx context.Context, descriptors <-chan request.Descriptor, emit func(*request.Result) error) error {
	g := new(errgroup.Group)
	if e.opts.Concurrency > 0 {
		g.SetLimit(e.opts.Concurrency)
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case d, ok := <-descriptors:
			if !ok {
				break loop
			}
			if d.Empty() {
				continue
			}
			e.dispatched.Add(1)
			g.Go(func() error {
				res, body := e.Execute(ctx, d)
				if res.Failed() && ctx.Err() != nil {
					return nil
				}
				if !e.filter.Match(res.StatusCode, body) {
					return nil
				}
				e.emitted.Add(1)
				return emit(res)
			})
		}
	}

	return g.Wait()
}

// Execute runs one descriptor through the retry controller and returns
// the last attempt's record along with the decoded body (for filter
// evaluation even when the body is not part of the record).
func (e *Engine) Execute(ctx context.Context, d request.Descriptor) (*request.Result, string) {
	var res *request.Result
	var body string

	for attempt := 0; ; attempt++ {
		res, body = e.attempt(ctx, d)
		e.bytesRead.Add(res.ContentLength)
		if !res.Failed() || attempt >= e.opts.Retry {
			break
		}

		e.log.Warn("Request attempt failed, retrying",
			"url", d.URL,
			"attempt", attempt+1,
			"error", res.Error,
		)
		select {
		case <-ctx.Done():
			return res, body
		case <-time.After(e.opts.RetryDelay):
		}
	}

	if res.Failed() {
		e.failed.Add(1)
	}
	return res, body
}

// Stats returns the run counters accumulated so far.
func (e *Engine) Stats() Stats {
	return Stats{
		Dispatched: e.dispatched.Load(),
		Emitted:    e.emitted.Load(),
		Failed:     e.failed.Load(),
		BytesRead:  e.bytesRead.Load(),
	}
}
