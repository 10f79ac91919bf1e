// Package httpclient builds the shared outbound HTTP client.
package httpclient

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http2"
)

// Redirect chains longer than this fail the request with an error.
const redirectLimit = 10

// Options configures the shared client. The zero value is a plain
// HTTP/1.1 client with no timeout that surfaces redirects directly.
type Options struct {
	// Timeout bounds one full attempt: connect, send, and body read.
	Timeout time.Duration
	// FollowRedirect enables following up to redirectLimit hops;
	// otherwise redirect responses are returned as-is.
	FollowRedirect bool
	// VerifySSL enables TLS peer verification. Off by default: the tool
	// is routinely pointed at staging hosts with self-signed certs.
	VerifySSL bool
	// Proxy is an optional proxy URL applied to all requests.
	Proxy string
	// HTTP2 switches ALPN preference to HTTP/2; otherwise the client
	// speaks HTTP/1.1 only.
	HTTP2 bool
}

// New builds an *http.Client from opts. The same client is shared by all
// concurrent attempts and is read-only after construction.
func New(opts Options) (*http.Client, error) {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !opts.VerifySSL,
		},
	}

	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", opts.Proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	if opts.HTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, fmt.Errorf("enabling HTTP/2: %w", err)
		}
	} else {
		// An empty TLSNextProto map keeps the transport off h2 even when
		// the server offers it during ALPN.
		transport.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}

	client := &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
	}

	if opts.FollowRedirect {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= redirectLimit {
				return fmt.Errorf("stopped after %d redirects", redirectLimit)
			}
			return nil
		}
	} else {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return client, nil
}
