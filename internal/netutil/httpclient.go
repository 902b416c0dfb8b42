// Package netutil builds the outbound HTTP clients used for Telegram, the
// completion API and page fetches.
package netutil

import (
	"net"
	"net/http"
	"time"
)

const defaultTimeout = 60 * time.Second

// ClientOptions tunes a client. Zero values take the defaults.
type ClientOptions struct {
	Timeout         time.Duration // whole request, including body read
	MaxConnsPerHost int
	// UserAgent is set on requests that do not carry one already.
	UserAgent string
}

// NewClient returns a pooled client. Callers build one per upstream.
func NewClient(opts ClientOptions) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxConnsPerHost <= 0 {
		opts.MaxConnsPerHost = 8
	}

	var rt http.RoundTripper = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        4 * opts.MaxConnsPerHost,
		MaxIdleConnsPerHost: opts.MaxConnsPerHost,
		MaxConnsPerHost:     opts.MaxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: opts.Timeout,
		ExpectContinueTimeout: time.Second,
	}
	if opts.UserAgent != "" {
		rt = &userAgentTransport{next: rt, ua: opts.UserAgent}
	}
	return &http.Client{Timeout: opts.Timeout, Transport: rt}
}

type userAgentTransport struct {
	next http.RoundTripper
	ua   string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(req)
	}
	// RoundTrip must not modify the caller's request.
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.ua)
	return t.next.RoundTrip(r)
}
