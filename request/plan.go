// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	urlpkg "net/url"
	"strconv"
	"strings"

	"github.com/gogama/httpexec/auth"
	"github.com/gogama/httpexec/proxy"
	"golang.org/x/net/http/httpguts"
)

var (
	template, _ = http.NewRequest("GET", "", nil)
)

const (
	nilCtxMsg = "httpexec/request: nil context"
)

// Idempotency overrides whether a plan is safe to retry after its body
// may have reached the remote end.
type Idempotency int

const (
	// ByMethod derives idempotency from the method, following RFC 7231
	// section 4.2.2: GET, HEAD, OPTIONS, TRACE, PUT and DELETE are
	// idempotent, everything else is not.
	ByMethod Idempotency = iota
	// Idempotent marks the plan as idempotent regardless of method,
	// for example a POST carrying an idempotency key.
	Idempotent
	// NotIdempotent marks the plan as not idempotent regardless of
	// method.
	NotIdempotent
)

// A Plan contains a logical HTTP request plan for execution by a
// client. A Plan is the immutable request specification: every attempt
// made while executing the plan is derived from it.
//
// The field structure of plan mirrors the structure of the lower-level
// http.Request, with server-only fields removed and a pre-buffered body
// so the request can be transmitted any number of times.
//
// Like the http.Request structure, a Plan has a context which controls
// the overall plan execution and can be used to cancel the inflight
// execution of a Plan at any time.
type Plan struct {
	// Method specifies the HTTP method (GET, POST, PUT, etc.).
	// An empty string means GET.
	Method string

	// URL specifies the URL to access. Only the http and https schemes
	// are supported; https requires a TLS handshake on every fresh
	// connection.
	URL *urlpkg.URL

	// Header contains the request header fields to be sent by the
	// client.
	Header http.Header

	// Body is the pre-buffered request body to be sent. A nil or
	// empty body indicates no request body should be sent, for example
	// on a GET or DELETE request.
	Body []byte

	// Close stipulates whether to close the connection after the
	// exchange instead of returning it to the connection pool.
	Close bool

	// Host optionally overrides the Host header to send. If empty, the
	// value of URL.Host will be sent.
	Host string

	// Idempotency overrides the method-derived idempotency of the plan.
	Idempotency Idempotency

	// Proxy overrides the client's proxy for this plan. If nil, the
	// client's proxy (if any) is used.
	Proxy *proxy.Server

	// Realm optionally supplies credentials for answering a 401
	// challenge from the destination server. If nil, a 401 response
	// is returned to the caller like any other response.
	Realm *auth.Realm

	// ctx allows the entire Plan exec to be cancelled. It should only
	// be modified by copying the whole Plan using WithContext.
	ctx context.Context
}

// NewPlan wraps NewPlanWithContext using the background context.
//
// Parameter body may be nil (empty body), or it may be a string,
// []byte, io.Reader, or io.ReadCloser. If body is an io.Reader, it is
// read to the end and buffered into a []byte. If body is an
// io.ReadCloser, it is closed after buffering.
func NewPlan(method, url string, body interface{}) (*Plan, error) {
	return NewPlanWithContext(context.Background(), method, url, body)
}

// NewPlanWithContext returns a new Plan given a method, URL, and
// optional body.
//
// The URL must be absolute and use the http or https scheme.
func NewPlanWithContext(ctx context.Context, method, url string, body interface{}) (*Plan, error) {
	if ctx == nil {
		return nil, errors.New(nilCtxMsg)
	}
	if method == "" {
		method = "GET"
	}
	if !validMethod(method) {
		return nil, fmt.Errorf("httpexec/request: invalid method %q", method)
	}
	u, err := urlpkg.Parse(url)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("httpexec/request: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("httpexec/request: missing host in %q", url)
	}
	u.Host = removeEmptyPort(u.Host)
	b, err := BodyBytes(body)
	if err != nil {
		return nil, err
	}
	return &Plan{
		ctx:    ctx,
		Method: method,
		URL:    u,
		Header: make(http.Header),
		Body:   b,
		Host:   u.Host,
	}, nil
}

// Context returns the request plan's context. The context controls
// cancellation of the overall request plan. To change the context, use
// WithContext.
//
// The returned context is always non-nil; it defaults to the
// background context.
func (p *Plan) Context() context.Context {
	if p.ctx != nil {
		return p.ctx
	}
	return context.Background()
}

// WithContext returns a shallow copy of p with its context changed to
// ctx, which must be non-nil.
func (p *Plan) WithContext(ctx context.Context) *Plan {
	if ctx == nil {
		panic(nilCtxMsg)
	}
	p2 := new(Plan)
	*p2 = *p
	p2.ctx = ctx
	return p2
}

// Idempotent reports whether an attempt of the plan may be repeated
// after its body has reached the remote end.
func (p *Plan) Idempotent() bool {
	switch p.Idempotency {
	case Idempotent:
		return true
	case NotIdempotent:
		return false
	}
	switch p.Method {
	case "", "GET", "HEAD", "OPTIONS", "TRACE", "PUT", "DELETE":
		return true
	default:
		return false
	}
}

// Secure reports whether the plan targets an https URL.
func (p *Plan) Secure() bool {
	return p.URL.Scheme == "https"
}

// Hostname returns the destination host without port.
func (p *Plan) Hostname() string {
	return p.URL.Hostname()
}

// Port returns the destination port, defaulting to 443 for https and
// 80 for http.
func (p *Plan) Port() int {
	if s := p.URL.Port(); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	if p.Secure() {
		return 443
	}
	return 80
}

// SetBasicAuth sets the request plan's Authorization header to use HTTP
// Basic Authentication with the provided username and password.
//
// Prefer Realm when the server may answer with a challenge for a scheme
// other than Basic.
func (p *Plan) SetBasicAuth(username, password string) {
	p.Header.Set("Authorization", "Basic "+auth.BasicToken(username, password))
}

// ToRequest creates an HTTP request corresponding to the given request
// plan. The context of the new request is set to ctx, which may not be
// nil.
//
// The request's Header is a clone of the plan's, so callers may attach
// per-attempt credentials without altering the plan.
func (p *Plan) ToRequest(ctx context.Context) *http.Request {
	r := template.WithContext(ctx)
	r.Method = p.Method
	r.URL = p.URL
	r.Header = p.Header.Clone()
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	if len(p.Body) > 0 {
		r.Body = io.NopCloser(bytes.NewReader(p.Body))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(p.Body)), nil
		}
		r.ContentLength = int64(len(p.Body))
	}
	r.Close = p.Close
	r.Host = p.Host
	return r
}

func validMethod(method string) bool {
	return strings.IndexFunc(method, isNotToken) == -1
}

func isNotToken(r rune) bool {
	return !httpguts.IsTokenRune(r)
}

// hasPort is lifted verbatim from net/http/http.go
//
// Given a string of the form "host", "host:port", or "[ipv6::address]:port",
// return true if the string includes a port.
func hasPort(s string) bool { return strings.LastIndex(s, ":") > strings.LastIndex(s, "]") }

// removeEmptyPort is lifted verbatim from net/http/http.go
//
// removeEmptyPort strips the empty port in ":port" to ""
// as mandated by RFC 3986 Section 6.2.3.
func removeEmptyPort(host string) string {
	if hasPort(host) {
		return strings.TrimSuffix(host, ":")
	}
	return host
}
