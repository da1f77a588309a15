// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpexec

import (
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gogama/httpexec/dns"
	"github.com/gogama/httpexec/pool"
	"github.com/gogama/httpexec/proxy"
	"github.com/gogama/httpexec/request"
	"github.com/gogama/httpexec/retry"
	"github.com/gogama/httpexec/timeout"
)

// A Client is an HTTP/1.1 request executor with connection pooling,
// proxy support, proxy and server authentication, and retries. Its zero
// value is a valid configuration.
//
// The zero value client connects directly to every destination, pools
// connections in a private pool.Pool, resolves names with a dns.Resolver,
// dials with a net.Dialer, and uses retry.DefaultPolicy and
// timeout.DefaultPolicy.
//
// Client holds its connection pool, so Client instances should be
// reused instead of created as needed. Client is safe for concurrent use
// by multiple goroutines once its fields are set.
//
// Each plan execution moves through a sequence of attempts. An attempt
// borrows an idle connection from the pool or opens a new one (name
// resolution, dial, proxy tunnel, TLS handshake), attaches credentials,
// writes the request, and reads the response with its complete body.
// Authentication challenges from the proxy (407) or the server (401, if
// the plan has a Realm) are answered on the same connection. Connection
// and transport failures are retried on a new connection as the retry
// policy allows. Event handlers installed in Handlers observe every
// step.
//
// Client's HTTP methods follow the naming and rough parameter schema of
// the Go standard HTTP client. The main differences are that Client.Do
// consumes a request.Plan, which can be sent any number of times, and
// that every method returns a request.Execution carrying the fully
// buffered response body along with metadata about the execution.
type Client struct {
	// Proxy is the proxy server requests are routed through, unless a
	// plan sets its own proxy or the destination matches one of the
	// proxy's non-proxy hosts. If Proxy is nil, requests connect
	// directly.
	Proxy *proxy.Server
	// Pool holds idle connections for reuse. If Pool is nil, the
	// client creates a private pool with the default configuration on
	// first use.
	Pool *pool.Pool
	// Resolver resolves the host to connect to. If Resolver is nil, a
	// dns.Resolver using the default net.Resolver is used.
	Resolver Resolver
	// Dialer opens TCP connections. If Dialer is nil, a zero net.Dialer
	// is used.
	Dialer Dialer
	// TLSConfig configures the default TLS handshake for https
	// destinations. It is ignored if Handshaker is set.
	TLSConfig *tls.Config
	// Handshaker performs TLS handshakes. If Handshaker is nil, a
	// crypto/tls handshake using TLSConfig is done.
	Handshaker Handshaker
	// Codec reads and writes HTTP messages. If Codec is nil, HTTP1 is
	// used.
	Codec Codec
	// RetryPolicy decides when to retry failed attempts and how long
	// to sleep after a failed attempt before retrying.
	//
	// If RetryPolicy is nil, retry.DefaultPolicy is used.
	RetryPolicy retry.Policy
	// TimeoutPolicy specifies the timeout on each blocking step of an
	// attempt.
	//
	// If TimeoutPolicy is nil, timeout.DefaultPolicy is used.
	TimeoutPolicy timeout.Policy
	// Handlers allows custom handler chains to be invoked when
	// designated events occur during execution of a request plan.
	//
	// If Handlers is nil, no custom handlers will be run.
	Handlers *HandlerGroup
	// Logger receives debug records for retries and authentication
	// rounds. If Logger is nil, nothing is logged.
	Logger *slog.Logger

	once     sync.Once
	pool     *pool.Pool
	resolver Resolver
	log      *slog.Logger
}

// Do executes an HTTP request plan and returns the results, following
// the proxy, authentication, timeout and retry policy set on Client.
//
// The result returned is the result of the final transmission made
// during the plan execution. A non-2XX status code does not result in
// an error, with the exception of authentication challenges the client
// was configured to answer and could not satisfy.
//
// The returned Execution is never nil. If an error was returned, the
// Err field of the Execution references the same error, and the
// Completed event has not fired. Any returned error is of type
// *url.Error, wrapping one of: *RetryExhausted if connection or
// transport failures outlasted the retry policy; *auth.Error if an
// authentication negotiation failed; *ProtocolError if the remote end
// did not speak HTTP; *pool.ExhaustedError if the pool's per-key limit
// was reached; or the plan context's error if the plan was cancelled.
// The url.Error's Timeout method, and the Execution's Timeout method,
// report whether the final attempt timed out.
//
// If the returned error is nil, the returned Execution contains both a
// non-nil Response and a non-nil Body (although Body may have zero
// length).
//
// For simple use cases, the Get, Head, Post, and PostForm methods may
// prove easier to use than Do.
func (c *Client) Do(p *request.Plan) (*request.Execution, error) {
	c.init()
	x := c.newExec(p)
	e := x.e

	err := x.run()
	e.End = time.Now()
	if err != nil {
		e.Phase = request.Failed
		e.Err = urlErrorWrap(p, err)
		x.log.Debug("request failed", "method", p.Method, "url", p.URL.Redacted(),
			"attempts", e.Attempt+1, "err", err)
		return e, e.Err
	}

	e.Phase = request.Completed
	e.Err = nil
	x.handlers.run(Completed, e)
	return e, nil
}

// Get issues a GET to the specified URL, using the same policies
// followed by Do.
//
// To make a request plan with custom headers, use request.NewPlan and
// Client.Do.
func (c *Client) Get(url string) (*request.Execution, error) {
	return Get(c, url)
}

// Head issues a HEAD to the specified URL, using the same policies
// followed by Do.
func (c *Client) Head(url string) (*request.Execution, error) {
	return Head(c, url)
}

// Post issues a POST to the specified URL, using the same policies
// followed by Do.
//
// The body parameter may be nil for an empty body, or may be any of the
// types supported by request.NewPlan and request.BodyBytes, namely:
// string; []byte; io.Reader; and io.ReadCloser.
func (c *Client) Post(url, contentType string, body interface{}) (*request.Execution, error) {
	return Post(c, url, contentType, body)
}

// PostForm issues a POST to the specified URL, with data's keys and
// values URL-encoded as the request body.
func (c *Client) PostForm(url string, data url.Values) (*request.Execution, error) {
	return PostForm(c, url, data)
}

// CloseIdleConnections closes every idle connection in the client's
// pool. Connections in use by executions are not interrupted.
func (c *Client) CloseIdleConnections() {
	c.init()
	c.pool.CloseIdle()
}

func (c *Client) init() {
	c.once.Do(func() {
		c.log = c.Logger
		if c.log == nil {
			c.log = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		c.pool = c.Pool
		if c.pool == nil {
			c.pool = pool.New(pool.Config{Logger: c.Logger})
		}
		c.resolver = c.Resolver
		if c.resolver == nil {
			c.resolver = &dns.Resolver{Logger: c.Logger}
		}
	})
}

func (c *Client) dialer() Dialer {
	if c.Dialer == nil {
		return &net.Dialer{}
	}
	return c.Dialer
}

func (c *Client) handshaker() Handshaker {
	if c.Handshaker == nil {
		return tlsHandshaker{config: c.TLSConfig}
	}
	return c.Handshaker
}

func (c *Client) codec() Codec {
	if c.Codec == nil {
		return HTTP1
	}
	return c.Codec
}

func (c *Client) retryPolicy() retry.Policy {
	if c.RetryPolicy == nil {
		return retry.DefaultPolicy
	}
	return c.RetryPolicy
}

func (c *Client) timeoutPolicy() timeout.Policy {
	if c.TimeoutPolicy == nil {
		return timeout.DefaultPolicy
	}
	return c.TimeoutPolicy
}
