// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gogama/httpexec/auth"
	"github.com/gogama/httpexec/pool"
	"github.com/gogama/httpexec/proxy"
	"github.com/gogama/httpexec/transient"
)

// An Execution represents the state of a single Plan execution: the
// sequence of request attempts made to satisfy one logical request.
//
// The client updates the Execution as the plan execution progresses and
// hands it to every event handler, so observers can correlate events
// with the connection, proxy and authentication state that produced
// them. Handlers may store their own data using SetValue and Value, but
// should treat the exported fields as read-only.
type Execution struct {
	// Plan specifies the HTTP request plan being executed. It is never
	// nil.
	Plan *Plan

	// Start is the start time of the plan execution.
	Start time.Time

	// End is the end time of the plan execution. It contains the zero
	// value until the execution ends.
	End time.Time

	// Attempt is the zero-based failure-attempt index. It starts at
	// zero and is incremented each time the execution retries on a new
	// connection after a connection or transport failure.
	//
	// Authentication retries on the same connection do not increment
	// Attempt; they are counted by Auth.Round and Sends.
	Attempt int

	// Sends is the number of times the request has been transmitted,
	// including authentication retries.
	Sends int

	// AttemptTimeouts is the count of the number of times a suspension
	// point (resolve, connect, handshake, write or read) exceeded its
	// timeout during the execution.
	AttemptTimeouts int

	// Phase is the state the current attempt is in.
	Phase Phase

	// Proxy is the proxy the execution is routed through. It is nil
	// when no proxy is configured or the destination matched one of the
	// proxy's non-proxy hosts.
	Proxy *proxy.Server

	// Key is the connection pool key of the current attempt.
	Key pool.Key

	// Conn is the pooled connection used by the current attempt. It is
	// nil until a connection has been borrowed from, or offered to, the
	// pool, and set to nil again when the connection is released or
	// evicted.
	Conn *pool.Conn

	// Addrs holds the addresses the connection host resolved to during
	// the most recent name resolution.
	Addrs []net.IPAddr

	// RemoteAddr is the remote address of the most recently opened
	// connection.
	RemoteAddr net.Addr

	// Auth is a snapshot of the authentication negotiation state of the
	// execution: the proxy negotiation if the execution is proxied and
	// the proxy requires authentication, otherwise the server
	// negotiation if the plan has a realm.
	Auth auth.Negotiation

	// Request specifies the HTTP request to be sent in the current
	// transmission, or already sent in the last one.
	Request *http.Request

	// Response specifies the HTTP response received in the most recent
	// transmission. Its body has already been consumed into Body.
	Response *http.Response

	// Err indicates the error that ended the most recent failed
	// attempt. It is cleared when an attempt succeeds. If the execution
	// ends in failure, Err is the same error returned by the client.
	Err error

	// Body is the complete response body read from the most recent
	// response.
	Body []byte

	data context.Context
}

// StatusCode returns the status code of the HTTP response from the
// most recent transmission in the execution. If there is no HTTP
// response, 0 is returned.
func (e *Execution) StatusCode() int {
	if e.Response == nil {
		return 0
	}

	return e.Response.StatusCode
}

// Header returns the HTTP response headers from the most recent
// transmission in the execution. If there is no HTTP response, the nil
// header is returned.
func (e *Execution) Header() http.Header {
	if e.Response == nil {
		var nilHeader http.Header
		return nilHeader
	}

	return e.Response.Header
}

// Duration returns the duration of the execution.
//
// If the execution has not yet started, the duration is zero. If the
// execution has Ended, the duration returned is equal to End minus
// Start. Otherwise, it is equal to the current time minus Start.
func (e *Execution) Duration() time.Duration {
	if !e.Started() {
		return time.Duration(0)
	} else if !e.Ended() {
		return time.Since(e.Start)
	}

	return e.End.Sub(e.Start)
}

// Started indicates whether the execution has started.
func (e *Execution) Started() bool {
	return e.Start != (time.Time{})
}

// Ended indicates whether the execution has ended.
func (e *Execution) Ended() bool {
	return e.End != (time.Time{})
}

// Proxied reports whether the execution is routed through a proxy.
func (e *Execution) Proxied() bool {
	return e.Proxy != nil
}

// Timeout indicates whether Err currently contains a non-nil value
// which indicates a timeout.
func (e *Execution) Timeout() bool {
	return transient.Categorize(e.Err) == transient.Timeout
}

// SetValue allows event handlers to store arbitrary data in the request
// plan execution.
//
// The key must follow the same rules as the key parameter in
// context.WithValue: it may not be nil, it must be comparable, and it
// should not be of a built-in type.
func (e *Execution) SetValue(key, value interface{}) {
	ctx := e.data
	if ctx == nil {
		ctx = context.Background()
	}

	e.data = context.WithValue(ctx, key, value)
}

// Value returns the data value associated with this execution for key,
// or nil if there is no value associated with key.
func (e *Execution) Value(key interface{}) interface{} {
	ctx := e.data
	if ctx == nil {
		return nil
	}

	return ctx.Value(key)
}
