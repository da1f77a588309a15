// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpexec

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gogama/httpexec/request"
	"github.com/gogama/httpexec/transient"
)

// errChallengeClosed is the cause of the connection-level failure
// recorded when a proxy or server closes the connection on which it
// issued an authentication challenge.
var errChallengeClosed = errors.New("httpexec: connection closed after authentication challenge")

// A ConnectionError reports a failure of the connection used by an
// attempt: name resolution, dialing, proxy tunnelling, the TLS
// handshake, or a read or write during the exchange.
type ConnectionError struct {
	// Op is the failed operation: "resolve", "dial", "proxyconnect",
	// "tls", "write" or "read".
	Op string
	// Addr is the host or address involved, if known.
	Addr string
	Err  error
}

func (err *ConnectionError) Error() string {
	if err.Addr == "" {
		return fmt.Sprintf("httpexec: %s: %v", err.Op, err.Err)
	}
	return fmt.Sprintf("httpexec: %s %s: %v", err.Op, err.Addr, err.Err)
}

func (err *ConnectionError) Unwrap() error {
	return err.Err
}

// Timeout reports whether the connection failure was a timeout.
func (err *ConnectionError) Timeout() bool {
	return transient.Categorize(err.Err) == transient.Timeout
}

// A ProtocolError reports a response that is not valid HTTP.
type ProtocolError struct {
	Msg string
	Err error
}

func (err *ProtocolError) Error() string {
	if err.Err == nil {
		return "httpexec: protocol error: " + err.Msg
	}
	return fmt.Sprintf("httpexec: protocol error: %s: %v", err.Msg, err.Err)
}

func (err *ProtocolError) Unwrap() error {
	return err.Err
}

// A RetryExhausted error is returned when an execution gives up after
// connection or transport failures. Err is the failure of the last
// attempt.
type RetryExhausted struct {
	Attempts int
	Err      error
}

func (err *RetryExhausted) Error() string {
	s := "s"
	if err.Attempts == 1 {
		s = ""
	}
	return fmt.Sprintf("httpexec: giving up after %d attempt%s: %v", err.Attempts, s, err.Err)
}

func (err *RetryExhausted) Unwrap() error {
	return err.Err
}

// Timeout reports whether the last attempt failed with a timeout.
func (err *RetryExhausted) Timeout() bool {
	return transient.Categorize(err.Err) == transient.Timeout
}

func urlErrorWrap(p *request.Plan, err error) error {
	if _, ok := err.(*url.Error); ok {
		return err
	}

	return &url.Error{
		Op:  urlErrorOp(p.Method),
		URL: p.URL.String(),
		Err: err,
	}
}

// urlErrorOp is lifted verbatim from net/http/client.go
func urlErrorOp(method string) string {
	if method == "" {
		return "Get"
	}
	return method[:1] + strings.ToLower(method[1:])
}
