// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpexec

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/gogama/httpexec/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLErrorOp(t *testing.T) {
	assert.Equal(t, "Get", urlErrorOp(""))
	assert.Equal(t, "Get", urlErrorOp("GET"))
	assert.Equal(t, "Post", urlErrorOp("POST"))
	assert.Equal(t, "Connect", urlErrorOp("CONNECT"))
}

func TestErrors(t *testing.T) {
	cause := errors.New("boom")
	ce := &ConnectionError{Op: "dial", Addr: "127.0.0.1:1", Err: cause}
	assert.EqualError(t, ce, "httpexec: dial 127.0.0.1:1: boom")
	assert.ErrorIs(t, ce, cause)
	assert.False(t, ce.Timeout())
	assert.EqualError(t, &ConnectionError{Op: "read", Err: cause}, "httpexec: read: boom")

	re := &RetryExhausted{Attempts: 1, Err: ce}
	assert.EqualError(t, re, "httpexec: giving up after 1 attempt: httpexec: dial 127.0.0.1:1: boom")
	re.Attempts = 2
	assert.EqualError(t, re, "httpexec: giving up after 2 attempts: httpexec: dial 127.0.0.1:1: boom")
	assert.ErrorIs(t, re, cause)

	timeoutErr := &ConnectionError{Op: "read", Err: context.DeadlineExceeded}
	assert.True(t, timeoutErr.Timeout())
	assert.True(t, (&RetryExhausted{Attempts: 1, Err: timeoutErr}).Timeout())

	pe := &ProtocolError{Msg: "malformed status line"}
	assert.EqualError(t, pe, "httpexec: protocol error: malformed status line")
	pe.Err = cause
	assert.EqualError(t, pe, "httpexec: protocol error: malformed status line: boom")
}

func TestURLErrorWrap(t *testing.T) {
	p, err := request.NewPlan("DELETE", "http://example.com/x", nil)
	require.NoError(t, err)
	cause := errors.New("boom")
	wrapped := urlErrorWrap(p, cause)
	var ue *url.Error
	require.ErrorAs(t, wrapped, &ue)
	assert.Equal(t, "Delete", ue.Op)
	assert.Equal(t, "http://example.com/x", ue.URL)
	assert.Same(t, cause, ue.Err)
	assert.Same(t, wrapped, urlErrorWrap(p, wrapped))
}
