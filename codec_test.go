// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpexec

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/gogama/httpexec/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTP1_WriteHeader(t *testing.T) {
	newRequest := func(t *testing.T, method, u string, body interface{}) *http.Request {
		p, err := request.NewPlan(method, u, body)
		require.NoError(t, err)
		p.Header.Set("X-B", "2")
		p.Header.Set("X-A", "1")
		return p.ToRequest(context.Background())
	}
	write := func(t *testing.T, r *http.Request, f RequestForm) string {
		var buf bytes.Buffer
		require.NoError(t, HTTP1.WriteHeader(&buf, r, f))
		return buf.String()
	}

	t.Run("origin form", func(t *testing.T) {
		r := newRequest(t, "GET", "http://user:pw@example.com:8080/a/b?c=d#frag", nil)
		assert.Equal(t, "GET /a/b?c=d HTTP/1.1\r\n"+
			"Host: example.com:8080\r\n"+
			"X-A: 1\r\n"+
			"X-B: 2\r\n"+
			"\r\n", write(t, r, RequestForm{}))
	})
	t.Run("absolute form", func(t *testing.T) {
		r := newRequest(t, "GET", "http://user:pw@example.com/a?c=d#frag", nil)
		assert.Equal(t, "GET http://example.com/a?c=d HTTP/1.1\r\n"+
			"Host: example.com\r\n"+
			"X-A: 1\r\n"+
			"X-B: 2\r\n"+
			"\r\n", write(t, r, RequestForm{AbsoluteURI: true}))
	})
	t.Run("HTTP/1.0", func(t *testing.T) {
		r := newRequest(t, "GET", "http://example.com/", nil)
		r.Close = true
		assert.Equal(t, "GET http://example.com/ HTTP/1.0\r\n"+
			"Host: example.com\r\n"+
			"X-A: 1\r\n"+
			"X-B: 2\r\n"+
			"\r\n", write(t, r, RequestForm{AbsoluteURI: true, HTTP10: true}))
	})
	t.Run("body", func(t *testing.T) {
		r := newRequest(t, "PUT", "http://example.com/", "hello")
		r.Close = true
		assert.Equal(t, "PUT / HTTP/1.1\r\n"+
			"Host: example.com\r\n"+
			"Connection: close\r\n"+
			"Content-Length: 5\r\n"+
			"X-A: 1\r\n"+
			"X-B: 2\r\n"+
			"\r\n", write(t, r, RequestForm{}))
	})
	t.Run("empty post", func(t *testing.T) {
		r := newRequest(t, "POST", "http://example.com/", nil)
		assert.Contains(t, write(t, r, RequestForm{}), "Content-Length: 0\r\n")
	})
	t.Run("connect", func(t *testing.T) {
		r := &http.Request{
			Method: http.MethodConnect,
			URL:    mustParseURL(t, "//example.com:443"),
			Host:   "example.com:443",
			Header: http.Header{"Proxy-Authorization": {"Basic Zm9vOmJhcg=="}},
		}
		assert.Equal(t, "CONNECT example.com:443 HTTP/1.1\r\n"+
			"Host: example.com:443\r\n"+
			"Proxy-Authorization: Basic Zm9vOmJhcg==\r\n"+
			"\r\n", write(t, r, RequestForm{}))
	})
	t.Run("write error", func(t *testing.T) {
		r := newRequest(t, "GET", "http://example.com/", nil)
		err := HTTP1.WriteHeader(failWriter{}, r, RequestForm{})
		assert.ErrorIs(t, err, io.ErrShortWrite)
	})
}

func TestHTTP1_ReadStatus(t *testing.T) {
	testCases := []struct {
		line   string
		code   int
		status string
		proto  string
		err    string
	}{
		{line: "HTTP/1.1 200 OK\r\n", code: 200, status: "200 OK", proto: "HTTP/1.1"},
		{line: "HTTP/1.0 404 Not Found\r\n", code: 404, status: "404 Not Found", proto: "HTTP/1.0"},
		{line: "HTTP/1.1 204\r\n", code: 204, status: "204", proto: "HTTP/1.1"},
		{line: "HTTP/1.1  407 Proxy Authentication Required\n", code: 407, status: "407 Proxy Authentication Required", proto: "HTTP/1.1"},
		{line: "SSH-2.0-OpenSSH_8.9\r\n", err: "httpexec: protocol error: malformed status line"},
		{line: "HTTP/2.0 200 OK\r\n", err: `httpexec: protocol error: unsupported protocol version "HTTP/2.0"`},
		{line: "ICY 200 OK\r\n", err: `httpexec: protocol error: unsupported protocol version "ICY"`},
		{line: "HTTP/1.1 2000 OK\r\n", err: `httpexec: protocol error: malformed status code "2000"`},
		{line: "HTTP/1.1 abc OK\r\n", err: `httpexec: protocol error: malformed status code "abc"`},
		{line: "HTTP/1.1 099 Huh\r\n", err: `httpexec: protocol error: malformed status code "099"`},
	}
	for _, testCase := range testCases {
		t.Run(strings.TrimSpace(testCase.line), func(t *testing.T) {
			resp, err := HTTP1.ReadStatus(bufio.NewReader(strings.NewReader(testCase.line)))
			if testCase.err != "" {
				require.Error(t, err)
				var pe *ProtocolError
				assert.ErrorAs(t, err, &pe)
				assert.Contains(t, err.Error(), testCase.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testCase.code, resp.StatusCode)
			assert.Equal(t, testCase.status, resp.Status)
			assert.Equal(t, testCase.proto, resp.Proto)
			assert.NotNil(t, resp.Header)
		})
	}
	t.Run("EOF", func(t *testing.T) {
		_, err := HTTP1.ReadStatus(bufio.NewReader(strings.NewReader("")))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

func TestHTTP1_ReadHeader(t *testing.T) {
	read := func(t *testing.T, status, header string) (*http.Response, error) {
		br := bufio.NewReader(strings.NewReader(status + header))
		resp, err := HTTP1.ReadStatus(br)
		require.NoError(t, err)
		return resp, HTTP1.ReadHeader(br, resp)
	}

	t.Run("keep-alive", func(t *testing.T) {
		resp, err := read(t, "HTTP/1.1 200 OK\r\n", "Content-Length: 3\r\nX-Foo: bar\r\n\r\n")
		require.NoError(t, err)
		assert.False(t, resp.Close)
		assert.Equal(t, int64(3), resp.ContentLength)
		assert.Equal(t, "bar", resp.Header.Get("X-Foo"))
	})
	t.Run("connection close", func(t *testing.T) {
		resp, err := read(t, "HTTP/1.1 200 OK\r\n", "Connection: close\r\n\r\n")
		require.NoError(t, err)
		assert.True(t, resp.Close)
		assert.Equal(t, int64(-1), resp.ContentLength)
	})
	t.Run("HTTP/1.0", func(t *testing.T) {
		resp, err := read(t, "HTTP/1.0 200 OK\r\n", "\r\n")
		require.NoError(t, err)
		assert.True(t, resp.Close)
		resp, err = read(t, "HTTP/1.0 200 OK\r\n", "Connection: keep-alive\r\n\r\n")
		require.NoError(t, err)
		assert.False(t, resp.Close)
	})
	t.Run("chunked", func(t *testing.T) {
		resp, err := read(t, "HTTP/1.1 200 OK\r\n", "Transfer-Encoding: chunked\r\nContent-Length: 10\r\n\r\n")
		require.NoError(t, err)
		assert.Equal(t, []string{"chunked"}, resp.TransferEncoding)
		assert.Equal(t, int64(-1), resp.ContentLength)
	})
	t.Run("bad content length", func(t *testing.T) {
		_, err := read(t, "HTTP/1.1 200 OK\r\n", "Content-Length: -1\r\n\r\n")
		var pe *ProtocolError
		assert.ErrorAs(t, err, &pe)
	})
	t.Run("unsupported transfer encoding", func(t *testing.T) {
		_, err := read(t, "HTTP/1.1 200 OK\r\n", "Transfer-Encoding: gzip\r\n\r\n")
		var pe *ProtocolError
		assert.ErrorAs(t, err, &pe)
	})
	t.Run("malformed", func(t *testing.T) {
		_, err := read(t, "HTTP/1.1 200 OK\r\n", "no colon here\r\n\r\n")
		var pe *ProtocolError
		assert.ErrorAs(t, err, &pe)
	})
	t.Run("truncated", func(t *testing.T) {
		_, err := read(t, "HTTP/1.1 200 OK\r\n", "X-Foo: bar\r\n")
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

func TestHTTP1_ReadBody(t *testing.T) {
	read := func(t *testing.T, method, raw string) (*http.Response, []byte, error, *bufio.Reader) {
		br := bufio.NewReader(strings.NewReader(raw))
		resp, err := HTTP1.ReadStatus(br)
		require.NoError(t, err)
		require.NoError(t, HTTP1.ReadHeader(br, resp))
		resp.Request = &http.Request{Method: method}
		b, err := HTTP1.ReadBody(br, resp)
		return resp, b, err, br
	}

	t.Run("content length", func(t *testing.T) {
		resp, b, err, br := read(t, "GET", "HTTP/1.1 200 OK\r\nContent-Length: 3\r\n\r\nfooHTTP/1.1")
		require.NoError(t, err)
		assert.Equal(t, []byte("foo"), b)
		assert.False(t, resp.Close)
		rest, _ := io.ReadAll(br)
		assert.Equal(t, "HTTP/1.1", string(rest))
	})
	t.Run("chunked with trailer", func(t *testing.T) {
		resp, b, err, _ := read(t, "GET", "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n"+
			"3\r\nfoo\r\n3\r\nbar\r\n0\r\nX-Checksum: abc\r\n\r\n")
		require.NoError(t, err)
		assert.Equal(t, []byte("foobar"), b)
		assert.Equal(t, "abc", resp.Trailer.Get("X-Checksum"))
		assert.False(t, resp.Close)
	})
	t.Run("until close", func(t *testing.T) {
		resp, b, err, _ := read(t, "GET", "HTTP/1.1 200 OK\r\n\r\nall of it")
		require.NoError(t, err)
		assert.Equal(t, []byte("all of it"), b)
		assert.True(t, resp.Close)
	})
	t.Run("no body", func(t *testing.T) {
		testCases := []struct {
			method string
			raw    string
		}{
			{"HEAD", "HTTP/1.1 200 OK\r\nContent-Length: 100\r\n\r\n"},
			{"CONNECT", "HTTP/1.1 200 Connection established\r\n\r\n"},
			{"GET", "HTTP/1.1 204 No Content\r\n\r\n"},
			{"GET", "HTTP/1.1 304 Not Modified\r\nContent-Length: 100\r\n\r\n"},
		}
		for _, testCase := range testCases {
			resp, b, err, _ := read(t, testCase.method, testCase.raw)
			require.NoError(t, err)
			assert.Nil(t, b)
			assert.Equal(t, int64(0), resp.ContentLength)
			assert.False(t, resp.Close)
		}
	})
	t.Run("truncated", func(t *testing.T) {
		_, _, err, _ := read(t, "GET", "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nfoo")
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		_, _, err, _ = read(t, "GET", "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nfo")
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
	t.Run("huge content length", func(t *testing.T) {
		var b []byte
		var err error
		require.NotPanics(t, func() {
			_, b, err, _ = read(t, "GET", "HTTP/1.1 200 OK\r\nContent-Length: 9000000000000000000\r\n\r\nhi")
		})
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		assert.Nil(t, b)
	})
}

func TestInterim(t *testing.T) {
	assert.True(t, interim(&http.Response{StatusCode: 100}))
	assert.True(t, interim(&http.Response{StatusCode: 103}))
	assert.False(t, interim(&http.Response{StatusCode: 101}))
	assert.False(t, interim(&http.Response{StatusCode: 200}))
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) {
	return 0, io.ErrShortWrite
}

func mustParseURL(t *testing.T, rawURL string) *url.URL {
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u
}
