// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpexec

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/textproto"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// RequestForm selects how a Codec frames a request on the wire.
type RequestForm struct {
	// AbsoluteURI writes the request target in absolute form, as
	// required when talking to a forward proxy without a tunnel.
	AbsoluteURI bool
	// HTTP10 writes an HTTP/1.0 request line.
	HTTP10 bool
}

// A Codec writes HTTP requests to, and reads HTTP responses from, a
// connection. The client splits each exchange into steps so it can
// report progress after each one.
//
// ReadStatus reads a status line into a new response. ReadHeader reads
// the header block that follows. ReadBody reads the complete body
// according to the response's framing, and sets resp.Close if the
// connection cannot carry another exchange.
type Codec interface {
	WriteHeader(w io.Writer, r *http.Request, f RequestForm) error
	ReadStatus(r *bufio.Reader) (*http.Response, error)
	ReadHeader(r *bufio.Reader, resp *http.Response) error
	ReadBody(r *bufio.Reader, resp *http.Response) ([]byte, error)
}

// HTTP1 is the built-in HTTP/1.1 codec.
var HTTP1 Codec = http1{}

type http1 struct{}

func (http1) WriteHeader(w io.Writer, r *http.Request, f RequestForm) error {
	target := r.URL.RequestURI()
	if r.Method == http.MethodConnect {
		target = r.URL.Host
	} else if f.AbsoluteURI {
		u := *r.URL
		u.User = nil
		u.Fragment = ""
		u.RawFragment = ""
		target = u.String()
	}
	proto := "HTTP/1.1"
	if f.HTTP10 {
		proto = "HTTP/1.0"
	}
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	if _, err := fmt.Fprintf(w, "%s %s %s\r\nHost: %s\r\n", r.Method, target, proto, host); err != nil {
		return err
	}
	h := r.Header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	h.Del("Host")
	h.Del("Content-Length")
	h.Del("Transfer-Encoding")
	if r.ContentLength > 0 || methodExpectsBody(r.Method) {
		h.Set("Content-Length", strconv.FormatInt(r.ContentLength, 10))
	}
	if r.Close && !f.HTTP10 {
		h.Set("Connection", "close")
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range h[k] {
			if _, err := fmt.Fprintf(w, "%s: %s\r\n", k, v); err != nil {
				return err
			}
		}
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

func methodExpectsBody(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

func (http1) ReadStatus(r *bufio.Reader) (*http.Response, error) {
	line, err := textproto.NewReader(r).ReadLine()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	proto, status, ok := strings.Cut(line, " ")
	if !ok {
		return nil, &ProtocolError{Msg: fmt.Sprintf("malformed status line %q", line)}
	}
	major, minor, ok := http.ParseHTTPVersion(proto)
	if !ok || major != 1 {
		return nil, &ProtocolError{Msg: fmt.Sprintf("unsupported protocol version %q", proto)}
	}
	status = strings.TrimLeft(status, " ")
	code, _, _ := strings.Cut(status, " ")
	if len(code) != 3 {
		return nil, &ProtocolError{Msg: fmt.Sprintf("malformed status code %q", code)}
	}
	n, err := strconv.Atoi(code)
	if err != nil || n < 100 {
		return nil, &ProtocolError{Msg: fmt.Sprintf("malformed status code %q", code), Err: err}
	}
	return &http.Response{
		Status:     status,
		StatusCode: n,
		Proto:      proto,
		ProtoMajor: major,
		ProtoMinor: minor,
		Header:     make(http.Header),
	}, nil
}

func (http1) ReadHeader(r *bufio.Reader, resp *http.Response) error {
	mh, err := textproto.NewReader(r).ReadMIMEHeader()
	if err != nil {
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		if _, ok := err.(textproto.ProtocolError); ok {
			return &ProtocolError{Msg: "malformed header", Err: err}
		}
		return err
	}
	resp.Header = http.Header(mh)
	for k, vv := range resp.Header {
		for _, v := range vv {
			if !httpguts.ValidHeaderFieldValue(v) {
				return &ProtocolError{Msg: fmt.Sprintf("invalid value for header %q", k)}
			}
		}
	}
	conn := resp.Header["Connection"]
	resp.Close = httpguts.HeaderValuesContainsToken(conn, "close") ||
		(!resp.ProtoAtLeast(1, 1) && !httpguts.HeaderValuesContainsToken(conn, "keep-alive"))
	resp.ContentLength = -1
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || n < 0 {
			return &ProtocolError{Msg: fmt.Sprintf("bad Content-Length %q", cl)}
		}
		resp.ContentLength = n
	}
	if te := resp.Header.Values("Transfer-Encoding"); len(te) > 0 {
		if !httpguts.HeaderValuesContainsToken(te, "chunked") {
			return &ProtocolError{Msg: fmt.Sprintf("unsupported transfer encoding %q", te)}
		}
		resp.TransferEncoding = []string{"chunked"}
		resp.ContentLength = -1
	}
	return nil
}

func (http1) ReadBody(r *bufio.Reader, resp *http.Response) ([]byte, error) {
	if !bodyAllowed(resp) {
		resp.ContentLength = 0
		return nil, nil
	}
	if len(resp.TransferEncoding) > 0 {
		b, err := io.ReadAll(httputil.NewChunkedReader(r))
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		trailer, err := textproto.NewReader(r).ReadMIMEHeader()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		if len(trailer) > 0 {
			resp.Trailer = http.Header(trailer)
		}
		return b, nil
	}
	if resp.ContentLength >= 0 {
		// Grow as bytes arrive; Content-Length is not trusted for sizing.
		b, err := io.ReadAll(io.LimitReader(r, resp.ContentLength))
		if err != nil {
			return nil, err
		}
		if int64(len(b)) < resp.ContentLength {
			return nil, io.ErrUnexpectedEOF
		}
		return b, nil
	}
	// Delimited by connection close.
	resp.Close = true
	return io.ReadAll(r)
}

func bodyAllowed(resp *http.Response) bool {
	if resp.Request != nil {
		switch resp.Request.Method {
		case http.MethodHead:
			return false
		case http.MethodConnect:
			if resp.StatusCode/100 == 2 {
				return false
			}
		}
	}
	switch {
	case resp.StatusCode/100 == 1, resp.StatusCode == http.StatusNoContent, resp.StatusCode == http.StatusNotModified:
		return false
	}
	return true
}

// interim reports whether resp is an informational response to be
// skipped while waiting for the final one.
func interim(resp *http.Response) bool {
	return resp.StatusCode/100 == 1 && resp.StatusCode != http.StatusSwitchingProtocols
}
