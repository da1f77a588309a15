// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpexec

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gogama/httpexec/auth"
	"github.com/gogama/httpexec/pool"
	"github.com/gogama/httpexec/request"
	"github.com/gogama/httpexec/retry"
	"github.com/gogama/httpexec/timeout"
	"github.com/gogama/httpexec/transient"
	"golang.org/x/net/http/httpguts"
)

// A failure ends an attempt in a way the retry policy may recover from
// by starting a new attempt on a new connection.
type failure struct {
	kind     retry.Kind
	err      error
	bodySent bool
}

func (f *failure) Error() string {
	return f.err.Error()
}

func (f *failure) Unwrap() error {
	return f.err
}

// connState is the per-connection protocol state kept with a pooled
// connection between executions.
type connState struct {
	br           *bufio.Reader
	proxyAuthed  bool
	serverAuthed bool
}

type connStateKey struct{}

// exec carries the state of one plan execution.
type exec struct {
	p   *request.Plan
	e   *request.Execution
	ctx context.Context

	pool       *pool.Pool
	resolver   Resolver
	dialer     Dialer
	handshaker Handshaker
	codec      Codec
	retry      retry.Policy
	timeout    timeout.Policy
	handlers   *HandlerGroup
	log        *slog.Logger

	idempotent bool
	tunnel     bool
	proxyAuth  *auth.Authenticator
	serverAuth *auth.Authenticator
	pending    map[auth.Target]string

	nc       net.Conn
	br       *bufio.Reader
	state    *connState
	guard    *guard
	connID   string
	reusable bool
}

func (c *Client) newExec(p *request.Plan) *exec {
	e := &request.Execution{
		Plan:  p,
		Start: time.Now(),
		Phase: request.Start,
	}
	x := &exec{
		p:          p,
		e:          e,
		ctx:        p.Context(),
		pool:       c.pool,
		resolver:   c.resolver,
		dialer:     c.dialer(),
		handshaker: c.handshaker(),
		codec:      c.codec(),
		retry:      c.retryPolicy(),
		timeout:    c.timeoutPolicy(),
		handlers:   c.Handlers,
		log:        c.log,
		idempotent: p.Idempotent(),
		pending:    make(map[auth.Target]string),
	}
	px := p.Proxy
	if px == nil {
		px = c.Proxy
	}
	if px != nil && px.Bypass(p.Hostname()) {
		px = nil
	}
	var proxyID string
	if px != nil {
		e.Proxy = px
		proxyID = px.ID()
		x.tunnel = p.Secure()
		x.proxyAuth = auth.New(px.Realm(), auth.Proxy)
		e.Auth = x.proxyAuth.State()
	}
	if p.Realm != nil {
		r := *p.Realm
		if r.Host == "" {
			r.Host = p.Hostname()
		}
		x.serverAuth = auth.New(r, auth.Server)
		if px == nil {
			e.Auth = x.serverAuth.State()
		}
	}
	e.Key = pool.NewKey(p.Hostname(), p.Port(), proxyID, p.Secure())
	return x
}

// run drives the attempt loop until the execution succeeds or fails.
func (x *exec) run() error {
	if err := x.validate(); err != nil {
		return err
	}
	for {
		err := x.attempt()
		if err == nil {
			return nil
		}
		f, ok := err.(*failure)
		if !ok {
			x.detach(x.e.Phase.Dirty())
			return err
		}
		x.detach(true)
		if ctxErr := x.ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		x.e.Err = f.err
		if transient.Categorize(f.err) == transient.Timeout {
			x.e.AttemptTimeouts++
		}
		o := retry.Outcome{Kind: f.kind, Err: f.err, BodySent: f.bodySent}
		if x.retry.Decide(x.e.Attempt, o, x.idempotent) != retry.RetryNewConnection {
			if f.kind == retry.ProtocolFailure {
				return f.err
			}
			return &RetryExhausted{Attempts: x.e.Attempt + 1, Err: f.err}
		}
		x.e.Phase = request.Retrying
		x.log.Debug("retrying request", "method", x.p.Method, "url", x.p.URL.Redacted(),
			"attempt", x.e.Attempt, "kind", f.kind, "err", f.err)
		x.handlers.run(Retry, x.e)
		if err = x.wait(); err != nil {
			return err
		}
		x.e.Attempt++
	}
}

func (x *exec) validate() error {
	for k, vv := range x.p.Header {
		if !httpguts.ValidHeaderFieldName(k) {
			return fmt.Errorf("httpexec: invalid header field name %q", k)
		}
		for _, v := range vv {
			if !httpguts.ValidHeaderFieldValue(v) {
				return fmt.Errorf("httpexec: invalid header field value for %q", k)
			}
		}
	}
	if x.p.Realm != nil {
		if err := x.p.Realm.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (x *exec) wait() error {
	d := x.retry.Wait(x.e.Attempt)
	if d <= 0 {
		return x.ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-x.ctx.Done():
		return x.ctx.Err()
	}
}

// attempt obtains a connection and exchanges messages on it until a
// final response is received.
func (x *exec) attempt() error {
	if err := x.ctx.Err(); err != nil {
		return err
	}
	if err := x.acquire(); err != nil {
		return err
	}
	for {
		done, err := x.exchange()
		if err != nil || done {
			return err
		}
	}
}

func (x *exec) acquire() error {
	e := x.e
	e.Phase = request.ResolvingConnection
	c, err := x.pool.Borrow(e.Key)
	if err != nil {
		return err
	}
	if c != nil {
		x.handlers.run(ConnectionPool, e)
		x.attach(c)
		x.handlers.run(ConnectionPooled, e)
		return nil
	}
	if err = x.open(); err != nil {
		x.detach(true)
		x.pool.Cancel(e.Key)
		return err
	}
	c, err = x.pool.Offer(e.Key, x.nc)
	if err != nil {
		x.detach(true)
		return err
	}
	x.attach(c)
	x.handlers.run(ConnectionOffer, e)
	return nil
}

// open resolves, dials, tunnels and secures a new connection, leaving it
// in x.nc.
func (x *exec) open() error {
	e := x.e
	host, port := x.p.Hostname(), x.p.Port()
	if e.Proxy != nil {
		host = e.Proxy.Host()
		port = e.Proxy.Port()
		if x.p.Secure() {
			port = e.Proxy.SecuredPort()
		}
	}

	ctx, cancel := x.step()
	addrs, err := x.resolver.LookupIPAddr(ctx, host)
	cancel()
	if err == nil && len(addrs) == 0 {
		err = &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	if err != nil {
		return x.connectFailure("resolve", host, err)
	}
	e.Addrs = addrs
	x.handlers.run(DnsResolved, e)

	e.Phase = request.Connecting
	x.handlers.run(ConnectionOpen, e)
	var addr string
	for _, a := range addrs {
		addr = net.JoinHostPort(a.String(), strconv.Itoa(port))
		ctx, cancel = x.step()
		x.nc, err = x.dialer.DialContext(ctx, "tcp", addr)
		cancel()
		if err == nil {
			break
		}
		e.Err = err
		x.handlers.run(ConnectionFailure, e)
		if x.ctx.Err() != nil {
			break
		}
	}
	if x.nc == nil {
		return x.connectFailure("dial", addr, err)
	}
	e.RemoteAddr = x.nc.RemoteAddr()
	x.guard = watch(x.ctx, x.nc)
	x.br = bufio.NewReader(x.nc)
	x.handlers.run(ConnectionSuccess, e)

	if x.tunnel {
		if x.proxyAuth.Scheme().ConnectionBound() {
			delete(x.pending, auth.Proxy)
		}
		x.proxyAuth.Bind("tunnel:" + x.nc.LocalAddr().String())
		if err = x.connect(); err != nil {
			return err
		}
	}

	if x.p.Secure() {
		e.Phase = request.TLSHandshaking
		ctx, cancel = x.step()
		tc, err := x.handshaker.Handshake(ctx, x.nc, x.p.Hostname())
		cancel()
		if err != nil {
			return x.connectFailure("tls", x.p.Hostname(), err)
		}
		x.nc = tc
		x.br = bufio.NewReader(tc)
		x.handlers.run(SslHandshakeCompleted, e)
	}
	return nil
}

// connect establishes a tunnel to the destination through the proxy,
// answering proxy authentication challenges along the way. Tunnel
// establishment fires no events of its own.
func (x *exec) connect() error {
	target := net.JoinHostPort(x.p.Hostname(), strconv.Itoa(x.p.Port()))
	proxyAddr := x.e.Proxy.Addr(true)
	for {
		req := &http.Request{
			Method: http.MethodConnect,
			URL:    &url.URL{Host: target},
			Host:   target,
			Header: make(http.Header),
		}
		v, err := x.credential(x.proxyAuth)
		if err != nil {
			return err
		}
		if v != "" {
			req.Header.Set(auth.Proxy.Header(), v)
		}
		if err = x.deadline(); err != nil {
			return err
		}
		bw := bufio.NewWriter(x.nc)
		form := RequestForm{HTTP10: x.e.Proxy.ForceHTTP10()}
		if err = x.codec.WriteHeader(bw, req, form); err == nil {
			err = bw.Flush()
		}
		if err != nil {
			return x.connectFailure("proxyconnect", proxyAddr, err)
		}
		resp, err := x.readTunnelResponse(req)
		if err != nil {
			var pe *ProtocolError
			if errors.As(err, &pe) {
				return &failure{kind: retry.ProtocolFailure, err: pe}
			}
			return x.connectFailure("proxyconnect", proxyAddr, err)
		}
		switch {
		case resp.StatusCode/100 == 2:
			x.proxyAuth.Succeed()
			x.e.Auth = x.proxyAuth.State()
			return nil
		case resp.StatusCode == http.StatusProxyAuthRequired:
			if err = x.answer(x.proxyAuth, resp); err != nil {
				return err
			}
			if resp.Close {
				return &failure{kind: retry.ConnectFailure, err: errChallengeClosed}
			}
		default:
			return x.connectFailure("proxyconnect", proxyAddr, fmt.Errorf("proxy refused tunnel: %s", resp.Status))
		}
	}
}

func (x *exec) readTunnelResponse(req *http.Request) (*http.Response, error) {
	if err := x.deadline(); err != nil {
		return nil, err
	}
	var resp *http.Response
	for {
		var err error
		if resp, err = x.codec.ReadStatus(x.br); err != nil {
			return nil, err
		}
		if err = x.codec.ReadHeader(x.br, resp); err != nil {
			return nil, err
		}
		if !interim(resp) {
			break
		}
	}
	resp.Request = req
	if _, err := x.codec.ReadBody(x.br, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// attach makes c the execution's current connection.
func (x *exec) attach(c *pool.Conn) {
	e := x.e
	e.Conn = c
	x.nc = c.NetConn()
	if x.guard == nil {
		x.guard = watch(x.ctx, x.nc)
	}
	x.state, _ = c.Value(connStateKey{}).(*connState)
	if x.state == nil {
		br := x.br
		if br == nil {
			br = bufio.NewReader(x.nc)
		}
		x.state = &connState{br: br}
		c.SetValue(connStateKey{}, x.state)
	}
	x.br = x.state.br
	x.reusable = true

	changed := x.connID != "" && x.connID != c.ID()
	x.connID = c.ID()
	if a := x.proxyAuth; a != nil && !x.tunnel {
		x.bind(a, changed, x.state.proxyAuthed)
	}
	if a := x.serverAuth; a != nil {
		x.bind(a, changed, x.state.serverAuthed)
	}
}

func (x *exec) bind(a *auth.Authenticator, changed, authed bool) {
	bound := a.Scheme().ConnectionBound()
	if changed && bound {
		delete(x.pending, a.Target())
	}
	a.Bind(x.connID)
	if authed && bound {
		a.Resume()
	}
}

// detach gives up the current connection, evicting it if evict is true
// or the connection cannot carry another exchange, and otherwise
// returning it to the pool.
func (x *exec) detach(evict bool) {
	if x.guard != nil {
		x.guard.release()
		x.guard = nil
	}
	if c := x.e.Conn; c != nil {
		if evict || !x.reusable {
			x.pool.Evict(c)
		} else {
			_ = x.nc.SetDeadline(time.Time{})
			x.pool.Release(c)
		}
		x.e.Conn = nil
	} else if x.nc != nil {
		_ = x.nc.Close()
	}
	x.nc = nil
	x.br = nil
	x.state = nil
}

// exchange makes one transmission of the request on the current
// connection and reads the response. It reports done when a final
// response was received, and not done when an authentication challenge
// was answered and the request must be sent again.
func (x *exec) exchange() (bool, error) {
	e := x.e
	if err := x.ctx.Err(); err != nil {
		return false, err
	}

	e.Phase = request.Authenticating
	req := x.p.ToRequest(x.ctx)
	if a := x.proxyAuth; a != nil && !x.tunnel {
		if err := x.attachCredential(req, a); err != nil {
			return false, err
		}
	}
	if a := x.serverAuth; a != nil {
		if err := x.attachCredential(req, a); err != nil {
			return false, err
		}
	}
	e.Request = req
	e.Response = nil
	e.Body = nil

	e.Phase = request.Sending
	if err := x.deadline(); err != nil {
		return false, err
	}
	form := RequestForm{
		AbsoluteURI: e.Proxy != nil && !x.tunnel,
		HTTP10:      e.Proxy != nil && !x.tunnel && e.Proxy.ForceHTTP10(),
	}
	cw := &countingWriter{w: x.nc}
	bw := bufio.NewWriter(cw)
	err := x.codec.WriteHeader(bw, req, form)
	if err == nil {
		err = bw.Flush()
	}
	if err != nil {
		return false, x.transportFailure("write", err, false)
	}
	e.Sends++
	x.handlers.run(HeadersWritten, e)
	if len(x.p.Body) > 0 {
		n := cw.n
		if err = x.deadline(); err != nil {
			return false, err
		}
		if _, err = bw.Write(x.p.Body); err == nil {
			err = bw.Flush()
		}
		if err != nil {
			return false, x.transportFailure("write", err, cw.n > n)
		}
		x.handlers.run(ContentWritten, e)
	}
	x.handlers.run(RequestSend, e)

	e.Phase = request.AwaitingStatus
	var resp *http.Response
	for {
		if err = x.deadline(); err != nil {
			return false, err
		}
		if resp, err = x.codec.ReadStatus(x.br); err != nil {
			return false, x.transportFailure("read", err, true)
		}
		if !interim(resp) {
			break
		}
		if err = x.codec.ReadHeader(x.br, resp); err != nil {
			return false, x.transportFailure("read", err, true)
		}
	}
	resp.Request = req
	resp.Body = http.NoBody
	e.Response = resp
	x.handlers.run(StatusReceived, e)

	e.Phase = request.AwaitingHeaders
	if err = x.deadline(); err != nil {
		return false, err
	}
	if err = x.codec.ReadHeader(x.br, resp); err != nil {
		return false, x.transportFailure("read", err, true)
	}
	x.handlers.run(HeadersReceived, e)

	e.Phase = request.ReceivingBody
	if err = x.deadline(); err != nil {
		return false, err
	}
	body, err := x.codec.ReadBody(x.br, resp)
	if err != nil {
		return false, x.transportFailure("read", err, true)
	}
	e.Body = body
	if resp.Close || req.Close || form.HTTP10 {
		x.reusable = false
	}

	if a := x.challenger(resp); a != nil {
		e.Phase = request.Authenticating
		if err = x.answer(a, resp); err != nil {
			return false, err
		}
		if !x.reusable {
			return false, &failure{kind: retry.ConnectFailure, err: errChallengeClosed}
		}
		e.Phase = request.Retrying
		x.handlers.run(Retry, e)
		return false, nil
	}

	x.succeed()
	x.detach(false)
	return true, nil
}

func (x *exec) attachCredential(req *http.Request, a *auth.Authenticator) error {
	v, err := x.credential(a)
	if err != nil {
		return err
	}
	if v != "" {
		req.Header.Set(a.Target().Header(), v)
	}
	return nil
}

// credential returns the credential header value for the next request:
// the answer to the last challenge if there is one, otherwise the
// authenticator's initial credentials.
func (x *exec) credential(a *auth.Authenticator) (string, error) {
	if v, ok := x.pending[a.Target()]; ok {
		delete(x.pending, a.Target())
		return v, nil
	}
	return a.Initial()
}

// challenger returns the authenticator that should answer resp, or nil
// if resp is not a challenge the execution can answer.
func (x *exec) challenger(resp *http.Response) *auth.Authenticator {
	switch {
	case resp.StatusCode == http.StatusProxyAuthRequired && x.proxyAuth != nil && !x.tunnel:
		return x.proxyAuth
	case resp.StatusCode == http.StatusUnauthorized && x.serverAuth != nil:
		return x.serverAuth
	}
	return nil
}

// answer runs one authentication round for the challenges in resp and
// keeps the resulting credentials for the next transmission.
func (x *exec) answer(a *auth.Authenticator, resp *http.Response) error {
	v, err := a.OnChallenge(x.ctx, resp.Header.Values(a.Target().ChallengeHeader()))
	n := a.State()
	x.e.Auth = n
	if err != nil {
		x.log.Debug("authentication failed", "target", a.Target(), "scheme", n.Scheme,
			"round", n.Round, "err", err)
		return err
	}
	o := retry.Outcome{Kind: retry.AuthChallenge, Round: n.Round, MaxRounds: n.MaxRounds}
	if x.retry.Decide(x.e.Attempt, o, x.idempotent) != retry.RetrySameConnection {
		return &auth.Error{Scheme: n.Scheme, Round: n.Round, Reason: auth.RoundsExhausted}
	}
	x.log.Debug("answering authentication challenge", "target", a.Target(), "scheme", n.Scheme,
		"round", n.Round)
	x.pending[a.Target()] = v
	return nil
}

// succeed records the completion of the execution's negotiations, and
// remembers completed connection-bound negotiations on the connection.
func (x *exec) succeed() {
	if a := x.proxyAuth; a != nil && !x.tunnel {
		a.Succeed()
		x.e.Auth = a.State()
		if a.Scheme().ConnectionBound() && a.State().Status == auth.Succeeded {
			x.state.proxyAuthed = true
		}
	}
	if a := x.serverAuth; a != nil {
		a.Succeed()
		x.e.Auth = a.State()
		if a.Scheme().ConnectionBound() && a.State().Status == auth.Succeeded {
			x.state.serverAuthed = true
		}
	}
}

// step returns a context bounded by the timeout for the current phase.
func (x *exec) step() (context.Context, context.CancelFunc) {
	return context.WithTimeout(x.ctx, x.timeout.Timeout(x.e))
}

// deadline sets the connection deadline for the current phase. It
// returns the plan context's error if the plan has ended.
func (x *exec) deadline() error {
	_ = x.nc.SetDeadline(time.Now().Add(x.timeout.Timeout(x.e)))
	return x.ctx.Err()
}

func (x *exec) connectFailure(op, addr string, err error) error {
	return &failure{
		kind: retry.ConnectFailure,
		err:  &ConnectionError{Op: op, Addr: addr, Err: err},
	}
}

func (x *exec) transportFailure(op string, err error, bodySent bool) error {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return &failure{kind: retry.ProtocolFailure, err: pe, bodySent: bodySent}
	}
	return &failure{
		kind:     retry.TransportFailure,
		err:      &ConnectionError{Op: op, Addr: x.e.Key.Addr(), Err: err},
		bodySent: bodySent,
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
