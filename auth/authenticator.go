// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"time"
)

// A Target says whether an Authenticator answers proxy or server
// challenges.
type Target int

const (
	// Proxy targets use Proxy-Authorization, Proxy-Authenticate and
	// status 407.
	Proxy Target = iota
	// Server targets use Authorization, WWW-Authenticate and status
	// 401.
	Server
)

// Header returns the name of the request header carrying credentials.
func (t Target) Header() string {
	if t == Server {
		return "Authorization"
	}
	return "Proxy-Authorization"
}

// ChallengeHeader returns the name of the response header carrying
// challenges.
func (t Target) ChallengeHeader() string {
	if t == Server {
		return "WWW-Authenticate"
	}
	return "Proxy-Authenticate"
}

// StatusCode returns the HTTP status code of a challenge response.
func (t Target) StatusCode() int {
	if t == Server {
		return http.StatusUnauthorized
	}
	return http.StatusProxyAuthRequired
}

func (t Target) String() string {
	if t == Server {
		return "server"
	}
	return "proxy"
}

type ntlmStep int

const (
	ntlmStart ntlmStep = iota
	ntlmNegotiateSent
	ntlmAuthenticateSent
)

// An Authenticator drives the authentication negotiation of one request
// execution against one proxy or server. It turns challenges into
// credential header values and tracks the negotiation round and status.
//
// An Authenticator is not safe for concurrent use and must not be
// shared between request executions.
type Authenticator struct {
	realm  Realm
	target Target
	conn   string
	n      Negotiation
	sent   bool
	ntlm   ntlmStep

	now  func() time.Time
	rand io.Reader
}

// New returns an authenticator answering challenges for target with the
// credentials in realm.
func New(realm Realm, target Target) *Authenticator {
	return &Authenticator{
		realm:  realm,
		target: target,
		n: Negotiation{
			Scheme:    realm.Scheme,
			MaxRounds: realm.maxRounds(),
		},
		now:  time.Now,
		rand: rand.Reader,
	}
}

// Target returns the authenticator's target.
func (a *Authenticator) Target() Target {
	return a.target
}

// Scheme returns the configured scheme.
func (a *Authenticator) Scheme() Scheme {
	return a.realm.Scheme
}

// State returns a snapshot of the negotiation state.
func (a *Authenticator) State() Negotiation {
	return a.n
}

// Exhausted reports whether the negotiation has used all its rounds, or
// otherwise can make no further progress.
func (a *Authenticator) Exhausted() bool {
	return a.n.Status == Exhausted || a.n.Round >= a.n.MaxRounds
}

// Bind associates the negotiation with the connection identified by
// connID. For connection-bound schemes a change of connection restarts
// the negotiation at round zero, since the state held by the remote end
// is lost with the old connection.
func (a *Authenticator) Bind(connID string) {
	if a.conn == connID {
		return
	}
	if a.conn != "" && a.realm.Scheme.ConnectionBound() {
		a.n.Round = 0
		a.n.Token = ""
		a.n.Status = InProgress
		a.ntlm = ntlmStart
	}
	a.conn = connID
}

// Resume marks the negotiation successful without any exchange, for a
// connection that already completed a connection-bound negotiation.
func (a *Authenticator) Resume() {
	a.n.Status = Succeeded
}

// Succeed marks the negotiation successful. It is called when a
// response other than a challenge is received after credentials were
// sent.
func (a *Authenticator) Succeed() {
	if a.n.Status == InProgress {
		a.n.Status = Succeeded
	}
}

// Initial returns the credential header value to send with the first
// request of the negotiation, or the empty string if none should be
// sent. Basic credentials are sent preemptively with every request,
// since each connection authenticates on its own. Connection-bound
// schemes send nothing until challenged, and nothing at all once the
// bound connection is authenticated.
func (a *Authenticator) Initial() (string, error) {
	if a.realm.Scheme != Basic {
		return "", nil
	}
	return a.basic()
}

// OnChallenge answers the challenges carried by a 401 or 407 response,
// which are the values of the target's challenge header. It returns the
// credential header value for the next request on the same connection.
//
// Each call is one round. If the negotiation cannot continue, for
// example because the round bound is reached, the credentials were
// rejected, or no challenge matches the configured scheme, OnChallenge
// returns an *Error and the negotiation status becomes Failed or
// Exhausted.
func (a *Authenticator) OnChallenge(ctx context.Context, challenges []string) (string, error) {
	a.n.Round++
	if a.realm.Scheme == None {
		return a.fail(Failed, NoScheme, nil)
	}
	if a.n.Round >= a.n.MaxRounds {
		return a.fail(Exhausted, RoundsExhausted, nil)
	}
	c, ok := a.match(challenges)
	if !ok {
		return a.fail(Failed, SchemeMismatch, nil)
	}
	a.n.Token = c.Token
	a.n.Status = InProgress

	switch a.realm.Scheme {
	case Basic:
		if a.sent {
			return a.fail(Failed, Rejected, nil)
		}
		return a.basic()
	case NTLM:
		return a.onNTLM(c)
	default:
		return a.onToken(ctx, c)
	}
}

func (a *Authenticator) match(values []string) (Challenge, bool) {
	want := a.realm.Scheme.wireName(a.realm.CustomName)
	for _, c := range ParseChallenges(values) {
		if strings.EqualFold(c.Scheme, want) {
			return c, true
		}
	}
	return Challenge{}, false
}

func (a *Authenticator) basic() (string, error) {
	if a.realm.Principal == "" || a.realm.Password == "" {
		return a.fail(Failed, MissingCredentials, nil)
	}
	token, err := BasicTokenCharset(a.realm.Principal, a.realm.Password, a.realm.charset())
	if err != nil {
		return a.fail(Failed, MissingCredentials, err)
	}
	a.sent = true
	return "Basic " + token, nil
}

func (a *Authenticator) onNTLM(c Challenge) (string, error) {
	if a.realm.Principal == "" || a.realm.Password == "" {
		return a.fail(Failed, MissingCredentials, nil)
	}
	if c.Token == "" {
		if a.ntlm != ntlmStart {
			return a.fail(Failed, Rejected, nil)
		}
		a.ntlm = ntlmNegotiateSent
		a.sent = true
		return "NTLM " + base64.StdEncoding.EncodeToString(ntlmNegotiateMessage()), nil
	}
	if a.ntlm != ntlmNegotiateSent {
		return a.fail(Failed, Rejected, nil)
	}
	raw, err := base64.StdEncoding.DecodeString(c.Token)
	if err != nil {
		return a.fail(Failed, MalformedChallenge, err)
	}
	challenge, err := parseNTLMChallenge(raw)
	if err != nil {
		return a.fail(Failed, MalformedChallenge, err)
	}
	var clientChallenge [8]byte
	if _, err = io.ReadFull(a.rand, clientChallenge[:]); err != nil {
		return a.fail(Failed, MissingCredentials, err)
	}
	domain, user := splitNTLMPrincipal(a.realm.Principal, a.realm.NTLMDomain)
	msg, err := ntlmAuthenticateMessage(challenge, ntlmCredentials{
		user:        user,
		domain:      domain,
		password:    a.realm.Password,
		workstation: a.realm.NTLMHost,
	}, clientChallenge, a.now())
	if err != nil {
		return a.fail(Failed, MissingCredentials, err)
	}
	a.ntlm = ntlmAuthenticateSent
	return "NTLM " + base64.StdEncoding.EncodeToString(msg), nil
}

func (a *Authenticator) onToken(ctx context.Context, c Challenge) (string, error) {
	if a.realm.Provider == nil {
		return a.fail(Failed, MissingCredentials, ErrMissingProvider)
	}
	var in []byte
	if c.Token != "" {
		var err error
		if in, err = base64.StdEncoding.DecodeString(c.Token); err != nil {
			return a.fail(Failed, MalformedChallenge, err)
		}
	}
	out, err := a.realm.Provider.Token(ctx, a.realm.spn(), in)
	if err != nil {
		return a.fail(Failed, ProviderFailure, err)
	}
	a.sent = true
	return a.realm.Scheme.wireName(a.realm.CustomName) + " " + base64.StdEncoding.EncodeToString(out), nil
}

func (a *Authenticator) fail(status Status, reason Reason, err error) (string, error) {
	a.n.Status = status
	return "", &Error{
		Scheme: a.realm.Scheme,
		Round:  a.n.Round,
		Reason: reason,
		Err:    err,
	}
}
