// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package proxy

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/gogama/httpexec/auth"
)

var (
	// ErrMissingPrincipal is returned when an authentication scheme is
	// configured without a principal.
	ErrMissingPrincipal = auth.ErrMissingPrincipal
	// ErrMissingPassword is returned when an authentication scheme is
	// configured without a password.
	ErrMissingPassword = auth.ErrMissingPassword
	// ErrMissingHost is returned by New when the host is empty.
	ErrMissingHost = errors.New("httpexec/proxy: missing host")
)

// A Protocol identifies the kind of proxy.
type Protocol int

const (
	HTTP Protocol = iota
	NTLM
	Kerberos
	SPNEGO
)

var protocolNames = []string{
	"HTTP",
	"NTLM",
	"KERBEROS",
	"SPNEGO",
}

func (p Protocol) String() string {
	if p < 0 || int(p) >= len(protocolNames) {
		return fmt.Sprintf("Protocol(%d)", int(p))
	}
	return protocolNames[p]
}

// ParseProtocol returns the protocol with the given name, matched
// without regard to case. An empty name parses as HTTP.
func ParseProtocol(name string) (Protocol, error) {
	if name == "" {
		return HTTP, nil
	}
	for i, n := range protocolNames {
		if strings.EqualFold(n, name) {
			return Protocol(i), nil
		}
	}
	return HTTP, fmt.Errorf("httpexec/proxy: unknown protocol %q", name)
}

// A Server is a validated proxy server configuration.
//
// The identity of a Server (protocol, host, ports and credentials) is
// fixed at construction. The authentication scheme, NTLM parameters,
// HTTP/1.0 flag and non-proxy host list may change afterward, and are
// safe to change concurrently with requests using the Server.
type Server struct {
	protocol    Protocol
	host        string
	port        int
	securedPort int
	principal   string
	password    string
	charset     string
	provider    auth.TokenProvider
	customName  string
	maxRounds   int

	mu            sync.RWMutex
	scheme        auth.Scheme
	ntlmDomain    string
	ntlmHost      string
	forceHTTP10   bool
	nonProxyHosts []string
}

// An Option configures a Server in New.
type Option func(*Server)

// WithProtocol sets the proxy protocol. The default is HTTP.
func WithProtocol(p Protocol) Option {
	return func(s *Server) { s.protocol = p }
}

// WithSecuredPort sets the port used for connections that carry TLS
// traffic. The default is the plain port.
func WithSecuredPort(port int) Option {
	return func(s *Server) { s.securedPort = port }
}

// WithCredentials sets the principal and password presented to the
// proxy. Unless WithScheme is also given, the scheme becomes Basic when
// principal is non-empty.
func WithCredentials(principal, password string) Option {
	return func(s *Server) {
		s.principal = principal
		s.password = password
	}
}

// WithCharset sets the charset used to encode Basic credentials. The
// default is UTF-8.
func WithCharset(charset string) Option {
	return func(s *Server) { s.charset = charset }
}

// WithScheme sets the authentication scheme.
func WithScheme(scheme auth.Scheme) Option {
	return func(s *Server) { s.scheme = scheme }
}

// WithNTLMDomain sets the NTLM domain.
func WithNTLMDomain(domain string) Option {
	return func(s *Server) { s.ntlmDomain = domain }
}

// WithNTLMHost sets the NTLM workstation name.
func WithNTLMHost(host string) Option {
	return func(s *Server) { s.ntlmHost = host }
}

// WithForceHTTP10 makes requests through the proxy use HTTP/1.0.
func WithForceHTTP10(force bool) Option {
	return func(s *Server) { s.forceHTTP10 = force }
}

// WithNonProxyHosts sets the initial non-proxy host patterns.
func WithNonProxyHosts(patterns ...string) Option {
	return func(s *Server) { s.nonProxyHosts = append([]string(nil), patterns...) }
}

// WithTokenProvider sets the provider of Kerberos, SPNEGO and custom
// scheme tokens.
func WithTokenProvider(p auth.TokenProvider) Option {
	return func(s *Server) { s.provider = p }
}

// WithCustomScheme sets the scheme to auth.Custom with the given
// scheme name.
func WithCustomScheme(name string) Option {
	return func(s *Server) {
		s.scheme = auth.Custom
		s.customName = name
	}
}

// WithMaxRounds bounds the number of authentication challenges
// answered per request. The default is auth.DefaultMaxRounds.
func WithMaxRounds(n int) Option {
	return func(s *Server) { s.maxRounds = n }
}

const unsetScheme auth.Scheme = -1

// New returns a validated proxy server configuration. If validation
// fails, New returns a nil Server and an error.
func New(host string, port int, opts ...Option) (*Server, error) {
	s := &Server{
		host:        host,
		port:        port,
		securedPort: -1,
		scheme:      unsetScheme,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.securedPort == -1 {
		s.securedPort = s.port
	}
	if s.scheme == unsetScheme {
		s.scheme = auth.None
		if s.principal != "" {
			s.scheme = auth.Basic
		}
	}
	if s.host == "" {
		return nil, ErrMissingHost
	}
	if err := validPort(s.port); err != nil {
		return nil, err
	}
	if err := validPort(s.securedPort); err != nil {
		return nil, err
	}
	if s.protocol < HTTP || s.protocol > SPNEGO {
		return nil, fmt.Errorf("httpexec/proxy: invalid protocol %s", s.protocol)
	}
	r := s.realmLocked(s.scheme)
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func validPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("httpexec/proxy: invalid port %d", port)
	}
	return nil
}

// Protocol returns the proxy protocol.
func (s *Server) Protocol() Protocol { return s.protocol }

// Host returns the proxy host.
func (s *Server) Host() string { return s.host }

// Port returns the plain proxy port.
func (s *Server) Port() int { return s.port }

// SecuredPort returns the proxy port used for TLS traffic.
func (s *Server) SecuredPort() int { return s.securedPort }

// Principal returns the principal presented to the proxy.
func (s *Server) Principal() string { return s.principal }

// Charset returns the charset of Basic credentials.
func (s *Server) Charset() string {
	if s.charset == "" {
		return auth.DefaultCharset
	}
	return s.charset
}

// Scheme returns the current authentication scheme.
func (s *Server) Scheme() auth.Scheme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scheme
}

// SetScheme changes the authentication scheme. It returns an error,
// and leaves the scheme unchanged, if the server's credentials do not
// support the new scheme.
func (s *Server) SetScheme(scheme auth.Scheme) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.realmLocked(scheme)
	if err := r.Validate(); err != nil {
		return err
	}
	s.scheme = scheme
	return nil
}

// NTLMDomain returns the NTLM domain.
func (s *Server) NTLMDomain() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ntlmDomain
}

// SetNTLMDomain changes the NTLM domain.
func (s *Server) SetNTLMDomain(domain string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ntlmDomain = domain
}

// NTLMHost returns the NTLM workstation name.
func (s *Server) NTLMHost() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ntlmHost
}

// SetNTLMHost changes the NTLM workstation name.
func (s *Server) SetNTLMHost(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ntlmHost = host
}

// ForceHTTP10 reports whether requests through the proxy use HTTP/1.0.
func (s *Server) ForceHTTP10() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.forceHTTP10
}

// SetForceHTTP10 changes whether requests through the proxy use
// HTTP/1.0.
func (s *Server) SetForceHTTP10(force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceHTTP10 = force
}

// Realm returns the credential realm used to authenticate to the proxy,
// reflecting the current scheme and NTLM parameters.
func (s *Server) Realm() auth.Realm {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.realmLocked(s.scheme)
}

func (s *Server) realmLocked(scheme auth.Scheme) auth.Realm {
	return auth.Realm{
		Scheme:     scheme,
		Principal:  s.principal,
		Password:   s.password,
		Charset:    s.charset,
		NTLMDomain: s.ntlmDomain,
		NTLMHost:   s.ntlmHost,
		Host:       s.host,
		Provider:   s.provider,
		CustomName: s.customName,
		MaxRounds:  s.maxRounds,
	}
}

// Addr returns the address to dial to reach the proxy: the secured
// port if secure is true, otherwise the plain port.
func (s *Server) Addr(secure bool) string {
	port := s.port
	if secure {
		port = s.securedPort
	}
	return net.JoinHostPort(s.host, strconv.Itoa(port))
}

// ID returns a string identifying the proxy endpoint and credentials,
// used to keep connections to different proxies, or authenticated as
// different principals, apart in the connection pool.
func (s *Server) ID() string {
	id := s.protocol.String() + "://" + s.Addr(false)
	if s.securedPort != s.port {
		id += "," + strconv.Itoa(s.securedPort)
	}
	if s.principal != "" {
		id = s.principal + "@" + id
	}
	return id
}

// String returns the proxy address.
func (s *Server) String() string {
	return s.ID()
}
