// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package config loads client configuration from TOML or YAML files and
// builds configured clients from it.
//
// A minimal TOML configuration routing requests through an NTLM proxy:
//
//	[proxy]
//	host = "proxy.corp.example"
//	port = 8080
//	scheme = "ntlm"
//	principal = 'CORP\alice'
//	password = "secret"
//	non_proxy_hosts = ["*.corp.example", "localhost"]
//
//	[retry]
//	attempts = 3
//	backoff = "exponential"
//	base = "100ms"
//	max = "2s"
//
// The same configuration may be written in YAML using the same keys.
package config

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gogama/httpexec"
	"github.com/gogama/httpexec/auth"
	"github.com/gogama/httpexec/pool"
	"github.com/gogama/httpexec/proxy"
	"github.com/gogama/httpexec/request"
	"github.com/gogama/httpexec/retry"
	"github.com/gogama/httpexec/timeout"
	"gopkg.in/yaml.v3"
)

// NTLMDomainEnv is the environment variable FromEnv reads the default
// NTLM domain from.
const NTLMDomainEnv = "HTTP_AUTH_NTLM_DOMAIN"

// Config is the top-level client configuration.
type Config struct {
	Proxy   *ProxyConfig  `toml:"proxy" yaml:"proxy"`
	Pool    PoolConfig    `toml:"pool" yaml:"pool"`
	Retry   RetryConfig   `toml:"retry" yaml:"retry"`
	Timeout TimeoutConfig `toml:"timeout" yaml:"timeout"`
	TLS     TLSConfig     `toml:"tls" yaml:"tls"`
}

// ProxyConfig configures the proxy all requests are routed through.
type ProxyConfig struct {
	Protocol      string   `toml:"protocol" yaml:"protocol"`
	Host          string   `toml:"host" yaml:"host"`
	Port          int      `toml:"port" yaml:"port"`
	SecuredPort   int      `toml:"secured_port" yaml:"secured_port"`
	Scheme        string   `toml:"scheme" yaml:"scheme"`
	CustomScheme  string   `toml:"custom_scheme" yaml:"custom_scheme"`
	Principal     string   `toml:"principal" yaml:"principal"`
	Password      string   `toml:"password" yaml:"password"`
	Charset       string   `toml:"charset" yaml:"charset"`
	NTLMDomain    string   `toml:"ntlm_domain" yaml:"ntlm_domain"`
	NTLMHost      string   `toml:"ntlm_host" yaml:"ntlm_host"`
	ForceHTTP10   bool     `toml:"force_http10" yaml:"force_http10"`
	NonProxyHosts []string `toml:"non_proxy_hosts" yaml:"non_proxy_hosts"`
	MaxRounds     int      `toml:"max_rounds" yaml:"max_rounds"`
}

// PoolConfig configures the connection pool. Durations are strings in
// time.ParseDuration format.
type PoolConfig struct {
	IdleTimeout   string `toml:"idle_timeout" yaml:"idle_timeout"`
	MaxPerKey     int    `toml:"max_per_key" yaml:"max_per_key"`
	MaxIdlePerKey int    `toml:"max_idle_per_key" yaml:"max_idle_per_key"`
	SweepInterval string `toml:"sweep_interval" yaml:"sweep_interval"`
}

// RetryConfig configures the retry policy.
type RetryConfig struct {
	// Attempts is the maximum number of attempts on new connections,
	// including the first. Zero means retry.DefaultMaxAttempts.
	Attempts int `toml:"attempts" yaml:"attempts"`
	// Backoff is "fixed" or "exponential". Empty means exponential.
	Backoff string `toml:"backoff" yaml:"backoff"`
	Base    string `toml:"base" yaml:"base"`
	Max     string `toml:"max" yaml:"max"`
	// TransientOnly restricts retries to transient errors.
	TransientOnly bool `toml:"transient_only" yaml:"transient_only"`
}

// TimeoutConfig configures the per-step timeouts. Default applies to
// every step without a more specific setting.
type TimeoutConfig struct {
	Default string `toml:"default" yaml:"default"`
	Resolve string `toml:"resolve" yaml:"resolve"`
	Connect string `toml:"connect" yaml:"connect"`
	TLS     string `toml:"tls" yaml:"tls"`
	Write   string `toml:"write" yaml:"write"`
	Read    string `toml:"read" yaml:"read"`
}

// TLSConfig configures the TLS handshake with destinations.
type TLSConfig struct {
	CAFile             string `toml:"ca_file" yaml:"ca_file"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// Load reads the configuration file at path, choosing the format by the
// file extension: ".toml" for TOML and ".yaml" or ".yml" for YAML. The
// environment is consulted through FromEnv.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(b, Format(path))
	if err != nil {
		return nil, fmt.Errorf("httpexec/config: %s: %w", path, err)
	}
	c.FromEnv(os.Getenv)
	return c, nil
}

// Format returns the configuration format implied by the extension of
// path: "toml", "yaml", or the empty string if unknown.
func Format(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return "toml"
	case ".yaml", ".yml":
		return "yaml"
	}
	return ""
}

// Parse decodes a configuration in the given format, "toml" or "yaml".
// Unknown keys are an error.
func Parse(b []byte, format string) (*Config, error) {
	c := &Config{}
	switch format {
	case "toml":
		md, err := toml.Decode(string(b), c)
		if err != nil {
			return nil, err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown keys %v", undecoded)
		}
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	return c, nil
}

// FromEnv fills settings the configuration leaves empty from the
// environment, looked up with getenv. Only the proxy NTLM domain has an
// environment default.
func (c *Config) FromEnv(getenv func(string) string) {
	if c.Proxy != nil && c.Proxy.NTLMDomain == "" {
		c.Proxy.NTLMDomain = getenv(NTLMDomainEnv)
	}
}

// Build returns a client configured by c. The logger may be nil.
func (c *Config) Build(logger *slog.Logger) (*httpexec.Client, error) {
	px, err := c.Proxy.Server()
	if err != nil {
		return nil, err
	}
	pc, err := c.Pool.config(logger)
	if err != nil {
		return nil, err
	}
	rp, err := c.Retry.Policy()
	if err != nil {
		return nil, err
	}
	tp, err := c.Timeout.Policy()
	if err != nil {
		return nil, err
	}
	tc, err := c.TLS.Config()
	if err != nil {
		return nil, err
	}
	return &httpexec.Client{
		Proxy:         px,
		Pool:          pool.New(pc),
		TLSConfig:     tc,
		RetryPolicy:   rp,
		TimeoutPolicy: tp,
		Logger:        logger,
	}, nil
}

// Server returns the proxy server described by pc, or nil if pc is nil.
func (pc *ProxyConfig) Server() (*proxy.Server, error) {
	if pc == nil {
		return nil, nil
	}
	protocol, err := proxy.ParseProtocol(pc.Protocol)
	if err != nil {
		return nil, err
	}
	opts := []proxy.Option{
		proxy.WithProtocol(protocol),
		proxy.WithCredentials(pc.Principal, pc.Password),
		proxy.WithNTLMDomain(pc.NTLMDomain),
		proxy.WithNTLMHost(pc.NTLMHost),
		proxy.WithForceHTTP10(pc.ForceHTTP10),
		proxy.WithNonProxyHosts(pc.NonProxyHosts...),
	}
	if pc.SecuredPort != 0 {
		opts = append(opts, proxy.WithSecuredPort(pc.SecuredPort))
	}
	if pc.Charset != "" {
		opts = append(opts, proxy.WithCharset(pc.Charset))
	}
	if pc.MaxRounds != 0 {
		opts = append(opts, proxy.WithMaxRounds(pc.MaxRounds))
	}
	switch {
	case pc.CustomScheme != "":
		opts = append(opts, proxy.WithCustomScheme(pc.CustomScheme))
	case pc.Scheme != "":
		scheme, err := auth.ParseScheme(pc.Scheme)
		if err != nil {
			return nil, err
		}
		opts = append(opts, proxy.WithScheme(scheme))
	}
	return proxy.New(pc.Host, pc.Port, opts...)
}

func (pc PoolConfig) config(logger *slog.Logger) (pool.Config, error) {
	idle, err := parseDuration("pool.idle_timeout", pc.IdleTimeout)
	if err != nil {
		return pool.Config{}, err
	}
	sweep, err := parseDuration("pool.sweep_interval", pc.SweepInterval)
	if err != nil {
		return pool.Config{}, err
	}
	return pool.Config{
		IdleTimeout:   idle,
		MaxPerKey:     pc.MaxPerKey,
		MaxIdlePerKey: pc.MaxIdlePerKey,
		SweepInterval: sweep,
		Logger:        logger,
	}, nil
}

// Policy returns the retry policy described by rc.
func (rc RetryConfig) Policy() (retry.Policy, error) {
	n := rc.Attempts
	if n == 0 {
		n = retry.DefaultMaxAttempts
	} else if n < 0 {
		return nil, fmt.Errorf("httpexec/config: retry.attempts must not be negative")
	}
	var d retry.Decider = retry.Attempts(n)
	if rc.TransientOnly {
		d = retry.TransientOnly(d)
	}
	base, err := parseDuration("retry.base", rc.Base)
	if err != nil {
		return nil, err
	}
	max, err := parseDuration("retry.max", rc.Max)
	if err != nil {
		return nil, err
	}
	var w retry.Waiter
	switch strings.ToLower(rc.Backoff) {
	case "fixed":
		w = retry.NewFixedWaiter(base)
	case "", "exponential":
		if base == 0 && max == 0 {
			w = retry.DefaultWaiter
			break
		}
		if base <= 0 || max < base {
			return nil, fmt.Errorf("httpexec/config: retry.base must be positive and retry.max at least retry.base")
		}
		w = retry.NewExpWaiter(base, max, time.Now())
	default:
		return nil, fmt.Errorf("httpexec/config: unknown retry.backoff %q", rc.Backoff)
	}
	return retry.NewPolicy(d, w), nil
}

// Policy returns the timeout policy described by tc.
func (tc TimeoutConfig) Policy() (timeout.Policy, error) {
	def := timeout.DefaultPolicy
	if tc.Default != "" {
		d, err := parseDuration("timeout.default", tc.Default)
		if err != nil {
			return nil, err
		}
		def = timeout.Fixed(d)
	}
	phases := make(map[request.Phase]time.Duration)
	for _, s := range []struct {
		key    string
		value  string
		phases []request.Phase
	}{
		{"timeout.resolve", tc.Resolve, []request.Phase{request.ResolvingConnection}},
		{"timeout.connect", tc.Connect, []request.Phase{request.Connecting}},
		{"timeout.tls", tc.TLS, []request.Phase{request.TLSHandshaking}},
		{"timeout.write", tc.Write, []request.Phase{request.Sending}},
		{"timeout.read", tc.Read, []request.Phase{request.AwaitingStatus, request.AwaitingHeaders, request.ReceivingBody}},
	} {
		if s.value == "" {
			continue
		}
		d, err := parseDuration(s.key, s.value)
		if err != nil {
			return nil, err
		}
		for _, ph := range s.phases {
			phases[ph] = d
		}
	}
	if len(phases) == 0 {
		return def, nil
	}
	return timeout.PerPhase(def, phases), nil
}

// Config returns the TLS configuration described by tc, or nil if tc
// sets nothing.
func (tc TLSConfig) Config() (*tls.Config, error) {
	if tc == (TLSConfig{}) {
		return nil, nil
	}
	c := &tls.Config{InsecureSkipVerify: tc.InsecureSkipVerify}
	if tc.CAFile != "" {
		pem, err := os.ReadFile(tc.CAFile)
		if err != nil {
			return nil, err
		}
		c.RootCAs = x509.NewCertPool()
		if !c.RootCAs.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("httpexec/config: no certificates in %s", tc.CAFile)
		}
	}
	return c, nil
}

// ApplyBypass replaces the non-proxy host list of the live proxy s with
// the one in c. It is how a reloaded configuration updates a running
// client without rebuilding it.
func ApplyBypass(s *proxy.Server, c *Config) {
	if s == nil {
		return
	}
	var patterns []string
	if c.Proxy != nil {
		patterns = c.Proxy.NonProxyHosts
	}
	s.SetNonProxyHosts(patterns)
}

func parseDuration(key, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("httpexec/config: invalid %s: %w", key, err)
	}
	return d, nil
}
