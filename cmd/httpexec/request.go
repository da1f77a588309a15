// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"

	"github.com/gogama/httpexec/auth"
	"github.com/gogama/httpexec/config"
	"github.com/gogama/httpexec/request"
	"github.com/gogama/httpexec/trace"
	"github.com/spf13/cobra"
)

type requestOptions struct {
	method      string
	data        string
	headers     []string
	include     bool
	trace       bool
	proxy       string
	proxyUser   string
	proxyScheme string
	noProxy     []string
	serverUser  string
	attempts    int
}

func newRequestCmd(g *globalOptions) *cobra.Command {
	o := &requestOptions{}
	cmd := &cobra.Command{
		Use:   "request URL",
		Short: "Execute a request and print the response body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, g, args[0])
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.method, "method", "X", "GET", "request method")
	f.StringVarP(&o.data, "data", "d", "", "request body")
	f.StringArrayVarP(&o.headers, "header", "H", nil, "request header as 'Name: value' (repeatable)")
	f.BoolVarP(&o.include, "include", "i", false, "print the status line and response headers")
	f.BoolVar(&o.trace, "trace", false, "print execution events to stderr")
	f.StringVar(&o.proxy, "proxy", "", "proxy as host:port, overriding the config file")
	f.StringVar(&o.proxyUser, "proxy-user", "", "proxy credentials as principal:password")
	f.StringVar(&o.proxyScheme, "proxy-scheme", "", "proxy authentication scheme (basic, ntlm)")
	f.StringSliceVar(&o.noProxy, "no-proxy", nil, "hosts which bypass the proxy")
	f.StringVar(&o.serverUser, "user", "", "server credentials as principal:password, answered with NTLM or Basic")
	f.IntVar(&o.attempts, "attempts", 0, "maximum attempts on new connections")
	return cmd
}

func (o *requestOptions) run(cmd *cobra.Command, g *globalOptions, rawURL string) error {
	cfg := &config.Config{}
	if g.cfgFile != "" {
		var err error
		if cfg, err = config.Load(g.cfgFile); err != nil {
			return err
		}
	}
	if err := o.apply(cfg); err != nil {
		return err
	}
	cl, err := cfg.Build(g.logger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer func() { _ = cl.Pool.Close() }()
	if o.trace {
		cl.Handlers = (&trace.Recorder{Out: cmd.ErrOrStderr()}).Install(cl.Handlers)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	var body interface{}
	if o.data != "" {
		body = o.data
	}
	p, err := request.NewPlanWithContext(ctx, o.method, rawURL, body)
	if err != nil {
		return err
	}
	for _, h := range o.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("invalid header %q", h)
		}
		p.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	if o.serverUser != "" {
		p.Realm, err = serverRealm(o.serverUser)
		if err != nil {
			return err
		}
	}

	e, err := cl.Do(p)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if o.include {
		_, _ = fmt.Fprintf(out, "%s %s\n", e.Response.Proto, e.Response.Status)
		keys := make([]string, 0, len(e.Header()))
		for k := range e.Header() {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			for _, v := range e.Header()[k] {
				_, _ = fmt.Fprintf(out, "%s: %s\n", k, v)
			}
		}
		_, _ = fmt.Fprintln(out)
	}
	_, err = out.Write(e.Body)
	return err
}

// apply overlays the command-line settings on cfg.
func (o *requestOptions) apply(cfg *config.Config) error {
	if o.proxy != "" {
		host, port, err := net.SplitHostPort(o.proxy)
		if err != nil {
			return fmt.Errorf("invalid --proxy: %w", err)
		}
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid --proxy port %q", port)
		}
		if cfg.Proxy == nil {
			cfg.Proxy = &config.ProxyConfig{}
			cfg.FromEnv(os.Getenv)
		}
		cfg.Proxy.Host = host
		cfg.Proxy.Port = n
	}
	if cfg.Proxy != nil {
		if o.proxyUser != "" {
			principal, password, _ := strings.Cut(o.proxyUser, ":")
			cfg.Proxy.Principal = principal
			cfg.Proxy.Password = password
		}
		if o.proxyScheme != "" {
			cfg.Proxy.Scheme = o.proxyScheme
		}
		if len(o.noProxy) > 0 {
			cfg.Proxy.NonProxyHosts = o.noProxy
		}
	} else if o.proxyUser != "" || o.proxyScheme != "" || len(o.noProxy) > 0 {
		return fmt.Errorf("proxy settings given without a proxy")
	}
	if o.attempts != 0 {
		cfg.Retry.Attempts = o.attempts
	}
	return nil
}

// serverRealm returns a realm answering NTLM challenges when the
// principal names a domain, and Basic challenges otherwise.
func serverRealm(user string) (*auth.Realm, error) {
	principal, password, _ := strings.Cut(user, ":")
	r := &auth.Realm{Scheme: auth.Basic, Principal: principal, Password: password}
	if strings.ContainsRune(principal, '\\') {
		r.Scheme = auth.NTLM
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}
