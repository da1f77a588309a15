// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpexec

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// A Resolver resolves host names to IP addresses. Both *net.Resolver
// and *dns.Resolver implement Resolver.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// A Dialer opens transport connections. *net.Dialer implements Dialer.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// A Handshaker performs the client side of a TLS handshake over an
// established connection, returning the secured connection.
type Handshaker interface {
	Handshake(ctx context.Context, nc net.Conn, serverName string) (net.Conn, error)
}

// The HandshakerFunc type is an adapter to allow the use of ordinary
// functions as handshakers.
type HandshakerFunc func(ctx context.Context, nc net.Conn, serverName string) (net.Conn, error)

// Handshake calls f(ctx, nc, serverName).
func (f HandshakerFunc) Handshake(ctx context.Context, nc net.Conn, serverName string) (net.Conn, error) {
	return f(ctx, nc, serverName)
}

// tlsHandshaker is the default Handshaker, built on crypto/tls.
type tlsHandshaker struct {
	config *tls.Config
}

func (h tlsHandshaker) Handshake(ctx context.Context, nc net.Conn, serverName string) (net.Conn, error) {
	var cfg *tls.Config
	if h.config != nil {
		cfg = h.config.Clone()
	} else {
		cfg = &tls.Config{}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = serverName
	}
	cfg.NextProtos = []string{"http/1.1"}
	tc := tls.Client(nc, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	return tc, nil
}

// aLongTimeAgo is a non-zero time, far in the past, used for immediate
// cancellation of network operations.
var aLongTimeAgo = time.Unix(1, 0)

// A guard interrupts blocking I/O on a connection when the plan context
// ends, by moving the connection deadline into the past.
type guard struct {
	stop func() bool
	done chan struct{}
}

func watch(ctx context.Context, nc net.Conn) *guard {
	g := &guard{done: make(chan struct{})}
	g.stop = context.AfterFunc(ctx, func() {
		defer close(g.done)
		_ = nc.SetDeadline(aLongTimeAgo)
	})
	return g
}

// release detaches the guard from the connection. After release returns
// the guard will never touch the connection again.
func (g *guard) release() {
	if !g.stop() {
		<-g.done
	}
}
