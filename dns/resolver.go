// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package dns provides the default name resolver used by httpexec.Client.
//
// Resolver wraps a net.Resolver and coalesces concurrent lookups of the
// same host, so a burst of requests to a host with no pooled connections
// results in one query rather than one per request.
package dns

import (
	"context"
	"io"
	"log/slog"
	"net"

	"golang.org/x/sync/singleflight"
)

// A Resolver resolves host names to IP addresses. The zero value is
// ready to use and resolves through net.DefaultResolver.
type Resolver struct {
	// Resolver is the underlying resolver. If nil, net.DefaultResolver
	// is used.
	Resolver *net.Resolver

	// Logger receives a debug record when a lookup is shared between
	// callers. If nil, nothing is logged.
	Logger *slog.Logger

	group  singleflight.Group
	lookup func(ctx context.Context, host string) ([]net.IPAddr, error)
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// LookupIPAddr looks up host, returning its IPv4 and IPv6 addresses. If
// host is an IP address literal, it is returned without a lookup.
//
// Concurrent lookups of the same host share one underlying query. Each
// caller still honors its own context: a caller whose context ends
// stops waiting, without affecting the others.
func (r *Resolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IPAddr{{IP: ip}}, nil
	}
	ch := r.group.DoChan(host, func() (interface{}, error) {
		return r.doLookup(context.WithoutCancel(ctx), host)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			r.logger().Debug("shared DNS lookup", "host", host)
		}
		addrs := res.Val.([]net.IPAddr)
		return append([]net.IPAddr(nil), addrs...), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Resolver) doLookup(ctx context.Context, host string) ([]net.IPAddr, error) {
	if r.lookup != nil {
		return r.lookup(ctx, host)
	}
	res := r.Resolver
	if res == nil {
		res = net.DefaultResolver
	}
	return res.LookupIPAddr(ctx, host)
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return discard
}
