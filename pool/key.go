// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pool

import (
	"net"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// A Key is the identity under which connections are pooled. Two
// requests may share a pooled connection only if their keys are equal.
//
// Host and Port always identify the request destination, even when the
// connection is physically made to a proxy; Proxy identifies the proxy,
// and is empty for direct connections.
type Key struct {
	Host  string
	Port  int
	Proxy string
	TLS   bool
}

// NewKey returns a key with the host normalized: lower-cased, trailing
// dot removed, and internationalized names converted to their ASCII
// (punycode) form, so that equivalent spellings of a host share
// connections.
func NewKey(host string, port int, proxy string, tls bool) Key {
	return Key{
		Host:  NormalizeHost(host),
		Port:  port,
		Proxy: proxy,
		TLS:   tls,
	}
}

// NormalizeHost returns the canonical spelling of host used in keys.
func NormalizeHost(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if net.ParseIP(host) != nil {
		return host
	}
	if a, err := idna.Lookup.ToASCII(host); err == nil {
		return a
	}
	return host
}

// Addr returns the destination address in host:port form.
func (k Key) Addr() string {
	return net.JoinHostPort(k.Host, strconv.Itoa(k.Port))
}

// String returns a human readable form of the key, for logging.
func (k Key) String() string {
	scheme := "http://"
	if k.TLS {
		scheme = "https://"
	}
	s := scheme + k.Addr()
	if k.Proxy != "" {
		s += " via " + k.Proxy
	}
	return s
}
