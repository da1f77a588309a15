// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package proxy

import (
	"strings"

	"github.com/gogama/httpexec/pool"
)

// AddNonProxyHost appends a pattern to the non-proxy host list.
// Requests to a matching host bypass the proxy.
//
// A pattern of the form "*suffix" matches hosts ending in suffix, one of
// the form "prefix*" matches hosts beginning with prefix, and any other
// pattern matches the host exactly. A lone "*" is not a wildcard.
// Matching ignores case.
func (s *Server) AddNonProxyHost(pattern string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonProxyHosts = append(s.nonProxyHosts, pattern)
}

// RemoveNonProxyHost removes the first occurrence of pattern from the
// non-proxy host list, if present.
func (s *Server) RemoveNonProxyHost(pattern string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.nonProxyHosts {
		if p == pattern {
			s.nonProxyHosts = append(s.nonProxyHosts[:i:i], s.nonProxyHosts[i+1:]...)
			return
		}
	}
}

// SetNonProxyHosts replaces the non-proxy host list.
func (s *Server) SetNonProxyHosts(patterns []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonProxyHosts = append([]string(nil), patterns...)
}

// NonProxyHosts returns a copy of the non-proxy host list, in order.
func (s *Server) NonProxyHosts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.nonProxyHosts...)
}

// Bypass reports whether requests to host should bypass the proxy
// because host matches a non-proxy host pattern.
func (s *Server) Bypass(host string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.nonProxyHosts) == 0 {
		return false
	}
	host = pool.NormalizeHost(host)
	for _, pattern := range s.nonProxyHosts {
		if matchHost(pattern, host) {
			return true
		}
	}
	return false
}

func matchHost(pattern, host string) bool {
	switch {
	case pattern == "":
		return false
	case len(pattern) > 1 && strings.HasPrefix(pattern, "*"):
		suffix := normalizePattern(pattern[1:])
		return strings.HasSuffix(host, suffix)
	case len(pattern) > 1 && strings.HasSuffix(pattern, "*"):
		prefix := strings.ToLower(pattern[:len(pattern)-1])
		return strings.HasPrefix(host, prefix)
	default:
		return host == pool.NormalizeHost(pattern)
	}
}

// normalizePattern normalizes a suffix pattern, which may begin with a
// dot and so is not itself a valid host name.
func normalizePattern(suffix string) string {
	if strings.HasPrefix(suffix, ".") {
		return "." + pool.NormalizeHost(suffix[1:])
	}
	return pool.NormalizeHost(suffix)
}
