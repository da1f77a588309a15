// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"fmt"
	"strings"
)

// A Scheme identifies an authentication scheme.
type Scheme int

const (
	// None means no authentication. A challenge received when the
	// scheme is None cannot be answered.
	None Scheme = iota
	// Basic is RFC 7617 Basic authentication. Credentials are sent
	// preemptively with the first request.
	Basic
	// NTLM is the connection-oriented NTLMv2 challenge/response scheme.
	NTLM
	// Kerberos is Kerberos authentication carried by the Negotiate
	// scheme. Tokens come from the realm's TokenProvider.
	Kerberos
	// SPNEGO is SPNEGO authentication carried by the Negotiate scheme.
	// Tokens come from the realm's TokenProvider.
	SPNEGO
	// Custom is a scheme named by Realm.CustomName whose tokens come
	// from the realm's TokenProvider.
	Custom
)

var schemeNames = []string{
	"NONE",
	"BASIC",
	"NTLM",
	"KERBEROS",
	"SPNEGO",
	"CUSTOM",
}

// String returns the upper-case name of the scheme.
func (s Scheme) String() string {
	if s < 0 || int(s) >= len(schemeNames) {
		return fmt.Sprintf("Scheme(%d)", int(s))
	}
	return schemeNames[s]
}

// ParseScheme returns the scheme with the given name. The name is
// matched without regard to case. An empty name parses as None.
func ParseScheme(name string) (Scheme, error) {
	if name == "" {
		return None, nil
	}
	for i, n := range schemeNames {
		if strings.EqualFold(n, name) {
			return Scheme(i), nil
		}
	}
	return None, fmt.Errorf("httpexec/auth: unknown scheme %q", name)
}

// ConnectionBound reports whether a successful negotiation with the
// scheme authenticates the connection rather than the request. Requests
// sent on a connection that completed such a negotiation need no
// further credentials.
func (s Scheme) ConnectionBound() bool {
	return s == NTLM || s == Kerberos || s == SPNEGO
}

// wireName returns the scheme token used in challenge and credential
// headers.
func (s Scheme) wireName(custom string) string {
	switch s {
	case Basic:
		return "Basic"
	case NTLM:
		return "NTLM"
	case Kerberos, SPNEGO:
		return "Negotiate"
	case Custom:
		return custom
	default:
		return ""
	}
}
