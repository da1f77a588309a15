// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"strings"

	"golang.org/x/net/http/httpguts"
)

// A Challenge is one authentication challenge parsed from a
// WWW-Authenticate or Proxy-Authenticate header.
type Challenge struct {
	// Scheme is the scheme token as received, for example "NTLM".
	Scheme string
	// Token is the token68 form of the challenge data, if present.
	Token string
	// Params holds auth-params, keyed by lower-case name.
	Params map[string]string
}

// ParseChallenges parses the values of WWW-Authenticate or
// Proxy-Authenticate header fields into challenges. One field value may
// carry several comma separated challenges. Unparseable elements are
// skipped.
func ParseChallenges(values []string) []Challenge {
	var challenges []Challenge
	for _, v := range values {
		for _, part := range splitComma(v) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			head, rest, _ := strings.Cut(part, " ")
			rest = strings.TrimSpace(rest)
			if strings.Contains(head, "=") {
				// Continuation auth-param of the previous challenge.
				if name, value, ok := authParam(part); ok && len(challenges) > 0 {
					c := &challenges[len(challenges)-1]
					if c.Params == nil {
						c.Params = make(map[string]string)
					}
					c.Params[name] = value
				}
				continue
			}
			if !isToken(head) {
				continue
			}
			c := Challenge{Scheme: head}
			if rest != "" {
				if isToken68(rest) {
					c.Token = rest
				} else if name, value, ok := authParam(rest); ok {
					c.Params = map[string]string{name: value}
				}
			}
			challenges = append(challenges, c)
		}
	}
	return challenges
}

// splitComma splits s at commas outside quoted strings.
func splitComma(s string) []string {
	var parts []string
	quoted, escaped := false, false
	start := 0
	for i := 0; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case quoted && s[i] == '\\':
			escaped = true
		case s[i] == '"':
			quoted = !quoted
		case !quoted && s[i] == ',':
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func authParam(s string) (string, string, bool) {
	name, value, ok := strings.Cut(s, "=")
	if !ok {
		return "", "", false
	}
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)
	if !isToken(name) || value == "" {
		return "", "", false
	}
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		value = unquote(value[1 : len(value)-1])
	} else if !isToken(value) {
		return "", "", false
	}
	return strings.ToLower(name), value, true
}

func unquote(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !httpguts.IsTokenRune(r) {
			return false
		}
	}
	return true
}

// isToken68 reports whether s has the token68 form of RFC 7235:
// base64-ish characters followed by optional '=' padding.
func isToken68(s string) bool {
	i := 0
	for i < len(s) && isToken68Char(s[i]) {
		i++
	}
	if i == 0 {
		return false
	}
	for i < len(s) && s[i] == '=' {
		i++
	}
	return i == len(s)
}

func isToken68Char(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~' || c == '+' || c == '/'
}
