// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"encoding/base64"
	"fmt"

	"golang.org/x/text/encoding/htmlindex"
)

// DefaultCharset is the charset used to encode Basic credentials when
// Realm.Charset is empty.
const DefaultCharset = "UTF-8"

// DefaultMaxRounds is the number of challenge rounds after which a
// negotiation is exhausted when Realm.MaxRounds is zero.
const DefaultMaxRounds = 3

// A Realm holds the credentials and parameters needed to answer
// authentication challenges from one proxy or server.
//
// An empty Principal or Password is treated as absent.
type Realm struct {
	Scheme    Scheme
	Principal string
	Password  string

	// Charset names the character encoding used for Basic credentials.
	// Any name known to the WHATWG Encoding Standard is accepted. If
	// empty, DefaultCharset is used.
	Charset string

	// NTLMDomain is the domain presented in NTLM authenticate messages
	// when Principal does not have the form DOMAIN\user.
	NTLMDomain string

	// NTLMHost is the workstation name presented in NTLM authenticate
	// messages.
	NTLMHost string

	// Host is the host being authenticated to. It is used to derive
	// the service principal name "HTTP@host" for token-based schemes.
	Host string

	// Provider produces tokens for the Kerberos, SPNEGO and Custom
	// schemes.
	Provider TokenProvider

	// CustomName is the scheme token sent and matched for the Custom
	// scheme.
	CustomName string

	// MaxRounds bounds the number of challenges answered before the
	// negotiation is exhausted. If zero, DefaultMaxRounds is used.
	MaxRounds int
}

// Validate reports whether the realm holds everything its scheme needs.
func (r *Realm) Validate() error {
	if r.Scheme == None {
		return nil
	}
	if r.Scheme < None || r.Scheme > Custom {
		return fmt.Errorf("httpexec/auth: invalid scheme %s", r.Scheme)
	}
	if r.Principal == "" {
		return ErrMissingPrincipal
	}
	if r.Password == "" {
		return ErrMissingPassword
	}
	if _, err := htmlindex.Get(r.charset()); err != nil {
		return fmt.Errorf("httpexec/auth: charset %q: %w", r.Charset, err)
	}
	switch r.Scheme {
	case Kerberos, SPNEGO:
		if r.Provider == nil {
			return ErrMissingProvider
		}
	case Custom:
		if r.CustomName == "" {
			return ErrMissingCustomName
		}
		if r.Provider == nil {
			return ErrMissingProvider
		}
	}
	if r.MaxRounds < 0 {
		return fmt.Errorf("httpexec/auth: negative max rounds %d", r.MaxRounds)
	}
	return nil
}

func (r *Realm) charset() string {
	if r.Charset == "" {
		return DefaultCharset
	}
	return r.Charset
}

func (r *Realm) maxRounds() int {
	if r.MaxRounds > 0 {
		return r.MaxRounds
	}
	return DefaultMaxRounds
}

func (r *Realm) spn() string {
	return "HTTP@" + r.Host
}

// BasicToken returns the base64 encoding of "username:password" in
// UTF-8, as sent in Basic credentials.
func BasicToken(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

// BasicTokenCharset is like BasicToken but encodes "username:password"
// using the named charset before base64 encoding it.
func BasicTokenCharset(username, password, charset string) (string, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", fmt.Errorf("httpexec/auth: charset %q: %w", charset, err)
	}
	b, err := enc.NewEncoder().Bytes([]byte(username + ":" + password))
	if err != nil {
		return "", fmt.Errorf("httpexec/auth: encoding credentials as %s: %w", charset, err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
