// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingPrincipal indicates a realm with an authentication
	// scheme but no principal.
	ErrMissingPrincipal = errors.New("httpexec/auth: principal required for authentication scheme")
	// ErrMissingPassword indicates a realm with an authentication
	// scheme but no password.
	ErrMissingPassword = errors.New("httpexec/auth: password required for authentication scheme")
	// ErrMissingProvider indicates a token-based realm with no
	// TokenProvider.
	ErrMissingProvider = errors.New("httpexec/auth: token provider required for authentication scheme")
	// ErrMissingCustomName indicates a Custom realm with no scheme name.
	ErrMissingCustomName = errors.New("httpexec/auth: custom scheme name required")
)

// A Reason explains why an authentication negotiation failed.
type Reason int

const (
	// MissingCredentials means the realm cannot produce credentials
	// for the scheme.
	MissingCredentials Reason = iota + 1
	// NoScheme means a challenge was received but no authentication
	// scheme is configured.
	NoScheme
	// SchemeMismatch means none of the challenges offered the
	// configured scheme.
	SchemeMismatch
	// Rejected means the remote end rejected the credentials.
	Rejected
	// RoundsExhausted means the negotiation reached its round bound
	// without succeeding.
	RoundsExhausted
	// MalformedChallenge means a challenge token could not be decoded.
	MalformedChallenge
	// ProviderFailure means the TokenProvider returned an error.
	ProviderFailure
)

var reasonNames = []string{
	"",
	"missing credentials",
	"no scheme configured",
	"scheme mismatch",
	"credentials rejected",
	"rounds exhausted",
	"malformed challenge",
	"token provider failure",
}

func (r Reason) String() string {
	if r <= 0 || int(r) >= len(reasonNames) {
		return fmt.Sprintf("Reason(%d)", int(r))
	}
	return reasonNames[r]
}

// An Error describes a failed authentication negotiation.
type Error struct {
	Scheme Scheme
	Round  int
	Reason Reason
	// Err is the underlying cause, if any.
	Err error
}

func (err *Error) Error() string {
	msg := fmt.Sprintf("httpexec/auth: %s round %d: %s", err.Scheme, err.Round, err.Reason)
	if err.Err != nil {
		msg += ": " + err.Err.Error()
	}
	return msg
}

func (err *Error) Unwrap() error {
	return err.Err
}
