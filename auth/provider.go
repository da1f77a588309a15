// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import "context"

// A TokenProvider produces security tokens for the Kerberos, SPNEGO
// and Custom schemes, typically by calling into a GSS-API or SSPI
// implementation.
//
// The spn argument is the service principal name of the host being
// authenticated to, and challenge is the decoded token from the
// remote end's most recent challenge, or nil on the first round.
type TokenProvider interface {
	Token(ctx context.Context, spn string, challenge []byte) ([]byte, error)
}

// The TokenProviderFunc type is an adapter to allow the use of ordinary
// functions as token providers.
type TokenProviderFunc func(ctx context.Context, spn string, challenge []byte) ([]byte, error)

// Token calls f(ctx, spn, challenge).
func (f TokenProviderFunc) Token(ctx context.Context, spn string, challenge []byte) ([]byte, error) {
	return f(ctx, spn, challenge)
}
