// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package auth implements the client side of HTTP authentication
negotiations with proxies and servers.

A Realm holds credentials for one scheme: Basic, NTLM, Kerberos, SPNEGO
or a custom scheme. An Authenticator created from a Realm turns the
challenges in 407 (proxy) or 401 (server) responses into credential
header values, one round at a time, and reports when the negotiation
has succeeded, failed, or exhausted its round bound:

	a := auth.New(realm, auth.Proxy)
	v, err := a.Initial()
	...
	v, err = a.OnChallenge(ctx, resp.Header.Values(auth.Proxy.ChallengeHeader()))

Basic and NTLM are implemented in this package. Kerberos, SPNEGO and
custom schemes obtain their tokens from a TokenProvider.
*/
package auth
