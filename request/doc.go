// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package request contains the core types Plan (describes a logical HTTP
request) and Execution (describes the state of a Plan execution, one
request attempt after another).

A Plan is the immutable request specification. It looks like a
stripped-down http.Request with a pre-buffered body, plus the
execution-specific knobs: a per-plan proxy override, a server realm for
answering 401 challenges, and an idempotency override used by retry
policy when a body may already have reached the remote end.

	p, err := request.NewPlan("GET", "https://example.com", nil)
	...
	e, err := client.Do(p)
	...

A plan may be assigned a context to allow the entire execution, across
all attempts, to be cancelled or bounded by a deadline:

	p, err := request.NewPlanWithContext(ctx, "POST", "https://example.com/upload", body)

An Execution is both the output of the client's Do method and the input
to every event handler. Its Phase field tracks the attempt state machine
and its Conn, Key, Proxy and Auth fields let observers correlate events
with the connection and negotiation state that produced them.
*/
package request
