// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"time"
)

// A Policy controls if and how retries are done in an HTTP request
// plan execution. After every attempt that ends in a failure or an
// authentication challenge, a Policy decides whether a retry should be
// done and, for retries on a new connection, how long to wait first.
//
// Implementations of Policy must be safe for concurrent use by multiple
// goroutines.
//
// A Policy is composed of the Decider and Waiter interfaces. While you
// can implement Policy yourself, it may be more efficient to use one
// of the built-in retry policies, DefaultPolicy or Never, or to construct
// your policy using the NewPolicy constructor using existing Decider
// and Waiter implementations.
type Policy interface {
	Decider
	Waiter
}

// DefaultPolicy is a general-purpose retry policy suitable for common
// use cases. It is a composition of DefaultDecider for retry decisions
// and DefaultWaiter for wait time calculations.
var DefaultPolicy Policy = policy{DefaultDecider, DefaultWaiter}

// Never is a policy that never retries on a new connection. It still
// answers authentication challenges on the same connection, since
// without that no authenticated request could succeed.
var Never Policy = policy{Attempts(1), DefaultWaiter}

type policy struct {
	decider Decider
	waiter  Waiter
}

// NewPolicy composes a Decider and a Waiter into a retry Policy.
func NewPolicy(d Decider, w Waiter) Policy {
	if d == nil {
		panic("httpexec/retry: nil decider")
	}
	if w == nil {
		panic("httpexec/retry: nil waiter")
	}
	return policy{decider: d, waiter: w}
}

func (p policy) Decide(attempt int, o Outcome, idempotent bool) Decision {
	return p.decider.Decide(attempt, o, idempotent)
}

func (p policy) Wait(attempt int) time.Duration {
	return p.waiter.Wait(attempt)
}
