// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"github.com/gogama/httpexec/transient"
)

// A Decider decides whether, and how, a failed or challenged attempt
// should be retried.
//
// The attempt parameter is the zero-based index of the attempt that
// just ended, counting only attempts on new connections. Parameter
// idempotent reports whether the request may be repeated after its body
// has reached the remote end.
//
// Implementations of Decider must be safe for concurrent use by
// multiple goroutines, and should be pure functions of their inputs.
//
// Use the built-in constructor Attempts and the built-in wrapper
// TransientOnly, or implement your Decider. Use DeciderFunc to convert
// an ordinary function into a Decider, and to compose deciders
// logically using DeciderFunc.And and DeciderFunc.Or.
type Decider interface {
	Decide(attempt int, o Outcome, idempotent bool) Decision
}

// The DeciderFunc type is an adapter to allow the use of ordinary
// functions as retry deciders. It implements the Decider interface, and
// also provides the logical composition methods And and Or.
//
// Every DeciderFunc must be safe for concurrent use by multiple
// goroutines.
type DeciderFunc func(attempt int, o Outcome, idempotent bool) Decision

// DefaultMaxAttempts is the number of attempts on new connections
// DefaultPolicy allows, including the first.
const DefaultMaxAttempts = 6

// DefaultDecider is a general-purpose retry decider. It allows up to
// DefaultMaxAttempts attempts.
var DefaultDecider = Attempts(DefaultMaxAttempts)

// Decide returns the decision of f.
func (f DeciderFunc) Decide(attempt int, o Outcome, idempotent bool) Decision {
	return f(attempt, o, idempotent)
}

// And composes two retry deciders into a new decider which gives up if
// either sub-decider gives up, and otherwise returns the decision of f.
//
// Short-circuit logic is used, so g will not be evaluated if f gives
// up.
func (f DeciderFunc) And(g Decider) DeciderFunc {
	return func(attempt int, o Outcome, idempotent bool) Decision {
		d := f(attempt, o, idempotent)
		if d == GiveUp || g.Decide(attempt, o, idempotent) == GiveUp {
			return GiveUp
		}
		return d
	}
}

// Or composes two retry deciders into a new decider which returns the
// decision of f unless f gives up, in which case it returns the decision
// of g.
//
// Short-circuit logic is used, so g will not be evaluated if f does not
// give up.
func (f DeciderFunc) Or(g Decider) DeciderFunc {
	return func(attempt int, o Outcome, idempotent bool) Decision {
		if d := f(attempt, o, idempotent); d != GiveUp {
			return d
		}
		return g.Decide(attempt, o, idempotent)
	}
}

// Attempts constructs a retry decider which allows up to n attempts on
// new connections, including the first. The returned decider:
//
//   - answers an AuthChallenge with RetrySameConnection while the
//     challenge round is below the negotiation's round bound;
//   - gives up on AuthExhausted and ProtocolFailure;
//   - retries a ConnectFailure on a new connection while fewer than n
//     attempts have been made;
//   - treats a TransportFailure like a ConnectFailure, except that it
//     gives up if the request is not idempotent and any part of its
//     body was sent.
func Attempts(n int) DeciderFunc {
	return func(attempt int, o Outcome, idempotent bool) Decision {
		switch o.Kind {
		case AuthChallenge:
			if o.Round < o.MaxRounds {
				return RetrySameConnection
			}
		case TransportFailure:
			if !idempotent && o.BodySent {
				return GiveUp
			}
			fallthrough
		case ConnectFailure:
			if attempt+1 < n {
				return RetryNewConnection
			}
		}
		return GiveUp
	}
}

// TransientOnly wraps d so that connection and transport failures are
// only retried if their error is transient according to
// transient.Categorize. Decisions on other outcomes are d's.
func TransientOnly(d Decider) DeciderFunc {
	return func(attempt int, o Outcome, idempotent bool) Decision {
		if (o.Kind == ConnectFailure || o.Kind == TransportFailure) && transient.Categorize(o.Err) == transient.Not {
			return GiveUp
		}
		return d.Decide(attempt, o, idempotent)
	}
}
