// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package retry provides policies deciding whether, and how, to retry
// an attempt that failed or was challenged for authentication during an
// HTTP request plan execution, and how long to wait before retrying on
// a new connection.
//
// The interface Policy defines a retry Policy. A Policy instance can be
// constructed using NewPolicy by providing a decision-maker, Decider,
// and a wait time calculator, Waiter. Both Decider and Waiter have
// constructors for common use cases, so that a useful policy can be
// quickly assembled:
//
//	decider := retry.TransientOnly(retry.Attempts(3))
//	waiter := retry.NewExpWaiter(100*time.Millisecond, 2*time.Second, time.Now())
//	policy := retry.NewPolicy(decider, waiter)
//
// Deciders are pure: given the attempt index, the attempt Outcome, and
// whether the request is idempotent, they return a Decision. If the
// built-in functionality is insufficient, fully custom retry policies
// can be created by via custom implementations of Decider, Waiter, or
// Policy.
package retry
