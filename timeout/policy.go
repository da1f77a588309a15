// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package timeout

import (
	"time"

	"github.com/gogama/httpexec/request"
)

// A Policy defines a timeout policy which may be plugged into the HTTP
// request executor (httpexec.Client) to direct how long each blocking
// step of an attempt may take: name resolution, connecting, the TLS
// handshake, writing the request, and reading the response.
//
// Implementations of Policy must be safe for concurrent use by multiple
// goroutines.
type Policy interface {
	// Timeout returns the timeout to set on the blocking step the
	// execution is about to enter.
	//
	// Parameter e contains the current state of the HTTP request plan
	// execution. Its Phase field identifies the step, and its Err and
	// AttemptTimeouts fields describe how previous attempts failed.
	Timeout(e *request.Execution) time.Duration
}

// DefaultPolicy is the default timeout policy. It sets a fixed timeout
// of 5 seconds on each step.
var DefaultPolicy Policy = Fixed(5 * time.Second)

// Infinite is a built-in timeout policy which never times out.
var Infinite Policy = Fixed(1<<63 - 1)

// Fixed constructs a timeout policy that uses the same value to set
// every step timeout. The return value is a timeout policy that always
// returns the value d.
func Fixed(d time.Duration) Policy {
	return policy([]time.Duration{d})
}

// Adaptive constructs a timeout policy that varies the next timeout
// value if the previous attempt timed out.
//
// Use Adaptive if you find the remote endpoint often experiences
// temporary slowdowns, so that a retry after a timeout deserves more
// patience.
//
// Parameter usual is the timeout value the policy will return for the
// first attempt and for any attempt whose predecessor did not time out.
// If the previous attempt timed out, the policy returns the value at
// index AttemptTimeouts-1 of after, or the last value in after if
// AttemptTimeouts exceeds its length.
func Adaptive(usual time.Duration, after ...time.Duration) Policy {
	p := make([]time.Duration, 1, 1+len(after))
	p[0] = usual
	return policy(append(p, after...))
}

type policy []time.Duration

func (p policy) Timeout(e *request.Execution) time.Duration {
	if !e.Timeout() {
		return p[0]
	}

	i := e.AttemptTimeouts
	if i > len(p)-1 {
		i = len(p) - 1
	}

	return p[i]
}

// PerPhase constructs a timeout policy which uses a specific timeout
// for each phase present in phases, and defers to def for every other
// phase. For example, to allow a slow upstream more time to produce
// response headers than to accept a connection:
//
//	timeout.PerPhase(timeout.Fixed(5*time.Second), map[request.Phase]time.Duration{
//		request.Connecting:     time.Second,
//		request.AwaitingStatus: 30 * time.Second,
//	})
func PerPhase(def Policy, phases map[request.Phase]time.Duration) Policy {
	if def == nil {
		panic("httpexec/timeout: nil default policy")
	}
	m := make(map[request.Phase]time.Duration, len(phases))
	for phase, d := range phases {
		m[phase] = d
	}
	return &perPhase{def: def, phases: m}
}

type perPhase struct {
	def    Policy
	phases map[request.Phase]time.Duration
}

func (p *perPhase) Timeout(e *request.Execution) time.Duration {
	if d, ok := p.phases[e.Phase]; ok {
		return d
	}
	return p.def.Timeout(e)
}
