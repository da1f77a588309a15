// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import "fmt"

// A Kind classifies the way an attempt ended short of success.
type Kind int

const (
	// ConnectFailure means no usable connection could be obtained:
	// name resolution, dialing, tunnelling or the TLS handshake failed.
	ConnectFailure Kind = iota
	// TransportFailure means the connection failed while the request
	// was being written or the response read.
	TransportFailure
	// AuthChallenge means the proxy or server answered with a 407 or
	// 401 challenge that the authenticator can answer.
	AuthChallenge
	// AuthExhausted means the authentication negotiation reached its
	// round bound, or otherwise failed.
	AuthExhausted
	// ProtocolFailure means the remote end sent something that is not
	// valid HTTP.
	ProtocolFailure
)

var kindNames = []string{
	"ConnectFailure",
	"TransportFailure",
	"AuthChallenge",
	"AuthExhausted",
	"ProtocolFailure",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// An Outcome describes how an attempt ended, as input to a Decider.
type Outcome struct {
	Kind Kind
	// Err is the error that ended the attempt. It is nil for
	// AuthChallenge outcomes.
	Err error
	// BodySent indicates that at least one byte of the request body
	// was written to the connection, so the remote end may have acted
	// on the request.
	BodySent bool
	// Round and MaxRounds are the authentication round just completed
	// and the negotiation's round bound. They are only meaningful for
	// AuthChallenge and AuthExhausted outcomes.
	Round     int
	MaxRounds int
}

// A Decision is a Decider's verdict on an attempt outcome.
type Decision int

const (
	// GiveUp ends the execution with the outcome's error.
	GiveUp Decision = iota
	// RetrySameConnection re-sends the request on the current
	// connection, without waiting. It is the answer to an
	// authentication challenge.
	RetrySameConnection
	// RetryNewConnection abandons the current connection and starts a
	// new attempt, after the Waiter's backoff.
	RetryNewConnection
)

var decisionNames = []string{
	"GiveUp",
	"RetrySameConnection",
	"RetryNewConnection",
}

func (d Decision) String() string {
	if d < 0 || int(d) >= len(decisionNames) {
		return fmt.Sprintf("Decision(%d)", int(d))
	}
	return decisionNames[d]
}
