// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

// A Phase identifies the state an execution's current attempt is in.
//
// The normal progression for an attempt on a fresh connection is:
//
//	Start → ResolvingConnection → Connecting → TLSHandshaking →
//	Authenticating → Sending → AwaitingStatus → AwaitingHeaders →
//	ReceivingBody → Completed
//
// An attempt that reuses a pooled connection skips Connecting and
// TLSHandshaking. Retrying is entered between attempts, and loops back
// either to ResolvingConnection (new connection) or to Authenticating
// (same connection, authentication retry). Failed is terminal.
type Phase int

const (
	Start Phase = iota
	ResolvingConnection
	Connecting
	TLSHandshaking
	Authenticating
	Sending
	AwaitingStatus
	AwaitingHeaders
	ReceivingBody
	Retrying
	Completed
	Failed
)

var phaseNames = []string{
	"Start",
	"ResolvingConnection",
	"Connecting",
	"TLSHandshaking",
	"Authenticating",
	"Sending",
	"AwaitingStatus",
	"AwaitingHeaders",
	"ReceivingBody",
	"Retrying",
	"Completed",
	"Failed",
}

// String returns the name of the phase.
func (ph Phase) String() string {
	if ph < 0 || int(ph) >= len(phaseNames) {
		return "Unknown"
	}
	return phaseNames[ph]
}

// Dirty reports whether a connection interrupted in this phase is left
// in an undefined protocol state. A connection interrupted while dirty
// must be evicted rather than returned to the pool.
func (ph Phase) Dirty() bool {
	switch ph {
	case Connecting, TLSHandshaking, Sending, AwaitingStatus, AwaitingHeaders, ReceivingBody:
		return true
	default:
		return false
	}
}
