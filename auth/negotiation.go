// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import "fmt"

// A Status is the state of an authentication negotiation.
type Status int

const (
	InProgress Status = iota
	Succeeded
	Failed
	Exhausted
)

var statusNames = []string{
	"InProgress",
	"Succeeded",
	"Failed",
	"Exhausted",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// A Negotiation is a snapshot of the state of one authentication
// negotiation.
type Negotiation struct {
	Scheme Scheme
	// Round is the number of challenges received so far.
	Round int
	// Token is the opaque token carried by the most recent challenge,
	// if any, exactly as received.
	Token     string
	Status    Status
	MaxRounds int
}

// Done reports whether the negotiation has reached a terminal status.
func (n Negotiation) Done() bool {
	return n.Status != InProgress
}
