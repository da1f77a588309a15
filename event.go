// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpexec

// An Event identifies the event type when installing or running a
// Handler. Install event handlers in a Client to observe the progress
// of request executions.
//
// Events fire synchronously on the goroutine executing the request. An
// attempt on a fresh connection fires, in order, DnsResolved,
// ConnectionOpen, ConnectionSuccess (or ConnectionFailure),
// SslHandshakeCompleted for https, and ConnectionOffer, then the
// request and response events. An attempt on a pooled connection fires
// ConnectionPool and ConnectionPooled in place of the connection
// events.
type Event int

const (
	// DnsResolved identifies the event that occurs after the host to
	// connect to, the proxy if the execution is proxied, has been
	// resolved. The execution's Addrs field holds the addresses.
	DnsResolved Event = iota
	// ConnectionOpen identifies the event that occurs before the first
	// dial of a new connection.
	ConnectionOpen
	// ConnectionSuccess identifies the event that occurs after a new
	// connection has been dialed. The execution's RemoteAddr field is
	// set to the connected address.
	ConnectionSuccess
	// ConnectionFailure identifies the event that occurs after a dial
	// to one of the resolved addresses failed. The execution's Err
	// field holds the dial error.
	ConnectionFailure
	// SslHandshakeCompleted identifies the event that occurs after a
	// successful TLS handshake on a new https connection.
	SslHandshakeCompleted
	// ConnectionPool identifies the event that occurs when an idle
	// connection for the execution's pool key was found in the pool.
	ConnectionPool
	// ConnectionPooled identifies the event that occurs after the
	// pooled connection has been checked out to the execution. The
	// execution's Conn field is set.
	ConnectionPooled
	// ConnectionOffer identifies the event that occurs after a new
	// connection has been registered with the pool and checked out to
	// the execution. The execution's Conn field is set.
	ConnectionOffer
	// HeadersWritten identifies the event that occurs after the request
	// line and headers have been written to the connection. The
	// execution's Request field holds the request, including any
	// credentials attached for this transmission.
	HeadersWritten
	// ContentWritten identifies the event that occurs after a non-empty
	// request body has been written to the connection.
	ContentWritten
	// RequestSend identifies the event that occurs after the complete
	// request has been written.
	RequestSend
	// StatusReceived identifies the event that occurs after the final
	// status line of the response has been read. The execution's
	// Response field is set, but its Header is still empty.
	StatusReceived
	// HeadersReceived identifies the event that occurs after the
	// response headers have been read.
	HeadersReceived
	// Retry identifies the event that occurs when the execution is
	// about to retry, either on the same connection to answer an
	// authentication challenge, or on a new connection after a
	// failure. Retry fires before any backoff wait.
	Retry
	// Completed identifies the event that occurs exactly once after an
	// execution has succeeded, after its connection has been returned
	// to the pool or evicted. It never fires for a failed execution.
	Completed
	// eventSentinel provides the total number of events typed as an
	// Event.
	eventSentinel

	// numEvents provides the total number of events types as an int.
	numEvents = int(eventSentinel)
)

var eventNames = []string{
	"DnsResolved",
	"ConnectionOpen",
	"ConnectionSuccess",
	"ConnectionFailure",
	"SslHandshakeCompleted",
	"ConnectionPool",
	"ConnectionPooled",
	"ConnectionOffer",
	"HeadersWritten",
	"ContentWritten",
	"RequestSend",
	"StatusReceived",
	"HeadersReceived",
	"Retry",
	"Completed",
}

// Events returns a slice containing all events which can occur in an
// HTTP request plan execution by Client, in the order in which
// they would occur.
func Events() []Event {
	events := make([]Event, numEvents)
	for i := range events {
		events[i] = Event(i)
	}
	return events
}

// Name returns the name of the event.
func (evt Event) Name() string {
	return eventNames[int(evt)]
}

// String returns the name of the event.
func (evt Event) String() string {
	return evt.Name()
}
