// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package trace provides an event handler which records the events a
// client fires, for diagnostics and for asserting event order in tests.
package trace

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gogama/httpexec"
	"github.com/gogama/httpexec/request"
)

// An Entry is one recorded event together with a snapshot of the
// execution state at the time the event fired.
type Entry struct {
	Time    time.Time
	Event   httpexec.Event
	Phase   request.Phase
	Attempt int
	Sends   int
	Conn    string
	Status  int
}

// String returns a one-line description of the entry.
func (en Entry) String() string {
	s := fmt.Sprintf("%s attempt=%d sends=%d phase=%s", en.Event, en.Attempt, en.Sends, en.Phase)
	if en.Conn != "" {
		s += " conn=" + en.Conn
	}
	if en.Status != 0 {
		s += fmt.Sprintf(" status=%d", en.Status)
	}
	return s
}

// A Recorder is a handler which records every event it receives. It is
// safe for concurrent use, but entries from concurrent executions are
// interleaved in arrival order.
//
// The zero value is ready to use.
type Recorder struct {
	// Out, if not nil, receives each entry as a line of text as it is
	// recorded.
	Out io.Writer

	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

// Install subscribes r to all events on the handler group g, creating
// the group if g is nil, and returns the group.
func (r *Recorder) Install(g *httpexec.HandlerGroup) *httpexec.HandlerGroup {
	if g == nil {
		g = &httpexec.HandlerGroup{}
	}
	g.Subscribe(r)
	return g
}

// Handle records the event.
func (r *Recorder) Handle(evt httpexec.Event, e *request.Execution) {
	en := Entry{
		Event:   evt,
		Phase:   e.Phase,
		Attempt: e.Attempt,
		Sends:   e.Sends,
		Status:  e.StatusCode(),
	}
	if e.Conn != nil {
		en.Conn = e.Conn.ID()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.now != nil {
		en.Time = r.now()
	} else {
		en.Time = time.Now()
	}
	r.entries = append(r.entries, en)
	if r.Out != nil {
		_, _ = fmt.Fprintf(r.Out, "%s %s\n", en.Time.Format(time.RFC3339Nano), en)
	}
}

// Entries returns a copy of the recorded entries.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Events returns the recorded events in order.
func (r *Recorder) Events() []httpexec.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	evts := make([]httpexec.Event, len(r.entries))
	for i := range r.entries {
		evts[i] = r.entries[i].Event
	}
	return evts
}

// Names returns the names of the recorded events in order.
func (r *Recorder) Names() []string {
	evts := r.Events()
	names := make([]string, len(evts))
	for i, evt := range evts {
		names[i] = evt.Name()
	}
	return names
}

// Count returns the number of times evt was recorded.
func (r *Recorder) Count(evt httpexec.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for i := range r.entries {
		if r.entries[i].Event == evt {
			n++
		}
	}
	return n
}

// Reset discards all recorded entries.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}
