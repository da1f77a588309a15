// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpexec

import (
	"fmt"
	"testing"

	"github.com/gogama/httpexec/request"
	"github.com/stretchr/testify/assert"
)

func TestHandlerGroup(t *testing.T) {
	var evts []string
	var execs []*request.Execution
	h1 := &testHandler{seq: 1, evts: &evts, execs: &execs}
	h2 := &testHandler{seq: 2, evts: &evts, execs: &execs}
	g := &HandlerGroup{}
	t.Run("PushBack", func(t *testing.T) {
		assert.PanicsWithValue(t, "httpexec: nil handler", func() { g.PushBack(DnsResolved, nil) })
		assert.PanicsWithValue(t, "httpexec: unknown event", func() { g.PushBack(Event(123), h1) })
		g.PushBack(DnsResolved, h1)
		g.PushBack(DnsResolved, h2)
		g.PushBack(Retry, h1)
	})
	t.Run("run", func(t *testing.T) {
		e1 := &request.Execution{Attempt: 1}
		e2 := &request.Execution{Attempt: 2}
		assert.Empty(t, evts)
		assert.Empty(t, execs)
		g.run(Completed, e1)
		assert.Empty(t, evts)
		assert.Empty(t, execs)
		g.run(DnsResolved, e1)
		assert.Equal(t, []string{"1.DnsResolved", "2.DnsResolved"}, evts)
		assert.Equal(t, []*request.Execution{e1, e1}, execs)
		evts = evts[:0]
		execs = execs[:0]
		g.run(Retry, e2)
		assert.Equal(t, []string{"1.Retry"}, evts)
		assert.Equal(t, []*request.Execution{e2}, execs)
	})
	t.Run("Subscribe", func(t *testing.T) {
		evts = evts[:0]
		execs = execs[:0]
		s := &HandlerGroup{}
		s.Subscribe(h1)
		s.Subscribe(h2, Completed, Retry)
		e := &request.Execution{}
		for _, evt := range Events() {
			s.run(evt, e)
		}
		assert.Len(t, evts, numEvents+2)
		assert.Equal(t, []string{"1.Retry", "2.Retry", "1.Completed", "2.Completed"}, evts[len(evts)-4:])
	})
	t.Run("nil group", func(t *testing.T) {
		var n *HandlerGroup
		assert.NotPanics(t, func() { n.run(Completed, &request.Execution{}) })
	})
}

type testHandler struct {
	seq   int
	evts  *[]string
	execs *[]*request.Execution
}

func (h *testHandler) Handle(evt Event, e *request.Execution) {
	*h.evts = append(*h.evts, fmt.Sprintf("%d.%s", h.seq, evt))
	*h.execs = append(*h.execs, e)
}

func TestHandlerFunc(t *testing.T) {
	var _evt Event
	var _e *request.Execution
	var f = func(evt Event, e *request.Execution) {
		_evt = evt
		_e = e
	}
	h := HandlerFunc(f)
	e := &request.Execution{}
	h.Handle(StatusReceived, e)

	assert.Equal(t, StatusReceived, _evt)
	assert.Same(t, e, _e)
}
