// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	t.Run("Decider", func(t *testing.T) {
		o := Outcome{Kind: TransportFailure, Err: syscall.ECONNRESET}
		for i := 0; i < DefaultMaxAttempts-1; i++ {
			assert.Equal(t, RetryNewConnection, DefaultPolicy.Decide(i, o, true))
		}
		assert.Equal(t, GiveUp, DefaultPolicy.Decide(DefaultMaxAttempts-1, o, true))
	})
	t.Run("Waiter", func(t *testing.T) {
		m := []int{50, 100, 200, 400, 800, 1000}
		total := time.Duration(0)
		for i, max := range m {
			w := DefaultPolicy.Wait(i)
			total += w
			assert.GreaterOrEqual(t, w, time.Duration(0))
			assert.LessOrEqual(t, w, time.Duration(max)*time.Millisecond)
		}
		assert.Greater(t, total, time.Duration(0))
	})
}

func TestNewPolicy(t *testing.T) {
	p := &testPolicy{}
	t.Run("Bad Args", func(t *testing.T) {
		assert.PanicsWithValue(t, "httpexec/retry: nil decider", func() { NewPolicy(nil, p) })
		assert.PanicsWithValue(t, "httpexec/retry: nil waiter", func() { NewPolicy(p, nil) })
	})
	t.Run("Normal", func(t *testing.T) {
		P := NewPolicy(p, p)
		assert.Equal(t, RetryNewConnection, P.Decide(0, Outcome{}, true))
		assert.Equal(t, 1, p.d)
		assert.Equal(t, time.Second, P.Wait(0))
		assert.Equal(t, 1, p.w)
	})
}

type testPolicy struct {
	d int
	w int
}

func (p *testPolicy) Decide(_ int, _ Outcome, _ bool) Decision {
	p.d++
	return RetryNewConnection
}

func (p *testPolicy) Wait(_ int) time.Duration {
	p.w++
	return time.Second
}
