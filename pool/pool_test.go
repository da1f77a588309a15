// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pool

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestNewKey(t *testing.T) {
	t.Run("normalized", func(t *testing.T) {
		a := NewKey("Example.COM.", 443, "", true)
		b := NewKey("example.com", 443, "", true)
		assert.Equal(t, a, b)
		assert.Equal(t, "example.com:443", a.Addr())
		assert.Equal(t, "https://example.com:443", a.String())
	})
	t.Run("idna", func(t *testing.T) {
		k := NewKey("bücher.example", 80, "", false)
		assert.Equal(t, "xn--bcher-kva.example", k.Host)
	})
	t.Run("ip", func(t *testing.T) {
		k := NewKey("::1", 8080, "proxy:3128", false)
		assert.Equal(t, "::1", k.Host)
		assert.Equal(t, "[::1]:8080", k.Addr())
		assert.Equal(t, "http://[::1]:8080 via proxy:3128", k.String())
	})
	t.Run("distinct", func(t *testing.T) {
		k := NewKey("example.com", 443, "", true)
		assert.NotEqual(t, k, NewKey("example.com", 443, "", false))
		assert.NotEqual(t, k, NewKey("example.com", 8443, "", true))
		assert.NotEqual(t, k, NewKey("example.com", 443, "proxy:3128", true))
	})
}

func TestPool(t *testing.T) {
	key := NewKey("example.com", 80, "", false)

	t.Run("miss then hit", func(t *testing.T) {
		p := New(Config{})
		defer p.Close()
		c, err := p.Borrow(key)
		require.NoError(t, err)
		assert.Nil(t, c)
		assert.Equal(t, Stats{Keys: 1, Reserved: 1}, p.Stats())
		nc := newFakeConn()
		c, err = p.Offer(key, nc)
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.NotEmpty(t, c.ID())
		assert.Equal(t, key, c.Key())
		assert.Same(t, nc, c.NetConn())
		assert.Equal(t, Stats{Keys: 1, InUse: 1}, p.Stats())
		p.Release(c)
		assert.Equal(t, Stats{Keys: 1, Idle: 1}, p.Stats())
		c2, err := p.Borrow(key)
		require.NoError(t, err)
		assert.Same(t, c, c2)
		assert.Equal(t, Stats{Keys: 1, InUse: 1}, p.Stats())
	})
	t.Run("keys isolated", func(t *testing.T) {
		p := New(Config{})
		defer p.Close()
		c := offer(t, p, key)
		p.Release(c)
		c2, err := p.Borrow(NewKey("example.com", 80, "proxy:3128", false))
		require.NoError(t, err)
		assert.Nil(t, c2)
	})
	t.Run("most recently used first", func(t *testing.T) {
		p := New(Config{})
		defer p.Close()
		c1 := offer(t, p, key)
		c2 := offer(t, p, key)
		p.Release(c1)
		p.Release(c2)
		c, err := p.Borrow(key)
		require.NoError(t, err)
		assert.Same(t, c2, c)
	})
	t.Run("double release", func(t *testing.T) {
		p := New(Config{})
		defer p.Close()
		c := offer(t, p, key)
		p.Release(c)
		p.Release(c)
		assert.Equal(t, 1, p.Stats().Idle)
	})
	t.Run("evict", func(t *testing.T) {
		p := New(Config{})
		defer p.Close()
		nc := newFakeConn()
		_, _ = p.Borrow(key)
		c, err := p.Offer(key, nc)
		require.NoError(t, err)
		p.Evict(c)
		p.Evict(c)
		assert.Equal(t, int32(1), nc.closes.Load())
		p.Release(c)
		assert.Equal(t, Stats{Keys: 1}, p.Stats())
		c, err = p.Borrow(key)
		require.NoError(t, err)
		assert.Nil(t, c)
	})
	t.Run("broken never reused", func(t *testing.T) {
		p := New(Config{})
		defer p.Close()
		nc := newFakeConn()
		_, _ = p.Borrow(key)
		c, err := p.Offer(key, nc)
		require.NoError(t, err)
		c.MarkBroken()
		assert.True(t, c.Broken())
		p.Release(c)
		assert.Equal(t, int32(1), nc.closes.Load())
		c, err = p.Borrow(key)
		require.NoError(t, err)
		assert.Nil(t, c)
	})
	t.Run("broken while idle", func(t *testing.T) {
		p := New(Config{})
		defer p.Close()
		c := offer(t, p, key)
		p.Release(c)
		c.MarkBroken()
		c2, err := p.Borrow(key)
		require.NoError(t, err)
		assert.Nil(t, c2)
		assert.Equal(t, int32(1), c.NetConn().(*fakeConn).closes.Load())
	})
	t.Run("cancel", func(t *testing.T) {
		p := New(Config{MaxPerKey: 1})
		defer p.Close()
		c, err := p.Borrow(key)
		require.NoError(t, err)
		assert.Nil(t, c)
		_, err = p.Borrow(key)
		assert.Equal(t, &ExhaustedError{Key: key, Limit: 1}, err)
		p.Cancel(key)
		c, err = p.Borrow(key)
		assert.NoError(t, err)
		assert.Nil(t, c)
	})
	t.Run("max per key", func(t *testing.T) {
		p := New(Config{MaxPerKey: 2})
		defer p.Close()
		c1 := offer(t, p, key)
		offer(t, p, key)
		_, err := p.Borrow(key)
		var ee *ExhaustedError
		require.ErrorAs(t, err, &ee)
		assert.Equal(t, 2, ee.Limit)
		assert.Contains(t, err.Error(), "2 connection limit reached for http://example.com:80")
		p.Release(c1)
		c, err := p.Borrow(key)
		require.NoError(t, err)
		assert.Same(t, c1, c)
	})
	t.Run("max idle per key", func(t *testing.T) {
		p := New(Config{MaxIdlePerKey: 1})
		defer p.Close()
		c1 := offer(t, p, key)
		c2 := offer(t, p, key)
		p.Release(c1)
		p.Release(c2)
		assert.Equal(t, Stats{Keys: 1, Idle: 1}, p.Stats())
		assert.Equal(t, int32(1), c2.NetConn().(*fakeConn).closes.Load())
	})
	t.Run("values", func(t *testing.T) {
		p := New(Config{})
		defer p.Close()
		c := offer(t, p, key)
		type k struct{}
		assert.Nil(t, c.Value(k{}))
		c.SetValue(k{}, "ntlm")
		p.Release(c)
		c2, _ := p.Borrow(key)
		assert.Equal(t, "ntlm", c2.Value(k{}))
	})
}

func TestPool_Expiry(t *testing.T) {
	key := NewKey("example.com", 443, "", true)
	var clock time.Time = time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	t.Run("borrow", func(t *testing.T) {
		p := New(Config{IdleTimeout: time.Second})
		p.now = now
		defer p.Close()
		c := offer(t, p, key)
		p.Release(c)
		clock = clock.Add(time.Second)
		c2, err := p.Borrow(key)
		require.NoError(t, err)
		assert.Same(t, c, c2)
		p.Release(c2)
		clock = clock.Add(time.Second + 1)
		c3, err := p.Borrow(key)
		require.NoError(t, err)
		assert.Nil(t, c3)
		assert.Equal(t, int32(1), c.NetConn().(*fakeConn).closes.Load())
	})
	t.Run("default", func(t *testing.T) {
		p := New(Config{})
		p.now = now
		defer p.Close()
		c := offer(t, p, key)
		p.Release(c)
		clock = clock.Add(DefaultIdleTimeout + 1)
		c2, err := p.Borrow(key)
		require.NoError(t, err)
		assert.Nil(t, c2)
	})
	t.Run("disabled", func(t *testing.T) {
		p := New(Config{IdleTimeout: -1})
		p.now = now
		defer p.Close()
		c := offer(t, p, key)
		p.Release(c)
		clock = clock.Add(24 * time.Hour)
		c2, err := p.Borrow(key)
		require.NoError(t, err)
		assert.Same(t, c, c2)
	})
	t.Run("sweep", func(t *testing.T) {
		p := New(Config{IdleTimeout: time.Minute})
		p.now = now
		defer p.Close()
		c := offer(t, p, key)
		p.Release(c)
		p.Sweep()
		assert.Equal(t, Stats{Keys: 1, Idle: 1}, p.Stats())
		clock = clock.Add(2 * time.Minute)
		p.Sweep()
		assert.Equal(t, Stats{}, p.Stats())
		assert.Equal(t, int32(1), c.NetConn().(*fakeConn).closes.Load())
	})
	t.Run("sweeper", func(t *testing.T) {
		p := New(Config{IdleTimeout: time.Nanosecond, SweepInterval: time.Millisecond})
		c := offer(t, p, key)
		p.Release(c)
		assert.Eventually(t, func() bool {
			return c.NetConn().(*fakeConn).closes.Load() == 1
		}, 5*time.Second, time.Millisecond)
		require.NoError(t, p.Close())
	})
}

func TestPool_Close(t *testing.T) {
	key := NewKey("example.com", 80, "", false)
	p := New(Config{})
	idle := offer(t, p, key)
	busy := offer(t, p, key)
	p.Release(idle)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, int32(1), idle.NetConn().(*fakeConn).closes.Load())
	assert.Equal(t, int32(0), busy.NetConn().(*fakeConn).closes.Load())
	p.Release(busy)
	assert.Equal(t, int32(1), busy.NetConn().(*fakeConn).closes.Load())
	_, err := p.Borrow(key)
	assert.ErrorIs(t, err, ErrClosed)
	nc := newFakeConn()
	_, err = p.Offer(key, nc)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, int32(1), nc.closes.Load())
}

func TestPool_CloseIdle(t *testing.T) {
	key := NewKey("example.com", 80, "", false)
	p := New(Config{})
	defer p.Close()
	idle := offer(t, p, key)
	busy := offer(t, p, key)
	p.Release(idle)
	p.CloseIdle()
	assert.Equal(t, Stats{Keys: 1, InUse: 1}, p.Stats())
	p.Release(busy)
	c, err := p.Borrow(key)
	require.NoError(t, err)
	assert.Same(t, busy, c)
}

func TestPool_NoDoubleCheckout(t *testing.T) {
	key := NewKey("example.com", 443, "", true)
	p := New(Config{})
	defer p.Close()
	const conns = 4
	seed := make([]*Conn, conns)
	for i := range seed {
		seed[i] = offer(t, p, key)
	}
	for _, c := range seed {
		p.Release(c)
	}

	var mu sync.Mutex
	holders := make(map[*Conn]int)
	var g errgroup.Group
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			for j := 0; j < 200; j++ {
				c, err := p.Borrow(key)
				if err != nil {
					return err
				}
				if c == nil {
					p.Cancel(key)
					continue
				}
				mu.Lock()
				holders[c]++
				n := holders[c]
				mu.Unlock()
				if n != 1 {
					t.Errorf("connection %s checked out %d times", c.ID(), n)
				}
				mu.Lock()
				holders[c]--
				mu.Unlock()
				p.Release(c)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, conns, p.Stats().Idle)
}

func offer(t *testing.T, p *Pool, key Key) *Conn {
	c, err := p.Borrow(key)
	require.NoError(t, err)
	require.Nil(t, c)
	c, err = p.Offer(key, newFakeConn())
	require.NoError(t, err)
	return c
}

type fakeConn struct {
	net.Conn
	closes atomic.Int32
}

func newFakeConn() *fakeConn {
	return &fakeConn{}
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	return nil
}
