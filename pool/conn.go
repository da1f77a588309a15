// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pool

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// A Conn is a pooled connection handle. It wraps one transport
// connection and carries the bookkeeping the pool needs to hand it to
// at most one user at a time.
//
// The pool exclusively owns every Conn. A caller holding a Conn
// obtained from Borrow or Offer has it checked out until it calls
// Release or Evict, and must not use it afterward.
type Conn struct {
	id      string
	key     Key
	nc      net.Conn
	created time.Time
	b       *bucket

	// Guarded by b.mu.
	inUse    bool
	closed   bool
	lastUsed time.Time

	broken atomic.Bool

	mu   sync.Mutex
	data context.Context
}

// ID returns a unique identifier for the connection, suitable for
// correlating events that concern the same connection.
func (c *Conn) ID() string {
	return c.id
}

// Key returns the key the connection is pooled under.
func (c *Conn) Key() Key {
	return c.key
}

// NetConn returns the underlying transport connection.
func (c *Conn) NetConn() net.Conn {
	return c.nc
}

// Created returns the time the connection was offered to the pool.
func (c *Conn) Created() time.Time {
	return c.created
}

// MarkBroken flags the connection as permanently unusable. A broken
// connection is evicted, never returned to the idle set, when it is
// released.
func (c *Conn) MarkBroken() {
	c.broken.Store(true)
}

// Broken reports whether MarkBroken has been called.
func (c *Conn) Broken() bool {
	return c.broken.Load()
}

// SetValue attaches a value to the connection. Values survive the
// connection being returned to and borrowed from the pool, which lets
// the connection's user remember per-connection protocol state such as
// a completed authentication handshake.
//
// The key must follow the same rules as the key parameter in
// context.WithValue.
func (c *Conn) SetValue(key, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx := c.data
	if ctx == nil {
		ctx = context.Background()
	}
	c.data = context.WithValue(ctx, key, value)
}

// Value returns the value attached to the connection for key, or nil.
func (c *Conn) Value(key interface{}) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		return nil
	}
	return c.data.Value(key)
}
