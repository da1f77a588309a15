// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pool

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultIdleTimeout is the idle threshold used when Config.IdleTimeout
// is zero.
const DefaultIdleTimeout = 60 * time.Second

// ErrClosed is returned by Borrow and Offer once the pool is closed.
var ErrClosed = errors.New("httpexec/pool: pool closed")

// An ExhaustedError is returned by Borrow when a per-key connection
// limit is configured and the key already has that many connections
// open or being opened.
type ExhaustedError struct {
	Key   Key
	Limit int
}

func (err *ExhaustedError) Error() string {
	return fmt.Sprintf("httpexec/pool: %d connection limit reached for %s", err.Limit, err.Key)
}

// Config holds the pool's tunable parameters. The zero value is a
// valid configuration: connections expire after DefaultIdleTimeout, no
// per-key limits apply, and expiry is only checked opportunistically.
type Config struct {
	// IdleTimeout is the maximum time a connection may sit idle in the
	// pool. An idle connection older than this is never returned by
	// Borrow. Zero means DefaultIdleTimeout; a negative value disables
	// expiry.
	IdleTimeout time.Duration

	// MaxPerKey limits the number of connections, idle or in use, per
	// key. Zero means no limit.
	MaxPerKey int

	// MaxIdlePerKey limits the number of idle connections kept per
	// key. Released connections over the limit are evicted. Zero means
	// no limit.
	MaxIdlePerKey int

	// SweepInterval, if positive, starts a background goroutine which
	// evicts expired idle connections at this interval.
	SweepInterval time.Duration

	// Logger receives debug records for evictions. If nil, nothing is
	// logged.
	Logger *slog.Logger
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	Keys     int
	Idle     int
	InUse    int
	Reserved int
}

// A Pool is a keyed registry of reusable connections. It is safe for
// concurrent use by multiple goroutines.
//
// All mutation of a key's idle set and in-use flags happens under that
// key's lock, so a connection is never checked out by two callers at
// once. The pool knows nothing of HTTP or authentication.
type Pool struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	mu      sync.Mutex
	buckets map[Key]*bucket
	closed  bool

	stop chan struct{}
	done chan struct{}
}

type bucket struct {
	mu       sync.Mutex
	idle     []*Conn // least recently used first
	open     int
	reserved int
	dead     bool
}

// New creates a pool with the given configuration.
func New(cfg Config) *Pool {
	p := &Pool{
		cfg:     cfg,
		log:     cfg.Logger,
		now:     time.Now,
		buckets: make(map[Key]*bucket),
	}
	if p.log == nil {
		p.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.SweepInterval > 0 {
		p.stop = make(chan struct{})
		p.done = make(chan struct{})
		go p.sweepLoop(cfg.SweepInterval)
	}
	return p
}

// Borrow returns an idle connection for key, marked in use, if one
// exists that is neither expired nor broken. Expired and broken idle
// connections encountered along the way are evicted.
//
// If no idle connection is available, Borrow returns a nil Conn and a
// nil error, and reserves a slot for key on the caller's behalf: the
// caller must either Offer a new connection for key or Cancel the
// reservation. If MaxPerKey is configured and the key has no free slot,
// Borrow returns an *ExhaustedError instead.
func (p *Pool) Borrow(key Key) (*Conn, error) {
	b, err := p.lock(key)
	if err != nil {
		return nil, err
	}
	evicted := p.expireLocked(b)
	var c *Conn
	for n := len(b.idle); n > 0; n = len(b.idle) {
		candidate := b.idle[n-1]
		b.idle[n-1] = nil
		b.idle = b.idle[:n-1]
		if candidate.Broken() {
			b.closeLocked(candidate)
			evicted = append(evicted, candidate)
			continue
		}
		candidate.inUse = true
		c = candidate
		break
	}
	if c == nil {
		if p.cfg.MaxPerKey > 0 && b.open+b.reserved >= p.cfg.MaxPerKey {
			b.mu.Unlock()
			p.closeAll(evicted, "expired")
			return nil, &ExhaustedError{Key: key, Limit: p.cfg.MaxPerKey}
		}
		b.reserved++
	}
	b.mu.Unlock()
	p.closeAll(evicted, "expired")
	return c, nil
}

// Offer registers a freshly opened connection for key with the pool,
// consuming the reservation made by a missed Borrow if there is one.
// The returned Conn is checked out to the caller, exactly as if it had
// been borrowed.
//
// If the pool is closed, or the offer would exceed MaxPerKey, nc is
// closed and an error is returned.
func (p *Pool) Offer(key Key, nc net.Conn) (*Conn, error) {
	b, err := p.lock(key)
	if err != nil {
		_ = nc.Close()
		return nil, err
	}
	if b.reserved > 0 {
		b.reserved--
	} else if p.cfg.MaxPerKey > 0 && b.open >= p.cfg.MaxPerKey {
		b.mu.Unlock()
		_ = nc.Close()
		return nil, &ExhaustedError{Key: key, Limit: p.cfg.MaxPerKey}
	}
	now := p.now()
	c := &Conn{
		id:       uuid.NewString(),
		key:      key,
		nc:       nc,
		created:  now,
		lastUsed: now,
		b:        b,
		inUse:    true,
	}
	b.open++
	b.mu.Unlock()
	return c, nil
}

// Cancel releases the reservation made by a Borrow that returned no
// connection, when the caller could not open one.
func (p *Pool) Cancel(key Key) {
	b, err := p.lock(key)
	if err != nil {
		return
	}
	if b.reserved > 0 {
		b.reserved--
	}
	b.mu.Unlock()
}

// Release returns a checked-out connection to the idle set and stamps
// its last-activity time. A connection that is broken, over the
// MaxIdlePerKey limit, or belongs to a closed pool is evicted instead.
//
// Releasing a connection that is not checked out has no effect.
func (p *Pool) Release(c *Conn) {
	b := c.b
	b.mu.Lock()
	if !c.inUse || c.closed {
		b.mu.Unlock()
		return
	}
	c.inUse = false
	var reason string
	switch {
	case c.Broken():
		reason = "broken"
	case b.dead:
		reason = "pool closed"
	case p.cfg.MaxIdlePerKey > 0 && len(b.idle) >= p.cfg.MaxIdlePerKey:
		reason = "idle limit"
	}
	if reason != "" {
		b.closeLocked(c)
		b.mu.Unlock()
		p.closeAll([]*Conn{c}, reason)
		return
	}
	c.lastUsed = p.now()
	b.idle = append(b.idle, c)
	b.mu.Unlock()
}

// Evict removes the connection from the pool, whether idle or checked
// out, and closes it. Evict is idempotent.
func (p *Pool) Evict(c *Conn) {
	b := c.b
	b.mu.Lock()
	if c.closed {
		b.mu.Unlock()
		return
	}
	b.closeLocked(c)
	b.mu.Unlock()
	p.closeAll([]*Conn{c}, "evicted")
}

// Sweep evicts every idle connection that has exceeded the idle
// timeout, and forgets keys that no longer have any connections.
func (p *Pool) Sweep() {
	var evicted []*Conn
	p.mu.Lock()
	for key, b := range p.buckets {
		b.mu.Lock()
		evicted = append(evicted, p.expireLocked(b)...)
		if b.open == 0 && b.reserved == 0 {
			b.dead = true
			delete(p.buckets, key)
		}
		b.mu.Unlock()
	}
	p.mu.Unlock()
	p.closeAll(evicted, "expired")
}

// CloseIdle evicts every idle connection. Connections currently checked
// out are unaffected.
func (p *Pool) CloseIdle() {
	var evicted []*Conn
	p.mu.Lock()
	for _, b := range p.buckets {
		b.mu.Lock()
		for _, c := range b.idle {
			c.closed = true
			b.open--
			evicted = append(evicted, c)
		}
		b.idle = nil
		b.mu.Unlock()
	}
	p.mu.Unlock()
	p.closeAll(evicted, "close idle")
}

// Close closes all idle connections and stops the background sweeper.
// Connections checked out at the time of Close are evicted when they
// are released. After Close, Borrow and Offer return ErrClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	var evicted []*Conn
	for key, b := range p.buckets {
		b.mu.Lock()
		for _, c := range b.idle {
			c.closed = true
			b.open--
			evicted = append(evicted, c)
		}
		b.idle = nil
		b.dead = true
		b.mu.Unlock()
		delete(p.buckets, key)
	}
	p.mu.Unlock()
	p.closeAll(evicted, "pool closed")
	if p.stop != nil {
		close(p.stop)
		<-p.done
	}
	return nil
}

// Stats returns a snapshot of the pool's occupancy.
func (p *Pool) Stats() Stats {
	var s Stats
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range p.buckets {
		b.mu.Lock()
		s.Keys++
		s.Idle += len(b.idle)
		s.InUse += b.open - len(b.idle)
		s.Reserved += b.reserved
		b.mu.Unlock()
	}
	return s
}

// lock returns the live bucket for key with its mutex held.
func (p *Pool) lock(key Key) (*bucket, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrClosed
		}
		b := p.buckets[key]
		if b == nil {
			b = &bucket{}
			p.buckets[key] = b
		}
		p.mu.Unlock()
		b.mu.Lock()
		if !b.dead {
			return b, nil
		}
		b.mu.Unlock()
	}
}

// expireLocked removes expired connections from the front of b's idle
// list and returns them. The caller must close them after unlocking.
func (p *Pool) expireLocked(b *bucket) []*Conn {
	timeout := p.cfg.IdleTimeout
	if timeout == 0 {
		timeout = DefaultIdleTimeout
	} else if timeout < 0 {
		return nil
	}
	now := p.now()
	i := 0
	for i < len(b.idle) && now.Sub(b.idle[i].lastUsed) > timeout {
		i++
	}
	if i == 0 {
		return nil
	}
	expired := make([]*Conn, i)
	copy(expired, b.idle[:i])
	for _, c := range expired {
		c.closed = true
		b.open--
	}
	b.idle = append(b.idle[:0], b.idle[i:]...)
	return expired
}

func (b *bucket) closeLocked(c *Conn) {
	c.closed = true
	c.inUse = false
	b.open--
	for i, d := range b.idle {
		if d == c {
			b.idle = append(b.idle[:i], b.idle[i+1:]...)
			break
		}
	}
}

func (p *Pool) closeAll(conns []*Conn, reason string) {
	for _, c := range conns {
		_ = c.nc.Close()
		p.log.Debug("evicted pooled connection", "conn", c.id, "key", c.key.String(), "reason", reason)
	}
}

func (p *Pool) sweepLoop(interval time.Duration) {
	defer close(p.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.Sweep()
		case <-p.stop:
			return
		}
	}
}
