// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package pool provides a keyed registry of reusable transport connections.

Connections are pooled under a Key made of the destination host and port,
the proxy (if any) and whether the connection carries TLS. A caller asks
the pool for a connection with Borrow. On a hit the caller gets an idle
connection checked out exclusively to it; on a miss the pool reserves a
slot and the caller opens a connection itself and hands it over with
Offer:

	c, err := p.Borrow(key)
	if err != nil {
		return err
	}
	if c == nil {
		nc, err := dial(ctx, key.Addr())
		if err != nil {
			p.Cancel(key)
			return err
		}
		if c, err = p.Offer(key, nc); err != nil {
			return err
		}
	}
	...
	p.Release(c) // or p.Evict(c) if the exchange failed

Idle connections expire after Config.IdleTimeout. Borrow never returns an
expired connection, and a background sweeper can optionally close them
proactively.
*/
package pool
