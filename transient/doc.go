// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package transient classifies errors raised while resolving, dialing,
// writing to or reading from a connection. The request executor uses the
// classification to tell transport failures (retryable on a fresh
// connection) from protocol failures, and to flag timeouts.
//
// Use Categorize to obtain the transience Category of an error.
package transient
