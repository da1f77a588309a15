// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package proxy describes the HTTP proxy server a client routes requests
// through: its address, the credentials and authentication scheme used
// to authenticate to it, and the hosts that bypass it.
package proxy
