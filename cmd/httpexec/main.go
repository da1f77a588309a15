// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Command httpexec executes HTTP requests with the httpexec client,
// optionally through an authenticating proxy, and prints the response.
//
// Usage:
//
//	# Simple GET
//	httpexec request https://example.com/
//
//	# POST through an NTLM proxy, tracing every execution event
//	httpexec request -X POST -d '{"a":1}' -H 'Content-Type: application/json' \
//	    --proxy proxy.corp.example:8080 --proxy-scheme ntlm \
//	    --proxy-user 'CORP\alice:secret' --trace https://api.example.com/
//
//	# Use a configuration file
//	httpexec request --config client.toml https://example.com/
//
//	# Check a configuration file
//	httpexec config validate client.yaml
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
