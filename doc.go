// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package httpexec provides an HTTP/1.1 request executor with connection
pooling, forward proxy support, proxy and server authentication (Basic,
NTLM, Kerberos and SPNEGO), per-step timeouts and retries, within a
simple and familiar interface.

Create a Client to begin making requests.

	client := &httpexec.Client{}
	e, err := client.Get("https://www.example.com")
	...
	e, err := client.Post("https://www.example.com/upload",
		"application/json", &buf)

To route requests through an authenticating proxy, configure a
proxy.Server:

	px, err := proxy.New("proxy.corp", 3128,
		proxy.WithProtocol(proxy.NTLM),
		proxy.WithScheme(auth.NTLM),
		proxy.WithCredentials(`CORP\alice`, "secret"),
		proxy.WithNonProxyHosts("*.corp", "localhost"))
	...
	client := &httpexec.Client{Proxy: px}

To answer 401 challenges from the destination server, give the plan a
realm:

	p, err := request.NewPlan("GET", "https://intranet.corp/report", nil)
	...
	p.Realm = &auth.Realm{Scheme: auth.NTLM, Principal: `CORP\alice`, Password: "secret"}
	e, err := client.Do(p)

For control over the client's retry decisions and timing, create a
custom retry policy using components from package retry:

	waiter := retry.NewExpWaiter(250*time.Millisecond, 5*time.Second, time.Now())
	client := &httpexec.Client{
		RetryPolicy: retry.NewPolicy(retry.Attempts(3), waiter),
	}

For control over the timeout of each blocking step, set a custom
timeout policy using package timeout:

	client := &httpexec.Client{
		TimeoutPolicy: timeout.Fixed(10 * time.Second),
	}

To observe the fine-grained progress of each execution, install a
handler for the events of interest:

	handlers := &httpexec.HandlerGroup{}
	handlers.PushBack(httpexec.Retry, httpexec.HandlerFunc(
		func(_ httpexec.Event, e *request.Execution) {
			log.Printf("retrying %s after %v", e.Plan.URL, e.Err)
		}))
	client := &httpexec.Client{Handlers: handlers}

Package httpexec provides basic interfaces for each method of the client
(Doer, Getter, Header, Poster, FormPoster, and IdleCloser); a combined
interface that composes all the basic methods (Executor); and utility
functions for working with a Doer (Inflate, Get, Head, Post, and
PostForm).
*/
package httpexec
