// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package proxy

import (
	"sync"
	"testing"

	"github.com/gogama/httpexec/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s, err := New("proxy.example.com", 3128)
		require.NoError(t, err)
		assert.Equal(t, HTTP, s.Protocol())
		assert.Equal(t, "proxy.example.com", s.Host())
		assert.Equal(t, 3128, s.Port())
		assert.Equal(t, 3128, s.SecuredPort())
		assert.Equal(t, auth.None, s.Scheme())
		assert.Equal(t, "UTF-8", s.Charset())
		assert.False(t, s.ForceHTTP10())
		assert.Empty(t, s.NonProxyHosts())
		assert.Equal(t, "proxy.example.com:3128", s.Addr(true))
	})
	t.Run("basic by default with principal", func(t *testing.T) {
		s, err := New("proxy", 3128, WithCredentials("user", "pass"), WithSecuredPort(3129))
		require.NoError(t, err)
		assert.Equal(t, auth.Basic, s.Scheme())
		assert.Equal(t, "proxy:3128", s.Addr(false))
		assert.Equal(t, "proxy:3129", s.Addr(true))
		assert.Equal(t, "user@HTTP://proxy:3128,3129", s.ID())
	})
	t.Run("basic without password", func(t *testing.T) {
		s, err := New("proxy", 3128, WithCredentials("user", ""))
		assert.ErrorIs(t, err, ErrMissingPassword)
		assert.Nil(t, s)
	})
	t.Run("scheme without principal", func(t *testing.T) {
		s, err := New("proxy", 3128, WithScheme(auth.NTLM))
		assert.ErrorIs(t, err, ErrMissingPrincipal)
		assert.Nil(t, s)
	})
	t.Run("invalid", func(t *testing.T) {
		_, err := New("", 3128)
		assert.ErrorIs(t, err, ErrMissingHost)
		_, err = New("proxy", 0)
		assert.Error(t, err)
		_, err = New("proxy", 80, WithSecuredPort(70000))
		assert.Error(t, err)
		_, err = New("proxy", 80, WithProtocol(Protocol(9)))
		assert.Error(t, err)
		_, err = New("proxy", 80, WithCredentials("u", "p"), WithCharset("bogus"))
		assert.Error(t, err)
	})
	t.Run("ntlm", func(t *testing.T) {
		s, err := New("proxy", 8080,
			WithProtocol(NTLM),
			WithCredentials(`CORP\alice`, "secret"),
			WithScheme(auth.NTLM),
			WithNTLMDomain("CORP"),
			WithNTLMHost("WS01"),
			WithMaxRounds(4))
		require.NoError(t, err)
		r := s.Realm()
		assert.Equal(t, auth.Realm{
			Scheme:     auth.NTLM,
			Principal:  `CORP\alice`,
			Password:   "secret",
			NTLMDomain: "CORP",
			NTLMHost:   "WS01",
			Host:       "proxy",
			MaxRounds:  4,
		}, r)
	})
	t.Run("spnego requires provider", func(t *testing.T) {
		_, err := New("proxy", 8080, WithCredentials("u", "p"), WithScheme(auth.SPNEGO))
		assert.ErrorIs(t, err, auth.ErrMissingProvider)
		p := auth.TokenProviderFunc(nil)
		_, err = New("proxy", 8080, WithCredentials("u", "p"), WithScheme(auth.SPNEGO), WithTokenProvider(p))
		assert.NoError(t, err)
	})
}

func TestServer_SetScheme(t *testing.T) {
	s, err := New("proxy", 3128)
	require.NoError(t, err)
	assert.ErrorIs(t, s.SetScheme(auth.Basic), ErrMissingPrincipal)
	assert.Equal(t, auth.None, s.Scheme())

	s, err = New("proxy", 3128, WithCredentials("u", "p"))
	require.NoError(t, err)
	require.NoError(t, s.SetScheme(auth.NTLM))
	assert.Equal(t, auth.NTLM, s.Scheme())
	assert.Equal(t, auth.NTLM, s.Realm().Scheme)
	require.NoError(t, s.SetScheme(auth.None))
	assert.Equal(t, auth.None, s.Scheme())
}

func TestServer_Setters(t *testing.T) {
	s, err := New("proxy", 3128)
	require.NoError(t, err)
	s.SetNTLMDomain("D")
	s.SetNTLMHost("H")
	s.SetForceHTTP10(true)
	assert.Equal(t, "D", s.NTLMDomain())
	assert.Equal(t, "H", s.NTLMHost())
	assert.True(t, s.ForceHTTP10())
	assert.Equal(t, "D", s.Realm().NTLMDomain)
}

func TestServer_NonProxyHosts(t *testing.T) {
	s, err := New("proxy", 3128, WithNonProxyHosts("localhost"))
	require.NoError(t, err)
	s.AddNonProxyHost("*.internal.example.com")
	s.AddNonProxyHost("10.*")
	s.AddNonProxyHost("localhost")
	assert.Equal(t, []string{"localhost", "*.internal.example.com", "10.*", "localhost"}, s.NonProxyHosts())

	hosts := s.NonProxyHosts()
	hosts[0] = "mutated"
	assert.Equal(t, "localhost", s.NonProxyHosts()[0])

	s.RemoveNonProxyHost("localhost")
	assert.Equal(t, []string{"*.internal.example.com", "10.*", "localhost"}, s.NonProxyHosts())
	s.RemoveNonProxyHost("absent")
	assert.Len(t, s.NonProxyHosts(), 3)

	s.SetNonProxyHosts(nil)
	assert.Empty(t, s.NonProxyHosts())
}

func TestServer_Bypass(t *testing.T) {
	s, err := New("proxy", 3128, WithNonProxyHosts(
		"localhost",
		"*.Internal.Example.com",
		"10.*",
		"*.bücher.example",
	))
	require.NoError(t, err)
	testCases := []struct {
		host   string
		bypass bool
	}{
		{"localhost", true},
		{"LOCALHOST.", true},
		{"localhost.localdomain", false},
		{"api.internal.example.com", true},
		{"API.INTERNAL.EXAMPLE.COM", true},
		{"internal.example.com", false},
		{"10.1.2.3", true},
		{"110.1.2.3", false},
		{"shop.xn--bcher-kva.example", true},
		{"shop.BÜCHER.example", true},
		{"example.com", false},
	}
	for _, testCase := range testCases {
		t.Run(testCase.host, func(t *testing.T) {
			assert.Equal(t, testCase.bypass, s.Bypass(testCase.host))
		})
	}
	t.Run("empty list", func(t *testing.T) {
		s, err := New("proxy", 3128)
		require.NoError(t, err)
		assert.False(t, s.Bypass("localhost"))
	})
	t.Run("lone wildcard", func(t *testing.T) {
		s, err := New("proxy", 3128, WithNonProxyHosts("*"))
		require.NoError(t, err)
		assert.False(t, s.Bypass("example.com"))
		assert.False(t, s.Bypass("localhost"))
		assert.False(t, s.Bypass("10.1.2.3"))
	})
}

func TestServer_Concurrent(t *testing.T) {
	s, err := New("proxy", 3128)
	require.NoError(t, err)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.AddNonProxyHost("a.example")
			s.RemoveNonProxyHost("a.example")
			s.SetNTLMDomain("D")
		}()
		go func() {
			defer wg.Done()
			_ = s.Bypass("a.example")
			_ = s.Realm()
		}()
	}
	wg.Wait()
	assert.Empty(t, s.NonProxyHosts())
}

func TestParseProtocol(t *testing.T) {
	p, err := ParseProtocol("ntlm")
	assert.NoError(t, err)
	assert.Equal(t, NTLM, p)
	p, err = ParseProtocol("")
	assert.NoError(t, err)
	assert.Equal(t, HTTP, p)
	_, err = ParseProtocol("socks5")
	assert.Error(t, err)
}
