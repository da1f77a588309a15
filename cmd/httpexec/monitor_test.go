// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogama/httpexec/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	path := filepath.Join(t.TempDir(), "httpexec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func TestMonitorCmd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	defer server.Close()

	t.Run("count", func(t *testing.T) {
		stdout, _, err := execute(t, "monitor", "--count", "2", "--interval", "1ms", server.URL)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSuffix(stdout, "\n"), "\n")
		require.Len(t, lines, 2)
		for _, line := range lines {
			assert.Contains(t, line, " 200 ")
			assert.Contains(t, line, "sends=1")
		}
	})
	t.Run("failure is reported", func(t *testing.T) {
		stdout, _, err := execute(t, "--config", writeConfig(t, "retry:\n  attempts: 1\n"),
			"monitor", "--count", "1", "--interval", "1ms", "http://127.0.0.1:1/")
		require.NoError(t, err)
		assert.Contains(t, stdout, " error ")
	})
	t.Run("metrics addr", func(t *testing.T) {
		_, stderr, err := execute(t, "monitor", "--count", "1", "--metrics-addr", "127.0.0.1:0", server.URL)
		require.NoError(t, err)
		assert.Contains(t, stderr, "serving metrics on http://127.0.0.1:")
	})
	t.Run("bad interval", func(t *testing.T) {
		_, _, err := execute(t, "monitor", "--interval", "0s", server.URL)
		assert.EqualError(t, err, "--interval must be positive")
	})
}

func TestMonitor_Metrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	defer server.Close()

	m, err := newMonitor(&config.Config{}, nil)
	require.NoError(t, err)
	defer m.close()
	var out bytes.Buffer
	require.NoError(t, m.execute(context.Background(), &out, "GET", server.URL))
	assert.Contains(t, out.String(), " 200 ")

	w := httptest.NewRecorder()
	m.handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `httpexec_events_total{event="Completed"} 1`)
	assert.Contains(t, body, `httpexec_events_total{event="Retry"} 0`)
	assert.Contains(t, body, "httpexec_execution_sends_count 1")
	assert.Contains(t, body, "httpexec_pool_keys")
}

func TestMonitor_Reload(t *testing.T) {
	cfg := &config.Config{Proxy: &config.ProxyConfig{
		Host:          "proxy.example",
		Port:          3128,
		NonProxyHosts: []string{"localhost"},
	}}
	m, err := newMonitor(cfg, nil)
	require.NoError(t, err)
	defer m.close()
	prev := m.current()

	t.Run("same proxy", func(t *testing.T) {
		next := &config.Config{Proxy: &config.ProxyConfig{
			Host:          "proxy.example",
			Port:          3128,
			NonProxyHosts: []string{"*.internal"},
		}}
		next.Retry.Attempts = 2
		m.reload(next)
		cl := m.current()
		assert.NotSame(t, prev, cl)
		assert.Same(t, prev.Pool, cl.Pool)
		assert.Same(t, prev.Handlers, cl.Handlers)
		assert.Same(t, prev.Proxy, cl.Proxy)
		assert.Equal(t, []string{"*.internal"}, cl.Proxy.NonProxyHosts())
		assert.True(t, cl.Proxy.Bypass("api.internal"))
	})
	t.Run("new proxy", func(t *testing.T) {
		before := m.current()
		m.reload(&config.Config{Proxy: &config.ProxyConfig{Host: "other.example", Port: 8080}})
		cl := m.current()
		assert.NotSame(t, before.Proxy, cl.Proxy)
		assert.Equal(t, "other.example", cl.Proxy.Host())
		assert.Same(t, prev.Pool, cl.Pool)
	})
	t.Run("invalid config kept out", func(t *testing.T) {
		before := m.current()
		m.reload(&config.Config{Proxy: &config.ProxyConfig{Host: "p", Port: 8080, Principal: "alice"}})
		assert.Same(t, before, m.current())
	})
}
