// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gogama/httpexec"
	"github.com/gogama/httpexec/config"
	"github.com/gogama/httpexec/metrics"
	"github.com/gogama/httpexec/request"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

type monitorOptions struct {
	method      string
	interval    time.Duration
	count       int
	metricsAddr string
}

func newMonitorCmd(g *globalOptions) *cobra.Command {
	o := &monitorOptions{}
	cmd := &cobra.Command{
		Use:   "monitor URL",
		Short: "Repeatedly execute a request and export client metrics",
		Long: `monitor executes a request at a fixed interval, printing one line per
execution. With --metrics-addr, Prometheus metrics for the client are
served on /metrics. With --config, the file is watched and the client is
rebuilt whenever it changes; the connection pool is kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return o.run(ctx, cmd, g, args[0])
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.method, "method", "X", "GET", "request method")
	f.DurationVar(&o.interval, "interval", 10*time.Second, "time between executions")
	f.IntVar(&o.count, "count", 0, "stop after this many executions (0 runs until interrupted)")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func (o *monitorOptions) run(ctx context.Context, cmd *cobra.Command, g *globalOptions, rawURL string) error {
	if o.interval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}
	log := g.logger(cmd.ErrOrStderr())
	cfg := &config.Config{}
	if g.cfgFile != "" {
		var err error
		if cfg, err = config.Load(g.cfgFile); err != nil {
			return err
		}
	}
	m, err := newMonitor(cfg, log)
	if err != nil {
		return err
	}
	defer m.close()

	if o.metricsAddr != "" {
		ln, err := net.Listen("tcp", o.metricsAddr)
		if err != nil {
			return err
		}
		srv := &http.Server{Handler: m.handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() { _ = srv.Serve(ln) }()
		defer func() { _ = srv.Close() }()
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "serving metrics on http://%s/metrics\n", ln.Addr())
	}
	if g.cfgFile != "" {
		wctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := config.Watch(wctx, g.cfgFile, m.log, m.reload); err != nil {
				m.log.Error("config watch stopped", "path", g.cfgFile, "error", err)
			}
		}()
	}

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for n := 0; o.count == 0 || n < o.count; n++ {
		if n > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
		if err := m.execute(ctx, cmd.OutOrStdout(), o.method, rawURL); err != nil {
			return err
		}
	}
	return nil
}

// A monitor executes requests with a client that can be swapped when
// the configuration is reloaded. The pool, handlers and metrics outlive
// every swap.
type monitor struct {
	log *slog.Logger
	reg *prometheus.Registry

	mu     sync.Mutex
	client *httpexec.Client
}

func newMonitor(cfg *config.Config, logger *slog.Logger) (*monitor, error) {
	cl, err := cfg.Build(logger)
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	col, err := metrics.New(reg, cl.Pool, metrics.Options{})
	if err != nil {
		_ = cl.Pool.Close()
		return nil, err
	}
	cl.Handlers = &httpexec.HandlerGroup{}
	cl.Handlers.Subscribe(col)
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &monitor{log: logger, reg: reg, client: cl}, nil
}

func (m *monitor) current() *httpexec.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client
}

// reload rebuilds the client from cfg. An unchanged proxy keeps its
// server instance and has its non-proxy hosts updated in place.
func (m *monitor) reload(cfg *config.Config) {
	next, err := cfg.Build(m.log)
	if err != nil {
		m.log.Error("reloaded config rejected", "error", err)
		return
	}
	_ = next.Pool.Close()

	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.client
	next.Pool = prev.Pool
	next.Handlers = prev.Handlers
	if prev.Proxy != nil && next.Proxy != nil && prev.Proxy.ID() == next.Proxy.ID() {
		config.ApplyBypass(prev.Proxy, cfg)
		next.Proxy = prev.Proxy
	}
	m.client = next
	m.log.Info("client rebuilt from reloaded config")
}

func (m *monitor) execute(ctx context.Context, out io.Writer, method, rawURL string) error {
	p, err := request.NewPlanWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return err
	}
	e, err := m.current().Do(p)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		_, _ = fmt.Fprintf(out, "%s error %v\n", e.Start.Format(time.RFC3339), err)
		return nil
	}
	_, _ = fmt.Fprintf(out, "%s %d %s sends=%d\n",
		e.Start.Format(time.RFC3339), e.StatusCode(), e.Duration().Round(time.Millisecond), e.Sends)
	return nil
}

func (m *monitor) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))
	return mux
}

func (m *monitor) close() {
	_ = m.current().Pool.Close()
}
