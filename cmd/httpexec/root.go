// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

type globalOptions struct {
	cfgFile string
	verbose bool
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "httpexec",
		Short: "Execute HTTP requests through proxies with retries and authentication",
		Long: `httpexec executes HTTP/1.1 requests with connection pooling, proxy
tunnelling, proxy and server authentication (Basic, NTLM) and retries.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&g.cfgFile, "config", "c", "", "config file path (.toml, .yaml or .yml)")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log debug records to stderr")
	cmd.AddCommand(newRequestCmd(g), newMonitorCmd(g), newConfigCmd(g))
	return cmd
}

func (g *globalOptions) logger(w io.Writer) *slog.Logger {
	if !g.verbose {
		return nil
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
