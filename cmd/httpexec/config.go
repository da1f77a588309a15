// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/gogama/httpexec/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect client configuration files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate [FILE]",
		Short: "Check that a configuration file loads and builds a client",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := g.cfgFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no configuration file given")
			}
			c, err := config.Load(path)
			if err != nil {
				return err
			}
			cl, err := c.Build(nil)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			_ = cl.Pool.Close()
			if cl.Proxy != nil {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (proxy %s, scheme %s)\n",
					path, cl.Proxy.ID(), cl.Proxy.Realm().Scheme)
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (direct)\n", path)
			return nil
		},
	})
	return cmd
}
