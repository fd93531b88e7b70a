// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/netascode/go-minerrpc"
)

func newCommandsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the commands registered for the dialect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := readConfig(v)
			if err != nil {
				return err
			}
			dialect, err := minerrpc.LookupDialect(cfg.Dialect)
			if err != nil {
				return err
			}

			// the host is never contacted
			client, err := minerrpc.NewClient("localhost", minerrpc.WithDialect(dialect))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, name := range client.Commands() {
				suffix := ""
				if dialect.Unbatchable != nil && dialect.Unbatchable(name) {
					suffix = " (unbatchable)"
				}
				if _, err := fmt.Fprintln(out, name+suffix); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
