// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newMultiCmd(v *viper.Viper) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "multi HOST COMMAND...",
		Short: "Send several commands as one request",
		Long: "Send several commands as one \"+\" joined request. Commands the dialect\n" +
			"does not register are dropped, and commands the miner rejects are\n" +
			"removed before the request is sent again.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer s.close()

			client, err := s.client(args[0])
			if err != nil {
				return err
			}

			res, err := client.Multicommand(cmd.Context(), args[1:])
			if err != nil {
				return err
			}
			return printResponse(cmd, res, path)
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "print only the value at this gjson path")
	return cmd
}
