// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/netascode/go-minerrpc"
)

func newSendCmd(v *viper.Viper) *cobra.Command {
	var (
		ignoreErrors bool
		fields       []string
		path         string
	)

	cmd := &cobra.Command{
		Use:   "send HOST COMMAND [PARAMETER]",
		Short: "Send one command and print the reply",
		Args:  cobra.RangeArgs(2, 3),
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

			mods := []func(*minerrpc.Req){}
			if len(args) == 3 {
				mods = append(mods, minerrpc.Parameter(parseParameter(args[2])))
			}
			for _, f := range fields {
				key, value, ok := strings.Cut(f, "=")
				if !ok {
					return fmt.Errorf("invalid field %q, want key=value", f)
				}
				mods = append(mods, minerrpc.Field(key, parseParameter(value)))
			}
			if ignoreErrors {
				mods = append(mods, minerrpc.IgnoreErrors())
			}

			res, err := client.SendCommand(cmd.Context(), args[1], mods...)
			if err != nil {
				return err
			}
			return printResponse(cmd, res, path)
		},
	}

	cmd.Flags().BoolVar(&ignoreErrors, "ignore-errors", false, "print the reply even when the miner reports an error")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "extra envelope field as key=value (repeatable)")
	cmd.Flags().StringVar(&path, "path", "", "print only the value at this gjson path")
	return cmd
}

// parseParameter turns a command line value into an int, bool or string
func parseParameter(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

// printResponse writes the indented reply, or the value at path
func printResponse(cmd *cobra.Command, res minerrpc.Response, path string) error {
	out := cmd.OutOrStdout()
	if path != "" {
		v := res.GetValue(path)
		if !v.Exists() {
			return fmt.Errorf("path %q not found in reply", path)
		}
		_, err := fmt.Fprintln(out, v.String())
		return err
	}
	_, err := fmt.Fprintln(out, res.Indent())
	return err
}
