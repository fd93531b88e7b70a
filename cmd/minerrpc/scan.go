// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/netascode/go-minerrpc"
)

// scanResult is the outcome of one miner in a scan
type scanResult struct {
	Host     string
	Status   string
	Value    string
	Attempts int
	Elapsed  time.Duration
}

// scanOptions configures a scan run
type scanOptions struct {
	command     string
	path        string
	concurrency int
	retries     int
	interval    time.Duration
}

func newScanCmd(v *viper.Viper) *cobra.Command {
	opts := scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan HOST...",
		Short: "Send one command to many miners concurrently",
		Long: "Send one command to many miners with bounded concurrency. Timeouts are\n" +
			"retried with exponential backoff; empty replies and miner errors are not.\n" +
			"With --interval the scan repeats until interrupted, which together with\n" +
			"--metrics-addr turns the CLI into a small exporter.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.concurrency < 1 {
				return fmt.Errorf("concurrency must be at least 1, got: %d", opts.concurrency)
			}
			if opts.retries < 0 {
				return fmt.Errorf("retries must not be negative, got: %d", opts.retries)
			}

			s, err := newSession(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer s.close()

			clients := make([]*minerrpc.Client, len(args))
			for i, host := range args {
				if clients[i], err = s.client(host); err != nil {
					return err
				}
			}

			for {
				results, err := scan(cmd.Context(), clients, opts, defaultBackoff)
				if err != nil {
					return err
				}
				if err := writeResults(cmd.OutOrStdout(), results); err != nil {
					return err
				}
				if opts.interval <= 0 {
					return nil
				}
				select {
				case <-cmd.Context().Done():
					return nil
				case <-time.After(opts.interval):
				}
			}
		},
	}

	cmd.Flags().StringVar(&opts.command, "command", "summary", "command to send")
	cmd.Flags().StringVar(&opts.path, "path", "", "gjson path of the value to print")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 32, "miners queried at once")
	cmd.Flags().IntVar(&opts.retries, "retries", 1, "retries after a timeout")
	cmd.Flags().DurationVar(&opts.interval, "interval", 0, "repeat the scan at this interval, 0 runs once")
	return cmd
}

// scan queries every client once, in parallel up to opts.concurrency. Per
// miner failures end up in the results; only cancellation aborts the scan.
func scan(ctx context.Context, clients []*minerrpc.Client, opts scanOptions, b backoff) ([]scanResult, error) {
	results := make([]scanResult, len(clients))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency)

	for i, client := range clients {
		i, client := i, client
		g.Go(func() error {
			results[i] = scanOne(gctx, client, opts, b)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// scanOne sends the command to one miner, retrying timeouts
func scanOne(ctx context.Context, client *minerrpc.Client, opts scanOptions, b backoff) scanResult {
	r := scanResult{Host: client.Host}
	start := time.Now()

	var (
		res minerrpc.Response
		err error
	)
	for attempt := 0; attempt <= opts.retries; attempt++ {
		r.Attempts = attempt + 1
		res, err = client.SendCommand(ctx, opts.command)
		if err == nil || !minerrpc.IsTimeout(err) || ctx.Err() != nil || attempt == opts.retries {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(b.delay(attempt)):
		}
	}

	r.Status = scanStatus(err)
	if err == nil && opts.path != "" {
		r.Value = res.GetValue(opts.path).String()
	}
	r.Elapsed = time.Since(start)
	return r
}

// scanStatus classifies a command error for the results table
func scanStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case minerrpc.IsTimeout(err):
		return "offline"
	case errors.Is(err, minerrpc.ErrEmptyResponse), errors.Is(err, minerrpc.ErrConnectionRefused):
		return "no-data"
	case minerrpc.IsRemote(err):
		return "error"
	case minerrpc.IsDecode(err):
		return "bad-reply"
	default:
		return "failed"
	}
}

// writeResults prints the results as an aligned table
func writeResults(w io.Writer, results []scanResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HOST\tSTATUS\tVALUE\tATTEMPTS\tELAPSED") //nolint:errcheck // flushed below
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%v\n", //nolint:errcheck // flushed below
			r.Host, r.Status, r.Value, r.Attempts, r.Elapsed.Round(time.Millisecond))
	}
	return tw.Flush()
}
