// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Command minerrpc sends RPC commands to ASIC miners from the shell.
//
// Usage:
//
//	minerrpc send 10.0.0.50 summary
//	minerrpc send 10.0.0.50 switchpool 1 --dialect bmminer
//	minerrpc multi 10.0.0.50 summary pools devs
//	minerrpc commands --dialect btminer
//	minerrpc scan 10.0.0.50 10.0.0.51 --command summary --path "SUMMARY.0.MHS av"
//
// Every persistent flag can also be set through a MINERRPC_* environment
// variable (MINERRPC_READ_TIMEOUT=5s) or a YAML file passed with --config.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/netascode/go-minerrpc"
)

// config is the merged flag, environment and file configuration
type config struct {
	Port           int           `mapstructure:"port"`
	Dialect        string        `mapstructure:"dialect"`
	ConnectTimeout time.Duration `mapstructure:"connect-timeout"`
	ReadTimeout    time.Duration `mapstructure:"read-timeout"`
	LogLevel       string        `mapstructure:"log-level"`
	PrettyLogs     bool          `mapstructure:"pretty-logs"`
	OTLPEndpoint   string        `mapstructure:"otlp-endpoint"`
	MetricsAddr    string        `mapstructure:"metrics-addr"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree with its own viper instance
func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "minerrpc",
		Short:         "Query ASIC miners over the CGMiner-style RPC API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(v, cmd, configFile)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "YAML config file")
	flags.Int("port", minerrpc.DefaultPort, "RPC port")
	flags.String("dialect", minerrpc.CGMiner.Name, "firmware dialect ("+strings.Join(minerrpc.DialectNames(), ", ")+")")
	flags.Duration("connect-timeout", minerrpc.DefaultConnectTimeout, "TCP connect timeout")
	flags.Duration("read-timeout", minerrpc.DefaultReadTimeout, "per-read reply timeout")
	flags.String("log-level", "none", "log level (debug, info, warn, error, none)")
	flags.Bool("pretty-logs", false, "pretty print JSON in debug logs")
	flags.String("otlp-endpoint", "", "OTLP/HTTP traces endpoint URL, empty disables tracing")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address, empty disables")

	rootCmd.AddCommand(
		newSendCmd(v),
		newMultiCmd(v),
		newCommandsCmd(v),
		newScanCmd(v),
	)
	return rootCmd
}

// loadConfig binds flags, MINERRPC_* environment variables and the optional
// config file into v
func loadConfig(v *viper.Viper, cmd *cobra.Command, configFile string) error {
	v.SetEnvPrefix("MINERRPC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

// readConfig decodes the merged configuration
func readConfig(v *viper.Viper) (config, error) {
	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// session holds what every subcommand needs to build clients
type session struct {
	cfg     config
	opts    []func(*minerrpc.Client)
	dialect minerrpc.Dialect
	close   func()
}

// newSession sets up logging, tracing and metrics from the configuration
func newSession(ctx context.Context, v *viper.Viper) (*session, error) {
	cfg, err := readConfig(v)
	if err != nil {
		return nil, err
	}

	dialect, err := minerrpc.LookupDialect(cfg.Dialect)
	if err != nil {
		return nil, err
	}

	level, ok := minerrpc.ParseLogLevel(cfg.LogLevel)
	if !ok {
		return nil, fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	logger := minerrpc.NewDefaultLogger(level)

	tp, shutdownTracing, err := setupTracing(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return nil, err
	}

	opts := []func(*minerrpc.Client){
		minerrpc.Port(cfg.Port),
		minerrpc.WithDialect(dialect),
		minerrpc.ConnectTimeout(cfg.ConnectTimeout),
		minerrpc.ReadTimeout(cfg.ReadTimeout),
		minerrpc.WithLogger(logger),
		minerrpc.WithPrettyPrintLogs(cfg.PrettyLogs),
		minerrpc.WithTracerProvider(tp),
	}

	stopMetrics := func() {}
	if cfg.MetricsAddr != "" {
		reg, stop, err := serveMetrics(ctx, cfg.MetricsAddr, logger)
		if err != nil {
			_ = shutdownTracing(ctx) //nolint:errcheck // already failing
			return nil, err
		}
		opts = append(opts, minerrpc.WithMetrics(reg))
		stopMetrics = stop
	}

	return &session{
		cfg:     cfg,
		opts:    opts,
		dialect: dialect,
		close: func() {
			stopMetrics()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				logger.Warn(shutdownCtx, "failed to flush traces", "error", err.Error())
			}
		},
	}, nil
}

// client creates a client for host with the session's options
func (s *session) client(host string) (*minerrpc.Client, error) {
	return minerrpc.NewClient(host, s.opts...)
}
