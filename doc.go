// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package minerrpc provides a simple, fluent API for querying ASIC miners
// over the CGMiner-style JSON RPC protocol spoken by most mining firmware
// (CGMiner, BMMiner, BOSMiner, BTMiner, Avalon, LuxOS).
//
// The protocol is one JSON request per TCP connection on port 4028; the
// miner writes its reply and closes the connection. Embedded firmware emits
// JSON with a number of known defects, which the client repairs before
// parsing, and reports success or failure in several incompatible status
// envelopes, which the client normalizes.
//
// # Quick Start
//
// Create a client and send a command:
//
//	client, err := minerrpc.NewClient(
//	    "10.0.0.50",
//	    minerrpc.WithDialect(minerrpc.BMMiner),
//	    minerrpc.ReadTimeout(10*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx := context.Background()
//	res, err := client.Summary(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Parse response using gjson
//	ghs := res.GetValue("SUMMARY.0.GHS 5s").Float()
//	fmt.Println("Hashrate:", ghs)
//
// # Multicommand
//
// Several read commands can be sent as one request. Commands the dialect
// does not register are dropped; a command the firmware rejects is removed
// and the rest are sent again:
//
//	res, err := client.Multicommand(ctx, []string{"summary", "pools", "devs"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pools := res.Command("pools").Get("POOLS").Array()
//
// # Error Handling
//
// Errors are typed so callers can decide between retrying and marking a
// miner offline:
//
//	res, err := client.SendCommand(ctx, "summary")
//	switch {
//	case minerrpc.IsTimeout(err):
//	    // miner did not answer in time
//	case errors.Is(err, minerrpc.ErrEmptyResponse):
//	    // miner answered with nothing, or the connection was refused
//	case minerrpc.IsRemote(err):
//	    // firmware reported an error in its status envelope
//	case minerrpc.IsDecode(err):
//	    // reply could not be parsed even after repair
//	}
//
// The client never retries; retry policy belongs to the caller.
//
// # Thread Safety
//
// A Client holds configuration only and every command opens its own
// connection, so all methods are safe for concurrent use. Calls to the same
// miner are not serialized; bound concurrency per miner in the caller.
//
// # Observability
//
// WithLogger enables structured logging with credential redaction,
// WithMetrics registers Prometheus collectors and WithTracerProvider emits
// one OpenTelemetry span per command.
package minerrpc
