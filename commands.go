// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package minerrpc

import (
	"context"
	"fmt"
	"strings"
)

// Typed helpers for the common RPC surface. Each one fails with
// ErrUnsupportedCommand, without touching the network, when the client's
// dialect does not register the command.

// call sends a registered command
func (c *Client) call(ctx context.Context, command string, mods ...func(*Req)) (Response, error) {
	if !c.dialect.Supports(command) {
		return Response{}, fmt.Errorf("%s (%s): %w", command, c.dialect.Name, ErrUnsupportedCommand)
	}
	return c.SendCommand(ctx, command, mods...)
}

// callPrivileged sends a registered command that changes miner state
func (c *Client) callPrivileged(ctx context.Context, command string, mods ...func(*Req)) (Response, error) {
	if !c.dialect.Supports(command) {
		return Response{}, fmt.Errorf("%s (%s): %w", command, c.dialect.Name, ErrUnsupportedCommand)
	}
	return c.SendPrivilegedCommand(ctx, command, mods...)
}

// Version returns the firmware and API versions
func (c *Client) Version(ctx context.Context) (Response, error) {
	return c.call(ctx, "version")
}

// Config returns the miner's pool strategy, device counts and log settings
func (c *Client) Config(ctx context.Context) (Response, error) {
	return c.call(ctx, "config")
}

// Summary returns hashrate, share and uptime totals
//
// Example:
//
//	res, err := client.Summary(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.GetValue("SUMMARY.0.MHS av").Float())
func (c *Client) Summary(ctx context.Context) (Response, error) {
	return c.call(ctx, "summary")
}

// Pools returns the configured pools and their state
func (c *Client) Pools(ctx context.Context) (Response, error) {
	return c.call(ctx, "pools")
}

// Devs returns per-device (hashboard) statistics
func (c *Client) Devs(ctx context.Context) (Response, error) {
	return c.call(ctx, "devs")
}

// Edevs returns statistics for enabled devices. With old set, devices that
// stopped hashing recently are included.
func (c *Client) Edevs(ctx context.Context, old bool) (Response, error) {
	if old {
		return c.call(ctx, "edevs", Parameter("old"))
	}
	return c.call(ctx, "edevs")
}

// Stats returns the firmware's extended statistics
func (c *Client) Stats(ctx context.Context) (Response, error) {
	return c.call(ctx, "stats")
}

// Estats returns statistics for enabled devices, including zombies when old
// is set
func (c *Client) Estats(ctx context.Context, old bool) (Response, error) {
	if old {
		return c.call(ctx, "estats", Parameter("old"))
	}
	return c.call(ctx, "estats")
}

// DevDetails returns static device details
func (c *Client) DevDetails(ctx context.Context) (Response, error) {
	return c.call(ctx, "devdetails")
}

// Coin returns the coin being mined and network difficulty
func (c *Client) Coin(ctx context.Context) (Response, error) {
	return c.call(ctx, "coin")
}

// LCD returns the summary shown on the miner's display
func (c *Client) LCD(ctx context.Context) (Response, error) {
	return c.call(ctx, "lcd")
}

// Fans returns fan speeds
func (c *Client) Fans(ctx context.Context) (Response, error) {
	return c.call(ctx, "fans")
}

// Power returns power draw
func (c *Client) Power(ctx context.Context) (Response, error) {
	return c.call(ctx, "power")
}

// Temps returns board and chip temperatures
func (c *Client) Temps(ctx context.Context) (Response, error) {
	return c.call(ctx, "temps")
}

// Check reports whether the firmware knows a command and whether it needs
// privileged access
func (c *Client) Check(ctx context.Context, command string) (Response, error) {
	return c.call(ctx, "check", Parameter(command))
}

// SwitchPool makes pool n the highest priority pool
func (c *Client) SwitchPool(ctx context.Context, n int) (Response, error) {
	return c.callPrivileged(ctx, "switchpool", Parameter(n))
}

// EnablePool enables pool n
func (c *Client) EnablePool(ctx context.Context, n int) (Response, error) {
	return c.callPrivileged(ctx, "enablepool", Parameter(n))
}

// DisablePool disables pool n
func (c *Client) DisablePool(ctx context.Context, n int) (Response, error) {
	return c.callPrivileged(ctx, "disablepool", Parameter(n))
}

// RemovePool removes pool n
func (c *Client) RemovePool(ctx context.Context, n int) (Response, error) {
	return c.callPrivileged(ctx, "removepool", Parameter(n))
}

// AddPool adds a pool. The parameter is sent as "url,user,password", so none
// of the values may contain a comma.
func (c *Client) AddPool(ctx context.Context, url, user, password string) (Response, error) {
	for _, v := range []string{url, user, password} {
		if strings.Contains(v, ",") {
			return Response{}, fmt.Errorf("addpool: values must not contain a comma")
		}
	}
	return c.callPrivileged(ctx, "addpool", Parameter(url+","+user+","+password))
}

// Restart restarts the mining process. Firmware acknowledges with a bare
// "RESTART" status, which counts as success.
func (c *Client) Restart(ctx context.Context) (Response, error) {
	return c.callPrivileged(ctx, "restart")
}

// Quit stops the mining process
func (c *Client) Quit(ctx context.Context) (Response, error) {
	return c.callPrivileged(ctx, "quit")
}

// Status returns BTMiner's mining state
func (c *Client) Status(ctx context.Context) (Response, error) {
	return c.call(ctx, "status")
}

// GetVersion returns BTMiner's API and firmware versions
func (c *Client) GetVersion(ctx context.Context) (Response, error) {
	return c.call(ctx, "get_version")
}

// GetPSU returns BTMiner's power supply information
func (c *Client) GetPSU(ctx context.Context) (Response, error) {
	return c.call(ctx, "get_psu")
}

// GetMinerInfo returns BTMiner's network and identity information. Fields
// selects the "info" values, for example "ip,mac,hostname".
func (c *Client) GetMinerInfo(ctx context.Context, fields ...string) (Response, error) {
	if len(fields) == 0 {
		return c.call(ctx, "get_miner_info")
	}
	return c.call(ctx, "get_miner_info", Field("info", strings.Join(fields, ",")))
}

// GetErrorCode returns BTMiner's active error codes
func (c *Client) GetErrorCode(ctx context.Context) (Response, error) {
	return c.call(ctx, "get_error_code")
}
