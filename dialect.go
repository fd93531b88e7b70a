// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package minerrpc

import (
	"fmt"
	"sort"
	"strings"
)

// Dialect describes one firmware family's RPC surface
//
// Commands is the static registration of command names the family accepts.
// Multicommand only batches registered names, since an unknown name in a
// batch can make the firmware reject the whole request in a way the
// fallback-by-removal loop cannot attribute.
type Dialect struct {
	// Name identifies the dialect ("cgminer", "btminer", ...)
	Name string

	// Commands lists the command names the firmware family accepts
	Commands []string

	// TrailingRead requests one extra short read after the main read loop
	// to pick up a fragment the firmware sends in a second TCP segment
	TrailingRead bool

	// Unbatchable reports commands that cannot be joined into a "+"
	// multicommand and must be sent on their own. Nil means every
	// registered command batches.
	Unbatchable func(command string) bool
}

// Supports reports whether the dialect registers the command
func (d Dialect) Supports(command string) bool {
	for _, c := range d.Commands {
		if c == command {
			return true
		}
	}
	return false
}

// String returns the dialect name
func (d Dialect) String() string {
	return d.Name
}

// cgminerCommands is the stock CGMiner RPC surface
var cgminerCommands = []string{
	"addpool", "asc", "ascdisable", "ascenable", "ascidentify", "asccount",
	"ascset", "check", "coin", "config", "debug", "devdetails", "devs",
	"disablepool", "edevs", "enablepool", "estats", "failover-only",
	"hotplug", "lcd", "lockstats", "notify", "pga", "pgacount", "pgadisable",
	"pgaenable", "pgaidentify", "pgaset", "poolpriority", "poolquota", "pools",
	"privileged", "quit", "removepool", "restart", "save", "setconfig",
	"stats", "summary", "switchpool", "usbstats", "version", "zero",
}

// Predefined dialects
var (
	// CGMiner is stock CGMiner and the default dialect
	CGMiner = Dialect{
		Name:     "cgminer",
		Commands: cgminerCommands,
	}

	// BMMiner is Bitmain's CGMiner fork used on stock Antminer firmware
	BMMiner = Dialect{
		Name:     "bmminer",
		Commands: cgminerCommands,
	}

	// Antminer is newer stock Antminer firmware, which adds the "new_api"
	// commands on top of BMMiner
	Antminer = Dialect{
		Name:     "antminer",
		Commands: mergeCommands(cgminerCommands, "rate", "reload", "warning"),
	}

	// Avalon is the CGMiner variant on Canaan AvalonMiners. Its replies
	// sometimes arrive with a trailing fragment in a second segment.
	Avalon = Dialect{
		Name:         "avalon",
		Commands:     cgminerCommands,
		TrailingRead: true,
	}

	// BOSMiner is the Braiins OS RPC API
	BOSMiner = Dialect{
		Name: "bosminer",
		Commands: []string{
			"asc", "asccount", "check", "coin", "devdetails", "devs", "edevs",
			"estats", "fans", "lcd", "pause", "pools", "resume", "stats",
			"summary", "tempctrl", "temps", "tunerstatus", "version",
		},
	}

	// BTMiner is the MicroBT Whatsminer RPC API. "status" and the "get_*"
	// commands are rejected inside a "+" batch.
	BTMiner = Dialect{
		Name: "btminer",
		Commands: []string{
			"devdetails", "devs", "edevs", "get_error_code", "get_miner_info",
			"get_psu", "get_token", "get_version", "pools", "status", "summary",
			"version",
		},
		Unbatchable: func(command string) bool {
			return command == "status" || strings.HasPrefix(command, "get_")
		},
	}

	// LUXMiner is the LuxOS RPC API
	LUXMiner = Dialect{
		Name: "luxminer",
		Commands: []string{
			"addgroup", "addpool", "asc", "asccount", "check", "coin", "config",
			"curtail", "devdetails", "devs", "disablepool", "edevs",
			"enablepool", "estats", "fans", "fanset", "frequencyget",
			"frequencyset", "frequencystop", "groupquota", "groups",
			"healthchipget", "healthchipset", "healthctrl", "healthctrlset",
			"kill", "lcd", "ledset", "limits", "logoff", "logon", "pools",
			"power", "profiles", "profileset", "reboot", "rebootdevice",
			"removegroup", "removepool", "resetminer", "session", "stats",
			"summary", "switchpool", "tempctrl", "tempctrlset", "temps",
			"version", "voltageget", "voltageset", "wakeup",
		},
	}

	// Unknown is the intersection of the common APIs, used when the
	// firmware could not be identified
	Unknown = Dialect{
		Name: "unknown",
		Commands: []string{
			"asc", "asccount", "check", "coin", "config", "devdetails", "devs",
			"edevs", "estats", "lcd", "pools", "stats", "summary", "version",
		},
	}
)

// Dialects contains the predefined dialects keyed by name
var Dialects = map[string]Dialect{
	CGMiner.Name:  CGMiner,
	BMMiner.Name:  BMMiner,
	Antminer.Name: Antminer,
	Avalon.Name:   Avalon,
	BOSMiner.Name: BOSMiner,
	BTMiner.Name:  BTMiner,
	LUXMiner.Name: LUXMiner,
	Unknown.Name:  Unknown,
}

// LookupDialect returns the predefined dialect with the given name
//
// Returns an error if the name is not one of the predefined dialects.
//
// Example:
//
//	d, err := minerrpc.LookupDialect("btminer")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, _ := minerrpc.NewClient("10.0.0.50", minerrpc.WithDialect(d))
func LookupDialect(name string) (Dialect, error) {
	if d, ok := Dialects[strings.ToLower(strings.TrimSpace(name))]; ok {
		return d, nil
	}
	return Dialect{}, fmt.Errorf("invalid dialect: %s (valid values: %s)", name, strings.Join(DialectNames(), ", "))
}

// DialectNames returns the sorted names of the predefined dialects
func DialectNames() []string {
	names := make([]string, 0, len(Dialects))
	for name := range Dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// mergeCommands returns base plus extra as a new sorted slice
func mergeCommands(base []string, extra ...string) []string {
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	out = append(out, extra...)
	sort.Strings(out)
	return out
}
