// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package minerrpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// SendCommand sends one command and returns the parsed reply
//
// Every call is exactly one TCP round trip; there are no retries at this
// layer. The reply is repaired, parsed and validated:
//   - a failed status envelope returns a *RemoteCommandError, unless
//     IgnoreErrors() is set, in which case the parsed reply is returned
//   - an empty reply (including a connection that could not be opened)
//     returns a *RemoteCommandError wrapping ErrEmptyResponse
//   - a reply that cannot be parsed returns a *ProtocolDecodeError
//   - a timeout returns a *TimeoutError; cancellation returns ctx.Err()
//
// Example:
//
//	res, err := client.SendCommand(ctx, "summary")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.GetValue("SUMMARY.0.GHS 5s").Float())
//
//	// command with a parameter and an extra envelope field
//	res, err = client.SendCommand(ctx, "ascset",
//	    minerrpc.Parameter("0,freq,650"),
//	    minerrpc.Field("new_api", true))
func (c *Client) SendCommand(ctx context.Context, command string, mods ...func(*Req)) (Response, error) {
	req := &Req{
		Command:      command,
		AllowWarning: true,
	}
	for _, mod := range mods {
		mod(req)
	}
	return c.dispatch(ctx, req)
}

// SendPrivilegedCommand sends a command that changes miner state
//
// It has the same contract as SendCommand. Dialects that require an
// authentication exchange before privileged commands wrap this method.
func (c *Client) SendPrivilegedCommand(ctx context.Context, command string, mods ...func(*Req)) (Response, error) {
	return c.SendCommand(ctx, command, mods...)
}

// dispatch performs one round trip and routes the reply to data or error
func (c *Client) dispatch(ctx context.Context, req *Req) (res Response, err error) {
	payload, err := req.Envelope()
	if err != nil {
		return Response{}, fmt.Errorf("%s: %w", req.Command, err)
	}

	ctx, span := c.tracer.Start(ctx, "minerrpc "+req.Command,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("minerrpc.command", req.Command),
			attribute.String("minerrpc.dialect", c.dialect.Name),
			attribute.String("server.address", c.Host),
			attribute.Int("server.port", c.Port),
		))

	start := time.Now()
	size := -1
	outcome := ""
	defer func() {
		if outcome == "" {
			outcome = outcomeOf(err)
		}
		c.metrics.observe(c.dialect.Name, req.Command, outcome, time.Since(start), size)

		span.SetAttributes(attribute.String("minerrpc.outcome", outcome))
		if size >= 0 {
			span.SetAttributes(attribute.Int("minerrpc.response_bytes", size))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	readTimeout := c.ReadTimeout
	if req.Timeout > 0 {
		readTimeout = req.Timeout
	}

	c.logger.Debug(ctx, "sending command",
		"addr", c.Addr(),
		"command", req.Command,
		"request", c.prepareJSONForLogging(string(payload)))

	raw, err := c.transport.RoundTrip(ctx, Exchange{
		Addr:                c.Addr(),
		Request:             payload,
		ConnectTimeout:      c.ConnectTimeout,
		WriteTimeout:        c.WriteTimeout,
		ReadTimeout:         readTimeout,
		TrailingRead:        c.dialect.TrailingRead,
		TrailingReadTimeout: c.TrailingReadTimeout,
		ChunkSize:           c.ChunkSize,
		MaxResponseSize:     c.MaxResponseSize,
	})
	if err != nil {
		c.logger.Debug(ctx, "command failed in transport",
			"addr", c.Addr(),
			"command", req.Command,
			"error", err.Error())
		return Response{}, err
	}
	size = len(raw)

	if len(bytes.TrimRight(raw, "\x00")) == 0 {
		if req.IgnoreErrors {
			outcome = OutcomeIgnored
			return emptyResponse(), nil
		}
		return Response{}, &RemoteCommandError{
			Command: req.Command,
			Message: "no data returned from the API",
			Err:     ErrEmptyResponse,
		}
	}

	if bytes.Equal(raw, connectionRefusedReply) {
		if req.IgnoreErrors {
			outcome = OutcomeIgnored
			return emptyResponse(), nil
		}
		return Response{}, &RemoteCommandError{
			Command: req.Command,
			Message: strings.TrimSpace(string(raw)),
			Err:     ErrConnectionRefused,
		}
	}

	res, err = Decode(raw)
	if err != nil {
		c.logger.Warn(ctx, "reply could not be decoded",
			"addr", c.Addr(),
			"command", req.Command,
			"error", err.Error())
		return Response{}, err
	}

	c.logger.Debug(ctx, "reply received",
		"addr", c.Addr(),
		"command", req.Command,
		"response", c.prepareJSONForLogging(res.Raw))

	result := Validate(res)
	if result.Success {
		return res, nil
	}

	if req.AllowWarning {
		c.logger.Warn(ctx, "command returned an error",
			"addr", c.Addr(),
			"command", req.Command,
			"code", result.Code,
			"message", result.Message)
	}
	if req.IgnoreErrors {
		outcome = OutcomeIgnored
		return res, nil
	}
	return Response{}, &RemoteCommandError{
		Command: req.Command,
		Message: result.Message,
		Code:    result.Code,
	}
}

// Multicommand sends several commands as one "+" joined request and returns
// a reply keyed by command name, tagged with "multicommand": true
//
// Commands the client's dialect does not register are dropped with a
// warning. Commands the dialect cannot batch are sent individually and
// concurrently; those that fail are left out of the reply.
//
// When the batch is rejected with a message of the form
// "<command>: <reason>" naming one of the batched commands, that command is
// removed and the batch is sent again, until it succeeds or nothing is left.
// A rejection that names no batched command abandons the batch: every
// batched command then maps to [{}]. When nothing succeeded at all, the
// result is exactly {name: [{}]} for every requested name, without the
// multicommand marker. Callers must treat [{}] as "no data".
//
// Timeouts and context cancellation are returned as errors. Only
// AllowWarning and Timeout modifiers apply; IgnoreErrors is not honored
// since the fallback loop depends on errors.
//
// Example:
//
//	res, err := client.Multicommand(ctx, []string{"summary", "pools", "stats"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	elapsed := res.Command("summary").Get("SUMMARY.0.Elapsed").Int()
func (c *Client) Multicommand(ctx context.Context, commands []string, mods ...func(*Req)) (Response, error) {
	names := c.checkCommands(ctx, commands)
	if len(names) == 0 {
		return Response{}, fmt.Errorf("multicommand %s: %w", strings.Join(commands, "+"), ErrNoCommands)
	}

	var batch, single []string
	for _, name := range names {
		if c.dialect.Unbatchable != nil && c.dialect.Unbatchable(name) {
			single = append(single, name)
		} else {
			batch = append(batch, name)
		}
	}

	var (
		batchRaw  string
		batchOK   bool
		singleRaw = make([]string, len(single))
	)

	g, gctx := errgroup.WithContext(ctx)
	if len(batch) > 0 {
		g.Go(func() error {
			var err error
			batchRaw, batchOK, err = c.sendBatch(gctx, batch, mods)
			return err
		})
	}
	for i, name := range single {
		i, name := i, name
		g.Go(func() error {
			res, err := c.SendCommand(gctx, name, append(slices.Clone(mods), noIgnoreErrors)...)
			if err != nil {
				if isAbort(gctx, err) {
					return err
				}
				c.logger.Debug(gctx, "unbatchable command failed, omitting",
					"addr", c.Addr(),
					"command", name,
					"error", err.Error())
				return nil
			}
			singleRaw[i] = wrapReply(res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Response{}, err
	}

	anyOK := batchOK
	for _, raw := range singleRaw {
		if raw != "" {
			anyOK = true
		}
	}
	if !anyOK {
		return degradedResponse(names)
	}

	body := Body{str: batchRaw}
	if !batchOK {
		body = Body{}
		for _, name := range batch {
			body = body.SetRaw(escapePath(name), "[{}]")
		}
	}
	for i, name := range single {
		if singleRaw[i] != "" {
			body = body.SetRaw(escapePath(name), singleRaw[i])
		}
	}
	body = body.Set(MulticommandKey, true)

	return bodyResponse(body)
}

// sendBatch runs the fallback-by-removal loop for the batchable commands.
// It returns the reply text keyed by command name and whether any attempt
// succeeded.
func (c *Client) sendBatch(ctx context.Context, names []string, mods []func(*Req)) (string, bool, error) {
	remaining := slices.Clone(names)

	for len(remaining) > 0 {
		command := strings.Join(remaining, "+")
		res, err := c.SendCommand(ctx, command, append(slices.Clone(mods), noIgnoreErrors)...)
		if err == nil {
			raw, err := batchReply(res, remaining)
			if err != nil {
				return "", false, err
			}
			return raw, true, nil
		}
		if isAbort(ctx, err) {
			return "", false, err
		}

		culprit := removableCommand(err, remaining)
		if culprit == "" {
			c.logger.Warn(ctx, "multicommand failed, returning empty result",
				"addr", c.Addr(),
				"command", command,
				"error", err.Error())
			return "", false, nil
		}

		c.logger.Info(ctx, "removing rejected command from multicommand",
			"addr", c.Addr(),
			"command", culprit,
			"error", err.Error())
		remaining = slices.DeleteFunc(remaining, func(n string) bool { return n == culprit })
	}

	return "", false, nil
}

// checkCommands drops names the dialect does not register, warning for
// each, and removes duplicates while keeping order
func (c *Client) checkCommands(ctx context.Context, commands []string) []string {
	names := make([]string, 0, len(commands))
	for _, name := range commands {
		if slices.Contains(names, name) {
			continue
		}
		if !c.dialect.Supports(name) {
			c.logger.Warn(ctx, "removing unsupported command from multicommand",
				"addr", c.Addr(),
				"dialect", c.dialect.Name,
				"command", name,
				"hint", "use SendCommand with IgnoreErrors to send it anyway")
			continue
		}
		names = append(names, name)
	}
	return names
}

// batchReply converts a successful batch reply into the keyed shape. A
// single-command reply (the batch shrank to one name, or the firmware
// answered a batch with one envelope) is wrapped as {name: [reply]}.
// Top-level keys of a batched reply that name no requested command, such
// as the firmware's "id", are dropped.
func batchReply(res Response, names []string) (string, error) {
	if ResolveShape(res).Kind == ShapeBatched {
		body := Body{str: res.JSON()}
		for key := range res.Data {
			if !slices.Contains(names, key) {
				body = body.Delete(escapePath(key))
			}
		}
		return body.String()
	}
	if len(names) == 1 {
		return Body{}.SetRaw(escapePath(names[0]), wrapReply(res)).String()
	}
	body := Body{str: res.JSON()}
	for _, name := range names {
		if !res.GetValue(escapePath(name)).Exists() {
			body = body.SetRaw(escapePath(name), wrapReply(res))
		}
	}
	return body.String()
}

// removableCommand returns the batched command named by a rejection of the
// form "<command>: <reason>", or "" when the error names none of them
func removableCommand(err error, names []string) string {
	var re *RemoteCommandError
	if !errors.As(err, &re) || re.Err != nil {
		return ""
	}
	name, _, ok := strings.Cut(re.Message, ":")
	if !ok {
		return ""
	}
	name = strings.TrimSpace(name)
	if slices.Contains(names, name) {
		return name
	}
	return ""
}

// isAbort reports errors that end a multicommand instead of degrading it
func isAbort(ctx context.Context, err error) bool {
	return ctx.Err() != nil || IsTimeout(err) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// noIgnoreErrors clears IgnoreErrors so batch rejections surface as errors
func noIgnoreErrors(req *Req) {
	req.IgnoreErrors = false
}

// wrapReply renders a single-command reply as a one-element list
func wrapReply(res Response) string {
	return "[" + res.JSON() + "]"
}

// degradedResponse is the "no data" result: {name: [{}]} for every name
func degradedResponse(names []string) (Response, error) {
	body := Body{}
	for _, name := range names {
		body = body.SetRaw(escapePath(name), "[{}]")
	}
	return bodyResponse(body)
}

// bodyResponse parses a built body into a Response. The parts were
// repaired when first decoded, so the repair rules are not applied again.
func bodyResponse(body Body) (Response, error) {
	text, err := body.String()
	if err != nil {
		return Response{}, fmt.Errorf("failed to build multicommand reply: %w", err)
	}
	data, err := parseObject(text)
	if err != nil {
		return Response{}, &ProtocolDecodeError{Err: err, Text: text}
	}
	return Response{Raw: text, Data: data}, nil
}
