// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/brewshed/brewshed/lib/clock"
	"github.com/brewshed/brewshed/lib/codec"
	"github.com/brewshed/brewshed/lib/fanout"
	"github.com/brewshed/brewshed/lib/schema"
	"github.com/brewshed/brewshed/lib/session"
)

// heartbeatChannel is the channel name on heartbeat frames. Written
// directly to every subscriber, never published through the bus, so
// it does not participate in pattern matching.
const heartbeatChannel = "heartbeat"

// streamHandler runs the CBOR stream protocol on one connection:
// hello handshake, then either the subscriber push loop or the
// ingest request/ack loop.
type streamHandler struct {
	manager           *session.Manager
	bus               *fanout.Bus
	clock             clock.Clock
	logger            *slog.Logger
	heartbeatInterval time.Duration
}

func (h *streamHandler) handle(ctx context.Context, conn net.Conn) {
	decoder := codec.NewDecoder(conn)
	encoder := codec.NewEncoder(conn)

	var hello schema.StreamHello
	if err := decoder.Decode(&hello); err != nil {
		if !closedConn(err) {
			h.logger.Debug("stream hello failed",
				"remote", conn.RemoteAddr().String(), "error", err)
		}
		return
	}

	logger := h.logger.With(
		"remote", conn.RemoteAddr().String(),
		"role", string(hello.Role),
	)

	switch hello.Role {
	case schema.RoleSubscribe:
		h.serveSubscriber(ctx, encoder, hello.Channels, logger)
	case schema.RoleIngest:
		h.serveIngest(ctx, decoder, encoder, logger)
	default:
		writeAck(encoder, schema.StreamAck{
			OK:    false,
			Error: fmt.Sprintf("unknown role %q", hello.Role),
		})
	}
}

// serveSubscriber pushes matching events until the connection or the
// server goes away. The subscription is registered before the ack is
// written: an event published between the ack and the first push is
// already buffered, never missed.
func (h *streamHandler) serveSubscriber(ctx context.Context, encoder *codec.Encoder, patterns []string, logger *slog.Logger) {
	subscriber := h.bus.Subscribe(patterns...)
	defer h.bus.Unsubscribe(subscriber)

	if !writeAck(encoder, schema.StreamAck{OK: true}) {
		return
	}
	logger.Info("stream subscriber connected", "patterns", patterns)

	heartbeat := h.clock.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case event := <-subscriber.Events():
			if err := encoder.Encode(event); err != nil {
				logger.Info("stream subscriber disconnected",
					"dropped", subscriber.Dropped())
				return
			}
		case <-heartbeat.C:
			payload, err := codec.Marshal(schema.HeartbeatEvent{
				Time:    h.clock.Now().UTC(),
				Dropped: subscriber.Dropped(),
			})
			if err != nil {
				logger.Error("heartbeat encode failed", "error", err)
				continue
			}
			frame := schema.StreamEvent{
				Channel: heartbeatChannel,
				Kind:    schema.EventKindHeartbeat,
				Payload: payload,
			}
			if err := encoder.Encode(frame); err != nil {
				logger.Info("stream subscriber disconnected",
					"dropped", subscriber.Dropped())
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// serveIngest acks the hello, then answers each telemetry frame with
// its accept/flag counts. A frame the manager refuses (idle key,
// unknown session type) gets an error ack; the connection stays up
// for the device's next frame.
func (h *streamHandler) serveIngest(ctx context.Context, decoder *codec.Decoder, encoder *codec.Encoder, logger *slog.Logger) {
	if !writeAck(encoder, schema.StreamAck{OK: true}) {
		return
	}
	logger.Info("stream ingest connected")

	for {
		var frame schema.TelemetryFrame
		if err := decoder.Decode(&frame); err != nil {
			if !closedConn(err) {
				logger.Debug("ingest frame decode failed", "error", err)
			}
			return
		}

		if !frame.SessionType.Valid() {
			if !writeAck(encoder, schema.StreamAck{
				OK:    false,
				Error: fmt.Sprintf("unknown session type %q", frame.SessionType),
			}) {
				return
			}
			continue
		}

		result, err := h.manager.Ingest(ctx, frame.UID, frame.SessionType, frame.Samples)
		if err != nil {
			if !writeAck(encoder, schema.StreamAck{OK: false, Error: err.Error()}) {
				return
			}
			continue
		}
		if !writeAck(encoder, schema.StreamAck{
			OK:       true,
			Accepted: result.Accepted,
			Flagged:  result.Flagged,
		}) {
			return
		}
	}
}

// writeAck reports whether the ack reached the wire; false means the
// connection is gone and the caller should stop.
func writeAck(encoder *codec.Encoder, ack schema.StreamAck) bool {
	return encoder.Encode(ack) == nil
}

// closedConn reports whether err is the ordinary end of a
// connection rather than a protocol failure.
func closedConn(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed)
}
