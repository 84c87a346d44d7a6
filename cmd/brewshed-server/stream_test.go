// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/brewshed/brewshed/lib/codec"
	"github.com/brewshed/brewshed/lib/schema"
)

// streamClient is the device side of an in-memory stream connection.
// The handler runs against the other end of the pipe in its own
// goroutine, exactly as the stream server would run it.
type streamClient struct {
	conn    net.Conn
	encoder *codec.Encoder
	decoder *codec.Decoder
}

func newStreamClient(t *testing.T, rig *apiRig, heartbeatInterval time.Duration) *streamClient {
	t.Helper()

	handler := &streamHandler{
		manager:           rig.manager,
		bus:               rig.api.bus,
		clock:             rig.clock,
		logger:            testLogger(),
		heartbeatInterval: heartbeatInterval,
	}

	serverConn, clientConn := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.handle(ctx, serverConn)
	}()
	t.Cleanup(func() {
		cancel()
		clientConn.Close()
		serverConn.Close()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Errorf("stream handler did not stop")
		}
	})

	// A wedged exchange should fail the test, not hang it.
	if err := clientConn.SetDeadline(time.Now().Add(10 * time.Second)); err != nil {
		t.Fatalf("SetDeadline: %v", err)
	}

	return &streamClient{
		conn:    clientConn,
		encoder: codec.NewEncoder(clientConn),
		decoder: codec.NewDecoder(clientConn),
	}
}

func (c *streamClient) hello(t *testing.T, hello schema.StreamHello) schema.StreamAck {
	t.Helper()
	if err := c.encoder.Encode(hello); err != nil {
		t.Fatalf("encoding hello: %v", err)
	}
	var ack schema.StreamAck
	if err := c.decoder.Decode(&ack); err != nil {
		t.Fatalf("decoding hello ack: %v", err)
	}
	return ack
}

func (c *streamClient) sendFrame(t *testing.T, frame schema.TelemetryFrame) schema.StreamAck {
	t.Helper()
	if err := c.encoder.Encode(frame); err != nil {
		t.Fatalf("encoding frame: %v", err)
	}
	var ack schema.StreamAck
	if err := c.decoder.Decode(&ack); err != nil {
		t.Fatalf("decoding frame ack: %v", err)
	}
	return ack
}

func TestStreamSubscribeFiltersByPattern(t *testing.T) {
	rig := newAPIRig(t)
	client := newStreamClient(t, rig, time.Hour)

	ack := client.hello(t, schema.StreamHello{
		Role:     schema.RoleSubscribe,
		Channels: []string{"ferm_status_update|*"},
	})
	if !ack.OK {
		t.Fatalf("hello ack = %+v", ack)
	}

	payload, err := codec.Marshal(schema.StatusUpdateEvent{UID: "fv-1", GUID: "g-1"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	// The non-matching event goes out first. Were it forwarded, it
	// would arrive ahead of the matching one.
	rig.api.bus.Publish(schema.StreamEvent{
		Channel: schema.SessionUpdateChannel(schema.SessionTilt, "tilt-9"),
		Kind:    schema.EventKindSessionUpdate,
		Payload: payload,
	})
	rig.api.bus.Publish(schema.StreamEvent{
		Channel: schema.StatusUpdateChannel("fv-1"),
		Kind:    schema.EventKindStatusUpdate,
		Payload: payload,
	})

	var event schema.StreamEvent
	if err := client.decoder.Decode(&event); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if event.Channel != schema.StatusUpdateChannel("fv-1") {
		t.Fatalf("channel = %q, want the matching ferm channel", event.Channel)
	}
	if event.Kind != schema.EventKindStatusUpdate {
		t.Fatalf("kind = %q", event.Kind)
	}

	var status schema.StatusUpdateEvent
	if err := codec.Unmarshal(event.Payload, &status); err != nil {
		t.Fatalf("Unmarshal payload: %v", err)
	}
	if status.UID != "fv-1" {
		t.Fatalf("payload uid = %q", status.UID)
	}
}

func TestStreamSubscribeHeartbeat(t *testing.T) {
	rig := newAPIRig(t)
	client := newStreamClient(t, rig, 30*time.Second)

	if ack := client.hello(t, schema.StreamHello{Role: schema.RoleSubscribe}); !ack.OK {
		t.Fatalf("hello ack = %+v", ack)
	}

	rig.clock.WaitForTimers(1)
	rig.clock.Advance(30 * time.Second)

	var event schema.StreamEvent
	if err := client.decoder.Decode(&event); err != nil {
		t.Fatalf("decoding heartbeat: %v", err)
	}
	if event.Channel != heartbeatChannel || event.Kind != schema.EventKindHeartbeat {
		t.Fatalf("frame = channel %q kind %q", event.Channel, event.Kind)
	}

	var heartbeat schema.HeartbeatEvent
	if err := codec.Unmarshal(event.Payload, &heartbeat); err != nil {
		t.Fatalf("Unmarshal payload: %v", err)
	}
	if !heartbeat.Time.Equal(apiTestEpoch.Add(30 * time.Second)) {
		t.Fatalf("heartbeat time = %v", heartbeat.Time)
	}
	if heartbeat.Dropped != 0 {
		t.Fatalf("dropped = %d, want 0", heartbeat.Dropped)
	}
}

func TestStreamIngest(t *testing.T) {
	rig := newAPIRig(t)
	rig.registerDevice(t, "fv-1", schema.DeviceFerm)
	rig.startSession(t, "fv-1", schema.SessionFerm)

	client := newStreamClient(t, rig, time.Hour)
	if ack := client.hello(t, schema.StreamHello{Role: schema.RoleIngest}); !ack.OK {
		t.Fatalf("hello ack = %+v", ack)
	}

	ack := client.sendFrame(t, schema.TelemetryFrame{
		UID:         "fv-1",
		SessionType: schema.SessionFerm,
		Samples: []schema.TelemetryPoint{
			{Time: apiTestEpoch.Add(10 * time.Minute), TempF: schema.Float64(66.0)},
			{Time: apiTestEpoch.Add(5 * time.Minute), TempF: schema.Float64(66.2)},
		},
	})
	if !ack.OK || ack.Accepted != 2 || ack.Flagged != 1 {
		t.Fatalf("ingest ack = %+v, want ok with accepted 2 flagged 1", ack)
	}

	// A bad session type is refused without dropping the connection.
	ack = client.sendFrame(t, schema.TelemetryFrame{
		UID:         "fv-1",
		SessionType: schema.SessionType("keg"),
	})
	if ack.OK || !strings.Contains(ack.Error, "unknown session type") {
		t.Fatalf("bad-type ack = %+v", ack)
	}

	// So is a frame for a session that is not running.
	ack = client.sendFrame(t, schema.TelemetryFrame{
		UID:         "fv-1",
		SessionType: schema.SessionStill,
		Samples:     []schema.TelemetryPoint{{TempF: schema.Float64(173)}},
	})
	if ack.OK || ack.Error == "" {
		t.Fatalf("idle-key ack = %+v", ack)
	}

	// The next good frame still lands.
	ack = client.sendFrame(t, schema.TelemetryFrame{
		UID:         "fv-1",
		SessionType: schema.SessionFerm,
		Samples: []schema.TelemetryPoint{
			{Time: apiTestEpoch.Add(15 * time.Minute), TempF: schema.Float64(66.1)},
		},
	})
	if !ack.OK || ack.Accepted != 1 || ack.Flagged != 0 {
		t.Fatalf("followup ack = %+v", ack)
	}
}

func TestStreamRejectsUnknownRole(t *testing.T) {
	rig := newAPIRig(t)
	client := newStreamClient(t, rig, time.Hour)

	ack := client.hello(t, schema.StreamHello{Role: schema.StreamRole("watch")})
	if ack.OK || !strings.Contains(ack.Error, "unknown role") {
		t.Fatalf("ack = %+v", ack)
	}
}
