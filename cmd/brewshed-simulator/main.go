// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

// Brewshed-simulator impersonates a brewing device against a running
// brewshed-server: it registers itself, starts a session, and feeds
// plausible telemetry curves until interrupted. Batches go over the
// HTTP API by default; --stream switches to the CBOR ingest protocol.
// Useful for demos and end-to-end checks without hardware.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/brewshed/brewshed/lib/codec"
	"github.com/brewshed/brewshed/lib/netutil"
	"github.com/brewshed/brewshed/lib/process"
	"github.com/brewshed/brewshed/lib/schema"
	"github.com/brewshed/brewshed/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	// Handle --version before flag parsing to match other Brewshed
	// binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("brewshed-simulator")
		return nil
	}

	var (
		serverURL   string
		streamAddr  string
		uid         string
		deviceType  string
		sessionType string
		interval    time.Duration
		batchSize   int
		timescale   float64
		targetABV   float64
	)

	flagSet := pflag.NewFlagSet("brewshed-simulator", pflag.ContinueOnError)
	flagSet.StringVar(&serverURL, "server", "http://127.0.0.1:8080",
		"brewshed-server HTTP base URL")
	flagSet.StringVar(&streamAddr, "stream", "",
		"stream listener address; when set, telemetry goes over the CBOR ingest protocol instead of HTTP")
	flagSet.StringVar(&uid, "uid", "sim-ferm-1", "device uid to impersonate")
	flagSet.StringVar(&deviceType, "device", "ferm",
		"device type (brew, ferm, still, tilt, ispindel)")
	flagSet.StringVar(&sessionType, "session", "",
		"session type (defaults to the device type)")
	flagSet.DurationVar(&interval, "interval", 5*time.Second,
		"wall-clock delay between batches")
	flagSet.IntVar(&batchSize, "batch", 1, "samples per batch")
	flagSet.Float64Var(&timescale, "timescale", 60,
		"simulated seconds per wall-clock second")
	flagSet.Float64Var(&targetABV, "target-abv", 5.2,
		"target ABV for the started session")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := schema.ValidateUID(uid); err != nil {
		return err
	}
	device, err := schema.ParseDeviceType(deviceType)
	if err != nil {
		return err
	}
	if sessionType == "" {
		sessionType = deviceType
	}
	kind, err := schema.ParseSessionType(sessionType)
	if err != nil {
		return err
	}
	if batchSize < 1 {
		return fmt.Errorf("--batch must be at least 1")
	}
	if timescale <= 0 {
		return fmt.Errorf("--timescale must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sim := &simulator{
		serverURL:  strings.TrimRight(serverURL, "/"),
		streamAddr: streamAddr,
		uid:        uid,
		device:     device,
		kind:       kind,
		interval:   interval,
		batchSize:  batchSize,
		timescale:  timescale,
		targetABV:  targetABV,
		logger:     slog.New(slog.NewTextHandler(os.Stderr, nil)),
		client:     &http.Client{Timeout: 10 * time.Second},
	}
	return sim.run(ctx)
}

type simulator struct {
	serverURL  string
	streamAddr string
	uid        string
	device     schema.DeviceType
	kind       schema.SessionType
	interval   time.Duration
	batchSize  int
	timescale  float64
	targetABV  float64
	logger     *slog.Logger
	client     *http.Client

	started time.Time

	// Stream-mode connection state; re-dialed on the next tick after
	// a send failure.
	conn    net.Conn
	encoder *codec.Encoder
	decoder *codec.Decoder
}

func (s *simulator) run(ctx context.Context) error {
	if err := s.register(ctx); err != nil {
		return err
	}
	if err := s.startSession(ctx); err != nil {
		return err
	}
	s.started = time.Now()
	s.logger.Info("simulating device",
		"uid", s.uid,
		"device", string(s.device),
		"session", string(s.kind),
		"interval", s.interval.String(),
		"timescale", s.timescale,
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.closeStream()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down")
			return nil
		case <-ticker.C:
			gone, err := s.sendBatch(ctx)
			if err != nil {
				s.logger.Warn("batch failed", "error", err)
				continue
			}
			if gone {
				s.logger.Info("session has completed; stopping")
				return nil
			}
		}
	}
}

func (s *simulator) register(ctx context.Context) error {
	body := map[string]string{
		"device_type": string(s.device),
		"alias":       "Simulated " + string(s.device),
	}
	var device schema.Device
	if err := s.doJSON(ctx, http.MethodPut, "/device/"+s.uid, body, &device); err != nil {
		return fmt.Errorf("registering device: %w", err)
	}
	s.logger.Info("device registered", "uid", device.UID, "alias", device.Alias)
	return nil
}

// startSession begins a session for the configured type. An already
// running session is not an error: the simulator resumes feeding it.
func (s *simulator) startSession(ctx context.Context) error {
	body := map[string]any{
		"active":     true,
		"target_abv": s.targetABV,
	}
	var started schema.Session
	err := s.doJSON(ctx, http.MethodPut,
		"/device/"+s.uid+"/sessions/"+string(s.kind), body, &started)
	if err != nil {
		var statusErr *httpStatusError
		if errors.As(err, &statusErr) && statusErr.status == http.StatusConflict {
			s.logger.Info("session already active; resuming")
			return nil
		}
		return fmt.Errorf("starting session: %w", err)
	}
	s.logger.Info("session started", "guid", started.GUID)
	return nil
}

// sendBatch ships one batch of samples, spread across the interval
// that just elapsed. The bool result reports that the session is gone
// server-side and the simulator should exit.
func (s *simulator) sendBatch(ctx context.Context) (bool, error) {
	now := time.Now()
	samples := make([]schema.TelemetryPoint, 0, s.batchSize)
	for i := 0; i < s.batchSize; i++ {
		offset := time.Duration(s.batchSize-1-i) * s.interval / time.Duration(s.batchSize)
		samples = append(samples, s.sample(now.Add(-offset)))
	}
	if s.streamAddr != "" {
		return s.sendStream(ctx, samples)
	}
	return s.sendHTTP(ctx, samples)
}

// sample produces one reading at wall time now. Curve position is the
// scaled elapsed time, so a --timescale 60 run walks through an hour
// of fermentation per minute.
func (s *simulator) sample(now time.Time) schema.TelemetryPoint {
	elapsed := time.Duration(float64(now.Sub(s.started)) * s.timescale)
	hours := elapsed.Hours()

	point := schema.TelemetryPoint{Time: now.UTC()}
	point.TempF = schema.Float64(s.temperature(hours))

	switch s.kind {
	case schema.SessionFerm:
		point.PressurePsi = schema.Float64(jitter(5.0*ramp(hours/12), 0.2))
		point.Gravity = schema.Float64(s.gravity(hours))
		point.Voltage = schema.Float64(discharge(hours, 4.05))
	case schema.SessionTilt:
		point.Gravity = schema.Float64(s.gravity(hours))
	case schema.SessionISpindel:
		point.Gravity = schema.Float64(s.gravity(hours))
		point.Voltage = schema.Float64(discharge(hours, 3.95))
	}
	return point
}

func (s *simulator) temperature(hours float64) float64 {
	switch s.kind {
	case schema.SessionBrew:
		// Mash hold, then ramp to a rolling boil.
		if hours < 1.5 {
			return jitter(152, 0.5)
		}
		return jitter(math.Min(212, 152+(hours-1.5)*80), 0.5)
	case schema.SessionStill:
		// Approach the ethanol boiling point and sit on it.
		return jitter(80+93*ramp(hours/2), 0.4)
	default:
		// Fermentation sits near ambient with a daily swing.
		return jitter(66+2*math.Sin(2*math.Pi*hours/24), 0.3)
	}
}

// gravity decays exponentially from a 1.050 OG toward the final
// gravity implied by the target ABV, most of the drop in the first
// two days.
func (s *simulator) gravity(hours float64) float64 {
	const originalGravity = 1.050
	finalGravity := originalGravity - s.targetABV/131.25
	return jitter(finalGravity+(originalGravity-finalGravity)*math.Exp(-hours/48), 0.0005)
}

func (s *simulator) sendHTTP(ctx context.Context, samples []schema.TelemetryPoint) (bool, error) {
	body := map[string]any{"samples": samples}
	var result struct {
		Accepted   int `json:"accepted"`
		Flagged    int `json:"flagged"`
		PointCount int `json:"point_count"`
	}
	err := s.doJSON(ctx, http.MethodPost,
		"/device/"+s.uid+"/sessions/"+string(s.kind)+"/telemetry", body, &result)
	if err != nil {
		var statusErr *httpStatusError
		if errors.As(err, &statusErr) && statusErr.status == http.StatusNotFound {
			return true, nil
		}
		return false, err
	}
	s.logger.Info("batch accepted",
		"samples", result.Accepted, "flagged", result.Flagged, "total", result.PointCount)
	return false, nil
}

func (s *simulator) sendStream(ctx context.Context, samples []schema.TelemetryPoint) (bool, error) {
	if s.conn == nil {
		if err := s.dialStream(ctx); err != nil {
			return false, err
		}
	}

	frame := schema.TelemetryFrame{UID: s.uid, SessionType: s.kind, Samples: samples}
	if err := s.encoder.Encode(frame); err != nil {
		s.closeStream()
		return false, fmt.Errorf("sending frame: %w", err)
	}
	var ack schema.StreamAck
	if err := s.decoder.Decode(&ack); err != nil {
		s.closeStream()
		return false, fmt.Errorf("reading ack: %w", err)
	}
	if !ack.OK {
		if strings.Contains(ack.Error, "not found") {
			return true, nil
		}
		return false, fmt.Errorf("server refused frame: %s", ack.Error)
	}
	s.logger.Info("batch accepted", "samples", ack.Accepted, "flagged", ack.Flagged)
	return false, nil
}

func (s *simulator) dialStream(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", s.streamAddr)
	if err != nil {
		return fmt.Errorf("dialing stream listener: %w", err)
	}

	encoder := codec.NewEncoder(conn)
	decoder := codec.NewDecoder(conn)
	if err := encoder.Encode(schema.StreamHello{Role: schema.RoleIngest}); err != nil {
		conn.Close()
		return fmt.Errorf("sending hello: %w", err)
	}
	var ack schema.StreamAck
	if err := decoder.Decode(&ack); err != nil {
		conn.Close()
		return fmt.Errorf("reading hello ack: %w", err)
	}
	if !ack.OK {
		conn.Close()
		return fmt.Errorf("stream handshake refused: %s", ack.Error)
	}

	s.conn = conn
	s.encoder = encoder
	s.decoder = decoder
	s.logger.Info("stream connected", "address", s.streamAddr)
	return nil
}

func (s *simulator) closeStream() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
		s.encoder = nil
		s.decoder = nil
	}
}

// httpStatusError carries a non-200 response so callers can branch
// on the status (409 resume, 404 session gone).
type httpStatusError struct {
	status int
	body   string
}

func (err *httpStatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", err.status, strings.TrimSpace(err.body))
}

// doJSON runs one JSON request/response exchange against the server.
func (s *simulator) doJSON(ctx context.Context, method, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, method, s.serverURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := s.client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return &httpStatusError{
			status: response.StatusCode,
			body:   netutil.ErrorBody(response.Body),
		}
	}
	if out == nil {
		return nil
	}
	return netutil.DecodeResponse(response.Body, out)
}

// ramp rises from 0 toward 1 on the argument's scale.
func ramp(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return 1 - math.Exp(-x)
}

// jitter adds uniform noise of up to ±scale.
func jitter(value, scale float64) float64 {
	return value + (rand.Float64()*2-1)*scale
}

// discharge models a battery draining from full, floored where these
// devices typically give out.
func discharge(hours, full float64) float64 {
	return math.Max(3.3, full-hours*0.002)
}
