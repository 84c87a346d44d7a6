// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"sort"

	"github.com/brewshed/brewshed/lib/estimator"
	"github.com/brewshed/brewshed/lib/schema"
	"github.com/brewshed/brewshed/lib/store"
)

// IngestResult reports what one ingest call did.
type IngestResult struct {
	// Accepted is the number of samples appended.
	Accepted int `json:"accepted"`

	// Flagged counts samples whose time ran backwards relative to
	// the previously appended point. Flagged samples are still
	// appended, in arrival order.
	Flagged int `json:"flagged,omitempty"`

	// PointCount is the session total after this append.
	PointCount int `json:"point_count"`

	// Estimate is the recomputed estimator result (ferm only).
	Estimate *schema.EstimationResult `json:"estimate,omitempty"`
}

// Ingest validates and appends a batch of samples to the key's
// active session, recomputes the fermentation estimate for ferm
// sessions, and fans out one event for the whole batch.
// NotFoundError when the key has no active session: the samples are
// dropped and logged, never queued.
//
// Per-sample validation nulls malformed sensor fields instead of
// rejecting the sample; a sample with no usable time is stamped with
// the server clock.
func (m *Manager) Ingest(ctx context.Context, uid string, kind schema.SessionType, samples []schema.TelemetryPoint) (*IngestResult, error) {
	k := key{uid: uid, kind: kind}
	e := m.entry(k)
	if e == nil {
		m.droppedSamples.Add(uint64(len(samples)))
		m.logger.Warn("telemetry for idle key dropped",
			"uid", uid, "session_type", kind, "samples", len(samples))
		return nil, &store.NotFoundError{Kind: "session", Key: uid + "/" + string(kind)}
	}
	if len(samples) == 0 {
		e.mu.Lock()
		count := e.session.PointCount
		estimate := e.estimate
		e.mu.Unlock()
		return &IngestResult{PointCount: count, Estimate: estimate}, nil
	}

	now := m.clock.Now().UTC()

	e.mu.Lock()
	if e.completing {
		e.mu.Unlock()
		m.droppedSamples.Add(uint64(len(samples)))
		return nil, &store.NotFoundError{Kind: "session", Key: uid + "/" + string(kind)}
	}

	accepted := make([]schema.TelemetryPoint, 0, len(samples))
	flagged := 0
	for _, sample := range samples {
		if sample.Time.IsZero() {
			sample.Time = now
		}
		sample.Normalize()
		if !e.lastTime.IsZero() && sample.Time.Before(e.lastTime) {
			flagged++
		}
		e.lastTime = sample.Time
		if sample.Voltage != nil {
			e.voltage = sample.Voltage
		}
		accepted = append(accepted, sample)
	}

	e.window = append(e.window, accepted...)
	e.window = trimWindow(e.window, m.windowCap)
	e.pending = append(e.pending, accepted...)
	e.session.PointCount += len(accepted)

	// Estimation runs inside the key's lock: the single-writer
	// guarantee makes the estimate consistent with the window it
	// saw. Pure CPU over a capped window, so holding the lock is
	// cheap.
	var estimate *schema.EstimationResult
	shouldComplete := false
	if kind == schema.SessionFerm {
		result := estimator.EstimateSession(e.session, e.window, now)
		e.estimate = &result
		estimate = &result
		shouldComplete = result.ShouldComplete
	}

	var toFlush []schema.TelemetryPoint
	if len(e.pending) >= m.flushThreshold {
		toFlush = e.pending
		e.pending = nil
	}
	sessionID := e.session.ID
	guid := e.session.GUID
	pointCount := e.session.PointCount
	e.mu.Unlock()

	m.ingestBatches.Add(1)
	m.ingestSamples.Add(uint64(len(accepted)))
	if flagged > 0 {
		m.flaggedSamples.Add(uint64(flagged))
		m.logger.Warn("out-of-order samples flagged",
			"uid", uid, "session_type", kind, "flagged", flagged)
	}

	m.flushBatch(ctx, sessionID, toFlush)

	// Device liveness rides on telemetry.
	if err := m.store.TouchDevice(ctx, uid); err != nil {
		m.logger.Debug("device touch failed", "uid", uid, "error", err)
	}

	// One event per ingest call, batched, at-most-once.
	channelID := schema.ChannelID(kind, uid, guid)
	m.publish(schema.SessionUpdateChannel(kind, channelID), schema.EventKindSessionUpdate, schema.SessionUpdateEvent{
		UID:         uid,
		GUID:        guid,
		SessionType: kind,
		Points:      accepted,
		Flagged:     flagged,
		PointCount:  pointCount,
		Estimate:    estimate,
	})
	if estimate != nil && estimate.CanEstimate {
		m.publish(schema.StatusUpdateChannel(uid), schema.EventKindStatusUpdate, schema.StatusUpdateEvent{
			UID:      uid,
			GUID:     guid,
			Estimate: *estimate,
		})
	}

	if shouldComplete {
		// complete is idempotent, so a trigger that loses a race or
		// repeats after a failed attempt is harmless; the completion
		// event publishes only after the store transition commits.
		if _, _, err := m.complete(ctx, k, e, schema.CompletionAuto); err != nil {
			m.logger.Error("auto-completion failed",
				"uid", uid, "guid", guid, "error", err)
		}
	}

	return &IngestResult{
		Accepted:   len(accepted),
		Flagged:    flagged,
		PointCount: pointCount,
		Estimate:   estimate,
	}, nil
}

// ActiveSession is an active-session view enriched with live state
// the store does not hold: the latest sensor readings, battery
// voltage, and the current estimate.
type ActiveSession struct {
	schema.Session

	CurrentTempF       *float64                 `json:"current_temp_f,omitempty"`
	CurrentPressurePsi *float64                 `json:"current_pressure_psi,omitempty"`
	CurrentGravity     *float64                 `json:"current_gravity,omitempty"`
	Voltage            *float64                 `json:"voltage,omitempty"`
	Estimate           *schema.EstimationResult `json:"estimate,omitempty"`
}

// Active returns the live view of every active session of one type,
// newest first.
func (m *Manager) Active(sessionType schema.SessionType) []ActiveSession {
	var views []ActiveSession
	for _, e := range m.snapshotEntries() {
		e.mu.Lock()
		if e.session.Type != sessionType || e.completing {
			e.mu.Unlock()
			continue
		}
		view := ActiveSession{
			Session:  *e.session,
			Voltage:  e.voltage,
			Estimate: e.estimate,
		}
		view.CurrentTempF, view.CurrentPressurePsi, view.CurrentGravity = latestReadings(e.window)
		e.mu.Unlock()
		views = append(views, view)
	}

	sort.Slice(views, func(i, j int) bool {
		return views[i].StartDate.After(views[j].StartDate)
	})
	return views
}

// Points returns a session's full telemetry history: the durable
// batches, plus whatever is still waiting in the live pending buffer
// when the session is active.
func (m *Manager) Points(ctx context.Context, guid string) (*schema.Session, []schema.TelemetryPoint, error) {
	session, err := m.store.SessionByGUID(ctx, guid)
	if err != nil {
		return nil, nil, err
	}
	points, err := m.store.LoadPoints(ctx, session.ID)
	if err != nil {
		return nil, nil, err
	}

	if session.Active {
		if e := m.entry(key{uid: session.UID, kind: session.Type}); e != nil {
			e.mu.Lock()
			if e.session.GUID == guid {
				points = append(points, e.pending...)
				session.PointCount = e.session.PointCount
			}
			e.mu.Unlock()
		}
	}
	return session, points, nil
}

// latestReadings walks a window backwards for the most recent value
// of each sensor.
func latestReadings(window []schema.TelemetryPoint) (tempF, pressure, gravity *float64) {
	for i := len(window) - 1; i >= 0; i-- {
		point := window[i]
		if tempF == nil && point.TempF != nil {
			tempF = point.TempF
		}
		if pressure == nil && point.PressurePsi != nil {
			pressure = point.PressurePsi
		}
		if gravity == nil && point.Gravity != nil {
			gravity = point.Gravity
		}
		if tempF != nil && pressure != nil && gravity != nil {
			break
		}
	}
	return tempF, pressure, gravity
}
