// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brewshed/brewshed/lib/clock"
	"github.com/brewshed/brewshed/lib/codec"
	"github.com/brewshed/brewshed/lib/estimator"
	"github.com/brewshed/brewshed/lib/fanout"
	"github.com/brewshed/brewshed/lib/schema"
	"github.com/brewshed/brewshed/lib/store"
)

const (
	// DefaultFlushThreshold is the pending-buffer size that triggers
	// an immediate batch write.
	DefaultFlushThreshold = 256

	// DefaultFlushInterval is how often the background ticker drains
	// pending buffers that have not reached the threshold. It bounds
	// how long an accepted point can stay memory-only.
	DefaultFlushInterval = 30 * time.Second

	// DefaultEstimateInterval is how often ferm sessions are
	// re-estimated against the clock. Progress advances with time,
	// not telemetry: a fermenter that goes quiet still completes
	// on schedule.
	DefaultEstimateInterval = time.Minute
)

// key identifies one unit of session mutual exclusion. Different
// keys never contend: a brew machine and the Tilt floating in its
// fermenter ingest in parallel.
type key struct {
	uid  string
	kind schema.SessionType
}

// entry is the live state for one active session. The mutex is
// per-entry so one key's flush never blocks another key's ingest,
// and it is never held across store I/O: buffers are swapped out
// under the lock and written after release.
type entry struct {
	mu sync.Mutex

	// session is the working copy of the stored record. PointCount
	// advances as samples are accepted; the store catches up at
	// flush time.
	session *schema.Session

	// window is the capped in-memory point history used for live
	// reads and estimation.
	window []schema.TelemetryPoint

	// pending holds accepted points not yet written as a durable
	// batch.
	pending []schema.TelemetryPoint

	// lastTime is the time of the most recently appended point,
	// for out-of-order flagging.
	lastTime time.Time

	// voltage is the latest battery reading across the session.
	voltage *float64

	// estimate is the most recent estimator result (ferm only).
	estimate *schema.EstimationResult

	// completing marks the entry terminal. Set when a completion
	// drains the buffer; later ingests are refused.
	completing bool
}

// Config carries the manager's dependencies. All fields are
// required except the flush tuning knobs.
type Config struct {
	Store  *store.Store
	Bus    *fanout.Bus
	Clock  clock.Clock
	Logger *slog.Logger

	// FlushThreshold overrides DefaultFlushThreshold.
	FlushThreshold int

	// FlushInterval overrides DefaultFlushInterval.
	FlushInterval time.Duration

	// EstimateInterval overrides DefaultEstimateInterval.
	EstimateInterval time.Duration

	// WindowCap overrides DefaultWindowCap.
	WindowCap int
}

// Manager owns every active session's live state: it validates and
// appends telemetry, runs the fermentation estimator, batches points
// to the store, and fans events out to subscribers. The store
// remains the source of truth for session existence; the manager is
// the single writer for each key's in-flight data.
type Manager struct {
	store  *store.Store
	bus    *fanout.Bus
	clock  clock.Clock
	logger *slog.Logger

	flushThreshold   int
	flushInterval    time.Duration
	estimateInterval time.Duration
	windowCap        int

	mu      sync.RWMutex
	entries map[key]*entry

	// Operational counters for the status endpoint.
	ingestBatches  atomic.Uint64
	ingestSamples  atomic.Uint64
	flaggedSamples atomic.Uint64
	droppedSamples atomic.Uint64
	flushCount     atomic.Uint64
	flushErrors    atomic.Uint64
	autoCompletes  atomic.Uint64
}

// New validates the configuration and returns a manager. Call
// Rehydrate before serving traffic and Run for the background flush
// loop.
func New(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("session manager: Store is required")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("session manager: Bus is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("session manager: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("session manager: Logger is required")
	}

	threshold := cfg.FlushThreshold
	if threshold <= 0 {
		threshold = DefaultFlushThreshold
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	estimateInterval := cfg.EstimateInterval
	if estimateInterval <= 0 {
		estimateInterval = DefaultEstimateInterval
	}
	windowCap := cfg.WindowCap
	if windowCap <= 0 {
		windowCap = DefaultWindowCap
	}

	return &Manager{
		store:            cfg.Store,
		bus:              cfg.Bus,
		clock:            cfg.Clock,
		logger:           cfg.Logger.With("component", "session-manager"),
		flushThreshold:   threshold,
		flushInterval:    flushInterval,
		estimateInterval: estimateInterval,
		windowCap:        windowCap,
		entries:          make(map[key]*entry),
	}, nil
}

// Rehydrate loads every active session and its point history from
// the store. Called once at startup, before ingestion begins, so a
// restart does not orphan running sessions.
func (m *Manager) Rehydrate(ctx context.Context) error {
	sessions, err := m.store.AllActiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("loading active sessions: %w", err)
	}

	now := m.clock.Now().UTC()
	for _, session := range sessions {
		points, err := m.store.LoadPoints(ctx, session.ID)
		if err != nil {
			return fmt.Errorf("loading points for session %s: %w", session.GUID, err)
		}

		e := &entry{
			session: session,
			window:  trimWindow(points, m.windowCap),
		}
		if n := len(e.window); n > 0 {
			e.lastTime = e.window[n-1].Time
		}
		for i := len(e.window) - 1; i >= 0; i-- {
			if v := e.window[i].Voltage; v != nil {
				e.voltage = v
				break
			}
		}
		if session.Type == schema.SessionFerm {
			result := estimator.EstimateSession(session, e.window, now)
			e.estimate = &result
		}

		m.mu.Lock()
		m.entries[key{uid: session.UID, kind: session.Type}] = e
		m.mu.Unlock()
	}

	if len(sessions) > 0 {
		m.logger.Info("rehydrated active sessions", "count", len(sessions))
	}
	return nil
}

// Start creates an Active session for the key and installs its live
// entry. The store's immediate transaction plus partial unique index
// make the existence-check-and-create atomic; concurrent starts for
// one key cannot both succeed. Publishes nothing; subscribers learn
// about the session from its first telemetry event.
func (m *Manager) Start(ctx context.Context, uid string, kind schema.SessionType, params schema.SessionParams) (*schema.Session, error) {
	session, err := m.store.StartSession(ctx, uid, kind, params)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.entries[key{uid: uid, kind: kind}] = &entry{session: session}
	m.mu.Unlock()

	return session, nil
}

// Stop completes the key's Active session with a manual reason:
// drain the pending buffer, commit the terminal transition, remove
// the live entry. NotFoundError when the key is idle.
func (m *Manager) Stop(ctx context.Context, uid string, kind schema.SessionType) (*schema.Session, error) {
	k := key{uid: uid, kind: kind}
	e := m.entry(k)
	if e == nil {
		// The store is authoritative. Normally no entry means no
		// active session and this surfaces its NotFoundError; an
		// active row without an entry can only come from a skipped
		// rehydration and is completed directly.
		session, err := m.store.ActiveSession(ctx, uid, kind)
		if err != nil {
			return nil, err
		}
		m.logger.Warn("active session had no live entry",
			"uid", uid, "session_type", kind, "guid", session.GUID)
		completed, _, err := m.store.CompleteSession(ctx, session.ID, schema.CompletionManual)
		return completed, err
	}

	session, transitioned, err := m.complete(ctx, k, e, schema.CompletionManual)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		// Lost a race with another completion: by the time this
		// stop ran there was no active session left.
		return nil, &store.NotFoundError{Kind: "session", Key: uid + "/" + string(kind)}
	}
	return session, nil
}

// complete is the single terminal-transition path for manual stops
// and estimator-triggered completions. Exactly-once: the store's
// conditional update decides the winner when paths race, and the
// completion event publishes only after the transition is committed.
func (m *Manager) complete(ctx context.Context, k key, e *entry, reason schema.CompletionReason) (*schema.Session, bool, error) {
	e.mu.Lock()
	if e.completing {
		e.mu.Unlock()
		return nil, false, nil
	}
	e.completing = true
	pending := e.pending
	e.pending = nil
	sessionID := e.session.ID
	e.mu.Unlock()

	// Drain before the transition so the durable history is whole
	// when the terminal state commits.
	m.flushBatch(ctx, sessionID, pending)

	session, transitioned, err := m.store.CompleteSession(ctx, sessionID, reason)
	if err != nil {
		// The session is still active in the store; reopen the
		// entry so a later stop can retry.
		e.mu.Lock()
		e.completing = false
		e.mu.Unlock()
		return nil, false, err
	}

	m.removeEntry(k)

	if transitioned && reason == schema.CompletionAuto {
		m.autoCompletes.Add(1)
		m.publish(schema.AutoCompleteChannel(session.UID), schema.EventKindAutoComplete, schema.AutoCompleteEvent{
			UID:    session.UID,
			GUID:   session.GUID,
			Reason: schema.AutoCompleteReason,
			Status: "complete",
		})
		m.logger.Info("session auto-completed",
			"uid", session.UID, "guid", session.GUID)
	}

	return session, transitioned, nil
}

// flushBatch writes one drained buffer as a durable batch. Failures
// are counted and logged, never propagated: the points stay in the
// live window, and ingestion must not stall on storage trouble.
func (m *Manager) flushBatch(ctx context.Context, sessionID int64, points []schema.TelemetryPoint) {
	if len(points) == 0 {
		return
	}
	if err := m.store.AppendBatch(ctx, sessionID, points); err != nil {
		m.flushErrors.Add(1)
		m.logger.Error("point batch flush failed",
			"session_id", sessionID, "points", len(points), "error", err)
		return
	}
	m.flushCount.Add(1)
}

// Run drives the background flush and estimate tickers. Blocks until
// ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	flush := m.clock.NewTicker(m.flushInterval)
	defer flush.Stop()
	estimate := m.clock.NewTicker(m.estimateInterval)
	defer estimate.Stop()

	for {
		select {
		case <-flush.C:
			m.tickFlush(ctx)
		case <-estimate.C:
			m.tickEstimate(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// tickFlush drains every non-empty pending buffer.
func (m *Manager) tickFlush(ctx context.Context) {
	for _, e := range m.snapshotEntries() {
		e.mu.Lock()
		pending := e.pending
		e.pending = nil
		sessionID := e.session.ID
		e.mu.Unlock()

		m.flushBatch(ctx, sessionID, pending)
	}
}

// tickEstimate re-runs the estimator for every live ferm session.
// Ingestion already estimates inline; this sweep keeps progress
// moving, and auto-completion firing, for sessions whose devices
// have gone quiet.
func (m *Manager) tickEstimate(ctx context.Context) {
	now := m.clock.Now().UTC()
	for _, e := range m.snapshotEntries() {
		e.mu.Lock()
		if e.completing || e.session.Type != schema.SessionFerm {
			e.mu.Unlock()
			continue
		}
		result := estimator.EstimateSession(e.session, e.window, now)
		e.estimate = &result
		uid := e.session.UID
		guid := e.session.GUID
		k := key{uid: uid, kind: e.session.Type}
		e.mu.Unlock()

		if result.CanEstimate {
			m.publish(schema.StatusUpdateChannel(uid), schema.EventKindStatusUpdate, schema.StatusUpdateEvent{
				UID:      uid,
				GUID:     guid,
				Estimate: result,
			})
		}
		if result.ShouldComplete {
			if _, _, err := m.complete(ctx, k, e, schema.CompletionAuto); err != nil {
				m.logger.Error("auto-complete failed",
					"uid", uid, "guid", guid, "error", err)
			}
		}
	}
}

// Close drains all pending buffers during graceful shutdown. It does
// not complete sessions; fermentations keep running while the
// server is down, and Rehydrate picks them back up on restart.
func (m *Manager) Close(ctx context.Context) {
	var drained int
	for _, e := range m.snapshotEntries() {
		e.mu.Lock()
		pending := e.pending
		e.pending = nil
		sessionID := e.session.ID
		e.mu.Unlock()

		if len(pending) == 0 {
			continue
		}
		m.flushBatch(ctx, sessionID, pending)
		drained++
	}
	m.logger.Info("session manager drained", "buffers_flushed", drained)
}

func (m *Manager) entry(k key) *entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[k]
}

func (m *Manager) removeEntry(k key) {
	m.mu.Lock()
	delete(m.entries, k)
	m.mu.Unlock()
}

func (m *Manager) snapshotEntries() []*entry {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()
	return entries
}

// publish encodes a payload once and hands it to the bus.
// Fire-and-forget: encode failures log, never propagate, and the
// bus itself never blocks.
func (m *Manager) publish(channel, kind string, payload any) {
	data, err := codec.Marshal(payload)
	if err != nil {
		m.logger.Error("event encode failed",
			"channel", channel, "kind", kind, "error", err)
		return
	}
	m.bus.Publish(schema.StreamEvent{Channel: channel, Kind: kind, Payload: data})
}

// Stats is a snapshot of the manager's operational counters.
type Stats struct {
	ActiveSessions int    `json:"active_sessions"`
	IngestBatches  uint64 `json:"ingest_batches"`
	IngestSamples  uint64 `json:"ingest_samples"`
	FlaggedSamples uint64 `json:"flagged_samples"`
	DroppedSamples uint64 `json:"dropped_samples"`
	FlushCount     uint64 `json:"flush_count"`
	FlushErrors    uint64 `json:"flush_errors"`
	AutoCompletes  uint64 `json:"auto_completes"`
}

// Stats returns the manager's operational counters for the status
// endpoint.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	active := len(m.entries)
	m.mu.RUnlock()

	return Stats{
		ActiveSessions: active,
		IngestBatches:  m.ingestBatches.Load(),
		IngestSamples:  m.ingestSamples.Load(),
		FlaggedSamples: m.flaggedSamples.Load(),
		DroppedSamples: m.droppedSamples.Load(),
		FlushCount:     m.flushCount.Load(),
		FlushErrors:    m.flushErrors.Load(),
		AutoCompletes:  m.autoCompletes.Load(),
	}
}
