// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/brewshed/brewshed/lib/clock"
	"github.com/brewshed/brewshed/lib/schema"
)

var storeTestEpoch = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) (*Store, *clock.FakeClock) {
	t.Helper()

	fakeClock := clock.Fake(storeTestEpoch)

	store, err := Open(Config{
		Path:     filepath.Join(t.TempDir(), "brewshed_test.db"),
		PoolSize: 2,
		Clock:    fakeClock,
		Logger:   testLogger(t),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("store.Close: %v", err)
		}
	})
	return store, fakeClock
}

// registerDevice is shorthand for the upsert most tests need before
// starting sessions.
func registerDevice(t *testing.T, store *Store, uid string, deviceType schema.DeviceType) {
	t.Helper()
	if _, err := store.UpsertDevice(context.Background(), uid, deviceType, ""); err != nil {
		t.Fatalf("UpsertDevice(%s): %v", uid, err)
	}
}

func TestOpenValidatesConfig(t *testing.T) {
	base := Config{
		Path:   filepath.Join(t.TempDir(), "test.db"),
		Clock:  clock.Fake(storeTestEpoch),
		Logger: testLogger(t),
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing path", func(c *Config) { c.Path = "" }},
		{"missing clock", func(c *Config) { c.Clock = nil }},
		{"missing logger", func(c *Config) { c.Logger = nil }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			config := base
			test.mutate(&config)
			if _, err := Open(config); err == nil {
				t.Fatal("Open accepted invalid config")
			}
		})
	}
}

func TestUpsertDeviceCreatesAndUpdates(t *testing.T) {
	store, fakeClock := openTestStore(t)
	ctx := context.Background()

	device, err := store.UpsertDevice(ctx, "ferm-001", schema.DeviceFerm, "Garage Fermenter")
	if err != nil {
		t.Fatalf("UpsertDevice (create): %v", err)
	}
	if device.Alias != "Garage Fermenter" {
		t.Errorf("alias = %q, want %q", device.Alias, "Garage Fermenter")
	}
	if !device.FirstSeen.Equal(storeTestEpoch) || !device.LastSeen.Equal(storeTestEpoch) {
		t.Errorf("fresh device timestamps = %v / %v, want both %v",
			device.FirstSeen, device.LastSeen, storeTestEpoch)
	}

	// A later upsert with no alias advances last_seen but keeps the
	// existing alias and first_seen.
	fakeClock.Advance(time.Hour)
	device, err = store.UpsertDevice(ctx, "ferm-001", schema.DeviceFerm, "")
	if err != nil {
		t.Fatalf("UpsertDevice (touch): %v", err)
	}
	if device.Alias != "Garage Fermenter" {
		t.Errorf("alias after empty upsert = %q, want preserved", device.Alias)
	}
	if !device.FirstSeen.Equal(storeTestEpoch) {
		t.Errorf("first_seen moved to %v", device.FirstSeen)
	}
	if want := storeTestEpoch.Add(time.Hour); !device.LastSeen.Equal(want) {
		t.Errorf("last_seen = %v, want %v", device.LastSeen, want)
	}

	// A non-empty alias replaces the stored one.
	device, err = store.UpsertDevice(ctx, "ferm-001", schema.DeviceFerm, "Basement Fermenter")
	if err != nil {
		t.Fatalf("UpsertDevice (rename): %v", err)
	}
	if device.Alias != "Basement Fermenter" {
		t.Errorf("alias after rename = %q", device.Alias)
	}
}

func TestUpdateAlias(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	registerDevice(t, store, "tilt-red", schema.DeviceTilt)

	device, err := store.UpdateAlias(ctx, "tilt-red", "Red Tilt")
	if err != nil {
		t.Fatalf("UpdateAlias: %v", err)
	}
	if device.Alias != "Red Tilt" {
		t.Errorf("alias = %q, want %q", device.Alias, "Red Tilt")
	}

	if _, err := store.UpdateAlias(ctx, "no-such-device", "x"); !IsNotFound(err) {
		t.Errorf("UpdateAlias on unknown device = %v, want NotFoundError", err)
	}
}

func TestTouchDevice(t *testing.T) {
	store, fakeClock := openTestStore(t)
	ctx := context.Background()
	registerDevice(t, store, "brew-1", schema.DeviceBrew)

	fakeClock.Advance(30 * time.Minute)
	if err := store.TouchDevice(ctx, "brew-1"); err != nil {
		t.Fatalf("TouchDevice: %v", err)
	}
	device, err := store.GetDevice(ctx, "brew-1")
	if err != nil {
		t.Fatalf("GetDevice: %v", err)
	}
	if want := storeTestEpoch.Add(30 * time.Minute); !device.LastSeen.Equal(want) {
		t.Errorf("last_seen = %v, want %v", device.LastSeen, want)
	}

	// Touching an unregistered device is a silent no-op.
	if err := store.TouchDevice(ctx, "never-seen"); err != nil {
		t.Errorf("TouchDevice on unknown device = %v, want nil", err)
	}
}

func TestListDevicesOrdersByLastSeen(t *testing.T) {
	store, fakeClock := openTestStore(t)
	ctx := context.Background()

	for _, uid := range []string{"a", "b", "c"} {
		registerDevice(t, store, uid, schema.DeviceISpindel)
		fakeClock.Advance(time.Minute)
	}
	// "a" was registered first; touching it makes it most recent.
	if err := store.TouchDevice(ctx, "a"); err != nil {
		t.Fatalf("TouchDevice: %v", err)
	}

	devices, err := store.ListDevices(ctx)
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("got %d devices, want 3", len(devices))
	}
	var uids []string
	for _, device := range devices {
		uids = append(uids, device.UID)
	}
	if uids[0] != "a" || uids[1] != "c" || uids[2] != "b" {
		t.Errorf("order = %v, want [a c b]", uids)
	}
}

func TestStartSessionUnknownDevice(t *testing.T) {
	store, _ := openTestStore(t)

	_, err := store.StartSession(context.Background(), "ghost", schema.SessionFerm, schema.SessionParams{})
	if !IsNotFound(err) {
		t.Fatalf("StartSession on unknown device = %v, want NotFoundError", err)
	}
}

func TestStartSessionConflict(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	registerDevice(t, store, "ferm-001", schema.DeviceFerm)

	first, err := store.StartSession(ctx, "ferm-001", schema.SessionFerm, schema.SessionParams{})
	if err != nil {
		t.Fatalf("StartSession (first): %v", err)
	}

	_, err = store.StartSession(ctx, "ferm-001", schema.SessionFerm, schema.SessionParams{})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second StartSession = %v, want ConflictError", err)
	}
	if conflict.ExistingGUID != first.GUID {
		t.Errorf("conflict reports guid %s, want %s", conflict.ExistingGUID, first.GUID)
	}
	if !IsConflict(err) {
		t.Error("IsConflict returned false for ConflictError")
	}
}

func TestStartSessionDistinctTypesCoexist(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	registerDevice(t, store, "multi", schema.DeviceStill)

	if _, err := store.StartSession(ctx, "multi", schema.SessionStill, schema.SessionParams{}); err != nil {
		t.Fatalf("StartSession (still): %v", err)
	}
	// The one-active invariant is scoped per (device, type) pair, so
	// a second type on the same device is fine.
	if _, err := store.StartSession(ctx, "multi", schema.SessionFerm, schema.SessionParams{}); err != nil {
		t.Fatalf("StartSession (ferm on same device): %v", err)
	}

	sessions, err := store.AllActiveSessions(ctx)
	if err != nil {
		t.Fatalf("AllActiveSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("got %d active sessions, want 2", len(sessions))
	}

	fermOnly, err := store.ActiveSessions(ctx, schema.SessionFerm)
	if err != nil {
		t.Fatalf("ActiveSessions: %v", err)
	}
	if len(fermOnly) != 1 || fermOnly[0].Type != schema.SessionFerm {
		t.Errorf("ferm-scoped actives = %d, want exactly the ferm session", len(fermOnly))
	}
}

func TestStartSessionPersistsParams(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	registerDevice(t, store, "ferm-001", schema.DeviceFerm)

	params := schema.SessionParams{
		TargetABV:         schema.Float64(6.2),
		TargetPressurePsi: schema.Float64(12),
		AutoComplete:      true,
		UseConservative:   true,
	}
	started, err := store.StartSession(ctx, "ferm-001", schema.SessionFerm, params)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	loaded, err := store.SessionByGUID(ctx, started.GUID)
	if err != nil {
		t.Fatalf("SessionByGUID: %v", err)
	}
	if loaded.TargetABV == nil || *loaded.TargetABV != 6.2 {
		t.Errorf("target_abv = %v, want 6.2", loaded.TargetABV)
	}
	if loaded.TargetPressurePsi == nil || *loaded.TargetPressurePsi != 12 {
		t.Errorf("target_pressure_psi = %v, want 12", loaded.TargetPressurePsi)
	}
	if !loaded.AutoComplete || !loaded.UseConservative {
		t.Errorf("flags = %v/%v, want true/true", loaded.AutoComplete, loaded.UseConservative)
	}
	if !loaded.StartDate.Equal(storeTestEpoch) {
		t.Errorf("start_date = %v, want %v", loaded.StartDate, storeTestEpoch)
	}
	if loaded.EndDate != nil {
		t.Errorf("end_date = %v on active session", loaded.EndDate)
	}
}

func TestCompleteSessionIdempotent(t *testing.T) {
	store, fakeClock := openTestStore(t)
	ctx := context.Background()
	registerDevice(t, store, "ferm-001", schema.DeviceFerm)

	started, err := store.StartSession(ctx, "ferm-001", schema.SessionFerm, schema.SessionParams{})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	fakeClock.Advance(48 * time.Hour)
	completed, transitioned, err := store.CompleteSession(ctx, started.ID, schema.CompletionManual)
	if err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}
	if !transitioned {
		t.Fatal("first CompleteSession did not transition")
	}
	if completed.Active {
		t.Error("session still active after completion")
	}
	if completed.CompletionReason != schema.CompletionManual {
		t.Errorf("reason = %q, want %q", completed.CompletionReason, schema.CompletionManual)
	}
	if completed.EndDate == nil {
		t.Fatal("end_date not set")
	}
	if want := storeTestEpoch.Add(48 * time.Hour); !completed.EndDate.Equal(want) {
		t.Errorf("end_date = %v, want %v", completed.EndDate, want)
	}

	// A second completion (the auto-complete path racing a manual
	// stop) reports no transition and leaves the record alone.
	fakeClock.Advance(time.Hour)
	again, transitioned, err := store.CompleteSession(ctx, started.ID, schema.CompletionAuto)
	if err != nil {
		t.Fatalf("CompleteSession (second): %v", err)
	}
	if transitioned {
		t.Error("second CompleteSession reported a transition")
	}
	if again.CompletionReason != schema.CompletionManual {
		t.Errorf("reason after second call = %q, want %q", again.CompletionReason, schema.CompletionManual)
	}
	if !again.EndDate.Equal(*completed.EndDate) {
		t.Errorf("end_date moved to %v", again.EndDate)
	}

	if _, _, err := store.CompleteSession(ctx, 99999, schema.CompletionManual); !IsNotFound(err) {
		t.Errorf("CompleteSession on unknown id = %v, want NotFoundError", err)
	}
}

func TestActiveSessionLifecycle(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	registerDevice(t, store, "still-1", schema.DeviceStill)

	if _, err := store.ActiveSession(ctx, "still-1", schema.SessionStill); !IsNotFound(err) {
		t.Fatalf("ActiveSession before start = %v, want NotFoundError", err)
	}

	started, err := store.StartSession(ctx, "still-1", schema.SessionStill, schema.SessionParams{})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	active, err := store.ActiveSession(ctx, "still-1", schema.SessionStill)
	if err != nil {
		t.Fatalf("ActiveSession: %v", err)
	}
	if active.GUID != started.GUID {
		t.Errorf("active guid = %s, want %s", active.GUID, started.GUID)
	}

	if _, _, err := store.CompleteSession(ctx, started.ID, schema.CompletionManual); err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}
	if _, err := store.ActiveSession(ctx, "still-1", schema.SessionStill); !IsNotFound(err) {
		t.Errorf("ActiveSession after completion = %v, want NotFoundError", err)
	}
}

func TestSessionByGUIDMiss(t *testing.T) {
	store, _ := openTestStore(t)

	_, err := store.SessionByGUID(context.Background(), "not-a-guid")
	if !IsNotFound(err) {
		t.Fatalf("SessionByGUID miss = %v, want NotFoundError", err)
	}
}

func TestSessionAliasDenormalized(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	if _, err := store.UpsertDevice(ctx, "tilt-1", schema.DeviceTilt, "Cellar Tilt"); err != nil {
		t.Fatalf("UpsertDevice: %v", err)
	}
	started, err := store.StartSession(ctx, "tilt-1", schema.SessionTilt, schema.SessionParams{})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	loaded, err := store.SessionByGUID(ctx, started.GUID)
	if err != nil {
		t.Fatalf("SessionByGUID: %v", err)
	}
	if loaded.Alias != "Cellar Tilt" {
		t.Errorf("session alias = %q, want device alias", loaded.Alias)
	}
}

func TestSessionHistory(t *testing.T) {
	store, fakeClock := openTestStore(t)
	ctx := context.Background()
	registerDevice(t, store, "ferm-a", schema.DeviceFerm)
	registerDevice(t, store, "ferm-b", schema.DeviceFerm)

	// Three completed ferm sessions at one-hour intervals, then one
	// still active. History must only show the completed ones.
	var guids []string
	starts := []string{"ferm-a", "ferm-b", "ferm-a"}
	for _, uid := range starts {
		session, err := store.StartSession(ctx, uid, schema.SessionFerm, schema.SessionParams{})
		if err != nil {
			t.Fatalf("StartSession(%s): %v", uid, err)
		}
		guids = append(guids, session.GUID)
		fakeClock.Advance(30 * time.Minute)
		if _, _, err := store.CompleteSession(ctx, session.ID, schema.CompletionManual); err != nil {
			t.Fatalf("CompleteSession: %v", err)
		}
		fakeClock.Advance(30 * time.Minute)
	}
	if _, err := store.StartSession(ctx, "ferm-a", schema.SessionFerm, schema.SessionParams{}); err != nil {
		t.Fatalf("StartSession (active): %v", err)
	}

	history, err := store.SessionHistory(ctx, schema.SessionFerm, HistoryFilter{})
	if err != nil {
		t.Fatalf("SessionHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("got %d completed sessions, want 3", len(history))
	}
	// Newest first.
	if history[0].GUID != guids[2] || history[2].GUID != guids[0] {
		t.Errorf("history order wrong: got [%s %s %s]",
			history[0].GUID, history[1].GUID, history[2].GUID)
	}
	for i, session := range history {
		if session.Active {
			t.Errorf("history[%d] is active", i)
		}
	}

	// Paging.
	page, err := store.SessionHistory(ctx, schema.SessionFerm, HistoryFilter{Limit: 2})
	if err != nil {
		t.Fatalf("SessionHistory (limit): %v", err)
	}
	if len(page) != 2 {
		t.Errorf("limit 2: got %d", len(page))
	}
	page, err = store.SessionHistory(ctx, schema.SessionFerm, HistoryFilter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("SessionHistory (offset): %v", err)
	}
	if len(page) != 1 || page[0].GUID != guids[0] {
		t.Errorf("offset 2: got %d sessions", len(page))
	}

	// Device filter.
	page, err = store.SessionHistory(ctx, schema.SessionFerm, HistoryFilter{UID: "ferm-b"})
	if err != nil {
		t.Fatalf("SessionHistory (uid): %v", err)
	}
	if len(page) != 1 || page[0].UID != "ferm-b" {
		t.Errorf("uid filter: got %d sessions", len(page))
	}

	// Other types have no history.
	page, err = store.SessionHistory(ctx, schema.SessionBrew, HistoryFilter{})
	if err != nil {
		t.Fatalf("SessionHistory (brew): %v", err)
	}
	if len(page) != 0 {
		t.Errorf("brew history: got %d sessions, want 0", len(page))
	}
}

func TestSessionHistoryCapsLimit(t *testing.T) {
	store, fakeClock := openTestStore(t)
	ctx := context.Background()
	registerDevice(t, store, "ferm-001", schema.DeviceFerm)

	for range 55 {
		session, err := store.StartSession(ctx, "ferm-001", schema.SessionFerm, schema.SessionParams{})
		if err != nil {
			t.Fatalf("StartSession: %v", err)
		}
		if _, _, err := store.CompleteSession(ctx, session.ID, schema.CompletionManual); err != nil {
			t.Fatalf("CompleteSession: %v", err)
		}
		fakeClock.Advance(time.Minute)
	}

	history, err := store.SessionHistory(ctx, schema.SessionFerm, HistoryFilter{Limit: 500})
	if err != nil {
		t.Fatalf("SessionHistory: %v", err)
	}
	if len(history) != 50 {
		t.Errorf("limit 500: got %d sessions, want cap of 50", len(history))
	}

	history, err = store.SessionHistory(ctx, schema.SessionFerm, HistoryFilter{})
	if err != nil {
		t.Fatalf("SessionHistory (default): %v", err)
	}
	if len(history) != 10 {
		t.Errorf("default limit: got %d sessions, want 10", len(history))
	}
}

func TestStats(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	registerDevice(t, store, "ferm-001", schema.DeviceFerm)
	registerDevice(t, store, "tilt-1", schema.DeviceTilt)

	ferm, err := store.StartSession(ctx, "ferm-001", schema.SessionFerm, schema.SessionParams{})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := store.StartSession(ctx, "tilt-1", schema.SessionTilt, schema.SessionParams{}); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	points := []schema.TelemetryPoint{
		{Time: storeTestEpoch, TempF: schema.Float64(68)},
		{Time: storeTestEpoch.Add(time.Minute), TempF: schema.Float64(68.5)},
	}
	if err := store.AppendBatch(ctx, ferm.ID, points); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.DeviceCount != 2 {
		t.Errorf("DeviceCount = %d, want 2", stats.DeviceCount)
	}
	if stats.SessionCount != 2 {
		t.Errorf("SessionCount = %d, want 2", stats.SessionCount)
	}
	if stats.ActiveByType[schema.SessionFerm] != 1 || stats.ActiveByType[schema.SessionTilt] != 1 {
		t.Errorf("ActiveByType = %v", stats.ActiveByType)
	}
	if stats.BatchCount != 1 {
		t.Errorf("BatchCount = %d, want 1", stats.BatchCount)
	}
	if stats.PointCount != 2 {
		t.Errorf("PointCount = %d, want 2", stats.PointCount)
	}
	if stats.DatabaseSizeBytes <= 0 {
		t.Errorf("DatabaseSizeBytes = %d", stats.DatabaseSizeBytes)
	}
}
