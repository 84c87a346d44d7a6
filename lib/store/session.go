// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/brewshed/brewshed/lib/schema"
)

// sessionColumns is the fixed column order every session query
// selects; scanSession depends on it. The devices join supplies the
// display alias.
const sessionColumns = `s.id, s.guid, s.uid, s.session_type, s.active,
	s.start_date, s.end_date, s.target_abv, s.target_pressure_psi,
	s.auto_complete, s.use_conservative, s.completion_reason,
	s.point_count, COALESCE(d.alias, '')`

const sessionFrom = ` FROM sessions s LEFT JOIN devices d ON d.uid = s.uid`

// StartSession atomically creates an active session for the
// (uid, sessionType) key. The existence check and insert share one
// immediate transaction, so two concurrent starts cannot both
// succeed; the partial unique index backs the same invariant at the
// schema level. NotFoundError when the device is unregistered,
// ConflictError when the key already has an active session.
func (s *Store) StartSession(ctx context.Context, uid string, sessionType schema.SessionType, params schema.SessionParams) (*schema.Session, error) {
	startDate := s.clock.Now().UTC()

	var session *schema.Session
	err := s.write(ctx, "session start", func(conn *sqlite.Conn) error {
		if _, err := getDevice(conn, uid); err != nil {
			return err
		}

		existing, err := queryOneSession(conn,
			"WHERE s.uid = ? AND s.session_type = ? AND s.active = 1",
			uid, string(sessionType))
		if err != nil {
			return err
		}
		if existing != nil {
			return &ConflictError{UID: uid, Type: sessionType, ExistingGUID: existing.GUID}
		}

		guid := uuid.NewString()
		var targetABV, targetPressure any
		if params.TargetABV != nil {
			targetABV = *params.TargetABV
		}
		if params.TargetPressurePsi != nil {
			targetPressure = *params.TargetPressurePsi
		}

		err = sqlitex.Execute(conn, `
			INSERT INTO sessions
				(guid, uid, session_type, active, start_date,
				 target_abv, target_pressure_psi, auto_complete, use_conservative)
			VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				guid, uid, string(sessionType), startDate.UnixNano(),
				targetABV, targetPressure,
				boolInt(params.AutoComplete), boolInt(params.UseConservative),
			}})
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}

		session = &schema.Session{
			ID:                conn.LastInsertRowID(),
			GUID:              guid,
			UID:               uid,
			Type:              sessionType,
			Active:            true,
			StartDate:         startDate,
			TargetABV:         params.TargetABV,
			TargetPressurePsi: params.TargetPressurePsi,
			AutoComplete:      params.AutoComplete,
			UseConservative:   params.UseConservative,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("session started",
		"uid", uid,
		"session_type", sessionType,
		"guid", session.GUID,
	)
	return session, nil
}

// CompleteSession transitions an active session to its terminal
// state. Returns the record and whether this call performed the
// transition: false means the session was already completed, which
// the auto-complete path treats as a silent no-op. NotFoundError
// when no session has the id.
func (s *Store) CompleteSession(ctx context.Context, sessionID int64, reason schema.CompletionReason) (*schema.Session, bool, error) {
	endDate := s.clock.Now().UTC().UnixNano()

	var session *schema.Session
	var transitioned bool
	err := s.write(ctx, "session complete", func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			UPDATE sessions SET active = 0, end_date = ?, completion_reason = ?
			WHERE id = ? AND active = 1`,
			&sqlitex.ExecOptions{Args: []any{endDate, string(reason), sessionID}})
		if err != nil {
			return fmt.Errorf("complete session %d: %w", sessionID, err)
		}
		transitioned = conn.Changes() > 0

		session, err = queryRequiredSession(conn, "WHERE s.id = ?",
			fmt.Sprintf("%d", sessionID), sessionID)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	if transitioned {
		s.logger.Info("session completed",
			"uid", session.UID,
			"session_type", session.Type,
			"guid", session.GUID,
			"reason", reason,
		)
	}
	return session, transitioned, nil
}

// ActiveSession returns the active session for a key. NotFoundError
// when the key is idle.
func (s *Store) ActiveSession(ctx context.Context, uid string, sessionType schema.SessionType) (*schema.Session, error) {
	var session *schema.Session
	err := s.read(ctx, func(conn *sqlite.Conn) error {
		var err error
		session, err = queryRequiredSession(conn,
			"WHERE s.uid = ? AND s.session_type = ? AND s.active = 1",
			uid+"/"+string(sessionType), uid, string(sessionType))
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// SessionByGUID returns a session by its external identifier.
func (s *Store) SessionByGUID(ctx context.Context, guid string) (*schema.Session, error) {
	var session *schema.Session
	err := s.read(ctx, func(conn *sqlite.Conn) error {
		var err error
		session, err = queryRequiredSession(conn, "WHERE s.guid = ?", guid, guid)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ActiveSessions returns every active session of one type, newest
// first.
func (s *Store) ActiveSessions(ctx context.Context, sessionType schema.SessionType) ([]*schema.Session, error) {
	return s.querySessions(ctx,
		"WHERE s.session_type = ? AND s.active = 1 ORDER BY s.start_date DESC",
		string(sessionType))
}

// AllActiveSessions returns every active session of every type. The
// session manager rehydrates from this at startup.
func (s *Store) AllActiveSessions(ctx context.Context) ([]*schema.Session, error) {
	return s.querySessions(ctx, "WHERE s.active = 1 ORDER BY s.start_date ASC")
}

// HistoryFilter selects completed sessions. Zero-valued fields are
// not applied.
type HistoryFilter struct {
	// UID restricts history to one device.
	UID string

	// Limit caps the result count. Default 10, maximum 50.
	Limit int

	// Offset skips past results for paging.
	Offset int
}

// SessionHistory returns completed sessions of one type, newest
// first.
func (s *Store) SessionHistory(ctx context.Context, sessionType schema.SessionType, filter HistoryFilter) ([]*schema.Session, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}
	offset := max(filter.Offset, 0)

	conditions := []string{"s.session_type = ?", "s.active = 0"}
	args := []any{string(sessionType)}
	if filter.UID != "" {
		conditions = append(conditions, "s.uid = ?")
		args = append(args, filter.UID)
	}

	where := "WHERE " + strings.Join(conditions, " AND ") +
		" ORDER BY s.start_date DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	return s.querySessions(ctx, where, args...)
}

func (s *Store) querySessions(ctx context.Context, where string, args ...any) ([]*schema.Session, error) {
	var sessions []*schema.Session
	err := s.read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"SELECT "+sessionColumns+sessionFrom+" "+where,
			&sqlitex.ExecOptions{
				Args: args,
				ResultFunc: func(stmt *sqlite.Stmt) error {
					sessions = append(sessions, scanSession(stmt))
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	return sessions, nil
}

// queryOneSession returns the first matching session or nil.
func queryOneSession(conn *sqlite.Conn, where string, args ...any) (*schema.Session, error) {
	var session *schema.Session
	err := sqlitex.Execute(conn,
		"SELECT "+sessionColumns+sessionFrom+" "+where+" LIMIT 1",
		&sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				session = scanSession(stmt)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return session, nil
}

// queryRequiredSession is queryOneSession with a NotFoundError for
// the miss, keyed by a human-readable identifier.
func queryRequiredSession(conn *sqlite.Conn, where, key string, args ...any) (*schema.Session, error) {
	session, err := queryOneSession(conn, where, args...)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, &NotFoundError{Kind: "session", Key: key}
	}
	return session, nil
}

func scanSession(stmt *sqlite.Stmt) *schema.Session {
	// Columns: id(0), guid(1), uid(2), session_type(3), active(4),
	// start_date(5), end_date(6), target_abv(7),
	// target_pressure_psi(8), auto_complete(9), use_conservative(10),
	// completion_reason(11), point_count(12), alias(13).
	session := &schema.Session{
		ID:               stmt.ColumnInt64(0),
		GUID:             stmt.ColumnText(1),
		UID:              stmt.ColumnText(2),
		Type:             schema.SessionType(stmt.ColumnText(3)),
		Active:           stmt.ColumnInt(4) != 0,
		StartDate:        time.Unix(0, stmt.ColumnInt64(5)).UTC(),
		AutoComplete:     stmt.ColumnInt(9) != 0,
		UseConservative:  stmt.ColumnInt(10) != 0,
		CompletionReason: schema.CompletionReason(stmt.ColumnText(11)),
		PointCount:       stmt.ColumnInt(12),
		Alias:            stmt.ColumnText(13),
	}
	if !stmt.ColumnIsNull(6) {
		endDate := time.Unix(0, stmt.ColumnInt64(6)).UTC()
		session.EndDate = &endDate
	}
	if !stmt.ColumnIsNull(7) {
		session.TargetABV = schema.Float64(stmt.ColumnFloat(7))
	}
	if !stmt.ColumnIsNull(8) {
		session.TargetPressurePsi = schema.Float64(stmt.ColumnFloat(8))
	}
	return session
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
