// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/brewshed/brewshed/lib/schema"
)

// UpsertDevice registers a device or refreshes an existing one. The
// device type always follows the request; the alias is replaced only
// when the request carries a non-empty one, so re-registration from
// firmware does not wipe a user-chosen name. Returns the stored
// record.
func (s *Store) UpsertDevice(ctx context.Context, uid string, deviceType schema.DeviceType, alias string) (*schema.Device, error) {
	now := s.clock.Now().UTC().UnixNano()

	var device *schema.Device
	err := s.write(ctx, "device upsert", func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			INSERT INTO devices (uid, alias, device_type, first_seen, last_seen)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(uid) DO UPDATE SET
				device_type = excluded.device_type,
				last_seen   = excluded.last_seen,
				alias       = CASE WHEN excluded.alias != '' THEN excluded.alias ELSE devices.alias END`,
			&sqlitex.ExecOptions{Args: []any{uid, alias, string(deviceType), now, now}})
		if err != nil {
			return fmt.Errorf("upsert device %s: %w", uid, err)
		}
		device, err = getDevice(conn, uid)
		return err
	})
	if err != nil {
		return nil, err
	}
	return device, nil
}

// UpdateAlias changes a device's display name. NotFoundError when the
// device is unknown.
func (s *Store) UpdateAlias(ctx context.Context, uid, alias string) (*schema.Device, error) {
	var device *schema.Device
	err := s.write(ctx, "alias update", func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			"UPDATE devices SET alias = ? WHERE uid = ?",
			&sqlitex.ExecOptions{Args: []any{alias, uid}})
		if err != nil {
			return fmt.Errorf("update alias for %s: %w", uid, err)
		}
		if conn.Changes() == 0 {
			return &NotFoundError{Kind: "device", Key: uid}
		}
		device, err = getDevice(conn, uid)
		return err
	})
	if err != nil {
		return nil, err
	}
	return device, nil
}

// TouchDevice refreshes a device's last-seen time. Unknown devices
// are a silent no-op; the ingest path already gates on an active
// session.
func (s *Store) TouchDevice(ctx context.Context, uid string) error {
	now := s.clock.Now().UTC().UnixNano()
	return s.write(ctx, "device touch", func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			"UPDATE devices SET last_seen = ? WHERE uid = ?",
			&sqlitex.ExecOptions{Args: []any{now, uid}})
		if err != nil {
			return fmt.Errorf("touch device %s: %w", uid, err)
		}
		return nil
	})
}

// GetDevice returns a device by uid. NotFoundError when unknown.
func (s *Store) GetDevice(ctx context.Context, uid string) (*schema.Device, error) {
	var device *schema.Device
	err := s.read(ctx, func(conn *sqlite.Conn) error {
		var err error
		device, err = getDevice(conn, uid)
		return err
	})
	if err != nil {
		return nil, err
	}
	return device, nil
}

// ListDevices returns every registered device, most recently seen
// first.
func (s *Store) ListDevices(ctx context.Context) ([]*schema.Device, error) {
	var devices []*schema.Device
	err := s.read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"SELECT uid, alias, device_type, first_seen, last_seen FROM devices ORDER BY last_seen DESC",
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					devices = append(devices, scanDevice(stmt))
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}

func getDevice(conn *sqlite.Conn, uid string) (*schema.Device, error) {
	var device *schema.Device
	err := sqlitex.Execute(conn,
		"SELECT uid, alias, device_type, first_seen, last_seen FROM devices WHERE uid = ?",
		&sqlitex.ExecOptions{
			Args: []any{uid},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				device = scanDevice(stmt)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("get device %s: %w", uid, err)
	}
	if device == nil {
		return nil, &NotFoundError{Kind: "device", Key: uid}
	}
	return device, nil
}

func scanDevice(stmt *sqlite.Stmt) *schema.Device {
	// Columns: uid(0), alias(1), device_type(2), first_seen(3),
	// last_seen(4).
	return &schema.Device{
		UID:       stmt.ColumnText(0),
		Alias:     stmt.ColumnText(1),
		Type:      schema.DeviceType(stmt.ColumnText(2)),
		FirstSeen: time.Unix(0, stmt.ColumnInt64(3)).UTC(),
		LastSeen:  time.Unix(0, stmt.ColumnInt64(4)).UTC(),
	}
}
