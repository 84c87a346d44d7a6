// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"errors"
	"fmt"

	"github.com/brewshed/brewshed/lib/schema"
)

// ConflictError means a session start collided with an existing
// active session on the same (uid, session type) key. ExistingGUID
// identifies the session already holding the key.
type ConflictError struct {
	UID          string
	Type         schema.SessionType
	ExistingGUID string
}

func (err *ConflictError) Error() string {
	return fmt.Sprintf("device %s already has an active %s session (%s)",
		err.UID, err.Type, err.ExistingGUID)
}

// NotFoundError means a device or session lookup found nothing. Kind
// names what was looked up ("device" or "session"); Key is the
// identifier that missed.
type NotFoundError struct {
	Kind string
	Key  string
}

func (err *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", err.Kind, err.Key)
}

// PersistenceError wraps a write that failed twice. Handlers map it
// to a 500; the wrapped error keeps the SQLite detail for the log.
type PersistenceError struct {
	Op  string
	Err error
}

func (err *PersistenceError) Error() string {
	return fmt.Sprintf("persisting %s: %v", err.Op, err.Err)
}

func (err *PersistenceError) Unwrap() error { return err.Err }

// IsConflict reports whether err is an active-session conflict.
func IsConflict(err error) bool {
	var conflictError *ConflictError
	return errors.As(err, &conflictError)
}

// IsNotFound reports whether err is a missing device or session.
func IsNotFound(err error) bool {
	var notFoundError *NotFoundError
	return errors.As(err, &notFoundError)
}

// IsPersistence reports whether err is a write failure that survived
// the retry.
func IsPersistence(err error) bool {
	var persistenceError *PersistenceError
	return errors.As(err, &persistenceError)
}

// isDomainError reports whether err carries domain meaning that the
// write retry must pass through untouched.
func isDomainError(err error) bool {
	return IsConflict(err) || IsNotFound(err)
}
