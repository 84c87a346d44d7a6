// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package recipe

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports every rule violation found in a recipe, not
// just the first. Callers render Violations individually; Error joins
// them for logs.
type ValidationError struct {
	Violations []string
}

func (err *ValidationError) Error() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "invalid recipe: %d violation", len(err.Violations))
	if len(err.Violations) != 1 {
		builder.WriteString("s")
	}
	for _, violation := range err.Violations {
		builder.WriteString("; ")
		builder.WriteString(violation)
	}
	return builder.String()
}

// ProtocolMismatchError reports a recipe whose device type disagrees
// with the device it was submitted for.
type ProtocolMismatchError struct {
	RecipeDevice DeviceType
	TargetDevice DeviceType
}

func (err *ProtocolMismatchError) Error() string {
	return fmt.Sprintf("recipe targets %s, not %s", err.RecipeDevice, err.TargetDevice)
}

// NotFoundError reports a recipe id with no file in the device's
// partition.
type NotFoundError struct {
	Device DeviceType
	ID     string
}

func (err *NotFoundError) Error() string {
	return fmt.Sprintf("no %s recipe with id %q", err.Device, err.ID)
}

// ConflictError reports a save that would replace an existing recipe
// file without the overwrite flag.
type ConflictError struct {
	Filename string
}

func (err *ConflictError) Error() string {
	return fmt.Sprintf("recipe file %q already exists", err.Filename)
}

// IsValidation reports whether err is a recipe validation failure.
func IsValidation(err error) bool {
	var validationError *ValidationError
	return errors.As(err, &validationError)
}

// IsNotFound reports whether err is a missing-recipe failure.
func IsNotFound(err error) bool {
	var notFoundError *NotFoundError
	return errors.As(err, &notFoundError)
}

// IsConflict reports whether err is a filename collision.
func IsConflict(err error) bool {
	var conflictError *ConflictError
	return errors.As(err, &conflictError)
}
