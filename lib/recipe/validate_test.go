// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package recipe_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/brewshed/brewshed/lib/recipe"
)

func validPicoRecipe() *recipe.Recipe {
	return &recipe.Recipe{
		ID:         "0123456789ABCD",
		Name:       "Test Batch",
		DeviceType: recipe.DevicePico,
		Steps: []recipe.Step{
			{Name: "Dough In", Location: recipe.LocationMash, TemperatureF: 110, StepTimeMin: 7},
			{Name: "Boil", Location: recipe.LocationPassThru, TemperatureF: 202, StepTimeMin: 60},
		},
	}
}

func TestValidateAcceptsWellFormedRecipe(t *testing.T) {
	if err := recipe.Validate(validPicoRecipe()); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidatePicoRejectsPause(t *testing.T) {
	r := validPicoRecipe()
	r.Steps = append(r.Steps, recipe.Step{Name: "Connect Chiller", Location: recipe.LocationPause})

	err := recipe.Validate(r)
	if !recipe.IsValidation(err) {
		t.Fatalf("Validate() = %v, want validation error", err)
	}
	var validationError *recipe.ValidationError
	errors.As(err, &validationError)
	if len(validationError.Violations) != 1 {
		t.Fatalf("violations = %v, want exactly 1", validationError.Violations)
	}
	if !strings.Contains(validationError.Violations[0], "Connect Chiller") {
		t.Errorf("violation %q does not name the offending step", validationError.Violations[0])
	}
}

func TestValidateEnumeratesEveryViolation(t *testing.T) {
	r := &recipe.Recipe{
		ID:         "not-hex",
		Name:       "Broken",
		DeviceType: recipe.DevicePico,
		Steps: []recipe.Step{
			{Name: "Pause Here", Location: recipe.LocationPause},
			{Name: "Freeze", Location: recipe.LocationMash, TemperatureF: -10},
			{Name: "Rewind", Location: recipe.LocationMash, StepTimeMin: -5, DrainTimeMin: -1},
		},
	}

	err := recipe.Validate(r)
	var validationError *recipe.ValidationError
	if !errors.As(err, &validationError) {
		t.Fatalf("Validate() = %v, want *ValidationError", err)
	}
	// Bad id, bad location, negative temperature, negative step
	// time, negative drain time.
	if len(validationError.Violations) != 5 {
		t.Errorf("got %d violations, want 5: %v", len(validationError.Violations), validationError.Violations)
	}
}

func TestValidateEmptySteps(t *testing.T) {
	r := &recipe.Recipe{Name: "Empty", DeviceType: recipe.DeviceZymatic}
	err := recipe.Validate(r)
	if !recipe.IsValidation(err) {
		t.Fatalf("Validate() = %v, want validation error", err)
	}
}

func TestValidateIDFormats(t *testing.T) {
	tests := []struct {
		name   string
		device recipe.DeviceType
		id     string
		valid  bool
	}{
		{"pico_uppercase_hex", recipe.DevicePico, "0123456789ABCD", true},
		{"pico_lowercase_rejected", recipe.DevicePico, "0123456789abcd", false},
		{"pico_short", recipe.DevicePico, "ABC", false},
		{"zymatic_lowercase_hex", recipe.DeviceZymatic, "0123456789abcdef0123456789abcdef", true},
		{"zymatic_uppercase_rejected", recipe.DeviceZymatic, "0123456789ABCDEF0123456789ABCDEF", false},
		{"zseries_integer", recipe.DeviceZSeries, "42", true},
		{"zseries_hex_rejected", recipe.DeviceZSeries, "2a", false},
		{"empty_id_requests_assignment", recipe.DevicePico, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recipe.Recipe{
				ID:         tt.id,
				Name:       "ID Check",
				DeviceType: tt.device,
				Steps: []recipe.Step{
					{Name: "Mash", Location: recipe.LocationMash, TemperatureF: 152, StepTimeMin: 60},
				},
			}
			err := recipe.Validate(r)
			if tt.valid && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.valid && !recipe.IsValidation(err) {
				t.Errorf("Validate() = %v, want validation error", err)
			}
		})
	}
}

func TestValidateUnknownDevice(t *testing.T) {
	r := &recipe.Recipe{Name: "Mystery", DeviceType: "kegerator"}
	if !recipe.IsValidation(recipe.Validate(r)) {
		t.Error("unknown device type passed validation")
	}
}

func TestCheckDevice(t *testing.T) {
	r := validPicoRecipe()

	if err := recipe.CheckDevice(r, recipe.DevicePico); err != nil {
		t.Errorf("matching device: %v", err)
	}

	r.DeviceType = ""
	if err := recipe.CheckDevice(r, recipe.DeviceZymatic); err != nil {
		t.Errorf("unset device should be adopted: %v", err)
	}

	r.DeviceType = recipe.DevicePico
	err := recipe.CheckDevice(r, recipe.DeviceZSeries)
	var mismatch *recipe.ProtocolMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("CheckDevice() = %v, want *ProtocolMismatchError", err)
	}
	if mismatch.RecipeDevice != recipe.DevicePico || mismatch.TargetDevice != recipe.DeviceZSeries {
		t.Errorf("mismatch = %+v", mismatch)
	}
}

func TestParseDeviceType(t *testing.T) {
	tests := []struct {
		raw     string
		want    recipe.DeviceType
		wantErr bool
	}{
		{"pico", recipe.DevicePico, false},
		{"Zymatic", recipe.DeviceZymatic, false},
		{" zseries ", recipe.DeviceZSeries, false},
		{"z", recipe.DeviceZSeries, false},
		{"keurig", "", true},
	}
	for _, tt := range tests {
		got, err := recipe.ParseDeviceType(tt.raw)
		if tt.wantErr != (err != nil) {
			t.Errorf("ParseDeviceType(%q) error = %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDeviceType(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
