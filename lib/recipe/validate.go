// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package recipe

import "fmt"

// Validate checks a recipe against its device protocol's rules and
// returns a *ValidationError listing every violation. An empty ID is
// not a violation; it is a request for the file store to assign one
// on save. A non-empty ID must match the protocol's format.
func Validate(recipe *Recipe) error {
	deviceRule, ok := deviceRules[recipe.DeviceType]
	if !ok {
		return &ValidationError{Violations: []string{
			fmt.Sprintf("device_type: unknown device type %q", recipe.DeviceType),
		}}
	}

	var violations []string

	if len(recipe.Steps) == 0 {
		violations = append(violations, "steps: recipe has no steps")
	}
	if recipe.ID != "" && !deviceRule.idPattern.MatchString(recipe.ID) {
		violations = append(violations,
			fmt.Sprintf("id: %q is not %s", recipe.ID, deviceRule.idHint))
	}

	for i, step := range recipe.Steps {
		if !deviceRule.locations[step.Location] {
			violations = append(violations,
				fmt.Sprintf("steps[%d] %q: location %q is not available on a %s",
					i, step.Name, step.Location, recipe.DeviceType))
		}
		if step.TemperatureF < 0 {
			violations = append(violations,
				fmt.Sprintf("steps[%d] %q: temperature %d is negative", i, step.Name, step.TemperatureF))
		}
		if step.StepTimeMin < 0 {
			violations = append(violations,
				fmt.Sprintf("steps[%d] %q: step time %d is negative", i, step.Name, step.StepTimeMin))
		}
		if step.DrainTimeMin < 0 {
			violations = append(violations,
				fmt.Sprintf("steps[%d] %q: drain time %d is negative", i, step.Name, step.DrainTimeMin))
		}
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// CheckDevice verifies that a recipe claiming a device type matches
// the target device. A recipe with no device type set passes: it is
// adopted by the target.
func CheckDevice(recipe *Recipe, target DeviceType) error {
	if recipe.DeviceType == "" || recipe.DeviceType == target {
		return nil
	}
	return &ProtocolMismatchError{RecipeDevice: recipe.DeviceType, TargetDevice: target}
}
