// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package recipe_test

import (
	"slices"
	"testing"
	"unicode/utf8"

	"github.com/brewshed/brewshed/lib/recipe"
)

// paleAleParams is a small all-grain recipe exercising a single mash
// rest and a three-charge hop schedule.
func paleAleParams() recipe.Params {
	return recipe.Params{
		Name:      "Porch Pounder",
		MashSteps: []recipe.MashStep{{Name: "Sacch Rest", TempF: 152, TimeMin: 60}},
		Hops: []recipe.HopAddition{
			{Name: "Bittering", TimeMin: 60},
			{Name: "Flavor", TimeMin: 15},
			{Name: "Aroma", TimeMin: 5},
		},
		BoilTimeMin: 60,
		OG:          1.050,
		IBU:         40,
		ABV:         5.0,
	}
}

func diffSteps(t *testing.T, got, want []recipe.Step) {
	t.Helper()
	if slices.Equal(got, want) {
		return
	}
	for i := 0; i < max(len(got), len(want)); i++ {
		var g, w recipe.Step
		if i < len(got) {
			g = got[i]
		}
		if i < len(want) {
			w = want[i]
		}
		if g != w {
			t.Errorf("step %d: got %+v, want %+v", i, g, w)
		}
	}
}

func TestBuildPicoProgram(t *testing.T) {
	built, err := recipe.Build(paleAleParams(), recipe.DevicePico)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := []recipe.Step{
		{Name: "Preparing To Brew", Location: recipe.LocationPrime, StepTimeMin: 3},
		{Name: "Heating", Location: recipe.LocationPassThru, TemperatureF: 110},
		{Name: "Dough In", Location: recipe.LocationMash, TemperatureF: 110, StepTimeMin: 7},
		{Name: "Sacch Rest", Location: recipe.LocationMash, TemperatureF: 152, StepTimeMin: 60, DrainTimeMin: 8},
		{Name: "Mash Out", Location: recipe.LocationMash, TemperatureF: 178, StepTimeMin: 7, DrainTimeMin: 2},
		{Name: "Bittering", Location: recipe.LocationAdjunct1, TemperatureF: 202, StepTimeMin: 45},
		{Name: "Flavor", Location: recipe.LocationAdjunct2, TemperatureF: 202, StepTimeMin: 10},
		{Name: "Aroma", Location: recipe.LocationAdjunct3, TemperatureF: 202, StepTimeMin: 5, DrainTimeMin: 5},
	}
	diffSteps(t, built.Steps, want)

	if err := recipe.Validate(built); err != nil {
		t.Errorf("built recipe failed validation: %v", err)
	}
	if built.StartWaterL != 0 {
		t.Errorf("StartWaterL = %v, want 0 for pico", built.StartWaterL)
	}
}

func TestBuildZymaticProgram(t *testing.T) {
	built, err := recipe.Build(paleAleParams(), recipe.DeviceZymatic)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := []recipe.Step{
		{Name: "Heat Mash", Location: recipe.LocationPassThru, TemperatureF: 152},
		{Name: "Sacch Rest", Location: recipe.LocationMash, TemperatureF: 152, StepTimeMin: 60, DrainTimeMin: 8},
		{Name: "Heat to Mash Out", Location: recipe.LocationPassThru, TemperatureF: 175},
		{Name: "Mash Out", Location: recipe.LocationMash, TemperatureF: 175, StepTimeMin: 15, DrainTimeMin: 8},
		{Name: "Heat to Boil", Location: recipe.LocationPassThru, TemperatureF: 207},
		{Name: "Bittering", Location: recipe.LocationAdjunct1, TemperatureF: 207, StepTimeMin: 45},
		{Name: "Flavor", Location: recipe.LocationAdjunct2, TemperatureF: 207, StepTimeMin: 10},
		{Name: "Aroma", Location: recipe.LocationAdjunct3, TemperatureF: 207, StepTimeMin: 5},
		{Name: "Connect Chiller", Location: recipe.LocationPause},
		{Name: "Chill", Location: recipe.LocationPassThru, TemperatureF: 66, StepTimeMin: 10, DrainTimeMin: 10},
	}
	diffSteps(t, built.Steps, want)

	if err := recipe.Validate(built); err != nil {
		t.Errorf("built recipe failed validation: %v", err)
	}
}

func TestBuildZSeriesProgram(t *testing.T) {
	params := recipe.Params{
		Name: "Weissbier",
		MashSteps: []recipe.MashStep{
			{Name: "Protein Rest", TempF: 122, TimeMin: 15},
			{Name: "Sacch Rest", TempF: 152, TimeMin: 45},
		},
		Hops:        []recipe.HopAddition{{Name: "Hallertau", TimeMin: 60}},
		BoilTimeMin: 60,
		BoilSizeL:   20,
	}
	built, err := recipe.Build(params, recipe.DeviceZSeries)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := []recipe.Step{
		{Name: "Heat Water", Location: recipe.LocationPassThru, TemperatureF: 104},
		{Name: "Dough In", Location: recipe.LocationMash, TemperatureF: 104, StepTimeMin: 20, DrainTimeMin: 4},
		{Name: "Protein Rest", Location: recipe.LocationMash, TemperatureF: 122, StepTimeMin: 15, DrainTimeMin: 4},
		{Name: "Heat to Mash 2", Location: recipe.LocationMash, TemperatureF: 152, DrainTimeMin: 4},
		{Name: "Sacch Rest", Location: recipe.LocationMash, TemperatureF: 152, StepTimeMin: 45, DrainTimeMin: 4},
		{Name: "Heat to Mash Out", Location: recipe.LocationMash, TemperatureF: 175, DrainTimeMin: 4},
		{Name: "Mash Out", Location: recipe.LocationMash, TemperatureF: 175, StepTimeMin: 15, DrainTimeMin: 8},
		{Name: "Heat to Boil", Location: recipe.LocationPassThru, TemperatureF: 207},
		{Name: "Hallertau", Location: recipe.LocationAdjunct1, TemperatureF: 207, StepTimeMin: 60},
		{Name: "Connect Chiller", Location: recipe.LocationPause},
		{Name: "Chill", Location: recipe.LocationPassThru, TemperatureF: 66, StepTimeMin: 10, DrainTimeMin: 10},
	}
	diffSteps(t, built.Steps, want)

	if built.StartWaterL != 20 {
		t.Errorf("StartWaterL = %v, want 20", built.StartWaterL)
	}
}

func TestBuildDefaults(t *testing.T) {
	built, err := recipe.Build(recipe.Params{}, recipe.DevicePico)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if built.Name != "New Recipe" {
		t.Errorf("Name = %q, want %q", built.Name, "New Recipe")
	}
	if built.ABV != 5.0 || built.IBU != 30 {
		t.Errorf("ABV/IBU = %v/%v, want 5/30", built.ABV, built.IBU)
	}

	// No mash schedule and no hops: header, mash-out, then a plain
	// boil that still drains into the keg.
	want := []recipe.Step{
		{Name: "Preparing To Brew", Location: recipe.LocationPrime, StepTimeMin: 3},
		{Name: "Heating", Location: recipe.LocationPassThru, TemperatureF: 110},
		{Name: "Dough In", Location: recipe.LocationMash, TemperatureF: 110, StepTimeMin: 7},
		{Name: "Mash Out", Location: recipe.LocationMash, TemperatureF: 178, StepTimeMin: 7, DrainTimeMin: 2},
		{Name: "Boil", Location: recipe.LocationPassThru, TemperatureF: 202, StepTimeMin: 60, DrainTimeMin: 5},
	}
	diffSteps(t, built.Steps, want)
}

func TestBuildZymaticMashFallback(t *testing.T) {
	params := recipe.Params{
		Name: "Extract Special",
		Hops: []recipe.HopAddition{{Name: "Magnum", TimeMin: 60}},
	}
	built, err := recipe.Build(params, recipe.DeviceZymatic)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	wantMash := recipe.Step{
		Name: "Mash", Location: recipe.LocationMash,
		TemperatureF: 152, StepTimeMin: 90, DrainTimeMin: 8,
	}
	if !slices.Contains(built.Steps, wantMash) {
		t.Errorf("steps missing single-infusion fallback %+v:\n%+v", wantMash, built.Steps)
	}
}

func TestBuildMergesHopChargesToFourBaskets(t *testing.T) {
	params := recipe.Params{
		Name:        "Hop Burst",
		BoilTimeMin: 60,
		Hops: []recipe.HopAddition{
			{Name: "Warrior", TimeMin: 60},
			{Name: "Chinook", TimeMin: 45},
			{Name: "Simcoe", TimeMin: 30},
			{Name: "Citra", TimeMin: 15},
			{Name: "Mosaic", TimeMin: 10},
			{Name: "Galaxy", TimeMin: 5},
		},
	}
	built, err := recipe.Build(params, recipe.DevicePico)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var hops []recipe.Step
	for _, step := range built.Steps {
		switch step.Location {
		case recipe.LocationAdjunct1, recipe.LocationAdjunct2,
			recipe.LocationAdjunct3, recipe.LocationAdjunct4:
			hops = append(hops, step)
		}
	}
	if len(hops) != 4 {
		t.Fatalf("got %d hop steps, want 4: %+v", len(hops), hops)
	}

	// 15/10/5 collapse pairwise into a single 15-minute basket; the
	// merged basket keeps the earliest drop so nothing boils shorter
	// than scheduled. Charges run until the next basket drops.
	wantTimes := []int{15, 15, 15, 15}
	for i, step := range hops {
		if step.StepTimeMin != wantTimes[i] {
			t.Errorf("hop %d step time = %d, want %d", i, step.StepTimeMin, wantTimes[i])
		}
	}
	if hops[3].Name != "Hops 4" {
		t.Errorf("merged basket name = %q, want %q", hops[3].Name, "Hops 4")
	}
	if hops[0].Name != "Warrior" {
		t.Errorf("first basket name = %q, want %q", hops[0].Name, "Warrior")
	}
}

func TestBuildPreHopBoil(t *testing.T) {
	params := recipe.Params{
		Name:        "Late Hopped",
		BoilTimeMin: 60,
		Hops:        []recipe.HopAddition{{Name: "Nelson", TimeMin: 20}},
	}
	built, err := recipe.Build(params, recipe.DeviceZymatic)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	preBoilIndex := slices.IndexFunc(built.Steps, func(s recipe.Step) bool {
		return s.Name == "Pre-hop Boil"
	})
	if preBoilIndex < 0 {
		t.Fatalf("no Pre-hop Boil step in %+v", built.Steps)
	}
	if got := built.Steps[preBoilIndex].StepTimeMin; got != 40 {
		t.Errorf("Pre-hop Boil step time = %d, want 40", got)
	}
	next := built.Steps[preBoilIndex+1]
	if next.Name != "Nelson" || next.StepTimeMin != 20 {
		t.Errorf("hop step after pre-boil = %+v, want Nelson/20", next)
	}
}

func TestBuildClampsHopTimeToBoil(t *testing.T) {
	params := recipe.Params{
		Name:        "First Wort",
		BoilTimeMin: 60,
		Hops:        []recipe.HopAddition{{Name: "Perle", TimeMin: 90}},
	}
	built, err := recipe.Build(params, recipe.DeviceZymatic)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	hopIndex := slices.IndexFunc(built.Steps, func(s recipe.Step) bool { return s.Name == "Perle" })
	if hopIndex < 0 {
		t.Fatalf("no Perle step in %+v", built.Steps)
	}
	if got := built.Steps[hopIndex].StepTimeMin; got != 60 {
		t.Errorf("clamped hop step time = %d, want 60", got)
	}
}

func TestBuildSkipsAcidRest(t *testing.T) {
	params := recipe.Params{
		Name: "Old World",
		MashSteps: []recipe.MashStep{
			{Name: "Acid Rest", TempF: 95, TimeMin: 20},
			{Name: "Sacch Rest", TempF: 150, TimeMin: 60},
		},
	}
	built, err := recipe.Build(params, recipe.DevicePico)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if slices.ContainsFunc(built.Steps, func(s recipe.Step) bool { return s.Name == "Acid Rest" }) {
		t.Errorf("sub-100°F rest was not skipped: %+v", built.Steps)
	}
	if !slices.ContainsFunc(built.Steps, func(s recipe.Step) bool { return s.Name == "Sacch Rest" }) {
		t.Errorf("usable rest missing: %+v", built.Steps)
	}
}

func TestBuildTruncatesLongNames(t *testing.T) {
	params := recipe.Params{Name: "Hazy Double Dry Hopped IPA"}
	built, err := recipe.Build(params, recipe.DeviceZymatic)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if built.Name != "Hazy Double Dry Hop" {
		t.Errorf("Name = %q, want %q", built.Name, "Hazy Double Dry Hop")
	}
	for _, step := range built.Steps {
		if utf8.RuneCountInString(step.Name) > 19 {
			t.Errorf("step name %q exceeds display width", step.Name)
		}
	}
}

func TestBuildUnknownDevice(t *testing.T) {
	if _, err := recipe.Build(recipe.Params{}, "espresso"); err == nil {
		t.Fatal("Build accepted an unknown device type")
	}
}

// Every template must expand to a valid program on every device.
func TestBuildTemplateMatrix(t *testing.T) {
	devices := []recipe.DeviceType{recipe.DevicePico, recipe.DeviceZymatic, recipe.DeviceZSeries}
	for _, template := range recipe.Templates() {
		for _, device := range devices {
			t.Run(template.ID+"_"+string(device), func(t *testing.T) {
				built, err := recipe.Build(template.Params(""), device)
				if err != nil {
					t.Fatalf("Build: %v", err)
				}
				if err := recipe.Validate(built); err != nil {
					t.Errorf("Validate: %v", err)
				}
				if built.ABV != template.ABV {
					t.Errorf("ABV = %v, want %v", built.ABV, template.ABV)
				}
			})
		}
	}
}

func TestTemplateByID(t *testing.T) {
	template, ok := recipe.TemplateByID("american_ipa")
	if !ok {
		t.Fatal("american_ipa missing from catalogue")
	}
	if template.OG != 1.065 || template.IBU != 65 {
		t.Errorf("american_ipa vitals = %v/%v, want 1.065/65", template.OG, template.IBU)
	}
	if _, ok := recipe.TemplateByID("lite_lager"); ok {
		t.Error("TemplateByID returned a template for an unknown id")
	}
}

func TestTemplateParamsNameOverride(t *testing.T) {
	template, _ := recipe.TemplateByID("stout")
	if got := template.Params("Midnight Oil").Name; got != "Midnight Oil" {
		t.Errorf("override name = %q", got)
	}
	if got := template.Params("").Name; got != "Dry Stout" {
		t.Errorf("default name = %q", got)
	}
}
