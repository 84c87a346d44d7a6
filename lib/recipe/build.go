// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package recipe

import (
	"fmt"
	"slices"
	"strings"
)

// Build expands normalized parameters into a full device recipe. The
// result is deterministic, always satisfies Validate for the device,
// and is never written to storage; callers persist via FileStore
// when asked to.
func Build(params Params, device DeviceType) (*Recipe, error) {
	deviceRule, ok := deviceRules[device]
	if !ok {
		return nil, fmt.Errorf("unknown device type %q", device)
	}
	params = withDefaults(params)

	recipe := &Recipe{
		Name:       truncateName(params.Name),
		DeviceType: device,
		Notes:      params.Notes,
		ABV:        params.ABV,
		IBU:        params.IBU,
		Steps:      deviceRule.buildSteps(params, deviceRule),
	}
	if device == DeviceZSeries {
		recipe.StartWaterL = params.BoilSizeL
	}
	return recipe, nil
}

func withDefaults(params Params) Params {
	if params.Name == "" {
		params.Name = "New Recipe"
	}
	if params.BoilTimeMin <= 0 {
		params.BoilTimeMin = 60
	}
	if params.BoilSizeL <= 0 {
		params.BoilSizeL = 23.0
	}
	if params.OG == 0 {
		params.OG = 1.050
	}
	if params.IBU == 0 {
		params.IBU = 30
	}
	if params.ABV == 0 {
		params.ABV = 5.0
	}
	return params
}

// truncateName limits a name to what the machine displays can render.
func truncateName(name string) string {
	runes := []rune(name)
	if len(runes) <= maxNameLength {
		return name
	}
	return string(runes[:maxNameLength])
}

// buildPicoSteps produces the pico program: fixed prime/heat/dough-in
// header, the mash schedule, a hot mash-out, then hops. The pico has
// no pause support; it chills on its own after the last drain.
func buildPicoSteps(params Params, deviceRule rules) []Step {
	steps := []Step{
		{Name: "Preparing To Brew", Location: LocationPrime, StepTimeMin: 3},
		{Name: "Heating", Location: LocationPassThru, TemperatureF: 110},
		{Name: "Dough In", Location: LocationMash, TemperatureF: 110, StepTimeMin: 7},
	}
	steps = append(steps, mashSteps(params.MashSteps)...)
	steps = append(steps, Step{
		Name: "Mash Out", Location: LocationMash,
		TemperatureF: 178, StepTimeMin: 7, DrainTimeMin: 2,
	})

	hops := hopSteps(params, deviceRule)
	if len(hops) > 0 && deviceRule.finalHopDrainMin > 0 {
		hops[len(hops)-1].DrainTimeMin = deviceRule.finalHopDrainMin
	}
	return append(steps, hops...)
}

// buildZymaticSteps produces the zymatic program: heat to the first
// mash rest, the mash schedule, mash-out, boil with hops, then the
// chiller pause and chill.
func buildZymaticSteps(params Params, deviceRule rules) []Step {
	firstMashTemp := 152
	if len(params.MashSteps) > 0 {
		firstMashTemp = params.MashSteps[0].TempF
	}
	steps := []Step{
		{Name: "Heat Mash", Location: LocationPassThru, TemperatureF: firstMashTemp},
	}

	mash := mashSteps(params.MashSteps)
	if len(mash) == 0 {
		// Single-infusion fallback for recipes with no mash profile
		// (extract BeerXML exports, mostly).
		steps = append(steps, Step{
			Name: "Mash", Location: LocationMash,
			TemperatureF: 152, StepTimeMin: 90, DrainTimeMin: 8,
		})
	} else {
		steps = append(steps, mash...)
	}

	steps = append(steps,
		Step{Name: "Heat to Mash Out", Location: LocationPassThru, TemperatureF: 175},
		Step{Name: "Mash Out", Location: LocationMash, TemperatureF: 175, StepTimeMin: 15, DrainTimeMin: 8},
		Step{Name: "Heat to Boil", Location: LocationPassThru, TemperatureF: deviceRule.boilTempF},
	)
	steps = append(steps, hopSteps(params, deviceRule)...)
	return append(steps, chillSteps()...)
}

// buildZSeriesSteps produces the Z program. The Z doughs in cool
// (104°F or the first rest, whichever is lower) and needs explicit
// heating transitions between mash rests.
func buildZSeriesSteps(params Params, deviceRule rules) []Step {
	doughInTemp := 104
	if len(params.MashSteps) > 0 {
		doughInTemp = min(104, params.MashSteps[0].TempF)
	}
	steps := []Step{
		{Name: "Heat Water", Location: LocationPassThru, TemperatureF: doughInTemp},
		{Name: "Dough In", Location: LocationMash, TemperatureF: doughInTemp, StepTimeMin: 20, DrainTimeMin: 4},
	}

	usable := make([]MashStep, 0, len(params.MashSteps))
	for _, mashStep := range params.MashSteps {
		if mashStep.TempF >= 100 {
			usable = append(usable, mashStep)
		}
	}
	if len(usable) == 0 {
		usable = []MashStep{{Name: "Mash 1", TempF: 152, TimeMin: 60}}
	}
	for i, mashStep := range usable {
		if i > 0 {
			steps = append(steps, Step{
				Name:     fmt.Sprintf("Heat to Mash %d", i+1),
				Location: LocationMash, TemperatureF: mashStep.TempF, DrainTimeMin: 4,
			})
		}
		name := truncateName(mashStep.Name)
		if name == "" {
			name = fmt.Sprintf("Mash %d", i+1)
		}
		steps = append(steps, Step{
			Name: name, Location: LocationMash,
			TemperatureF: mashStep.TempF, StepTimeMin: mashStep.TimeMin, DrainTimeMin: 4,
		})
	}

	steps = append(steps,
		Step{Name: "Heat to Mash Out", Location: LocationMash, TemperatureF: 175, DrainTimeMin: 4},
		Step{Name: "Mash Out", Location: LocationMash, TemperatureF: 175, StepTimeMin: 15, DrainTimeMin: 8},
		Step{Name: "Heat to Boil", Location: LocationPassThru, TemperatureF: deviceRule.boilTempF},
	)
	steps = append(steps, hopSteps(params, deviceRule)...)
	return append(steps, chillSteps()...)
}

func chillSteps() []Step {
	return []Step{
		{Name: "Connect Chiller", Location: LocationPause},
		{Name: "Chill", Location: LocationPassThru, TemperatureF: 66, StepTimeMin: 10, DrainTimeMin: 10},
	}
}

// mashSteps converts a mash schedule to Mash-location steps. Rests
// below 100°F (acid rests) sit under the machines' operating range
// and are skipped. The last scheduled rest drains into the boil.
func mashSteps(schedule []MashStep) []Step {
	var steps []Step
	for i, mashStep := range schedule {
		if mashStep.TempF < 100 {
			continue
		}
		name := truncateName(mashStep.Name)
		if name == "" || strings.EqualFold(name, "mash") {
			name = fmt.Sprintf("Mash %d", i+1)
		}
		drain := 0
		if i == len(schedule)-1 {
			drain = 8
		}
		steps = append(steps, Step{
			Name: name, Location: LocationMash,
			TemperatureF: mashStep.TempF, StepTimeMin: mashStep.TimeMin, DrainTimeMin: drain,
		})
	}
	return steps
}

// hopGroup is one adjunct basket's worth of hops: every charge that
// drops at the same boil minute.
type hopGroup struct {
	timeMin int
	names   []string
}

// hopSteps converts the hop schedule to adjunct steps. Each step runs
// from its charge's drop time until the next charge (or the end of
// the boil); a Pre-hop Boil fills the gap before the first charge.
func hopSteps(params Params, deviceRule rules) []Step {
	boilTime := params.BoilTimeMin
	if len(params.Hops) == 0 {
		return []Step{{
			Name: "Boil", Location: LocationPassThru,
			TemperatureF: deviceRule.boilTempF, StepTimeMin: boilTime,
		}}
	}

	schedule := hopSchedule(params.Hops, boilTime)

	var steps []Step
	if preBoil := boilTime - schedule[0].timeMin; preBoil > 0 {
		steps = append(steps, Step{
			Name: "Pre-hop Boil", Location: LocationPassThru,
			TemperatureF: deviceRule.boilTempF, StepTimeMin: preBoil,
		})
	}
	for i, group := range schedule {
		stepTime := group.timeMin
		if i+1 < len(schedule) {
			stepTime = group.timeMin - schedule[i+1].timeMin
		}
		name := fmt.Sprintf("Hops %d", i+1)
		if len(group.names) == 1 && group.names[0] != "" {
			name = truncateName(group.names[0])
		}
		steps = append(steps, Step{
			Name: name, Location: adjuncts[i],
			TemperatureF: deviceRule.boilTempF, StepTimeMin: stepTime,
		})
	}
	return steps
}

// hopSchedule groups hop charges by drop time, newest-first, and
// merges the nearest pair of times until at most four groups remain.
// The merged group keeps the earlier drop time so no charge boils
// shorter than the brewer asked for.
func hopSchedule(hops []HopAddition, boilTime int) []hopGroup {
	byTime := make(map[int][]string)
	for _, hop := range hops {
		dropTime := min(hop.TimeMin, boilTime)
		byTime[dropTime] = append(byTime[dropTime], hop.Name)
	}

	groups := make([]hopGroup, 0, len(byTime))
	for dropTime, names := range byTime {
		groups = append(groups, hopGroup{timeMin: dropTime, names: names})
	}
	slices.SortFunc(groups, func(a, b hopGroup) int {
		return b.timeMin - a.timeMin
	})

	for len(groups) > maxHopAdditions {
		closest := 0
		minGap := boilTime + 1
		for i := 0; i < len(groups)-1; i++ {
			if gap := groups[i].timeMin - groups[i+1].timeMin; gap < minGap {
				minGap = gap
				closest = i
			}
		}
		groups[closest].names = append(groups[closest].names, groups[closest+1].names...)
		groups = append(groups[:closest+1], groups[closest+2:]...)
	}
	return groups
}
