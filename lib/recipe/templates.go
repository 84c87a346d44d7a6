// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package recipe

// Template is a named style preset that expands through Build. The
// catalogue covers the common request shapes; anything else goes
// through the custom or BeerXML paths.
type Template struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	MashSteps []MashStep    `json:"mash_steps"`
	Hops      []HopAddition `json:"hop_additions"`

	BoilTimeMin int     `json:"boil_time"`
	OG          float64 `json:"og"`
	IBU         float64 `json:"ibu"`
	ABV         float64 `json:"abv"`
}

// Params converts the template to Build input. A non-empty name
// overrides the template's display name.
func (t Template) Params(name string) Params {
	if name == "" {
		name = t.Name
	}
	return Params{
		Name:        name,
		MashSteps:   t.MashSteps,
		Hops:        t.Hops,
		BoilTimeMin: t.BoilTimeMin,
		OG:          t.OG,
		IBU:         t.IBU,
		ABV:         t.ABV,
	}
}

var templateCatalogue = []Template{
	{
		ID:   "american_ipa",
		Name: "American IPA",
		MashSteps: []MashStep{
			{Name: "Sacch Rest", TempF: 152, TimeMin: 60},
		},
		Hops: []HopAddition{
			{Name: "Bittering", TimeMin: 60},
			{Name: "Flavor", TimeMin: 15},
			{Name: "Aroma", TimeMin: 5},
			{Name: "Whirlpool", TimeMin: 0},
		},
		BoilTimeMin: 60,
		OG:          1.065,
		IBU:         65,
		ABV:         6.5,
	},
	{
		ID:   "pale_ale",
		Name: "American Pale Ale",
		MashSteps: []MashStep{
			{Name: "Sacch Rest", TempF: 152, TimeMin: 60},
		},
		Hops: []HopAddition{
			{Name: "Bittering", TimeMin: 60},
			{Name: "Flavor", TimeMin: 15},
			{Name: "Aroma", TimeMin: 5},
		},
		BoilTimeMin: 60,
		OG:          1.050,
		IBU:         40,
		ABV:         5.0,
	},
	{
		ID:   "stout",
		Name: "Dry Stout",
		MashSteps: []MashStep{
			{Name: "Sacch Rest", TempF: 154, TimeMin: 60},
		},
		Hops: []HopAddition{
			{Name: "Bittering", TimeMin: 60},
		},
		BoilTimeMin: 60,
		OG:          1.042,
		IBU:         35,
		ABV:         4.2,
	},
	{
		ID:   "hefeweizen",
		Name: "Hefeweizen",
		MashSteps: []MashStep{
			{Name: "Protein Rest", TempF: 122, TimeMin: 15},
			{Name: "Sacch Rest", TempF: 152, TimeMin: 45},
		},
		Hops: []HopAddition{
			{Name: "Hallertau", TimeMin: 60},
		},
		BoilTimeMin: 60,
		OG:          1.048,
		IBU:         12,
		ABV:         4.9,
	},
	{
		ID:   "neipa",
		Name: "New England IPA",
		MashSteps: []MashStep{
			{Name: "Sacch Rest", TempF: 156, TimeMin: 60},
		},
		Hops: []HopAddition{
			{Name: "Bittering", TimeMin: 30},
			{Name: "Whirlpool 1", TimeMin: 10},
			{Name: "Whirlpool 2", TimeMin: 5},
			{Name: "Whirlpool 3", TimeMin: 0},
		},
		BoilTimeMin: 60,
		OG:          1.068,
		IBU:         45,
		ABV:         6.8,
	},
	{
		ID:   "pilsner",
		Name: "German Pilsner",
		MashSteps: []MashStep{
			{Name: "Protein Rest", TempF: 122, TimeMin: 10},
			{Name: "Sacch Rest", TempF: 148, TimeMin: 60},
			{Name: "Mash Out", TempF: 168, TimeMin: 10},
		},
		Hops: []HopAddition{
			{Name: "Saaz", TimeMin: 60},
			{Name: "Saaz", TimeMin: 30},
			{Name: "Saaz", TimeMin: 5},
		},
		BoilTimeMin: 90,
		OG:          1.048,
		IBU:         35,
		ABV:         4.8,
	},
}

// Templates returns the style catalogue in display order.
func Templates() []Template {
	return templateCatalogue
}

// TemplateByID looks up a catalogue entry.
func TemplateByID(id string) (Template, bool) {
	for _, template := range templateCatalogue {
		if template.ID == id {
			return template, true
		}
	}
	return Template{}, false
}
