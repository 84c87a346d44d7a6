// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package recipe_test

import (
	"math"
	"strings"
	"testing"

	"github.com/brewshed/brewshed/lib/recipe"
)

const westCoastIPA = `<?xml version="1.0" encoding="UTF-8"?>
<RECIPES>
  <RECIPE>
    <NAME>West Coast IPA</NAME>
    <NOTES>Crisp and bitter.</NOTES>
    <BOIL_TIME>60.0</BOIL_TIME>
    <BOIL_SIZE>20.8</BOIL_SIZE>
    <OG>1.065</OG>
    <FG>1.012</FG>
    <IBU>55.0</IBU>
    <MASH>
      <MASH_STEPS>
        <MASH_STEP>
          <NAME>Saccharification</NAME>
          <STEP_TEMP>67.0</STEP_TEMP>
          <STEP_TIME>60.0</STEP_TIME>
        </MASH_STEP>
      </MASH_STEPS>
    </MASH>
    <HOPS>
      <HOP><NAME>Cascade</NAME><USE>Boil</USE><TIME>60.0</TIME></HOP>
      <HOP><NAME>Centennial</NAME><USE>Aroma</USE><TIME>15.0</TIME></HOP>
      <HOP><NAME>Citra</NAME><USE>Dry Hop</USE><TIME>4320.0</TIME></HOP>
    </HOPS>
  </RECIPE>
</RECIPES>`

func TestParseBeerXMLFullRecipe(t *testing.T) {
	parsed, err := recipe.ParseBeerXML([]byte(westCoastIPA))
	if err != nil {
		t.Fatalf("ParseBeerXML: %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("got %d recipes, want 1", len(parsed))
	}
	params := parsed[0]

	if params.Name != "West Coast IPA" {
		t.Errorf("Name = %q", params.Name)
	}
	if params.Notes != "Crisp and bitter." {
		t.Errorf("Notes = %q", params.Notes)
	}
	if params.BoilTimeMin != 60 {
		t.Errorf("BoilTimeMin = %d, want 60", params.BoilTimeMin)
	}
	if params.BoilSizeL != 20.8 {
		t.Errorf("BoilSizeL = %v, want 20.8", params.BoilSizeL)
	}
	if params.OG != 1.065 || params.IBU != 55.0 {
		t.Errorf("OG/IBU = %v/%v, want 1.065/55", params.OG, params.IBU)
	}
	if want := (1.065 - 1.012) * 131.25; math.Abs(params.ABV-want) > 1e-9 {
		t.Errorf("ABV = %v, want %v", params.ABV, want)
	}

	// 67°C is 152.6°F; the machines take whole degrees.
	wantMash := []recipe.MashStep{{Name: "Saccharification", TempF: 152, TimeMin: 60}}
	if len(params.MashSteps) != 1 || params.MashSteps[0] != wantMash[0] {
		t.Errorf("MashSteps = %+v, want %+v", params.MashSteps, wantMash)
	}

	// Aroma hops become flameout charges; dry hops never reach the
	// boil and are dropped.
	wantHops := []recipe.HopAddition{{Name: "Cascade", TimeMin: 60}, {Name: "Centennial", TimeMin: 0}}
	if len(params.Hops) != 2 || params.Hops[0] != wantHops[0] || params.Hops[1] != wantHops[1] {
		t.Errorf("Hops = %+v, want %+v", params.Hops, wantHops)
	}
}

func TestParseBeerXMLLowercaseTags(t *testing.T) {
	doc := strings.ToLower(westCoastIPA)
	parsed, err := recipe.ParseBeerXML([]byte(doc))
	if err != nil {
		t.Fatalf("ParseBeerXML: %v", err)
	}
	if parsed[0].Name != "west coast ipa" {
		t.Errorf("Name = %q", parsed[0].Name)
	}
	if len(parsed[0].MashSteps) != 1 || parsed[0].MashSteps[0].TempF != 152 {
		t.Errorf("MashSteps = %+v", parsed[0].MashSteps)
	}
	if len(parsed[0].Hops) != 2 {
		t.Errorf("Hops = %+v", parsed[0].Hops)
	}
}

func TestParseBeerXMLHopUses(t *testing.T) {
	tests := []struct {
		name     string
		use      string
		kept     bool
		wantTime int
	}{
		{"boil_keeps_time", "Boil", true, 45},
		{"first_wort_keeps_time", "First Wort", true, 45},
		{"aroma_becomes_flameout", "Aroma", true, 0},
		{"dry_hop_skipped", "Dry Hop", false, 0},
		{"mash_hop_skipped", "Mash", false, 0},
		{"missing_use_defaults_to_boil", "", true, 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			use := ""
			if tt.use != "" {
				use = "<USE>" + tt.use + "</USE>"
			}
			doc := `<RECIPES><RECIPE><NAME>X</NAME><HOPS><HOP>` +
				`<NAME>Test Hop</NAME>` + use + `<TIME>45</TIME>` +
				`</HOP></HOPS></RECIPE></RECIPES>`
			parsed, err := recipe.ParseBeerXML([]byte(doc))
			if err != nil {
				t.Fatalf("ParseBeerXML: %v", err)
			}
			hops := parsed[0].Hops
			if !tt.kept {
				if len(hops) != 0 {
					t.Fatalf("hop was kept: %+v", hops)
				}
				return
			}
			if len(hops) != 1 {
				t.Fatalf("got %d hops, want 1", len(hops))
			}
			if hops[0].TimeMin != tt.wantTime {
				t.Errorf("TimeMin = %d, want %d", hops[0].TimeMin, tt.wantTime)
			}
		})
	}
}

func TestParseBeerXMLDefaults(t *testing.T) {
	parsed, err := recipe.ParseBeerXML([]byte(`<RECIPES><RECIPE></RECIPE></RECIPES>`))
	if err != nil {
		t.Fatalf("ParseBeerXML: %v", err)
	}
	params := parsed[0]
	if params.Name != "Unnamed Recipe" {
		t.Errorf("Name = %q", params.Name)
	}
	if params.BoilTimeMin != 60 || params.OG != 1.050 || params.IBU != 30.0 {
		t.Errorf("vitals = %+v", params)
	}
	// Both gravities fall back to plausible values, so ABV derives
	// from them rather than staying at the flat 5.0 default.
	if want := (1.050 - 1.010) * 131.25; math.Abs(params.ABV-want) > 1e-9 {
		t.Errorf("ABV = %v, want %v", params.ABV, want)
	}
}

func TestParseBeerXMLMultipleRecipes(t *testing.T) {
	doc := `<RECIPES>
	  <RECIPE><NAME>First</NAME></RECIPE>
	  <RECIPE><NAME>Second</NAME></RECIPE>
	</RECIPES>`
	parsed, err := recipe.ParseBeerXML([]byte(doc))
	if err != nil {
		t.Fatalf("ParseBeerXML: %v", err)
	}
	if len(parsed) != 2 || parsed[0].Name != "First" || parsed[1].Name != "Second" {
		t.Errorf("parsed = %+v", parsed)
	}
}

func TestParseBeerXMLSortsHopsByDropTime(t *testing.T) {
	doc := `<RECIPES><RECIPE><NAME>X</NAME><HOPS>
	  <HOP><NAME>Late</NAME><USE>Boil</USE><TIME>5</TIME></HOP>
	  <HOP><NAME>Early</NAME><USE>Boil</USE><TIME>60</TIME></HOP>
	  <HOP><NAME>Mid</NAME><USE>Boil</USE><TIME>30</TIME></HOP>
	</HOPS></RECIPE></RECIPES>`
	parsed, err := recipe.ParseBeerXML([]byte(doc))
	if err != nil {
		t.Fatalf("ParseBeerXML: %v", err)
	}
	var names []string
	for _, hop := range parsed[0].Hops {
		names = append(names, hop.Name)
	}
	if len(names) != 3 || names[0] != "Early" || names[1] != "Mid" || names[2] != "Late" {
		t.Errorf("hop order = %v", names)
	}
}

func TestParseBeerXMLErrors(t *testing.T) {
	if _, err := recipe.ParseBeerXML([]byte(`<STYLES><STYLE/></STYLES>`)); err == nil {
		t.Error("document without a RECIPE element parsed")
	}
	if _, err := recipe.ParseBeerXML([]byte(`<RECIPES><RECIPE>`)); err == nil {
		t.Error("truncated document parsed")
	}
}

func TestParseBeerXMLMashTemperatures(t *testing.T) {
	tests := []struct {
		tempC string
		wantF int
	}{
		{"65.556", 150},
		{"67.0", 152},
		{"78", 172},
	}
	for _, tt := range tests {
		doc := `<RECIPES><RECIPE><MASH><MASH_STEPS><MASH_STEP>` +
			`<NAME>Rest</NAME><STEP_TEMP>` + tt.tempC + `</STEP_TEMP>` +
			`</MASH_STEP></MASH_STEPS></MASH></RECIPE></RECIPES>`
		parsed, err := recipe.ParseBeerXML([]byte(doc))
		if err != nil {
			t.Fatalf("ParseBeerXML: %v", err)
		}
		if got := parsed[0].MashSteps[0].TempF; got != tt.wantF {
			t.Errorf("%s°C = %d°F, want %d", tt.tempC, got, tt.wantF)
		}
	}
}
