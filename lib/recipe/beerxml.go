// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package recipe

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

// ParseBeerXML extracts Build parameters from a BeerXML 1.0 document.
// A document may carry several recipes. Tag matching is
// case-insensitive: the standard uses uppercase element names but
// exporters disagree. Temperatures convert from Celsius, ABV derives
// from the gravity pair as (OG - FG) * 131.25, and whirlpool (aroma)
// hops become flameout charges. Dry hops and mash hops never touch
// the boil and are ignored.
func ParseBeerXML(data []byte) ([]Params, error) {
	root, err := parseXMLTree(data)
	if err != nil {
		return nil, err
	}
	recipeNodes := root.findAll("RECIPE")
	if len(recipeNodes) == 0 {
		return nil, errors.New("no RECIPE element in BeerXML document")
	}

	params := make([]Params, 0, len(recipeNodes))
	for _, node := range recipeNodes {
		params = append(params, parseRecipeNode(node))
	}
	return params, nil
}

func parseRecipeNode(node *xmlNode) Params {
	params := Params{
		Name:        node.textOr("NAME", "Unnamed Recipe"),
		Notes:       node.textOr("NOTES", ""),
		BoilTimeMin: node.intOr("BOIL_TIME", 60),
		BoilSizeL:   node.floatOr("BOIL_SIZE", 23.0),
		OG:          node.floatOr("OG", 1.050),
		IBU:         node.floatOr("IBU", 30.0),
		ABV:         5.0,
	}
	finalGravity := node.floatOr("FG", 1.010)
	if params.OG > 1.0 && finalGravity > 1.0 {
		params.ABV = (params.OG - finalGravity) * 131.25
	}

	if mash := node.child("MASH"); mash != nil {
		if stepList := mash.child("MASH_STEPS"); stepList != nil {
			for _, stepNode := range stepList.all("MASH_STEP") {
				name := stepNode.textOr("NAME", "")
				if name == "" {
					continue
				}
				tempC := stepNode.floatOr("STEP_TEMP", 67.0)
				params.MashSteps = append(params.MashSteps, MashStep{
					Name:    name,
					TempF:   int(tempC*9/5 + 32),
					TimeMin: stepNode.intOr("STEP_TIME", 60),
				})
			}
		}
	}

	if hopList := node.child("HOPS"); hopList != nil {
		for _, hopNode := range hopList.all("HOP") {
			name := hopNode.textOr("NAME", "")
			if name == "" {
				continue
			}
			dropTime := hopNode.intOr("TIME", 60)
			switch strings.ToLower(hopNode.textOr("USE", "Boil")) {
			case "boil", "first wort":
			case "aroma":
				dropTime = 0
			default:
				continue
			}
			params.Hops = append(params.Hops, HopAddition{Name: name, TimeMin: dropTime})
		}
	}
	slices.SortStableFunc(params.Hops, func(a, b HopAddition) int {
		return b.TimeMin - a.TimeMin
	})

	return params
}

// xmlNode is a minimal element tree. encoding/xml's struct decoding
// matches tag names exactly, so case-insensitive lookup needs the
// token stream.
type xmlNode struct {
	name     string
	text     string
	children []*xmlNode
}

func parseXMLTree(data []byte) (*xmlNode, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	root := &xmlNode{}
	stack := []*xmlNode{root}

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed BeerXML: %w", err)
		}
		switch t := token.(type) {
		case xml.StartElement:
			node := &xmlNode{name: t.Name.Local}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, node)
			stack = append(stack, node)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			stack[len(stack)-1].text += string(t)
		}
	}
	return root, nil
}

// child returns the first direct child with the given name, or nil.
func (n *xmlNode) child(name string) *xmlNode {
	for _, childNode := range n.children {
		if strings.EqualFold(childNode.name, name) {
			return childNode
		}
	}
	return nil
}

// all returns every direct child with the given name.
func (n *xmlNode) all(name string) []*xmlNode {
	var matches []*xmlNode
	for _, childNode := range n.children {
		if strings.EqualFold(childNode.name, name) {
			matches = append(matches, childNode)
		}
	}
	return matches
}

// findAll returns every descendant with the given name, at any depth.
func (n *xmlNode) findAll(name string) []*xmlNode {
	var matches []*xmlNode
	for _, childNode := range n.children {
		if strings.EqualFold(childNode.name, name) {
			matches = append(matches, childNode)
		}
		matches = append(matches, childNode.findAll(name)...)
	}
	return matches
}

func (n *xmlNode) textOr(name, fallback string) string {
	childNode := n.child(name)
	if childNode == nil {
		return fallback
	}
	text := strings.TrimSpace(childNode.text)
	if text == "" {
		return fallback
	}
	return text
}

func (n *xmlNode) floatOr(name string, fallback float64) float64 {
	text := n.textOr(name, "")
	if text == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fallback
	}
	return value
}

func (n *xmlNode) intOr(name string, fallback int) int {
	// BeerXML renders integers as decimals ("60.0"); truncate.
	return int(n.floatOr(name, float64(fallback)))
}
