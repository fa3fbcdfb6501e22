// Package parser extracts the three annotation sections from free-form
// model output. Parsing is best effort: a section whose marker is absent
// comes back empty, and no input makes it fail.
package parser

import (
	"strings"

	"poem-annotator/internal/poem"
	"poem-annotator/internal/prompt"
)

// Section names one of the three annotation sections.
type Section string

const (
	SectionTranslation  Section = "translation"
	SectionBackground   Section = "background"
	SectionAppreciation Section = "appreciation"
)

var markers = []struct {
	section Section
	marker  string
}{
	{SectionTranslation, prompt.MarkerTranslation},
	{SectionBackground, prompt.MarkerBackground},
	{SectionAppreciation, prompt.MarkerAppreciation},
}

// Parse splits raw at the first occurrence of each marker. Translation and
// background stop at the next section opener; appreciation runs to the end
// or to a repeat of its own marker.
func Parse(raw string) poem.Annotation {
	return poem.Annotation{
		Translation:  bounded(raw, prompt.MarkerTranslation),
		Background:   bounded(raw, prompt.MarkerBackground),
		Appreciation: trailing(raw, prompt.MarkerAppreciation),
	}
}

// Missing lists the sections whose marker does not occur in raw.
func Missing(raw string) []Section {
	var out []Section
	for _, m := range markers {
		if !strings.Contains(raw, m.marker) {
			out = append(out, m.section)
		}
	}
	return out
}

// Empty lists the sections of a that hold no text.
func Empty(a poem.Annotation) []Section {
	var out []Section
	if a.Translation == "" {
		out = append(out, SectionTranslation)
	}
	if a.Background == "" {
		out = append(out, SectionBackground)
	}
	if a.Appreciation == "" {
		out = append(out, SectionAppreciation)
	}
	return out
}

func bounded(raw, marker string) string {
	_, rest, ok := strings.Cut(raw, marker)
	if !ok {
		return ""
	}
	if i := strings.Index(rest, prompt.SectionOpen); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}

func trailing(raw, marker string) string {
	_, rest, ok := strings.Cut(raw, marker)
	if !ok {
		return ""
	}
	rest, _, _ = strings.Cut(rest, marker)
	return strings.TrimSpace(rest)
}
