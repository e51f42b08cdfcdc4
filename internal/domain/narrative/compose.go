// Package narrative renders an extracted fact summary as cited plain text,
// either as the context block handed to a generative model or as the
// deterministic fallback summary.
package narrative

import (
	"fmt"
	"strings"

	"github.com/ehr/clinsum/internal/domain/facts"
	"github.com/ehr/clinsum/internal/domain/record"
)

// Section headings, in output order.
const (
	SectionOverview    = "Patient Overview"
	SectionDiagnoses   = "Diagnoses"
	SectionVitals      = "Vitals & Trends"
	SectionWounds      = "Wounds"
	SectionMedications = "Medications"
	SectionFunctional  = "Functional Status"
	SectionNotes       = "Notes"
	SectionRisks       = "Risks"
	SectionCareFocus   = "Recommended Care Focus"
)

var Sections = []string{
	SectionOverview,
	SectionDiagnoses,
	SectionVitals,
	SectionWounds,
	SectionMedications,
	SectionFunctional,
	SectionNotes,
	SectionRisks,
	SectionCareFocus,
}

const preamble = `You are a home health clinician. Write an evidence-based clinical summary of the patient episode below.

RULES:
- Use ONLY the data provided. Do not invent values, dates or events.
- Every factual sentence or bullet MUST end with its citation bracket, copied exactly:
  [Source: <file>.csv | <date_field>=<date>]
  Example: Blood pressure elevated at 150/95, rising from 120/80 [Source: vitals.csv | visit_date=2026-01-07]
- When a citation date is "unknown", keep the bracket with date=unknown.
- When a category has no data, say "Not documented" and keep its citation.
- When describing a trend, mention both readings.
- Risks and Recommended Care Focus may synthesize across sections but must not introduce new values.

Use these headings, exactly and in this order:
%s
`

// Compose builds the instruction-bearing context text for the generative
// model: the rules preamble followed by the cited data block.
func Compose(s *facts.Summary) string {
	var headings []string
	for i, h := range Sections {
		headings = append(headings, fmt.Sprintf("%d. %s", i+1, h))
	}
	var b strings.Builder
	fmt.Fprintf(&b, preamble, strings.Join(headings, "\n"))
	b.WriteString("\n========================\nPATIENT EHR DATA\n========================\n\n")
	render(&b, s)
	return strings.TrimRight(b.String(), "\n")
}

// Fallback renders the summary directly, without a generative step.
func Fallback(s *facts.Summary) string {
	var b strings.Builder
	render(&b, s)
	return strings.TrimRight(b.String(), "\n")
}

func render(b *strings.Builder, s *facts.Summary) {
	writers := map[string]func(*strings.Builder, *facts.Summary){
		SectionOverview:    overview,
		SectionDiagnoses:   diagnoses,
		SectionVitals:      vitals,
		SectionWounds:      wounds,
		SectionMedications: medications,
		SectionFunctional:  functional,
		SectionNotes:       notes,
		SectionRisks:       func(b *strings.Builder, s *facts.Summary) { synthesized(b, Risks(s), "No risks identified from the available data.") },
		SectionCareFocus:   func(b *strings.Builder, s *facts.Summary) { synthesized(b, CareFocus(s), "Continue the current plan of care.") },
	}
	for i, h := range Sections {
		fmt.Fprintf(b, "%d. %s\n", i+1, h)
		writers[h](b, s)
		b.WriteString("\n")
	}
}

// bullet writes one cited clause on a single line. Free-text fields may
// carry line breaks from the source cells; they are flattened so the
// citation always closes the line it belongs to.
func bullet(b *strings.Builder, text string, c facts.Citation) {
	fmt.Fprintf(b, "- %s %s\n", flatten(text), c)
}

func flatten(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// empty writes the no-data statement for a category, cited against its
// source file with an unknown date.
func empty(b *strings.Builder, cat record.Category) {
	bullet(b, fmt.Sprintf("No %s data available.", label(cat)), facts.CategoryCitation(cat))
}

func label(cat record.Category) string {
	if cat == record.CategoryOASIS {
		return "functional status"
	}
	return string(cat)
}

// overview opens with the request identifiers. They name the subject of the
// summary rather than assert a recorded fact, so they carry no citation.
func overview(b *strings.Builder, s *facts.Summary) {
	fmt.Fprintf(b, "Patient ID: %d\nEpisode ID: %d\n", s.PatientID, s.EpisodeID)
	if p, ok := s.Primary(); ok {
		bullet(b, "Primary diagnosis: "+diagnosisText(p)+".", p.Citation)
	} else {
		empty(b, record.CategoryDiagnoses)
	}
	for _, w := range s.Wounds.Active {
		bullet(b, "Active wound: "+w.Location+".", w.Citation)
	}
	if s.Functional.Latest != nil {
		f := s.Functional.Latest
		bullet(b, fmt.Sprintf("Most recent functional assessment: %s.", orDefault(f.AssessmentType, "assessment")), f.Citation)
	}
}

func diagnosisText(d facts.DiagnosisFact) string {
	switch {
	case d.Code != "" && d.Description != "":
		return d.Code + " " + d.Description
	case d.Code != "":
		return d.Code
	}
	return d.Description
}

func diagnoses(b *strings.Builder, s *facts.Summary) {
	if len(s.Diagnoses) == 0 {
		empty(b, record.CategoryDiagnoses)
		return
	}
	for _, d := range s.Diagnoses {
		text := diagnosisText(d)
		if d.Primary {
			text += " (primary)"
		}
		bullet(b, text+".", d.Citation)
	}
}

func vitals(b *strings.Builder, s *facts.Summary) {
	if len(s.Vitals) == 0 {
		empty(b, record.CategoryVitals)
		return
	}
	for _, v := range s.Vitals {
		text := fmt.Sprintf("%s: %s", v.VitalType, v.Reading)
		switch v.Trend {
		case facts.TrendInsufficient:
			text += " (no prior reading)"
		default:
			text += fmt.Sprintf(" (%s from %s)", v.Trend, v.Previous)
		}
		if v.Abnormal {
			text += ", ABNORMAL: " + strings.Join(v.Reasons, ", ")
		}
		bullet(b, text+".", v.Citation)
	}
}

func woundText(w facts.WoundFact) string {
	parts := []string{w.Location}
	if w.Stage != "" {
		parts = append(parts, "stage "+w.Stage)
	}
	if w.Dimensions != "" {
		parts = append(parts, w.Dimensions)
	}
	if w.Description != "" {
		parts = append(parts, w.Description)
	}
	text := strings.Join(parts, ", ")
	if len(w.HealingStatus) > 0 {
		text += " (status: " + strings.Join(w.HealingStatus, ", ") + ")"
	}
	return text
}

func wounds(b *strings.Builder, s *facts.Summary) {
	if len(s.Wounds.Active) == 0 && len(s.Wounds.History) == 0 {
		empty(b, record.CategoryWounds)
		return
	}
	if len(s.Wounds.Active) == 0 {
		bullet(b, "No active wounds documented.", facts.CategoryCitation(record.CategoryWounds))
	}
	for _, w := range s.Wounds.Active {
		bullet(b, "Active: "+woundText(w)+".", w.Citation)
	}
	for _, w := range s.Wounds.History {
		closed := facts.UnknownDate
		if w.Closed != nil {
			closed = w.Closed.Format("2006-01-02")
		}
		bullet(b, fmt.Sprintf("Closed %s: %s.", closed, woundText(w)), w.Citation)
	}
}

func medications(b *strings.Builder, s *facts.Summary) {
	if len(s.Medications) == 0 {
		empty(b, record.CategoryMedications)
		return
	}
	for _, m := range s.Medications {
		text := m.Name
		for _, p := range []string{m.Dosage, m.Frequency} {
			if p != "" {
				text += " " + p
			}
		}
		var extra []string
		if m.Classification != "" {
			extra = append(extra, m.Classification)
		}
		if m.Reason != "" {
			extra = append(extra, "for "+m.Reason)
		}
		if len(extra) > 0 {
			text += " (" + strings.Join(extra, ", ") + ")"
		}
		bullet(b, text+".", m.Citation)
	}
}

func scoresText(scores []record.DomainScore) string {
	parts := make([]string, 0, len(scores))
	for _, sc := range scores {
		parts = append(parts, sc.Domain+" "+sc.Score)
	}
	if len(parts) == 0 {
		return "no scores recorded"
	}
	return strings.Join(parts, ", ")
}

func functional(b *strings.Builder, s *facts.Summary) {
	f := s.Functional.Latest
	if f == nil {
		empty(b, record.CategoryOASIS)
		return
	}
	bullet(b, fmt.Sprintf("%s: %s.", orDefault(f.AssessmentType, "Assessment"), scoresText(f.Scores)), f.Citation)
	for _, h := range s.Functional.History {
		bullet(b, fmt.Sprintf("Prior %s: %s.", orDefault(h.AssessmentType, "assessment"), scoresText(h.Scores)), h.Citation)
	}
}

func notes(b *strings.Builder, s *facts.Summary) {
	if len(s.Notes) == 0 {
		empty(b, record.CategoryNotes)
		return
	}
	for _, n := range s.Notes {
		text := n.Snippet
		if n.NoteType != "" {
			text = n.NoteType + ": " + text
		}
		bullet(b, text, n.Citation)
	}
}

func synthesized(b *strings.Builder, items []string, none string) {
	if len(items) == 0 {
		items = []string{none}
	}
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", flatten(it))
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
