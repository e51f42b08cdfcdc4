package facts

import (
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/ehr/clinsum/internal/domain/episode"
	"github.com/ehr/clinsum/internal/domain/record"
)

const (
	DefaultNoteHighlights = 3
	DefaultSnippetChars   = 300
	// PolypharmacyThreshold is the regimen count at which medications are
	// flagged as a risk.
	PolypharmacyThreshold = 5
)

// HealingVocabulary is the fixed set of wound status keywords, reported in
// this order when found in a wound description.
var HealingVocabulary = []string{
	"healed", "healing", "improving", "granulation", "epithelialization", "closed", "stable",
	"deteriorating", "worsening", "declining", "infected", "infection", "slough", "necrotic",
	"eschar", "drainage", "odor", "erythema", "tunneling", "undermining", "maceration",
}

type Options struct {
	NoteHighlights int
	SnippetChars   int
	Ranges         RangeTable
}

// Extractor turns an episode bundle into cited facts. It holds no state
// beyond its options and is safe for concurrent use.
type Extractor struct {
	opts Options
}

func NewExtractor(opts Options) *Extractor {
	if opts.NoteHighlights <= 0 {
		opts.NoteHighlights = DefaultNoteHighlights
	}
	if opts.SnippetChars <= 0 {
		opts.SnippetChars = DefaultSnippetChars
	}
	if opts.Ranges == nil {
		opts.Ranges = DefaultRanges()
	}
	return &Extractor{opts: opts}
}

// Extract builds the structured summary input for one episode. Absent
// categories yield empty groups.
func (x *Extractor) Extract(b *episode.Bundle) *Summary {
	return &Summary{
		PatientID:   b.PatientID,
		EpisodeID:   b.EpisodeID,
		Diagnoses:   x.diagnoses(b.Records[record.CategoryDiagnoses]),
		Medications: x.medications(b.Records[record.CategoryMedications]),
		Vitals:      x.vitals(b.Records[record.CategoryVitals]),
		Wounds:      x.wounds(b.Records[record.CategoryWounds]),
		Functional:  x.functional(b.Records[record.CategoryOASIS]),
		Notes:       x.notes(b.Records[record.CategoryNotes]),
	}
}

// newer orders records by recency: dated before undated, later date first,
// then later source row first.
func newer(a, b record.Record) bool {
	da, okA := a.Dated()
	db, okB := b.Dated()
	if okA != okB {
		return okA
	}
	if okA && !da.Equal(db) {
		return da.After(db)
	}
	return a.Order() > b.Order()
}

func (x *Extractor) diagnoses(recs []record.Record) []DiagnosisFact {
	primary := -1
	for i, r := range recs {
		if d := r.(record.Diagnosis); d.Primary != nil && *d.Primary {
			primary = i
			break
		}
	}
	if primary < 0 && len(recs) > 0 {
		primary = 0
	}

	out := make([]DiagnosisFact, 0, len(recs))
	for i, r := range recs {
		d := r.(record.Diagnosis)
		out = append(out, DiagnosisFact{
			Code:        d.Code,
			Description: d.Description,
			Primary:     i == primary,
			Citation:    Cite(d),
		})
	}
	return out
}

func medicationKey(m record.Medication) string {
	return strings.Join([]string{normalizeText(m.Name), normalizeText(m.Dosage), normalizeText(m.Frequency)}, "|")
}

func (x *Extractor) medications(recs []record.Record) []MedicationFact {
	var order []string
	latest := make(map[string]record.Medication)
	for _, r := range recs {
		m := r.(record.Medication)
		key := medicationKey(m)
		cur, seen := latest[key]
		if !seen {
			order = append(order, key)
			latest[key] = m
			continue
		}
		if newer(m, cur) {
			latest[key] = m
		}
	}

	out := make([]MedicationFact, 0, len(order))
	for _, key := range order {
		m := latest[key]
		out = append(out, MedicationFact{
			Name:           m.Name,
			Dosage:         m.Dosage,
			Frequency:      m.Frequency,
			Classification: m.Classification,
			Reason:         m.Reason,
			Citation:       Cite(m),
		})
	}
	return out
}

type reading struct {
	vital record.Vital
	m     Measurement
}

func (x *Extractor) vitals(recs []record.Record) []VitalFact {
	var kinds []string
	byKind := make(map[string][]reading)
	for _, r := range recs {
		v := r.(record.Vital)
		m, ok := ParseReading(v.Reading)
		if !ok {
			continue
		}
		kind := x.opts.Ranges.Kind(v.Type)
		if _, seen := byKind[kind]; !seen {
			kinds = append(kinds, kind)
		}
		byKind[kind] = append(byKind[kind], reading{vital: v, m: m})
	}

	out := make([]VitalFact, 0, len(kinds))
	for _, kind := range kinds {
		rs := byKind[kind]
		sort.SliceStable(rs, func(i, j int) bool { return newer(rs[i].vital, rs[j].vital) })
		cur := rs[0]
		f := VitalFact{
			VitalType: cur.vital.Type,
			Kind:      kind,
			Reading:   cur.vital.Reading,
			Trend:     TrendInsufficient,
			Citation:  Cite(cur.vital),
		}
		if len(rs) > 1 {
			f.Previous = rs[1].vital.Reading
			f.Trend = trend(rs[1].m, cur.m)
		}
		f.Reasons = x.opts.Ranges.Check(kind, cur.m, cur.vital.Min, cur.vital.Max)
		f.Abnormal = len(f.Reasons) > 0
		out = append(out, f)
	}
	return out
}

func trend(prev, cur Measurement) Trend {
	switch {
	case cur.Primary > prev.Primary:
		return TrendRising
	case cur.Primary < prev.Primary:
		return TrendFalling
	}
	if cur.Secondary != nil && prev.Secondary != nil {
		switch {
		case *cur.Secondary > *prev.Secondary:
			return TrendRising
		case *cur.Secondary < *prev.Secondary:
			return TrendFalling
		}
	}
	return TrendStable
}

func (x *Extractor) wounds(recs []record.Record) WoundGroup {
	var keys []string
	byKey := make(map[string][]record.Wound)
	for _, r := range recs {
		w := r.(record.Wound)
		k := w.Key()
		if _, seen := byKey[k]; !seen {
			keys = append(keys, k)
		}
		byKey[k] = append(byKey[k], w)
	}

	var g WoundGroup
	for _, k := range keys {
		ws := byKey[k]
		latestRec := ws[0]
		var onset, closure *time.Time
		for _, w := range ws {
			if newer(w, latestRec) {
				latestRec = w
			}
			onset = laterOf(onset, w.OnsetDate)
			closure = laterOf(closure, w.ClosureDate)
		}
		active := closure == nil || (onset != nil && closure.Before(*onset))

		f := WoundFact{
			Location:      latestRec.Location,
			Stage:         latestRec.Stage,
			Dimensions:    dimensions(latestRec),
			Description:   latestRec.Description,
			HealingStatus: healingKeywords(latestRec.Description),
			Onset:         onset,
			Citation:      Cite(latestRec),
		}
		if active {
			g.Active = append(g.Active, f)
		} else {
			f.Closed = closure
			g.History = append(g.History, f)
		}
	}
	return g
}

func laterOf(cur, cand *time.Time) *time.Time {
	if cand == nil {
		return cur
	}
	if cur == nil || cand.After(*cur) {
		c := *cand
		return &c
	}
	return cur
}

func dimensions(w record.Wound) string {
	var parts []string
	for _, v := range []*float64{w.Length, w.Width, w.Depth} {
		if v == nil {
			break
		}
		parts = append(parts, formatNumber(*v))
	}
	if len(parts) > 0 {
		return strings.Join(parts, " x ") + " cm"
	}
	return w.Dimensions
}

func healingKeywords(desc string) []string {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(desc), func(r rune) bool { return !unicode.IsLetter(r) }) {
		words[w] = true
	}
	var out []string
	for _, k := range HealingVocabulary {
		if words[k] {
			out = append(out, k)
		}
	}
	return out
}

func (x *Extractor) functional(recs []record.Record) FunctionalGroup {
	if len(recs) == 0 {
		return FunctionalGroup{}
	}
	sorted := append([]record.Record(nil), recs...)
	sort.SliceStable(sorted, func(i, j int) bool { return newer(sorted[i], sorted[j]) })

	toFact := func(r record.Record) FunctionalFact {
		a := r.(record.Assessment)
		return FunctionalFact{
			AssessmentType: a.AssessmentType,
			Scores:         append([]record.DomainScore(nil), a.Scores...),
			Citation:       Cite(a),
		}
	}
	latest := toFact(sorted[0])
	g := FunctionalGroup{Latest: &latest}
	for _, r := range sorted[1:] {
		g.History = append(g.History, toFact(r))
	}
	return g
}

func (x *Extractor) notes(recs []record.Record) []NoteFact {
	sorted := append([]record.Record(nil), recs...)
	// Most recent first; same-day notes keep their original order.
	sort.SliceStable(sorted, func(i, j int) bool {
		di, okI := sorted[i].Dated()
		dj, okJ := sorted[j].Dated()
		if okI != okJ {
			return okI
		}
		if okI && !di.Equal(dj) {
			return di.After(dj)
		}
		return sorted[i].Order() < sorted[j].Order()
	})
	if len(sorted) > x.opts.NoteHighlights {
		sorted = sorted[:x.opts.NoteHighlights]
	}

	out := make([]NoteFact, 0, len(sorted))
	for _, r := range sorted {
		n := r.(record.Note)
		out = append(out, NoteFact{
			NoteType: n.NoteType,
			Snippet:  Snippet(n.Text, x.opts.SnippetChars),
			Citation: Cite(n),
		})
	}
	return out
}

// Snippet flattens whitespace and truncates text to limit characters,
// appending "..." when anything was cut.
func Snippet(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:limit])) + "..."
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
