package facts

import (
	"fmt"
	"time"

	"github.com/ehr/clinsum/internal/domain/record"
)

// UnknownDate is rendered in place of a missing citation date.
const UnknownDate = "unknown"

// Citation points a fact back at the row it came from.
type Citation struct {
	SourceFile string     `json:"source_file"`
	DateField  string     `json:"date_field"`
	Date       *time.Time `json:"date,omitempty"`
}

// String renders the citation token, e.g.
// [Source: vitals.csv | visit_date=2026-01-07].
func (c Citation) String() string {
	date := UnknownDate
	if c.Date != nil {
		date = c.Date.Format("2006-01-02")
	}
	return fmt.Sprintf("[Source: %s | %s=%s]", c.SourceFile, c.DateField, date)
}

// Cite builds the citation for a record.
func Cite(rec record.Record) Citation {
	c := CategoryCitation(rec.Category())
	if d, ok := rec.Dated(); ok {
		c.Date = &d
	}
	return c
}

// CategoryCitation is an undated citation of a category's source file, used
// when a group has nothing to report.
func CategoryCitation(cat record.Category) Citation {
	return Citation{SourceFile: cat.SourceFile(), DateField: cat.DateField()}
}

// Fact is implemented by every fact variant.
type Fact interface {
	Category() record.Category
	Cite() Citation
}

type DiagnosisFact struct {
	Code        string   `json:"code,omitempty"`
	Description string   `json:"description,omitempty"`
	Primary     bool     `json:"primary"`
	Citation    Citation `json:"citation"`
}

func (DiagnosisFact) Category() record.Category { return record.CategoryDiagnoses }
func (f DiagnosisFact) Cite() Citation          { return f.Citation }

type MedicationFact struct {
	Name           string   `json:"name"`
	Dosage         string   `json:"dosage,omitempty"`
	Frequency      string   `json:"frequency,omitempty"`
	Classification string   `json:"classification,omitempty"`
	Reason         string   `json:"reason,omitempty"`
	Citation       Citation `json:"citation"`
}

func (MedicationFact) Category() record.Category { return record.CategoryMedications }
func (f MedicationFact) Cite() Citation          { return f.Citation }

// Trend compares the latest reading of a vital with the one before it.
type Trend string

const (
	TrendRising       Trend = "rising"
	TrendFalling      Trend = "falling"
	TrendStable       Trend = "stable"
	TrendInsufficient Trend = "insufficient-history"
)

type VitalFact struct {
	// VitalType is the type as written on the latest record.
	VitalType string `json:"vital_type"`
	// Kind is the normalized type used for range lookup and grouping.
	Kind     string `json:"kind"`
	Reading  string `json:"reading"`
	Previous string `json:"previous,omitempty"`
	Trend    Trend  `json:"trend"`
	Abnormal bool   `json:"abnormal"`
	// Reasons describe each bound the reading crossed, e.g. "systolic above 140".
	Reasons  []string `json:"reasons,omitempty"`
	Citation Citation `json:"citation"`
}

func (VitalFact) Category() record.Category { return record.CategoryVitals }
func (f VitalFact) Cite() Citation          { return f.Citation }

type WoundFact struct {
	Location      string     `json:"location"`
	Stage         string     `json:"stage,omitempty"`
	Dimensions    string     `json:"dimensions,omitempty"`
	Description   string     `json:"description,omitempty"`
	HealingStatus []string   `json:"healing_status,omitempty"`
	Onset         *time.Time `json:"onset,omitempty"`
	Closed        *time.Time `json:"closed,omitempty"`
	Citation      Citation   `json:"citation"`
}

func (WoundFact) Category() record.Category { return record.CategoryWounds }
func (f WoundFact) Cite() Citation          { return f.Citation }

type FunctionalFact struct {
	AssessmentType string               `json:"assessment_type,omitempty"`
	Scores         []record.DomainScore `json:"scores"`
	Citation       Citation             `json:"citation"`
}

func (FunctionalFact) Category() record.Category { return record.CategoryOASIS }
func (f FunctionalFact) Cite() Citation          { return f.Citation }

type NoteFact struct {
	NoteType string   `json:"note_type,omitempty"`
	Snippet  string   `json:"snippet"`
	Citation Citation `json:"citation"`
}

func (NoteFact) Category() record.Category { return record.CategoryNotes }
func (f NoteFact) Cite() Citation          { return f.Citation }

// WoundGroup splits wounds into those still open and those documented as
// closed.
type WoundGroup struct {
	Active  []WoundFact `json:"active"`
	History []WoundFact `json:"history,omitempty"`
}

// FunctionalGroup holds the most recent assessment plus earlier ones,
// most recent first.
type FunctionalGroup struct {
	Latest  *FunctionalFact  `json:"latest,omitempty"`
	History []FunctionalFact `json:"history,omitempty"`
}

// Summary is the structured input handed to the narrative composers.
type Summary struct {
	PatientID   int64            `json:"patient_id"`
	EpisodeID   int64            `json:"episode_id"`
	Diagnoses   []DiagnosisFact  `json:"diagnoses"`
	Medications []MedicationFact `json:"medications"`
	Vitals      []VitalFact      `json:"vitals"`
	Wounds      WoundGroup       `json:"wounds"`
	Functional  FunctionalGroup  `json:"functional"`
	Notes       []NoteFact       `json:"notes"`
}

// Primary returns the primary diagnosis, if any.
func (s *Summary) Primary() (DiagnosisFact, bool) {
	for _, d := range s.Diagnoses {
		if d.Primary {
			return d, true
		}
	}
	return DiagnosisFact{}, false
}

// Facts lists every fact in the summary in section order.
func (s *Summary) Facts() []Fact {
	var out []Fact
	for _, f := range s.Diagnoses {
		out = append(out, f)
	}
	for _, f := range s.Vitals {
		out = append(out, f)
	}
	for _, f := range s.Wounds.Active {
		out = append(out, f)
	}
	for _, f := range s.Wounds.History {
		out = append(out, f)
	}
	for _, f := range s.Medications {
		out = append(out, f)
	}
	if s.Functional.Latest != nil {
		out = append(out, *s.Functional.Latest)
	}
	for _, f := range s.Functional.History {
		out = append(out, f)
	}
	for _, f := range s.Notes {
		out = append(out, f)
	}
	return out
}
