package record

import (
	"fmt"
	"time"
)

// Category identifies one of the clinical record tables.
type Category string

const (
	CategoryDiagnoses   Category = "diagnoses"
	CategoryMedications Category = "medications"
	CategoryVitals      Category = "vitals"
	CategoryWounds      Category = "wounds"
	CategoryOASIS       Category = "oasis"
	CategoryNotes       Category = "notes"
)

// Categories lists every category in presentation order.
var Categories = []Category{
	CategoryDiagnoses,
	CategoryMedications,
	CategoryVitals,
	CategoryWounds,
	CategoryOASIS,
	CategoryNotes,
}

// SourceFile is the file name used in citations and by the CSV loader.
func (c Category) SourceFile() string {
	return string(c) + ".csv"
}

// DateField is the column whose value is cited for a record of this category.
func (c Category) DateField() string {
	switch c {
	case CategoryDiagnoses:
		return "diagnosis_date"
	case CategoryMedications:
		return "start_date"
	case CategoryVitals, CategoryWounds:
		return "visit_date"
	case CategoryOASIS:
		return "assessment_date"
	case CategoryNotes:
		return "note_date"
	}
	return "date"
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

// ParseCategory accepts a category name or its source file name.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if s == string(c) || s == c.SourceFile() {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown record category %q", s)
}

// Meta carries the fields shared by every record variant.
type Meta struct {
	PatientID int64      `json:"patient_id"`
	EpisodeID *int64     `json:"episode_id,omitempty"`
	Date      *time.Time `json:"date,omitempty"`
	// Seq is the zero-based row position within the record's source table.
	Seq int `json:"seq"`
}

func (m Meta) Patient() int64 { return m.PatientID }

func (m Meta) Episode() (int64, bool) {
	if m.EpisodeID == nil {
		return 0, false
	}
	return *m.EpisodeID, true
}

func (m Meta) Dated() (time.Time, bool) {
	if m.Date == nil {
		return time.Time{}, false
	}
	return *m.Date, true
}

func (m Meta) Order() int { return m.Seq }

// Record is implemented by Diagnosis, Medication, Vital, Wound, Assessment
// and Note. The set is closed.
type Record interface {
	Category() Category
	Patient() int64
	Episode() (int64, bool)
	Dated() (time.Time, bool)
	Order() int
	isRecord()
}

type Diagnosis struct {
	Meta
	Code        string `json:"diagnosis_code"`
	Description string `json:"diagnosis_description"`
	// Primary is nil when the source row carries no primary flag.
	Primary *bool `json:"is_primary,omitempty"`
}

func (Diagnosis) Category() Category { return CategoryDiagnoses }
func (Diagnosis) isRecord()          {}

type Medication struct {
	Meta
	Name           string `json:"medication_name"`
	Dosage         string `json:"dosage,omitempty"`
	Frequency      string `json:"frequency,omitempty"`
	Classification string `json:"classification,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

func (Medication) Category() Category { return CategoryMedications }
func (Medication) isRecord()          {}

// Vital keeps the reading as written; numeric interpretation happens during
// fact extraction so that an unreadable value is skipped rather than zeroed.
type Vital struct {
	Meta
	Type    string   `json:"vital_type"`
	Reading string   `json:"reading"`
	Min     *float64 `json:"min_value,omitempty"`
	Max     *float64 `json:"max_value,omitempty"`
}

func (Vital) Category() Category { return CategoryVitals }
func (Vital) isRecord()          {}

type Wound struct {
	Meta
	WoundID     string     `json:"wound_id,omitempty"`
	Location    string     `json:"location"`
	Description string     `json:"description,omitempty"`
	Stage       string     `json:"stage,omitempty"`
	Length      *float64   `json:"length_cm,omitempty"`
	Width       *float64   `json:"width_cm,omitempty"`
	Depth       *float64   `json:"depth_cm,omitempty"`
	Dimensions  string     `json:"dimensions,omitempty"`
	OnsetDate   *time.Time `json:"onset_date,omitempty"`
	ClosureDate *time.Time `json:"closure_date,omitempty"`
}

func (Wound) Category() Category { return CategoryWounds }
func (Wound) isRecord()          {}

// Key identifies the physical wound across visits.
func (w Wound) Key() string {
	if w.WoundID != "" {
		return "id:" + w.WoundID
	}
	return "loc:" + normalizeKey(w.Location)
}

// DomainScore is one functional domain of an OASIS assessment.
type DomainScore struct {
	Domain string `json:"domain"`
	Score  string `json:"score"`
}

type Assessment struct {
	Meta
	AssessmentType string        `json:"assessment_type,omitempty"`
	Scores         []DomainScore `json:"scores"`
}

func (Assessment) Category() Category { return CategoryOASIS }
func (Assessment) isRecord()          {}

type Note struct {
	Meta
	NoteType string `json:"note_type,omitempty"`
	Text     string `json:"note_text"`
}

func (Note) Category() Category { return CategoryNotes }
func (Note) isRecord()          {}
