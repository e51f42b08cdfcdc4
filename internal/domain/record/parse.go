package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedRecord is wrapped by every ingestion coercion failure.
var ErrMalformedRecord = errors.New("malformed record")

// MalformedRecordError reports which row and field failed coercion.
type MalformedRecordError struct {
	Category Category
	Row      int
	Field    string
	Reason   string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed %s row %d: %s: %s", e.Category, e.Row, e.Field, e.Reason)
}

func (e *MalformedRecordError) Unwrap() error { return ErrMalformedRecord }

// AssessmentDomains are the OASIS functional domains read from an assessment
// row, in the order they are reported.
var AssessmentDomains = []string{
	"grooming",
	"dressing_upper",
	"dressing_lower",
	"bathing",
	"toilet_transfer",
	"toileting_hygiene",
	"transfer",
	"ambulation",
	"feeding",
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006",
	"1/2/2006",
}

// ParseDate accepts the date layouts seen in the record exports and
// truncates the result to a UTC calendar day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date", s)
}

// row is a header-normalized view of one source row.
type row struct {
	cat    Category
	seq    int
	values map[string]string
}

func newRow(cat Category, seq int, raw map[string]string) row {
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		values[normalizeHeader(k)] = strings.TrimSpace(v)
	}
	return row{cat: cat, seq: seq, values: values}
}

func (r row) fail(field, format string, args ...interface{}) error {
	return &MalformedRecordError{Category: r.cat, Row: r.seq, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// str returns the first non-empty value among the field and its aliases.
func (r row) str(field string, aliases ...string) string {
	if v := r.values[field]; v != "" {
		return v
	}
	for _, a := range aliases {
		if v := r.values[a]; v != "" {
			return v
		}
	}
	return ""
}

func (r row) required(field string, aliases ...string) (string, error) {
	v := r.str(field, aliases...)
	if v == "" {
		return "", r.fail(field, "required field is missing")
	}
	return v, nil
}

func (r row) id(field string, required bool) (*int64, error) {
	v := r.str(field)
	if v == "" {
		if required {
			return nil, r.fail(field, "required field is missing")
		}
		return nil, nil
	}
	// Spreadsheet exports sometimes write integer ids as "1001.0".
	v = strings.TrimSuffix(v, ".0")
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, r.fail(field, "cannot parse %q as an integer id", v)
	}
	return &n, nil
}

func (r row) date(field string, aliases ...string) (*time.Time, error) {
	v := r.str(field, aliases...)
	if v == "" {
		return nil, nil
	}
	t, err := ParseDate(v)
	if err != nil {
		return nil, r.fail(field, "%v", err)
	}
	return &t, nil
}

func (r row) number(field string, aliases ...string) (*float64, error) {
	v := r.str(field, aliases...)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, r.fail(field, "cannot parse %q as a number", v)
	}
	return &f, nil
}

func (r row) flag(field string, aliases ...string) (*bool, error) {
	v := strings.ToLower(r.str(field, aliases...))
	if v == "" {
		return nil, nil
	}
	var b bool
	switch v {
	case "true", "t", "yes", "y", "1", "primary":
		b = true
	case "false", "f", "no", "n", "0", "secondary":
		b = false
	default:
		return nil, r.fail(field, "cannot parse %q as a flag", v)
	}
	return &b, nil
}

func (r row) meta() (Meta, error) {
	pid, err := r.id("patient_id", true)
	if err != nil {
		return Meta{}, err
	}
	eid, err := r.id("episode_id", false)
	if err != nil {
		return Meta{}, err
	}
	date, err := r.date(r.cat.DateField())
	if err != nil {
		return Meta{}, err
	}
	return Meta{PatientID: *pid, EpisodeID: eid, Date: date, Seq: r.seq}, nil
}

// Parse coerces one raw source row into its typed record. seq is the row's
// zero-based position within its table.
func Parse(cat Category, seq int, raw map[string]string) (Record, error) {
	if !cat.Valid() {
		return nil, fmt.Errorf("parse row %d: unknown category %q", seq, cat)
	}
	r := newRow(cat, seq, raw)
	meta, err := r.meta()
	if err != nil {
		return nil, err
	}

	switch cat {
	case CategoryDiagnoses:
		return parseDiagnosis(r, meta)
	case CategoryMedications:
		return parseMedication(r, meta)
	case CategoryVitals:
		return parseVital(r, meta)
	case CategoryWounds:
		return parseWound(r, meta)
	case CategoryOASIS:
		return parseAssessment(r, meta)
	default:
		return parseNote(r, meta)
	}
}

func parseDiagnosis(r row, meta Meta) (Record, error) {
	d := Diagnosis{
		Meta:        meta,
		Code:        r.str("diagnosis_code", "icd_code", "code"),
		Description: r.str("diagnosis_description", "description"),
	}
	if d.Code == "" && d.Description == "" {
		return nil, r.fail("diagnosis_code", "either a code or a description is required")
	}
	primary, err := r.flag("is_primary", "primary")
	if err != nil {
		return nil, err
	}
	d.Primary = primary
	return d, nil
}

func parseMedication(r row, meta Meta) (Record, error) {
	name, err := r.required("medication_name", "name")
	if err != nil {
		return nil, err
	}
	return Medication{
		Meta:           meta,
		Name:           name,
		Dosage:         r.str("dosage", "dose"),
		Frequency:      r.str("frequency"),
		Classification: r.str("classification"),
		Reason:         r.str("reason", "indication"),
	}, nil
}

func parseVital(r row, meta Meta) (Record, error) {
	vt, err := r.required("vital_type")
	if err != nil {
		return nil, err
	}
	lo, err := r.number("min_value")
	if err != nil {
		return nil, err
	}
	hi, err := r.number("max_value")
	if err != nil {
		return nil, err
	}
	return Vital{
		Meta:    meta,
		Type:    vt,
		Reading: r.str("reading", "value"),
		Min:     lo,
		Max:     hi,
	}, nil
}

func parseWound(r row, meta Meta) (Record, error) {
	loc, err := r.required("location", "wound_location")
	if err != nil {
		return nil, err
	}
	w := Wound{
		Meta:        meta,
		WoundID:     r.str("wound_id"),
		Location:    loc,
		Description: r.str("description", "wound_description"),
		Stage:       r.str("stage", "wound_stage"),
		Dimensions:  r.str("dimensions", "size"),
	}
	if w.Length, err = r.number("length", "length_cm"); err != nil {
		return nil, err
	}
	if w.Width, err = r.number("width", "width_cm"); err != nil {
		return nil, err
	}
	if w.Depth, err = r.number("depth", "depth_cm"); err != nil {
		return nil, err
	}
	if w.OnsetDate, err = r.date("onset_date"); err != nil {
		return nil, err
	}
	if w.ClosureDate, err = r.date("closure_date", "resolved_date", "healed_date"); err != nil {
		return nil, err
	}
	return w, nil
}

func parseAssessment(r row, meta Meta) (Record, error) {
	a := Assessment{
		Meta:           meta,
		AssessmentType: r.str("assessment_type"),
	}
	for _, domain := range AssessmentDomains {
		if v := r.str(domain); v != "" {
			a.Scores = append(a.Scores, DomainScore{Domain: domain, Score: v})
		}
	}
	return a, nil
}

func parseNote(r row, meta Meta) (Record, error) {
	text, err := r.required("note_text", "text")
	if err != nil {
		return nil, err
	}
	return Note{
		Meta:     meta,
		NoteType: r.str("note_type"),
		Text:     text,
	}, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.NewReplacer(" ", "_", "-", "_").Replace(h)
}

func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
