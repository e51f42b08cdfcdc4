package record

import (
	"errors"
	"testing"
	"time"
)

func TestParse_Vital(t *testing.T) {
	rec, err := Parse(CategoryVitals, 4, map[string]string{
		"Patient_ID": "1001",
		"visit_date": "2026-01-07",
		"vital_type": "Blood Pressure",
		"reading":    " 150/95 ",
		"min_value":  "90",
		"max_value":  "",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok := rec.(Vital)
	if !ok {
		t.Fatalf("expected Vital, got %T", rec)
	}
	if v.PatientID != 1001 || v.Seq != 4 {
		t.Errorf("unexpected meta: %+v", v.Meta)
	}
	if v.Reading != "150/95" {
		t.Errorf("expected trimmed reading, got %q", v.Reading)
	}
	if v.Min == nil || *v.Min != 90 || v.Max != nil {
		t.Errorf("unexpected range: min=%v max=%v", v.Min, v.Max)
	}
	if _, ok := v.Episode(); ok {
		t.Error("expected no episode id")
	}
	d, ok := v.Dated()
	if !ok || !d.Equal(time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected date: %v", d)
	}
}

func TestParse_UnreadableReadingIsKept(t *testing.T) {
	rec, err := Parse(CategoryVitals, 0, map[string]string{
		"patient_id": "1", "vital_type": "Heart Rate", "reading": "abc",
	})
	if err != nil {
		t.Fatalf("unreadable readings are excluded later, not rejected: %v", err)
	}
	if rec.(Vital).Reading != "abc" {
		t.Errorf("expected raw reading to be kept")
	}
}

func TestParse_DateLayouts(t *testing.T) {
	want := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2026-01-07", "2026-01-07T14:30:00Z", "2026-01-07 14:30:00", "01/07/2026", "1/7/2026"} {
		got, err := ParseDate(in)
		if err != nil {
			t.Errorf("ParseDate(%q) error: %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseDate(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		cat   Category
		row   map[string]string
		field string
	}{
		{"missing patient", CategoryNotes, map[string]string{"note_text": "x"}, "patient_id"},
		{"non-numeric patient", CategoryNotes, map[string]string{"patient_id": "P-1", "note_text": "x"}, "patient_id"},
		{"bad episode", CategoryOASIS, map[string]string{"patient_id": "1", "episode_id": "ep"}, "episode_id"},
		{"bad date", CategoryVitals, map[string]string{"patient_id": "1", "vital_type": "Pulse", "visit_date": "yesterday"}, "visit_date"},
		{"missing vital type", CategoryVitals, map[string]string{"patient_id": "1", "reading": "80"}, "vital_type"},
		{"bad range", CategoryVitals, map[string]string{"patient_id": "1", "vital_type": "Pulse", "max_value": "high"}, "max_value"},
		{"missing medication name", CategoryMedications, map[string]string{"patient_id": "1", "dosage": "5 mg"}, "medication_name"},
		{"empty diagnosis", CategoryDiagnoses, map[string]string{"patient_id": "1"}, "diagnosis_code"},
		{"bad primary flag", CategoryDiagnoses, map[string]string{"patient_id": "1", "diagnosis_code": "I10", "is_primary": "maybe"}, "is_primary"},
		{"missing wound location", CategoryWounds, map[string]string{"patient_id": "1"}, "location"},
		{"bad wound length", CategoryWounds, map[string]string{"patient_id": "1", "location": "Sacrum", "length": "2cm"}, "length"},
		{"bad closure date", CategoryWounds, map[string]string{"patient_id": "1", "location": "Sacrum", "closure_date": "soon"}, "closure_date"},
		{"missing note text", CategoryNotes, map[string]string{"patient_id": "1"}, "note_text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.cat, 7, tt.row)
			if !errors.Is(err, ErrMalformedRecord) {
				t.Fatalf("expected ErrMalformedRecord, got %v", err)
			}
			var me *MalformedRecordError
			if !errors.As(err, &me) {
				t.Fatalf("expected *MalformedRecordError, got %T", err)
			}
			if me.Field != tt.field || me.Row != 7 || me.Category != tt.cat {
				t.Errorf("unexpected error detail: %+v", me)
			}
		})
	}
}

func TestParse_DiagnosisPrimaryFlag(t *testing.T) {
	rec, err := Parse(CategoryDiagnoses, 0, map[string]string{
		"patient_id": "1", "episode_id": "10", "diagnosis_code": "I10", "is_primary": "Yes",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := rec.(Diagnosis)
	if d.Primary == nil || !*d.Primary {
		t.Errorf("expected primary flag true, got %v", d.Primary)
	}
	if ep, ok := d.Episode(); !ok || ep != 10 {
		t.Errorf("expected episode 10, got %d (%v)", ep, ok)
	}
}

func TestParse_AssessmentScoresInDomainOrder(t *testing.T) {
	rec, err := Parse(CategoryOASIS, 0, map[string]string{
		"patient_id": "1", "assessment_date": "2026-01-02",
		"ambulation": "3", "grooming": "2", "bathing": "",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a := rec.(Assessment)
	if len(a.Scores) != 2 {
		t.Fatalf("expected 2 scores, got %+v", a.Scores)
	}
	if a.Scores[0].Domain != "grooming" || a.Scores[1].Domain != "ambulation" {
		t.Errorf("unexpected domain order: %+v", a.Scores)
	}
}

func TestParse_SpreadsheetIntegerIDs(t *testing.T) {
	rec, err := Parse(CategoryNotes, 0, map[string]string{"patient_id": "1001.0", "episode_id": "5002.0", "note_text": "ok"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Patient() != 1001 {
		t.Errorf("expected patient 1001, got %d", rec.Patient())
	}
}

func TestWoundKey(t *testing.T) {
	a := Wound{Location: "Left  Heel"}
	b := Wound{Location: "left heel"}
	if a.Key() != b.Key() {
		t.Errorf("expected location keys to match: %q vs %q", a.Key(), b.Key())
	}
	c := Wound{WoundID: "W1", Location: "left heel"}
	if c.Key() == b.Key() {
		t.Error("expected wound id to take precedence over location")
	}
}

func TestParseCategory(t *testing.T) {
	for in, want := range map[string]Category{"vitals": CategoryVitals, "oasis.csv": CategoryOASIS} {
		got, err := ParseCategory(in)
		if err != nil || got != want {
			t.Errorf("ParseCategory(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseCategory("labs"); err == nil {
		t.Error("expected error for unknown category")
	}
}
