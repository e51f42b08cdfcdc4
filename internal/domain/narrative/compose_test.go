package narrative

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/ehr/clinsum/internal/domain/episode"
	"github.com/ehr/clinsum/internal/domain/facts"
	"github.com/ehr/clinsum/internal/domain/record"
)

func day(s string) *time.Time {
	t, err := record.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return &t
}

func meta(date *time.Time, seq int) record.Meta {
	id := int64(5002)
	return record.Meta{PatientID: 1001, EpisodeID: &id, Date: date, Seq: seq}
}

func summarize(recs ...record.Record) *facts.Summary {
	b := &episode.Bundle{PatientID: 1001, EpisodeID: 5002, Records: make(map[record.Category][]record.Record)}
	for _, r := range recs {
		b.Records[r.Category()] = append(b.Records[r.Category()], r)
	}
	return facts.NewExtractor(facts.Options{}).Extract(b)
}

func fullSummary() *facts.Summary {
	l, w := 2.0, 1.5
	return summarize(
		record.Diagnosis{Meta: meta(nil, 0), Code: "E11.9", Description: "Type 2 diabetes"},
		record.Diagnosis{Meta: meta(day("2026-01-02"), 1), Code: "I10", Description: "Hypertension"},
		record.Medication{Meta: meta(day("2026-01-02"), 0), Name: "Metformin", Dosage: "500 mg", Frequency: "BID"},
		record.Medication{Meta: meta(day("2026-01-09"), 1), Name: "Metformin", Dosage: "500 mg", Frequency: "BID"},
		record.Vital{Meta: meta(day("2026-01-05"), 0), Type: "Blood Pressure", Reading: "120/80"},
		record.Vital{Meta: meta(day("2026-01-07"), 1), Type: "Blood Pressure", Reading: "150/95"},
		record.Wound{Meta: meta(day("2026-01-06"), 0), WoundID: "W1", Location: "Left heel", Stage: "2", Description: "Granulation tissue present; healing", Length: &l, Width: &w},
		record.Assessment{Meta: meta(day("2026-01-02"), 0), AssessmentType: "Resumption of Care", Scores: []record.DomainScore{{Domain: "grooming", Score: "1"}, {Domain: "bathing", Score: "3"}}},
		record.Note{Meta: meta(day("2026-01-07"), 0), NoteType: "Skilled Nursing", Text: "BP elevated at 150/95, physician notified."},
	)
}

var trailingCitation = regexp.MustCompile(`\[Source: [a-z]+\.csv \| [a-z_]+=(\d{4}-\d{2}-\d{2}|unknown)\]$`)

var identifierLine = regexp.MustCompile(`^(Patient|Episode) ID: \d+$`)

// assertCited checks that every line outside the synthesis sections is
// either a heading, a request identifier or a bullet ending with a
// well-formed citation. A clause broken across lines fails on its first
// half.
func assertCited(t *testing.T, text string) {
	t.Helper()
	section := ""
	for _, line := range strings.Split(text, "\n") {
		heading := false
		for i, h := range Sections {
			if line == sectionHeading(i, h) {
				section = h
				heading = true
			}
		}
		if heading || line == "" || section == "" || section == SectionRisks || section == SectionCareFocus {
			continue
		}
		if section == SectionOverview && identifierLine.MatchString(line) {
			continue
		}
		if !strings.HasPrefix(line, "- ") || !trailingCitation.MatchString(line) {
			t.Errorf("section %q has uncited line %q", section, line)
		}
	}
}

func sectionHeading(i int, h string) string {
	return strings.Join([]string{string(rune('1' + i)), ". ", h}, "")
}

func assertSectionOrder(t *testing.T, text string) {
	t.Helper()
	last := -1
	for i, h := range Sections {
		idx := strings.Index(text, sectionHeading(i, h))
		if idx < 0 {
			t.Fatalf("missing section %q", h)
		}
		if idx < last {
			t.Errorf("section %q out of order", h)
		}
		last = idx
	}
}

func TestFallback_FullSummary(t *testing.T) {
	out := Fallback(fullSummary())
	assertSectionOrder(t, out)
	assertCited(t, out)

	wants := []string{
		"Blood Pressure: 150/95 (rising from 120/80), ABNORMAL: systolic above 140, diastolic above 90. [Source: vitals.csv | visit_date=2026-01-07]",
		"Metformin 500 mg BID. [Source: medications.csv | start_date=2026-01-09]",
		"E11.9 Type 2 diabetes (primary). [Source: diagnoses.csv | diagnosis_date=unknown]",
		"Active: Left heel, stage 2, 2 x 1.5 cm, Granulation tissue present; healing (status: healing, granulation). [Source: wounds.csv | visit_date=2026-01-06]",
		"Skilled Nursing: BP elevated at 150/95, physician notified. [Source: notes.csv | note_date=2026-01-07]",
	}
	for _, w := range wants {
		if !strings.Contains(out, w) {
			t.Errorf("expected output to contain %q\n%s", w, out)
		}
	}
	if strings.Contains(out, "PATIENT EHR DATA") {
		t.Error("fallback should not carry the instruction preamble")
	}
}

func TestFallback_EmptyGroupsStillCited(t *testing.T) {
	s := summarize(record.Note{Meta: meta(nil, 0), Text: "visit"})
	out := Fallback(s)
	assertSectionOrder(t, out)
	assertCited(t, out)
	for _, w := range []string{
		"No diagnoses data available. [Source: diagnoses.csv | diagnosis_date=unknown]",
		"No vitals data available. [Source: vitals.csv | visit_date=unknown]",
		"No wounds data available. [Source: wounds.csv | visit_date=unknown]",
		"No medications data available. [Source: medications.csv | start_date=unknown]",
		"No functional status data available. [Source: oasis.csv | assessment_date=unknown]",
		"visit [Source: notes.csv | note_date=unknown]",
	} {
		if !strings.Contains(out, w) {
			t.Errorf("expected output to contain %q", w)
		}
	}
}

func readTable(t *testing.T, cat record.Category, csv string) []record.Record {
	t.Helper()
	recs, err := record.ReadCSV(context.Background(), cat, strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ReadCSV(%s): %v", cat, err)
	}
	return recs
}

func TestFallback_MultilineFieldsStayCited(t *testing.T) {
	var recs []record.Record
	recs = append(recs, readTable(t, record.CategoryDiagnoses,
		"patient_id,episode_id,diagnosis_code,diagnosis_description\n"+
			"1001,5002,I50.9,\"Heart failure\nwith reduced ejection fraction\"\n")...)
	recs = append(recs, readTable(t, record.CategoryMedications,
		"patient_id,episode_id,start_date,medication_name,dosage,frequency,reason\n"+
			"1001,5002,2026-01-02,Furosemide,40 mg,daily,\"Fluid\n\noverload\"\n")...)
	recs = append(recs, readTable(t, record.CategoryWounds,
		"patient_id,wound_id,location,description,visit_date\n"+
			"1001,W1,\"Left\nheel\",\"Granulation tissue\nslough at edges\",2026-01-06\n")...)
	recs = append(recs, readTable(t, record.CategoryOASIS,
		"patient_id,episode_id,assessment_date,assessment_type,bathing\n"+
			"1001,5002,2026-01-02,\"Resumption\nof Care\",3\n")...)

	out := Fallback(summarize(recs...))
	assertCited(t, out)
	for _, w := range []string{
		"- I50.9 Heart failure with reduced ejection fraction (primary). [Source: diagnoses.csv | diagnosis_date=unknown]",
		"- Furosemide 40 mg daily (for Fluid overload). [Source: medications.csv | start_date=2026-01-02]",
		"- Active wound: Left heel. [Source: wounds.csv | visit_date=2026-01-06]",
		"- Resumption of Care: bathing 3. [Source: oasis.csv | assessment_date=2026-01-02]",
	} {
		if !strings.Contains(out, w) {
			t.Errorf("expected output to contain %q\n%s", w, out)
		}
	}
}

func TestFallback_OverviewCitesEachActiveWound(t *testing.T) {
	s := summarize(
		record.Wound{Meta: meta(day("2026-01-04"), 0), WoundID: "W1", Location: "Left heel"},
		record.Wound{Meta: meta(day("2026-01-06"), 1), WoundID: "W2", Location: "Sacrum"},
	)
	out := Fallback(s)
	assertCited(t, out)
	overview := out[:strings.Index(out, sectionHeading(1, SectionDiagnoses))]
	for _, w := range []string{
		"- Active wound: Left heel. [Source: wounds.csv | visit_date=2026-01-04]",
		"- Active wound: Sacrum. [Source: wounds.csv | visit_date=2026-01-06]",
	} {
		if !strings.Contains(overview, w) {
			t.Errorf("expected overview to contain %q\n%s", w, overview)
		}
	}
}

func TestCompose_CarriesPreambleAndData(t *testing.T) {
	s := fullSummary()
	out := Compose(s)
	if !strings.HasPrefix(out, "You are a home health clinician.") {
		t.Errorf("unexpected preamble start: %q", out[:40])
	}
	if !strings.Contains(out, "PATIENT EHR DATA") {
		t.Error("missing data block marker")
	}
	if !strings.HasSuffix(out, Fallback(s)) {
		t.Error("expected the data block to match the fallback rendering")
	}
	assertCited(t, out[strings.Index(out, "PATIENT EHR DATA"):])
}

func TestCompose_Deterministic(t *testing.T) {
	s := fullSummary()
	first := Compose(s)
	for i := 0; i < 10; i++ {
		if Compose(fullSummary()) != first {
			t.Fatalf("run %d produced different output", i)
		}
	}
}

func TestRisks(t *testing.T) {
	s := fullSummary()
	risks := Risks(s)
	joined := strings.Join(risks, "\n")
	for _, w := range []string{
		"Abnormal Blood Pressure 150/95 (systolic above 140, diastolic above 90).",
		"Active wound at Left heel; skin integrity and infection risk.",
		"Assistance needed for bathing; fall and immobility risk.",
	} {
		if !strings.Contains(joined, w) {
			t.Errorf("expected risk %q in %v", w, risks)
		}
	}
	if strings.Contains(joined, "Polypharmacy") {
		t.Error("did not expect polypharmacy with one medication")
	}
}

func TestRisks_Polypharmacy(t *testing.T) {
	var recs []record.Record
	for i, name := range []string{"A", "B", "C", "D", "E"} {
		recs = append(recs, record.Medication{Meta: meta(nil, i), Name: name})
	}
	risks := Risks(summarize(recs...))
	if len(risks) != 1 || risks[0] != "Polypharmacy: 5 active medication regimens." {
		t.Errorf("unexpected risks %v", risks)
	}
}

func TestRisks_WoundWarningSigns(t *testing.T) {
	s := summarize(record.Wound{Meta: meta(nil, 0), Location: "Sacrum", Description: "Slough present; drainage moderate"})
	risks := Risks(s)
	if len(risks) != 1 || risks[0] != "Active wound at Sacrum with slough, drainage noted; skin integrity and infection risk." {
		t.Errorf("unexpected risks %v", risks)
	}
}

func TestCareFocus_MissingCategories(t *testing.T) {
	s := summarize(record.Note{Meta: meta(nil, 0), Text: "visit"})
	focus := CareFocus(s)
	if len(focus) != 1 || focus[0] != "Document missing data: diagnoses, vitals, wounds, medications, functional status." {
		t.Errorf("unexpected care focus %v", focus)
	}
}

func TestDependent_Keywords(t *testing.T) {
	f := &facts.FunctionalFact{Scores: []record.DomainScore{
		{Domain: "ambulation", Score: "Chairfast"},
		{Domain: "grooming", Score: "Independent"},
		{Domain: "transfer", Score: "0"},
	}}
	got := dependent(f)
	if len(got) != 1 || got[0] != "ambulation" {
		t.Errorf("unexpected dependent domains %v", got)
	}
}

func TestExtractCitations(t *testing.T) {
	text := "BP high [Source: vitals.csv | visit_date=2026-01-07]. Again [Source: vitals.csv | visit_date=2026-01-07]\n" +
		"No meds [Source: medications.csv | start_date=unknown] and [Source: bogus]"
	got := ExtractCitations(text)
	want := []string{
		"[Source: vitals.csv | visit_date=2026-01-07]",
		"[Source: medications.csv | start_date=unknown]",
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got)
	}
	if len(ExtractCitations(Fallback(fullSummary()))) == 0 {
		t.Error("expected citations in fallback output")
	}
}
