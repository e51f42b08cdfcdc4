package narrative

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ehr/clinsum/internal/domain/facts"
	"github.com/ehr/clinsum/internal/domain/record"
)

// ADLDependenceScore is the lowest numeric OASIS domain score read as
// needing assistance.
const ADLDependenceScore = 2

var dependenceKeywords = []string{"dependent", "assist", "unable", "chairfast", "bedfast", "total"}

var infectionSigns = map[string]bool{
	"infected": true, "infection": true, "slough": true, "necrotic": true, "eschar": true,
	"drainage": true, "odor": true, "erythema": true, "deteriorating": true, "worsening": true,
}

// dependent reports the assessment domains whose score indicates the
// patient needs help.
func dependent(f *facts.FunctionalFact) []string {
	if f == nil {
		return nil
	}
	var out []string
	for _, sc := range f.Scores {
		if n, err := strconv.ParseFloat(strings.TrimSpace(sc.Score), 64); err == nil {
			if n >= ADLDependenceScore {
				out = append(out, sc.Domain)
			}
			continue
		}
		low := strings.ToLower(sc.Score)
		if strings.Contains(low, "independent") {
			continue
		}
		for _, k := range dependenceKeywords {
			if strings.Contains(low, k) {
				out = append(out, sc.Domain)
				break
			}
		}
	}
	return out
}

func warningSigns(w facts.WoundFact) []string {
	var out []string
	for _, k := range w.HealingStatus {
		if infectionSigns[k] {
			out = append(out, k)
		}
	}
	return out
}

// Risks lists red flags derived only from values already present in the
// summary.
func Risks(s *facts.Summary) []string {
	var out []string
	for _, v := range s.Vitals {
		switch {
		case v.Abnormal:
			out = append(out, fmt.Sprintf("Abnormal %s %s (%s).", v.VitalType, v.Reading, strings.Join(v.Reasons, ", ")))
		case v.Trend == facts.TrendRising:
			out = append(out, fmt.Sprintf("%s rising from %s to %s.", v.VitalType, v.Previous, v.Reading))
		}
	}
	for _, w := range s.Wounds.Active {
		text := "Active wound at " + w.Location
		if signs := warningSigns(w); len(signs) > 0 {
			text += " with " + strings.Join(signs, ", ") + " noted"
		}
		out = append(out, text+"; skin integrity and infection risk.")
	}
	if d := dependent(s.Functional.Latest); len(d) > 0 {
		out = append(out, fmt.Sprintf("Assistance needed for %s; fall and immobility risk.", strings.Join(d, ", ")))
	}
	if n := len(s.Medications); n >= facts.PolypharmacyThreshold {
		out = append(out, fmt.Sprintf("Polypharmacy: %d active medication regimens.", n))
	}
	return out
}

// CareFocus lists next-step priorities derived from the same values as
// Risks, plus any categories that still need documenting.
func CareFocus(s *facts.Summary) []string {
	var out []string
	for _, v := range s.Vitals {
		switch {
		case v.Abnormal:
			out = append(out, fmt.Sprintf("Recheck %s each visit and report readings outside range to the physician.", v.VitalType))
		case v.Trend == facts.TrendRising:
			out = append(out, fmt.Sprintf("Monitor %s trend.", v.VitalType))
		}
	}
	for _, w := range s.Wounds.Active {
		out = append(out, fmt.Sprintf("Wound care for %s; measure and document each visit.", w.Location))
	}
	if d := dependent(s.Functional.Latest); len(d) > 0 {
		out = append(out, "Support ADLs ("+strings.Join(d, ", ")+") and reinforce fall precautions.")
	}
	if n := len(s.Medications); n >= facts.PolypharmacyThreshold {
		out = append(out, "Medication reconciliation and adherence review.")
	}
	if missing := missingCategories(s); len(missing) > 0 {
		out = append(out, "Document missing data: "+strings.Join(missing, ", ")+".")
	}
	return out
}

func missingCategories(s *facts.Summary) []string {
	var out []string
	check := []struct {
		cat   record.Category
		empty bool
	}{
		{record.CategoryDiagnoses, len(s.Diagnoses) == 0},
		{record.CategoryVitals, len(s.Vitals) == 0},
		{record.CategoryWounds, len(s.Wounds.Active) == 0 && len(s.Wounds.History) == 0},
		{record.CategoryMedications, len(s.Medications) == 0},
		{record.CategoryOASIS, s.Functional.Latest == nil},
		{record.CategoryNotes, len(s.Notes) == 0},
	}
	for _, c := range check {
		if c.empty {
			out = append(out, label(c.cat))
		}
	}
	return out
}
