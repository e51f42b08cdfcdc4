package facts

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseReading(t *testing.T) {
	tests := []struct {
		in        string
		ok        bool
		primary   float64
		secondary float64
	}{
		{"88", true, 88, 0},
		{"150/95", true, 150, 95},
		{" 120 / 80 mmHg", true, 120, 80},
		{"98.6 F", true, 98.6, 0},
		{"95%", true, 95, 0},
		{"abc", false, 0, 0},
		{"", false, 0, 0},
		{"12 and 14", false, 0, 0},
	}
	for _, tt := range tests {
		m, ok := ParseReading(tt.in)
		if ok != tt.ok {
			t.Errorf("ParseReading(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if !ok {
			continue
		}
		if m.Primary != tt.primary {
			t.Errorf("ParseReading(%q) primary = %v, want %v", tt.in, m.Primary, tt.primary)
		}
		if tt.secondary != 0 && (m.Secondary == nil || *m.Secondary != tt.secondary) {
			t.Errorf("ParseReading(%q) secondary = %v, want %v", tt.in, m.Secondary, tt.secondary)
		}
		if tt.secondary == 0 && m.Secondary != nil {
			t.Errorf("ParseReading(%q) unexpected secondary %v", tt.in, *m.Secondary)
		}
	}
}

func TestRangeTable_Kind(t *testing.T) {
	table := DefaultRanges()
	tests := map[string]string{
		"Blood Pressure": "blood_pressure",
		"BP":             "blood_pressure",
		"Pulse":          "heart_rate",
		"SpO2":           "oxygen_saturation",
		"glucose":        "blood_sugar",
		"Temp":           "temperature",
		"Pain Score":     "pain_score",
	}
	for in, want := range tests {
		if got := table.Kind(in); got != want {
			t.Errorf("Kind(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRangeTable_Check(t *testing.T) {
	table := DefaultRanges()
	tests := []struct {
		kind    string
		reading string
		want    []string
	}{
		{"blood_pressure", "120/80", nil},
		{"blood_pressure", "85/55", []string{"systolic below 90", "diastolic below 60"}},
		{"heart_rate", "101", []string{"above 100"}},
		{"temperature", "101.2", []string{"above 100.4"}},
		{"oxygen_saturation", "99", nil},
		{"oxygen_saturation", "90", []string{"below 92"}},
		{"respiratory_rate", "20", nil},
	}
	for _, tt := range tests {
		m, ok := ParseReading(tt.reading)
		if !ok {
			t.Fatalf("could not parse %q", tt.reading)
		}
		got := table.Check(tt.kind, m, nil, nil)
		if len(got) != len(tt.want) {
			t.Errorf("Check(%s, %s) = %v, want %v", tt.kind, tt.reading, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Check(%s, %s)[%d] = %q, want %q", tt.kind, tt.reading, i, got[i], tt.want[i])
			}
		}
	}
}

func TestParseRanges_OverridesDefaults(t *testing.T) {
	data := []byte(`
vitals:
  heart_rate:
    low: 50
    high: 110
    aliases: [hr, pulse]
  pain_score:
    high: 4
`)
	table, err := ParseRanges(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hr := table["heart_rate"]
	if *hr.Low != 50 || *hr.High != 110 {
		t.Errorf("expected overridden heart rate range, got %v-%v", *hr.Low, *hr.High)
	}
	if _, ok := table["blood_pressure"]; !ok {
		t.Error("expected defaults to be kept")
	}
	m, _ := ParseReading("6")
	if got := table.Check("pain_score", m, nil, nil); len(got) != 1 || got[0] != "above 4" {
		t.Errorf("unexpected pain score check %v", got)
	}
}

func TestParseRanges_Invalid(t *testing.T) {
	if _, err := ParseRanges([]byte("vitals:\n  heart_rate:\n    low: 100\n    high: 60\n")); err == nil {
		t.Error("expected error for inverted range")
	}
	if _, err := ParseRanges([]byte("vitals: [")); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestLoadRanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranges.yaml")
	if err := os.WriteFile(path, []byte("vitals:\n  temperature:\n    low: 96\n    high: 100\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	table, err := LoadRanges(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *table["temperature"].High != 100 {
		t.Errorf("expected overridden temperature high, got %v", *table["temperature"].High)
	}
	if _, err := LoadRanges(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
