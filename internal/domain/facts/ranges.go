package facts

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Range bounds a vital reading. Secondary bounds apply to the second number
// of a paired reading such as blood pressure.
type Range struct {
	Label         string   `yaml:"label"`
	SecondaryName string   `yaml:"secondary_label"`
	Low           *float64 `yaml:"low"`
	High          *float64 `yaml:"high"`
	SecondaryLow  *float64 `yaml:"secondary_low"`
	SecondaryHigh *float64 `yaml:"secondary_high"`
	Aliases       []string `yaml:"aliases"`
}

// RangeTable maps a normalized vital kind to its normal range.
type RangeTable map[string]Range

func bound(v float64) *float64 { return &v }

// DefaultRanges is the fixed abnormal-range table.
func DefaultRanges() RangeTable {
	return RangeTable{
		"blood_pressure": {
			Label: "systolic", SecondaryName: "diastolic",
			Low: bound(90), High: bound(140), SecondaryLow: bound(60), SecondaryHigh: bound(90),
			Aliases: []string{"bp", "blood_pressure", "blood pressure", "systolic/diastolic"},
		},
		"heart_rate": {
			Low: bound(60), High: bound(100),
			Aliases: []string{"hr", "pulse", "heart rate", "pulse rate"},
		},
		"blood_sugar": {
			Low: bound(70), High: bound(180),
			Aliases: []string{"glucose", "blood glucose", "bs", "bg", "fingerstick glucose"},
		},
		"temperature": {
			Low: bound(97.0), High: bound(100.4),
			Aliases: []string{"temp", "body temperature"},
		},
		"oxygen_saturation": {
			Low: bound(92),
			Aliases: []string{"spo2", "o2 sat", "o2_sat", "o2 saturation", "pulse ox", "oxygen saturation"},
		},
		"respiratory_rate": {
			Low: bound(12), High: bound(20),
			Aliases: []string{"rr", "resp rate", "respirations", "respiratory rate"},
		},
	}
}

type rangeFile struct {
	Vitals map[string]Range `yaml:"vitals"`
}

// LoadRanges reads a YAML override file and merges it over the defaults.
// Entries replace the default of the same kind wholesale.
func LoadRanges(path string) (RangeTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vital ranges: %w", err)
	}
	return ParseRanges(data)
}

func ParseRanges(data []byte) (RangeTable, error) {
	var f rangeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse vital ranges: %w", err)
	}
	table := DefaultRanges()
	for kind, r := range f.Vitals {
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("vital range %q: %w", kind, err)
		}
		table[normalizeKind(kind)] = r
	}
	return table, nil
}

func (r Range) validate() error {
	if r.Low != nil && r.High != nil && *r.Low > *r.High {
		return fmt.Errorf("low %g is above high %g", *r.Low, *r.High)
	}
	if r.SecondaryLow != nil && r.SecondaryHigh != nil && *r.SecondaryLow > *r.SecondaryHigh {
		return fmt.Errorf("secondary_low %g is above secondary_high %g", *r.SecondaryLow, *r.SecondaryHigh)
	}
	return nil
}

// Kind resolves a vital type as written to its table key. Unknown types are
// returned normalized.
func (t RangeTable) Kind(vitalType string) string {
	n := normalizeKind(vitalType)
	if _, ok := t[n]; ok {
		return n
	}
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, a := range t[k].Aliases {
			if normalizeKind(a) == n {
				return k
			}
		}
	}
	return n
}

func normalizeKind(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	return strings.Join(strings.Fields(s), "_")
}

// Measurement is a parsed reading. Secondary is set for paired readings.
type Measurement struct {
	Primary   float64
	Secondary *float64
}

var readingPattern = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*(?:/\s*(-?\d+(?:\.\d+)?))?\s*(?:[a-zA-Z%°]+(?:/[a-zA-Z]+)?)?\s*$`)

// ParseReading reads "88", "150/95", "98.6 F" or "95%". It reports false for
// anything else.
func ParseReading(s string) (Measurement, bool) {
	m := readingPattern.FindStringSubmatch(s)
	if m == nil {
		return Measurement{}, false
	}
	p, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Measurement{}, false
	}
	out := Measurement{Primary: p}
	if m[2] != "" {
		sec, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return Measurement{}, false
		}
		out.Secondary = &sec
	}
	return out, true
}

// Check returns the bounds a measurement crosses. lo and hi are the
// record's own limits, consulted when the kind has no table entry.
func (t RangeTable) Check(kind string, m Measurement, lo, hi *float64) []string {
	r, ok := t[kind]
	if !ok {
		r = Range{Low: lo, High: hi}
	}
	var reasons []string
	reasons = append(reasons, crossed(r.Label, m.Primary, r.Low, r.High)...)
	if m.Secondary != nil {
		reasons = append(reasons, crossed(r.SecondaryName, *m.Secondary, r.SecondaryLow, r.SecondaryHigh)...)
	}
	return reasons
}

func crossed(label string, v float64, lo, hi *float64) []string {
	prefix := ""
	if label != "" {
		prefix = label + " "
	}
	switch {
	case hi != nil && v > *hi:
		return []string{fmt.Sprintf("%sabove %s", prefix, formatNumber(*hi))}
	case lo != nil && v < *lo:
		return []string{fmt.Sprintf("%sbelow %s", prefix, formatNumber(*lo))}
	}
	return nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
