package record

import (
	"fmt"
	"sort"
)

// PatientBundle holds every record of one patient, grouped by category and
// kept in source order.
type PatientBundle struct {
	PatientID int64
	Records   map[Category][]Record
}

// All returns the bundle's records across categories in presentation order.
func (b PatientBundle) All() []Record {
	var out []Record
	for _, c := range Categories {
		out = append(out, b.Records[c]...)
	}
	return out
}

// Len returns the number of records in the bundle.
func (b PatientBundle) Len() int {
	n := 0
	for _, rs := range b.Records {
		n += len(rs)
	}
	return n
}

// Store is an immutable index of records by patient. It is safe for
// concurrent use because nothing mutates it after NewStore returns.
type Store struct {
	patients map[int64]map[Category][]Record
	ids      []int64
	total    int
}

// NewStore indexes records by patient and category. Records within a
// category are ordered by their source position.
func NewStore(records []Record) (*Store, error) {
	s := &Store{patients: make(map[int64]map[Category][]Record)}
	for i, r := range records {
		if r == nil {
			return nil, fmt.Errorf("record %d is nil", i)
		}
		pid := r.Patient()
		byCat, ok := s.patients[pid]
		if !ok {
			byCat = make(map[Category][]Record)
			s.patients[pid] = byCat
			s.ids = append(s.ids, pid)
		}
		byCat[r.Category()] = append(byCat[r.Category()], r)
		s.total++
	}
	for _, byCat := range s.patients {
		for _, rs := range byCat {
			sort.SliceStable(rs, func(i, j int) bool { return rs[i].Order() < rs[j].Order() })
		}
	}
	sort.Slice(s.ids, func(i, j int) bool { return s.ids[i] < s.ids[j] })
	return s, nil
}

// PatientExists reports whether any record references the patient.
func (s *Store) PatientExists(patientID int64) bool {
	_, ok := s.patients[patientID]
	return ok
}

// Patient returns a copy of the patient's records.
func (s *Store) Patient(patientID int64) (PatientBundle, bool) {
	byCat, ok := s.patients[patientID]
	if !ok {
		return PatientBundle{}, false
	}
	b := PatientBundle{PatientID: patientID, Records: make(map[Category][]Record, len(byCat))}
	for c, rs := range byCat {
		b.Records[c] = append([]Record(nil), rs...)
	}
	return b, true
}

// PatientIDs returns every known patient id in ascending order.
func (s *Store) PatientIDs() []int64 {
	return append([]int64(nil), s.ids...)
}

// Len returns the total number of records.
func (s *Store) Len() int {
	return s.total
}

// Records returns every record, grouped by patient in ascending id order.
func (s *Store) Records() []Record {
	out := make([]Record, 0, s.total)
	for _, id := range s.ids {
		b, _ := s.Patient(id)
		out = append(out, b.All()...)
	}
	return out
}
