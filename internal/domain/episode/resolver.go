package episode

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ehr/clinsum/internal/domain/record"
)

var (
	ErrPatientNotFound = errors.New("patient not found")
	ErrNoEpisodeFound  = errors.New("no episode found")
	ErrEpisodeNotFound = errors.New("episode not found")
)

// Span is the date range an episode covers, inferred from the dated records
// that carry its id. End is nil while the episode is active.
type Span struct {
	EpisodeID int64      `json:"episode_id"`
	Start     *time.Time `json:"start,omitempty"`
	End       *time.Time `json:"end,omitempty"`
	Active    bool       `json:"active"`
	// Tagged counts the records that carry the episode id explicitly.
	Tagged int `json:"tagged_records"`
}

// Contains reports whether t falls inside the span.
func (s Span) Contains(t time.Time) bool {
	if s.Start == nil || t.Before(*s.Start) {
		return false
	}
	return s.End == nil || !t.After(*s.End)
}

// Bundle is the record set of one patient episode.
type Bundle struct {
	PatientID int64
	EpisodeID int64
	Span      Span
	Records   map[record.Category][]record.Record
}

// Len returns the number of records in the bundle.
func (b *Bundle) Len() int {
	n := 0
	for _, rs := range b.Records {
		n += len(rs)
	}
	return n
}

// Resolver answers episode questions over an immutable record store.
type Resolver struct {
	store *record.Store
}

func NewResolver(store *record.Store) *Resolver {
	return &Resolver{store: store}
}

func (r *Resolver) PatientExists(patientID int64) bool {
	return r.store.PatientExists(patientID)
}

// PatientIDs lists every patient in ascending order.
func (r *Resolver) PatientIDs() []int64 {
	return r.store.PatientIDs()
}

type episodeStat struct {
	id       int64
	earliest *time.Time
	latest   *time.Time
	tagged   int
}

// stats gathers per-episode dates from records carrying an explicit id, and
// reports whether the patient has any dated record at all.
func stats(b record.PatientBundle) (map[int64]*episodeStat, bool) {
	eps := make(map[int64]*episodeStat)
	anyDated := false
	for _, rec := range b.All() {
		d, dated := rec.Dated()
		anyDated = anyDated || dated
		id, ok := rec.Episode()
		if !ok {
			continue
		}
		st, seen := eps[id]
		if !seen {
			st = &episodeStat{id: id}
			eps[id] = st
		}
		st.tagged++
		if !dated {
			continue
		}
		if st.earliest == nil || d.Before(*st.earliest) {
			dd := d
			st.earliest = &dd
		}
		if st.latest == nil || d.After(*st.latest) {
			dd := d
			st.latest = &dd
		}
	}
	return eps, anyDated
}

func latest(eps map[int64]*episodeStat, anyDated bool) (int64, error) {
	if !anyDated || len(eps) == 0 {
		return 0, ErrNoEpisodeFound
	}
	var best *episodeStat
	var maxID int64
	first := true
	for id, st := range eps {
		if first || id > maxID {
			maxID = id
			first = false
		}
		if st.latest == nil {
			continue
		}
		if best == nil || st.latest.After(*best.latest) || (st.latest.Equal(*best.latest) && st.id > best.id) {
			best = st
		}
	}
	if best == nil {
		// Dated records exist but none carry an episode id; episode ids
		// are issued in increasing order.
		return maxID, nil
	}
	return best.id, nil
}

// LatestEpisodeID picks the episode whose most recent associated record is
// the latest, breaking ties toward the greater id.
func (r *Resolver) LatestEpisodeID(patientID int64) (int64, error) {
	b, ok := r.store.Patient(patientID)
	if !ok {
		return 0, fmt.Errorf("patient %d: %w", patientID, ErrPatientNotFound)
	}
	eps, anyDated := stats(b)
	id, err := latest(eps, anyDated)
	if err != nil {
		return 0, fmt.Errorf("patient %d: %w", patientID, err)
	}
	return id, nil
}

func spanOf(st *episodeStat, active bool) Span {
	s := Span{EpisodeID: st.id, Start: st.earliest, Active: active, Tagged: st.tagged}
	if !active {
		s.End = st.latest
	}
	return s
}

// Episodes lists the patient's episodes in ascending id order.
func (r *Resolver) Episodes(patientID int64) ([]Span, error) {
	b, ok := r.store.Patient(patientID)
	if !ok {
		return nil, fmt.Errorf("patient %d: %w", patientID, ErrPatientNotFound)
	}
	eps, anyDated := stats(b)
	active, err := latest(eps, anyDated)
	hasActive := err == nil

	spans := make([]Span, 0, len(eps))
	for id, st := range eps {
		spans = append(spans, spanOf(st, hasActive && id == active))
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].EpisodeID < spans[j].EpisodeID })
	return spans, nil
}

// EpisodeBundle returns the records belonging to one episode: those tagged
// with its id, plus untagged records attributed to it. An untagged record is
// attributed when the patient has a single episode, or when its date falls
// inside the episode's span.
func (r *Resolver) EpisodeBundle(patientID, episodeID int64) (*Bundle, error) {
	b, ok := r.store.Patient(patientID)
	if !ok {
		return nil, fmt.Errorf("patient %d: %w", patientID, ErrPatientNotFound)
	}
	eps, anyDated := stats(b)
	st, ok := eps[episodeID]
	if !ok {
		return nil, fmt.Errorf("patient %d episode %d: %w", patientID, episodeID, ErrEpisodeNotFound)
	}
	active, err := latest(eps, anyDated)
	span := spanOf(st, err == nil && active == episodeID)
	only := len(eps) == 1

	out := &Bundle{
		PatientID: patientID,
		EpisodeID: episodeID,
		Span:      span,
		Records:   make(map[record.Category][]record.Record),
	}
	for _, cat := range record.Categories {
		for _, rec := range b.Records[cat] {
			if belongs(rec, episodeID, span, only) {
				out.Records[cat] = append(out.Records[cat], rec)
			}
		}
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("patient %d episode %d: %w", patientID, episodeID, ErrEpisodeNotFound)
	}
	return out, nil
}

func belongs(rec record.Record, episodeID int64, span Span, only bool) bool {
	if id, ok := rec.Episode(); ok {
		return id == episodeID
	}
	if only {
		return true
	}
	d, ok := rec.Dated()
	return ok && span.Contains(d)
}
