package record

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// pgTable describes how one category is stored.
type pgTable struct {
	name    string
	columns []string
	scan    func(row pgx.Row, m Meta) (Record, error)
	values  func(r Record) []interface{}
}

const metaCols = `seq, patient_id, episode_id, record_date`

var pgTables = map[Category]pgTable{
	CategoryDiagnoses: {
		name:    "diagnoses",
		columns: []string{"diagnosis_code", "diagnosis_description", "is_primary"},
		scan: func(row pgx.Row, m Meta) (Record, error) {
			d := Diagnosis{}
			err := row.Scan(&m.Seq, &m.PatientID, &m.EpisodeID, &m.Date, &d.Code, &d.Description, &d.Primary)
			d.Meta = m
			return d, err
		},
		values: func(r Record) []interface{} {
			d := r.(Diagnosis)
			return []interface{}{d.Code, d.Description, d.Primary}
		},
	},
	CategoryMedications: {
		name:    "medications",
		columns: []string{"medication_name", "dosage", "frequency", "classification", "reason"},
		scan: func(row pgx.Row, m Meta) (Record, error) {
			med := Medication{}
			err := row.Scan(&m.Seq, &m.PatientID, &m.EpisodeID, &m.Date, &med.Name, &med.Dosage, &med.Frequency, &med.Classification, &med.Reason)
			med.Meta = m
			return med, err
		},
		values: func(r Record) []interface{} {
			med := r.(Medication)
			return []interface{}{med.Name, med.Dosage, med.Frequency, med.Classification, med.Reason}
		},
	},
	CategoryVitals: {
		name:    "vitals",
		columns: []string{"vital_type", "reading", "min_value", "max_value"},
		scan: func(row pgx.Row, m Meta) (Record, error) {
			v := Vital{}
			err := row.Scan(&m.Seq, &m.PatientID, &m.EpisodeID, &m.Date, &v.Type, &v.Reading, &v.Min, &v.Max)
			v.Meta = m
			return v, err
		},
		values: func(r Record) []interface{} {
			v := r.(Vital)
			return []interface{}{v.Type, v.Reading, v.Min, v.Max}
		},
	},
	CategoryWounds: {
		name: "wounds",
		columns: []string{"wound_id", "location", "description", "stage", "length_cm", "width_cm", "depth_cm",
			"dimensions", "onset_date", "closure_date"},
		scan: func(row pgx.Row, m Meta) (Record, error) {
			w := Wound{}
			err := row.Scan(&m.Seq, &m.PatientID, &m.EpisodeID, &m.Date, &w.WoundID, &w.Location, &w.Description,
				&w.Stage, &w.Length, &w.Width, &w.Depth, &w.Dimensions, &w.OnsetDate, &w.ClosureDate)
			w.Meta = m
			return w, err
		},
		values: func(r Record) []interface{} {
			w := r.(Wound)
			return []interface{}{w.WoundID, w.Location, w.Description, w.Stage, w.Length, w.Width, w.Depth,
				w.Dimensions, w.OnsetDate, w.ClosureDate}
		},
	},
	CategoryOASIS: {
		name:    "oasis_assessments",
		columns: []string{"assessment_type", "scores"},
		scan: func(row pgx.Row, m Meta) (Record, error) {
			a := Assessment{}
			var raw []byte
			if err := row.Scan(&m.Seq, &m.PatientID, &m.EpisodeID, &m.Date, &a.AssessmentType, &raw); err != nil {
				return nil, err
			}
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &a.Scores); err != nil {
					return nil, fmt.Errorf("decode assessment scores: %w", err)
				}
			}
			a.Meta = m
			return a, nil
		},
		values: func(r Record) []interface{} {
			a := r.(Assessment)
			scores := a.Scores
			if scores == nil {
				scores = []DomainScore{}
			}
			raw, _ := json.Marshal(scores)
			return []interface{}{a.AssessmentType, raw}
		},
	},
	CategoryNotes: {
		name:    "notes",
		columns: []string{"note_type", "note_text"},
		scan: func(row pgx.Row, m Meta) (Record, error) {
			n := Note{}
			err := row.Scan(&m.Seq, &m.PatientID, &m.EpisodeID, &m.Date, &n.NoteType, &n.Text)
			n.Meta = m
			return n, err
		},
		values: func(r Record) []interface{} {
			n := r.(Note)
			return []interface{}{n.NoteType, n.Text}
		},
	},
}

func (t pgTable) selectSQL() string {
	cols := metaCols
	for _, c := range t.columns {
		cols += ", " + c
	}
	return `SELECT ` + cols + ` FROM ` + t.name + ` ORDER BY patient_id, seq`
}

func (t pgTable) copyColumns() []string {
	return append([]string{"batch_id", "seq", "patient_id", "episode_id", "record_date"}, t.columns...)
}

type recordRepoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a Repository backed by the clinical record tables.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &recordRepoPG{pool: pool}
}

func (r *recordRepoPG) LoadAll(ctx context.Context) ([]Record, error) {
	var out []Record
	for _, cat := range Categories {
		recs, err := r.loadTable(ctx, r.pool, cat)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func (r *recordRepoPG) loadTable(ctx context.Context, q queryable, cat Category) ([]Record, error) {
	t := pgTables[cat]
	rows, err := q.Query(ctx, t.selectSQL())
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.name, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := t.scan(rows, Meta{})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.name, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t.name, err)
	}
	return out, nil
}

func (r *recordRepoPG) Import(ctx context.Context, records []Record) (ImportResult, error) {
	batch := uuid.New()
	res := ImportResult{BatchID: batch.String(), Counts: make(map[Category]int)}

	byCat := make(map[Category][][]interface{})
	for _, rec := range records {
		cat := rec.Category()
		t := pgTables[cat]
		var epArg *int64
		if ep, ok := rec.Episode(); ok {
			epArg = &ep
		}
		var dateArg *time.Time
		if d, ok := rec.Dated(); ok {
			dateArg = &d
		}
		vals := []interface{}{batch, rec.Order(), rec.Patient(), epArg, dateArg}
		byCat[cat] = append(byCat[cat], append(vals, t.values(rec)...))
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, cat := range Categories {
		t := pgTables[cat]
		if _, err := tx.Exec(ctx, `DELETE FROM `+t.name); err != nil {
			return res, fmt.Errorf("clear %s: %w", t.name, err)
		}
		rows := byCat[cat]
		if len(rows) == 0 {
			continue
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{t.name}, t.copyColumns(), pgx.CopyFromRows(rows))
		if err != nil {
			return res, fmt.Errorf("copy into %s: %w", t.name, err)
		}
		res.Counts[cat] = int(n)
	}

	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("commit import: %w", err)
	}
	return res, nil
}
