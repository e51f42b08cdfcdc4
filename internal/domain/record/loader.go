package record

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"
)

// DirSource reads one CSV file per category from a directory.
type DirSource struct {
	Dir    string
	Logger zerolog.Logger
}

func NewDirSource(dir string, logger zerolog.Logger) *DirSource {
	return &DirSource{Dir: dir, Logger: logger}
}

// LoadAll reads the category tables concurrently. A missing table is treated
// as empty; a malformed row fails the whole load.
func (s *DirSource) LoadAll(ctx context.Context) ([]Record, error) {
	info, err := os.Stat(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("open data directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data directory %s is not a directory", s.Dir)
	}

	tables := make([][]Record, len(Categories))
	g, ctx := errgroup.WithContext(ctx)
	for i, cat := range Categories {
		i, cat := i, cat
		g.Go(func() error {
			path := filepath.Join(s.Dir, cat.SourceFile())
			recs, err := s.loadFile(ctx, cat, path)
			if err != nil {
				return err
			}
			tables[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return flatten(tables), nil
}

func (s *DirSource) loadFile(ctx context.Context, cat Category, path string) ([]Record, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.Logger.Warn().Str("table", cat.SourceFile()).Str("dir", s.Dir).Msg("record table missing, treating as empty")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cat.SourceFile(), err)
	}
	defer f.Close()

	recs, err := ReadCSV(ctx, cat, f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", cat.SourceFile(), err)
	}
	s.Logger.Debug().Str("table", cat.SourceFile()).Int("rows", len(recs)).Msg("record table loaded")
	return recs, nil
}

// ReadCSV parses a CSV table with a header row.
func ReadCSV(ctx context.Context, cat Category, r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return parseTable(ctx, cat, rows)
}

// WorkbookSource reads an XLSX workbook with one sheet per category. Sheets
// are matched by category name ("vitals") or source file name ("vitals.csv").
type WorkbookSource struct {
	Path   string
	Logger zerolog.Logger
}

func NewWorkbookSource(path string, logger zerolog.Logger) *WorkbookSource {
	return &WorkbookSource{Path: path, Logger: logger}
}

func (s *WorkbookSource) LoadAll(ctx context.Context) ([]Record, error) {
	f, err := excelize.OpenFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := make(map[Category]string)
	for _, name := range f.GetSheetList() {
		cat, err := ParseCategory(strings.ToLower(strings.TrimSpace(name)))
		if err != nil {
			s.Logger.Debug().Str("sheet", name).Msg("ignoring sheet with no matching record table")
			continue
		}
		sheets[cat] = name
	}

	tables := make([][]Record, len(Categories))
	for i, cat := range Categories {
		name, ok := sheets[cat]
		if !ok {
			s.Logger.Warn().Str("table", string(cat)).Str("workbook", filepath.Base(s.Path)).Msg("record sheet missing, treating as empty")
			continue
		}
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", name, err)
		}
		recs, err := parseTable(ctx, cat, rows)
		if err != nil {
			return nil, fmt.Errorf("load sheet %s: %w", name, err)
		}
		tables[i] = recs
	}
	return flatten(tables), nil
}

// parseTable turns a header row plus data rows into records. Short rows are
// padded with empty cells; blank rows are skipped without consuming a
// sequence number.
func parseTable(ctx context.Context, cat Category, rows [][]string) ([]Record, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	header := rows[0]
	var out []Record
	seq := 0
	for _, cells := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if blank(cells) {
			continue
		}
		raw := make(map[string]string, len(header))
		for j, h := range header {
			if j < len(cells) {
				raw[h] = cells[j]
			} else {
				raw[h] = ""
			}
		}
		rec, err := Parse(cat, seq, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
		seq++
	}
	return out, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func flatten(tables [][]Record) []Record {
	var out []Record
	for _, t := range tables {
		out = append(out, t...)
	}
	return out
}
