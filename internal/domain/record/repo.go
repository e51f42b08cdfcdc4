package record

import (
	"context"
	"fmt"
)

// Source yields every record of a data set.
type Source interface {
	LoadAll(ctx context.Context) ([]Record, error)
}

// Repository is a Source that can also be written to.
type Repository interface {
	Source
	// Import replaces the stored data set with records.
	Import(ctx context.Context, records []Record) (ImportResult, error)
}

// ImportResult counts imported rows per category.
type ImportResult struct {
	BatchID string           `json:"batch_id"`
	Counts  map[Category]int `json:"counts"`
}

// Open loads a source into a new Store.
func Open(ctx context.Context, src Source) (*Store, error) {
	recs, err := src.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	return NewStore(recs)
}
