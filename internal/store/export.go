package store

import (
	"github.com/exam-paper-app/papergen/internal/model"
)

// ExportAllGenerations returns every generation entry, oldest first, for the
// history export.
func (s *Store) ExportAllGenerations() ([]model.GenerationRecord, error) {
	recs, err := s.ListGenerations(0)
	if err != nil {
		return nil, err
	}
	// ListGenerations is newest-first; exports read better chronologically.
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}
