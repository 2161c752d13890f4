// Package roster holds the read-only student roster used for reconciliation.
package roster

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"memochain/internal/domain"
)

var requiredColumns = []string{"id", "name", "college"}

type Index struct {
	mu      sync.RWMutex
	entries map[string]domain.RosterEntry
}

func New(entries []domain.RosterEntry) *Index {
	idx := &Index{}
	idx.Replace(entries)
	return idx
}

// Replace swaps the whole roster. Entries with an empty id are dropped; a
// repeated id keeps the last row.
func (i *Index) Replace(entries []domain.RosterEntry) {
	m := make(map[string]domain.RosterEntry, len(entries))
	for _, e := range entries {
		e.ID = strings.TrimSpace(e.ID)
		if e.ID == "" {
			continue
		}
		m[e.ID] = e
	}
	i.mu.Lock()
	i.entries = m
	i.mu.Unlock()
}

func (i *Index) Get(ctx context.Context, id string) (domain.RosterEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.RosterEntry{}, err
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	e, ok := i.entries[strings.TrimSpace(id)]
	if !ok {
		return domain.RosterEntry{}, domain.ErrNotFound
	}
	return e, nil
}

// List returns every entry ordered by id.
func (i *Index) List(ctx context.Context) ([]domain.RosterEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i.mu.RLock()
	out := make([]domain.RosterEntry, 0, len(i.entries))
	for _, e := range i.entries {
		out = append(out, e)
	}
	i.mu.RUnlock()
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// LoadFile reads a roster CSV from path. A missing file yields an empty roster.
func LoadFile(path string) ([]domain.RosterEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return ParseCSV(f)
}

// ParseCSV reads a roster with a header row. Columns id, name and college are
// required; national_id is optional and column order is free.
func ParseCSV(r io.Reader) ([]domain.RosterEntry, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("roster header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w: roster column %q missing", domain.ErrValidation, name)
		}
	}

	var entries []domain.RosterEntry
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("roster row: %w", err)
		}
		entry := domain.RosterEntry{
			ID:         column(record, cols, "id"),
			Name:       column(record, cols, "name"),
			College:    column(record, cols, "college"),
			NationalID: column(record, cols, "national_id"),
		}
		if entry.ID == "" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func column(record []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
