// Package memory is an in-process TableStore used in DEV_MODE and tests.
package memory

import (
	"cmp"
	"context"
	"iter"
	"maps"
	"slices"
	"sync"

	"github.com/jun/socialnet/internal/adapter"
)

type key struct {
	partition string
	row       string
}

type table struct {
	rows map[key]map[string]any
}

// Store keeps every table in a map guarded by one RWMutex.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
}

var _ adapter.TableStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{tables: make(map[string]*table)}
}

func (s *Store) CreateTable(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[name]; ok {
		return false, nil
	}
	s.tables[name] = &table{rows: make(map[key]map[string]any)}
	return true, nil
}

func (s *Store) DeleteTable(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[name]; !ok {
		return adapter.ErrTableNotFound
	}
	delete(s.tables, name)
	return nil
}

func (s *Store) TableExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tables[name]
	return ok, nil
}

func (s *Store) Get(_ context.Context, tableName, partition, row string) (adapter.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[tableName]
	if !ok {
		return adapter.Entity{}, adapter.ErrTableNotFound
	}
	props, ok := t.rows[key{partition, row}]
	if !ok {
		return adapter.Entity{}, adapter.ErrNotFound
	}
	return adapter.Entity{Partition: partition, Row: row, Properties: maps.Clone(props)}, nil
}

func (s *Store) Put(_ context.Context, tableName string, e adapter.Entity, mode adapter.PutMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[tableName]
	if !ok {
		return adapter.ErrTableNotFound
	}
	k := key{e.Partition, e.Row}
	props, ok := t.rows[k]
	if !ok {
		if mode == adapter.Merge {
			return adapter.ErrNotFound
		}
		props = make(map[string]any, len(e.Properties))
		t.rows[k] = props
	}
	maps.Copy(props, e.Properties)
	return nil
}

func (s *Store) Delete(_ context.Context, tableName, partition, row string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[tableName]
	if !ok {
		return adapter.ErrTableNotFound
	}
	k := key{partition, row}
	if _, ok := t.rows[k]; !ok {
		return adapter.ErrNotFound
	}
	delete(t.rows, k)
	return nil
}

func (s *Store) Query(_ context.Context, tableName, partition string) iter.Seq2[adapter.Entity, error] {
	return s.snapshot(tableName, func(k key) bool { return k.partition == partition })
}

func (s *Store) Scan(_ context.Context, tableName string) iter.Seq2[adapter.Entity, error] {
	return s.snapshot(tableName, func(key) bool { return true })
}

// snapshot copies the matching rows under the read lock, in key order, and
// yields them after releasing it so consumers may call back into the store.
func (s *Store) snapshot(tableName string, match func(key) bool) iter.Seq2[adapter.Entity, error] {
	return func(yield func(adapter.Entity, error) bool) {
		s.mu.RLock()
		t, ok := s.tables[tableName]
		if !ok {
			s.mu.RUnlock()
			yield(adapter.Entity{}, adapter.ErrTableNotFound)
			return
		}
		var out []adapter.Entity
		for k, props := range t.rows {
			if match(k) {
				out = append(out, adapter.Entity{Partition: k.partition, Row: k.row, Properties: maps.Clone(props)})
			}
		}
		s.mu.RUnlock()

		slices.SortFunc(out, func(a, b adapter.Entity) int {
			return cmp.Or(cmp.Compare(a.Partition, b.Partition), cmp.Compare(a.Row, b.Row))
		})
		for _, e := range out {
			if !yield(e, nil) {
				return
			}
		}
	}
}
