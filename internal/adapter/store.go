package adapter

import (
	"context"
	"iter"
	"time"

	"github.com/jun/socialnet/internal/token"
)

// Entity is one row of a table: a partition/row key and an open set of
// typed scalar properties (string, float64, bool).
type Entity struct {
	Partition  string
	Row        string
	Properties map[string]any
}

// PutMode selects how Put treats an absent entity.
type PutMode int

const (
	// InsertOrMerge creates the entity if absent, otherwise merges properties.
	InsertOrMerge PutMode = iota
	// Merge merges into an existing entity and fails with ErrNotFound otherwise.
	Merge
)

func (m PutMode) String() string {
	if m == Merge {
		return "merge"
	}
	return "insert_or_merge"
}

// TableStore is the raw partition/row key-value store.
// Table and entity absence are reported as ErrTableNotFound and ErrNotFound.
type TableStore interface {
	// CreateTable creates name if it does not exist and reports whether it did.
	CreateTable(ctx context.Context, name string) (bool, error)

	// DeleteTable removes name and all of its entities.
	DeleteTable(ctx context.Context, name string) error

	TableExists(ctx context.Context, name string) (bool, error)

	Get(ctx context.Context, table, partition, row string) (Entity, error)

	// Put writes e's properties, leaving other properties of a stored entity untouched.
	Put(ctx context.Context, table string, e Entity, mode PutMode) error

	Delete(ctx context.Context, table, partition, row string) error

	// Query lazily yields every entity in partition.
	Query(ctx context.Context, table, partition string) iter.Seq2[Entity, error]

	// Scan lazily yields every entity in the table.
	Scan(ctx context.Context, table string) iter.Seq2[Entity, error]
}

// EntityStore adds capability-token operations to a TableStore. Token-gated
// calls succeed only for the single entity the token was minted for.
type EntityStore interface {
	TableStore

	MintScopedToken(ctx context.Context, table, partition, row string, perms token.Permission, ttl time.Duration) (string, error)
	GetWithToken(ctx context.Context, tok, table, partition, row string) (Entity, error)
	PutWithToken(ctx context.Context, tok, table, partition, row string, props map[string]any) error

	// QueryWithToken yields the token's entity if it lies in partition, or
	// anywhere in the table when partition is empty.
	QueryWithToken(ctx context.Context, tok, table, partition string) iter.Seq2[Entity, error]
}
