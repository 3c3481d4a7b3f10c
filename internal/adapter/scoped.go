package adapter

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/jun/socialnet/internal/token"
)

// ScopedStore implements EntityStore on top of any TableStore. It is the only
// place tokens are minted or checked.
type ScopedStore struct {
	TableStore
	tokens *token.Authority
}

var _ EntityStore = (*ScopedStore)(nil)

func NewScopedStore(base TableStore, tokens *token.Authority) *ScopedStore {
	return &ScopedStore{TableStore: base, tokens: tokens}
}

func (s *ScopedStore) MintScopedToken(ctx context.Context, table, partition, row string, perms token.Permission, ttl time.Duration) (string, error) {
	return s.tokens.Mint(ctx, token.Scope{Table: table, Partition: partition, Row: row}, perms, ttl)
}

func (s *ScopedStore) GetWithToken(ctx context.Context, tok, table, partition, row string) (Entity, error) {
	if err := s.authorize(ctx, tok, token.Scope{Table: table, Partition: partition, Row: row}, token.Read); err != nil {
		return Entity{}, err
	}
	return s.Get(ctx, table, partition, row)
}

func (s *ScopedStore) PutWithToken(ctx context.Context, tok, table, partition, row string, props map[string]any) error {
	if err := s.authorize(ctx, tok, token.Scope{Table: table, Partition: partition, Row: row}, token.Update); err != nil {
		return err
	}
	return s.Put(ctx, table, Entity{Partition: partition, Row: row, Properties: props}, InsertOrMerge)
}

func (s *ScopedStore) QueryWithToken(ctx context.Context, tok, table, partition string) iter.Seq2[Entity, error] {
	return func(yield func(Entity, error) bool) {
		claims, err := s.tokens.Parse(ctx, tok)
		if err != nil {
			yield(Entity{}, tokenError(err))
			return
		}
		if claims.Table != table || !claims.Permissions().Has(token.Read) ||
			(partition != "" && partition != claims.Partition) {
			yield(Entity{}, fmt.Errorf("%w: token for %s does not cover %s/%s", ErrForbidden, claims.Scope(), table, partition))
			return
		}

		e, err := s.Get(ctx, table, claims.Partition, claims.Row)
		switch {
		case errors.Is(err, ErrTableNotFound):
			yield(Entity{}, err)
		case errors.Is(err, ErrNotFound):
		case err != nil:
			yield(Entity{}, err)
		default:
			yield(e, nil)
		}
	}
}

func (s *ScopedStore) authorize(ctx context.Context, tok string, scope token.Scope, need token.Permission) error {
	if _, err := s.tokens.Authorize(ctx, tok, scope, need); err != nil {
		return tokenError(err)
	}
	return nil
}

func tokenError(err error) error {
	if errors.Is(err, token.ErrInvalid) {
		return fmt.Errorf("%w: %w", ErrForbidden, err)
	}
	return err
}
