package adapter_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jun/socialnet/internal/adapter"
	"github.com/jun/socialnet/internal/adapter/memory"
	"github.com/jun/socialnet/internal/crypto"
	"github.com/jun/socialnet/internal/token"
)

type recorder struct {
	ops []string
}

func (r *recorder) ObserveStoreOp(op, table string, err error, _ time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.ops = append(r.ops, op+":"+table+":"+status)
}

func newStore(t *testing.T) *adapter.ScopedStore {
	t.Helper()
	signer, err := crypto.NewLocalSigner([]byte("k"))
	require.NoError(t, err)
	s := adapter.NewScopedStore(memory.NewStore(), token.NewAuthority(signer))

	ctx := context.Background()
	_, err = s.CreateTable(ctx, "DataTable")
	require.NoError(t, err)
	for _, e := range []adapter.Entity{
		{Partition: "USA", Row: "Franklin,Aretha", Properties: map[string]any{"Song": "RESPECT"}},
		{Partition: "USA", Row: "Franklin,Kirk", Properties: map[string]any{"Song": "Stomp"}},
		{Partition: "UK", Row: "Bowie,David", Properties: map[string]any{"Song": "Heroes"}},
	} {
		require.NoError(t, s.Put(ctx, "DataTable", e, adapter.InsertOrMerge))
	}
	return s
}

func collect(t *testing.T, seq func(func(adapter.Entity, error) bool)) ([]adapter.Entity, error) {
	t.Helper()
	var out []adapter.Entity
	for e, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}

func TestScopedStore_GetWithToken(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	tok, err := s.MintScopedToken(ctx, "DataTable", "USA", "Franklin,Aretha", token.ReadOnly, time.Hour)
	require.NoError(t, err)

	e, err := s.GetWithToken(ctx, tok, "DataTable", "USA", "Franklin,Aretha")
	require.NoError(t, err)
	assert.Equal(t, "RESPECT", e.Properties["Song"])

	_, err = s.GetWithToken(ctx, tok, "DataTable", "USA", "Franklin,Kirk")
	assert.ErrorIs(t, err, adapter.ErrForbidden)

	_, err = s.GetWithToken(ctx, "garbage", "DataTable", "USA", "Franklin,Aretha")
	assert.ErrorIs(t, err, adapter.ErrForbidden)
}

func TestScopedStore_GetWithToken_Expired(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	tok, err := s.MintScopedToken(ctx, "DataTable", "USA", "Franklin,Aretha", token.ReadOnly, -time.Minute)
	require.NoError(t, err)

	_, err = s.GetWithToken(ctx, tok, "DataTable", "USA", "Franklin,Aretha")
	assert.ErrorIs(t, err, adapter.ErrForbidden)
	assert.False(t, errors.Is(err, adapter.ErrNotFound))
}

func TestScopedStore_PutWithToken(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	tok, err := s.MintScopedToken(ctx, "DataTable", "UK", "Bowie,David", token.ReadUpdate, time.Hour)
	require.NoError(t, err)

	require.NoError(t, s.PutWithToken(ctx, tok, "DataTable", "UK", "Bowie,David", map[string]any{"Status": "Ziggy"}))
	e, err := s.Get(ctx, "DataTable", "UK", "Bowie,David")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Song": "Heroes", "Status": "Ziggy"}, e.Properties)

	err = s.PutWithToken(ctx, tok, "DataTable", "USA", "Franklin,Aretha", map[string]any{"Status": "x"})
	assert.ErrorIs(t, err, adapter.ErrForbidden)
}

func TestScopedStore_QueryWithToken(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	tok, err := s.MintScopedToken(ctx, "DataTable", "USA", "Franklin,Aretha", token.ReadOnly, time.Hour)
	require.NoError(t, err)

	all, err := collect(t, s.QueryWithToken(ctx, tok, "DataTable", ""))
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Franklin,Aretha", all[0].Row)

	part, err := collect(t, s.QueryWithToken(ctx, tok, "DataTable", "USA"))
	require.NoError(t, err)
	assert.Len(t, part, 1)

	_, err = collect(t, s.QueryWithToken(ctx, tok, "DataTable", "UK"))
	assert.ErrorIs(t, err, adapter.ErrForbidden)

	_, err = collect(t, s.QueryWithToken(ctx, tok, "AuthTable", ""))
	assert.ErrorIs(t, err, adapter.ErrForbidden)

	require.NoError(t, s.Delete(ctx, "DataTable", "USA", "Franklin,Aretha"))
	none, err := collect(t, s.QueryWithToken(ctx, tok, "DataTable", "USA"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestInstrument_ObservesCalls(t *testing.T) {
	rec := &recorder{}
	s := adapter.Instrument(memory.NewStore(), noop.NewTracerProvider().Tracer("test"), rec)
	ctx := context.Background()

	_, err := s.CreateTable(ctx, "T")
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "T", adapter.Entity{Partition: "p", Row: "r"}, adapter.InsertOrMerge))
	_, err = s.Get(ctx, "T", "p", "missing")
	assert.ErrorIs(t, err, adapter.ErrNotFound)

	n := 0
	for _, err := range s.Query(ctx, "T", "p") {
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 1, n)

	assert.Equal(t, []string{
		"create_table:T:ok",
		"put:T:ok",
		"get:T:error",
		"query:T:ok",
	}, rec.ops)
}
