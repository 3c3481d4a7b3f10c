package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jun/socialnet/internal/adapter"
	"github.com/jun/socialnet/internal/adapter/memory"
	"github.com/jun/socialnet/internal/crypto"
	"github.com/jun/socialnet/internal/model"
	"github.com/jun/socialnet/internal/token"
)

type fixture struct {
	store *adapter.ScopedStore
	svc   *Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	signer, err := crypto.NewLocalSigner([]byte("test-key"))
	require.NoError(t, err)
	store := adapter.NewScopedStore(memory.NewStore(), token.NewAuthority(signer))

	for _, name := range []string{model.AuthTable, model.DataTable} {
		_, err := store.CreateTable(ctx, name)
		require.NoError(t, err)
	}
	require.NoError(t, store.Put(ctx, model.AuthTable, adapter.Entity{
		Partition: model.CredentialPartition,
		Row:       "aretha",
		Properties: map[string]any{
			model.PropPassword:      "respect",
			model.PropDataPartition: "USA",
			model.PropDataRow:       "Franklin,Aretha",
		},
	}, adapter.InsertOrMerge))

	return fixture{store: store, svc: NewService(store, 0)}
}

func TestIssueToken_ReadOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grant, err := f.svc.IssueToken(ctx, "aretha", "respect", token.ReadOnly)
	require.NoError(t, err)
	assert.NotEmpty(t, grant.Token)
	assert.Equal(t, "USA", grant.DataPartition)
	assert.Equal(t, "Franklin,Aretha", grant.DataRow)
	assert.Equal(t, token.DefaultTTL, f.svc.TokenTTL())

	require.NoError(t, f.store.Put(ctx, model.DataTable, adapter.Entity{Partition: "USA", Row: "Franklin,Aretha"}, adapter.InsertOrMerge))
	_, err = f.store.GetWithToken(ctx, grant.Token, model.DataTable, "USA", "Franklin,Aretha")
	require.NoError(t, err)

	err = f.store.PutWithToken(ctx, grant.Token, model.DataTable, "USA", "Franklin,Aretha", map[string]any{"Status": "x"})
	assert.ErrorIs(t, err, adapter.ErrForbidden)
}

func TestIssueToken_ReadUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grant, err := f.svc.IssueToken(ctx, "aretha", "respect", token.ReadUpdate)
	require.NoError(t, err)

	err = f.store.PutWithToken(ctx, grant.Token, model.DataTable, "USA", "Franklin,Aretha", map[string]any{"Status": "singing"})
	require.NoError(t, err)

	err = f.store.PutWithToken(ctx, grant.Token, model.DataTable, "USA", "Franklin,Kirk", map[string]any{"Status": "x"})
	assert.ErrorIs(t, err, adapter.ErrForbidden)
}

func TestIssueToken_BadCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.IssueToken(ctx, "aretha", "wrong", token.ReadOnly)
	assert.ErrorIs(t, err, ErrBadCredentials)

	_, err = f.svc.IssueToken(ctx, "nobody", "respect", token.ReadOnly)
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestAuthenticate_CorruptRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	records := map[string]map[string]any{
		"extra": {
			model.PropPassword: "pw", model.PropDataPartition: "p", model.PropDataRow: "r", "Email": "x",
		},
		"missing-row": {
			model.PropPassword: "pw", model.PropDataPartition: "p",
		},
		"typed": {
			model.PropPassword: "pw", model.PropDataPartition: "p", model.PropDataRow: float64(3),
		},
		"blank-password": {
			model.PropPassword: "", model.PropDataPartition: "p", model.PropDataRow: "r",
		},
		"blank-partition": {
			model.PropPassword: "pw", model.PropDataPartition: "", model.PropDataRow: "r",
		},
		"blank-row": {
			model.PropPassword: "pw", model.PropDataPartition: "p", model.PropDataRow: "",
		},
	}
	for user, props := range records {
		require.NoError(t, f.store.Put(ctx, model.AuthTable, adapter.Entity{
			Partition: model.CredentialPartition, Row: user, Properties: props,
		}, adapter.InsertOrMerge))

		_, err := f.svc.Authenticate(ctx, user, "pw")
		assert.ErrorIs(t, err, ErrCorruptRecord, user)
		assert.False(t, errors.Is(err, ErrBadCredentials), user)
	}
}

func TestIssueToken_MissingTables(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.DeleteTable(ctx, model.DataTable))
	_, err := f.svc.IssueToken(ctx, "aretha", "respect", token.ReadOnly)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrBadCredentials))

	require.NoError(t, f.store.DeleteTable(ctx, model.AuthTable))
	_, err = f.svc.Authenticate(ctx, "aretha", "respect")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrBadCredentials))
}

func TestNewService_TTL(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.store, time.Hour)
	assert.Equal(t, time.Hour, svc.TokenTTL())
}
