// Package auth checks user passwords against AuthTable and issues capability
// tokens for the user's own social record.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jun/socialnet/internal/adapter"
	"github.com/jun/socialnet/internal/model"
	"github.com/jun/socialnet/internal/token"
)

var (
	// ErrBadCredentials covers both an unknown user id and a wrong password
	// so callers cannot tell which one it was.
	ErrBadCredentials = errors.New("unknown user id or wrong password")

	// ErrCorruptRecord is returned when a credential record has missing or
	// unexpected properties.
	ErrCorruptRecord = errors.New("malformed credential record")
)

// Service authenticates users and mints tokens through the entity store.
type Service struct {
	store    adapter.EntityStore
	tokenTTL time.Duration
}

// NewService creates a Service. A non-positive ttl means token.DefaultTTL.
func NewService(store adapter.EntityStore, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = token.DefaultTTL
	}
	return &Service{store: store, tokenTTL: ttl}
}

// TokenTTL returns the lifetime of the tokens this service issues.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}

// Authenticate loads the credential record for userID and checks password.
func (s *Service) Authenticate(ctx context.Context, userID, password string) (model.Credential, error) {
	e, err := s.store.Get(ctx, model.AuthTable, model.CredentialPartition, userID)
	switch {
	case errors.Is(err, adapter.ErrTableNotFound):
		return model.Credential{}, fmt.Errorf("credential table missing: %w", err)
	case errors.Is(err, adapter.ErrNotFound):
		return model.Credential{}, ErrBadCredentials
	case err != nil:
		return model.Credential{}, fmt.Errorf("failed to read credentials for %q: %w", userID, err)
	}

	cred, err := credentialFrom(userID, e.Properties)
	if err != nil {
		return model.Credential{}, err
	}
	if cred.Password != password {
		return model.Credential{}, ErrBadCredentials
	}
	return cred, nil
}

// IssueToken authenticates the user and mints a token with perms on the
// user's record in DataTable.
func (s *Service) IssueToken(ctx context.Context, userID, password string, perms token.Permission) (model.Grant, error) {
	cred, err := s.Authenticate(ctx, userID, password)
	if err != nil {
		return model.Grant{}, err
	}

	ok, err := s.store.TableExists(ctx, model.DataTable)
	if err != nil {
		return model.Grant{}, fmt.Errorf("failed to check %s: %w", model.DataTable, err)
	}
	if !ok {
		return model.Grant{}, fmt.Errorf("%s does not exist", model.DataTable)
	}

	tok, err := s.store.MintScopedToken(ctx, model.DataTable, cred.DataPartition, cred.DataRow, perms, s.tokenTTL)
	if err != nil {
		return model.Grant{}, fmt.Errorf("failed to mint token for %q: %w", userID, err)
	}
	return model.Grant{Token: tok, DataPartition: cred.DataPartition, DataRow: cred.DataRow}, nil
}

func credentialFrom(userID string, props map[string]any) (model.Credential, error) {
	cred := model.Credential{UserID: userID}
	seen := 0
	for name, v := range props {
		s, ok := v.(string)
		if !ok {
			return model.Credential{}, fmt.Errorf("%w: %s is not a string", ErrCorruptRecord, name)
		}
		if s == "" {
			return model.Credential{}, fmt.Errorf("%w: %s is empty", ErrCorruptRecord, name)
		}
		switch name {
		case model.PropPassword:
			cred.Password = s
		case model.PropDataPartition:
			cred.DataPartition = s
		case model.PropDataRow:
			cred.DataRow = s
		default:
			return model.Credential{}, fmt.Errorf("%w: unexpected property %q", ErrCorruptRecord, name)
		}
		seen++
	}
	if seen != 3 {
		return model.Credential{}, fmt.Errorf("%w: want %s, %s and %s", ErrCorruptRecord,
			model.PropPassword, model.PropDataPartition, model.PropDataRow)
	}
	return cred, nil
}
