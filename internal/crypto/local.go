package crypto

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
)

// LocalSigner implements Signer with an in-process HMAC-SHA256 key for local
// development (no KMS required).
type LocalSigner struct {
	key []byte
}

func NewLocalSigner(key []byte) (*LocalSigner, error) {
	if len(key) == 0 {
		return nil, errors.New("local signer: empty key")
	}
	return &LocalSigner{key: key}, nil
}

func (s *LocalSigner) Sign(_ context.Context, msg []byte) ([]byte, error) {
	m := hmac.New(sha256.New, s.key)
	m.Write(msg)
	return m.Sum(nil), nil
}

func (s *LocalSigner) Verify(ctx context.Context, msg, mac []byte) error {
	want, _ := s.Sign(ctx, msg)
	if !hmac.Equal(want, mac) {
		return ErrSignatureMismatch
	}
	return nil
}
