package crypto

import (
	"context"
	"errors"
)

var (
	// ErrSignatureMismatch is returned when a MAC does not verify.
	ErrSignatureMismatch = errors.New("signature mismatch")

	// ErrUnavailable is returned when the signing backend cannot be reached.
	ErrUnavailable = errors.New("signer unavailable")
)

// Signer produces and checks message authentication codes.
type Signer interface {
	Sign(ctx context.Context, msg []byte) ([]byte, error)
	Verify(ctx context.Context, msg, mac []byte) error
}
