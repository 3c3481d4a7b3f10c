package token

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jun/socialnet/internal/crypto"
)

// signerMethod is a jwt.SigningMethod that delegates to a crypto.Signer.
type signerMethod struct{}

var method jwt.SigningMethod = signerMethod{}

func init() {
	jwt.RegisterSigningMethod(algorithm, func() jwt.SigningMethod { return method })
}

// signingKey carries the request context into the signer, since jwt's
// signing interface has none.
type signingKey struct {
	ctx    context.Context
	signer crypto.Signer
}

func (signerMethod) Alg() string { return algorithm }

func (signerMethod) Sign(signingString string, key any) ([]byte, error) {
	k, ok := key.(signingKey)
	if !ok {
		return nil, jwt.ErrInvalidKeyType
	}
	return k.signer.Sign(k.ctx, []byte(signingString))
}

func (signerMethod) Verify(signingString string, sig []byte, key any) error {
	k, ok := key.(signingKey)
	if !ok {
		return jwt.ErrInvalidKeyType
	}
	return k.signer.Verify(k.ctx, []byte(signingString), sig)
}
