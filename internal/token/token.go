// Package token mints and checks capability tokens: signed, expiring
// credentials that grant read or read+update access to exactly one entity.
//
// Tokens are JWTs whose signature is produced by a crypto.Signer (KMS HMAC in
// production), so no service other than the store adapter can forge or
// interpret them.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jun/socialnet/internal/crypto"
)

const (
	algorithm = "HS256K"
	issuer    = "socialnet"

	// DefaultTTL is the lifetime of tokens issued at sign-on.
	DefaultTTL = 24 * time.Hour
)

// ErrInvalid is returned for tampered, expired, or out-of-scope tokens.
var ErrInvalid = errors.New("invalid capability token")

// Scope names the single entity a token is bound to.
type Scope struct {
	Table     string
	Partition string
	Row       string
}

func (s Scope) String() string {
	return s.Table + "/" + s.Partition + "/" + s.Row
}

// Claims is the token payload.
type Claims struct {
	Table     string `json:"tn"`
	Partition string `json:"pk"`
	Row       string `json:"rk"`
	Perms     string `json:"sp"`
	jwt.RegisteredClaims
}

// Scope returns the entity the token is bound to.
func (c *Claims) Scope() Scope {
	return Scope{Table: c.Table, Partition: c.Partition, Row: c.Row}
}

// Permissions returns the granted rights.
func (c *Claims) Permissions() Permission {
	return parsePermission(c.Perms)
}

// Allows reports whether the token covers scope with at least need.
func (c *Claims) Allows(scope Scope, need Permission) bool {
	return c.Scope() == scope && c.Permissions().Has(need)
}

// Authority issues and verifies tokens with one signer.
type Authority struct {
	signer crypto.Signer
	now    func() time.Time
}

// Option configures an Authority.
type Option func(*Authority)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) { a.now = now }
}

func NewAuthority(signer crypto.Signer, opts ...Option) *Authority {
	a := &Authority{signer: signer, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Mint returns a token for scope granting perms until now+ttl.
func (a *Authority) Mint(ctx context.Context, scope Scope, perms Permission, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		Table:     scope.Table,
		Partition: scope.Partition,
		Row:       scope.Row,
		Perms:     perms.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(method, claims).SignedString(signingKey{ctx: ctx, signer: a.signer})
	if err != nil {
		return "", fmt.Errorf("mint token for %s: %w", scope, err)
	}
	return signed, nil
}

// Parse verifies the signature and expiry of raw and returns its claims.
// Signer outages are returned as-is; every other failure wraps ErrInvalid.
func (a *Authority) Parse(ctx context.Context, raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) {
			return signingKey{ctx: ctx, signer: a.signer}, nil
		},
		jwt.WithValidMethods([]string{algorithm}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		if errors.Is(err, crypto.ErrUnavailable) {
			return nil, fmt.Errorf("verify token: %w", err)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return claims, nil
}

// Authorize checks that raw is valid and covers scope with need.
func (a *Authority) Authorize(ctx context.Context, raw string, scope Scope, need Permission) (*Claims, error) {
	claims, err := a.Parse(ctx, raw)
	if err != nil {
		return nil, err
	}
	if !claims.Allows(scope, need) {
		return nil, fmt.Errorf("%w: granted %s on %s, requested %s on %s",
			ErrInvalid, claims.Permissions(), claims.Scope(), need, scope)
	}
	return claims, nil
}
