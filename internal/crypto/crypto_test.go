package crypto

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKMS computes MACs locally with a fixed key, the way KMS would.
type fakeKMS struct {
	key  []byte
	down bool
}

func (f *fakeKMS) mac(msg []byte) []byte {
	m := hmac.New(sha256.New, f.key)
	m.Write(msg)
	return m.Sum(nil)
}

func (f *fakeKMS) GenerateMac(_ context.Context, in *kms.GenerateMacInput, _ ...func(*kms.Options)) (*kms.GenerateMacOutput, error) {
	if f.down {
		return nil, errors.New("connection refused")
	}
	return &kms.GenerateMacOutput{Mac: f.mac(in.Message), KeyId: in.KeyId}, nil
}

func (f *fakeKMS) VerifyMac(_ context.Context, in *kms.VerifyMacInput, _ ...func(*kms.Options)) (*kms.VerifyMacOutput, error) {
	if f.down {
		return nil, errors.New("connection refused")
	}
	if !hmac.Equal(f.mac(in.Message), in.Mac) {
		return nil, &types.KMSInvalidMacException{Message: new(string)}
	}
	return &kms.VerifyMacOutput{MacValid: true, KeyId: in.KeyId}, nil
}

func TestKMSSigner_SignVerify(t *testing.T) {
	s := NewKMSSigner(&fakeKMS{key: []byte("k")}, "alias/test")
	ctx := context.Background()

	mac, err := s.Sign(ctx, []byte("payload"))
	require.NoError(t, err)
	require.NoError(t, s.Verify(ctx, []byte("payload"), mac))
	assert.ErrorIs(t, s.Verify(ctx, []byte("tampered"), mac), ErrSignatureMismatch)
}

func TestKMSSigner_Unavailable(t *testing.T) {
	s := NewKMSSigner(&fakeKMS{key: []byte("k"), down: true}, "alias/test")

	_, err := s.Sign(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, s.Verify(context.Background(), []byte("x"), []byte("y")), ErrUnavailable)
}

func TestLocalSigner(t *testing.T) {
	_, err := NewLocalSigner(nil)
	require.Error(t, err)

	s, err := NewLocalSigner([]byte("dev-key"))
	require.NoError(t, err)
	ctx := context.Background()

	mac, err := s.Sign(ctx, []byte("payload"))
	require.NoError(t, err)
	again, err := s.Sign(ctx, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, mac, again)
	assert.NoError(t, s.Verify(ctx, []byte("payload"), mac))

	other, err := NewLocalSigner([]byte("other-key"))
	require.NoError(t, err)
	assert.ErrorIs(t, other.Verify(ctx, []byte("payload"), mac), ErrSignatureMismatch)
}
