package crypto

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
)

// KMSClient is the subset of *kms.Client used by KMSSigner.
type KMSClient interface {
	GenerateMac(ctx context.Context, params *kms.GenerateMacInput, optFns ...func(*kms.Options)) (*kms.GenerateMacOutput, error)
	VerifyMac(ctx context.Context, params *kms.VerifyMacInput, optFns ...func(*kms.Options)) (*kms.VerifyMacOutput, error)
}

var _ KMSClient = (*kms.Client)(nil)

// KMSSigner implements Signer with an HMAC_256 KMS key, so the key material
// never leaves KMS.
type KMSSigner struct {
	client KMSClient
	keyID  string
}

// NewKMSSigner creates a new KMSSigner.
// keyID can be a key ID, key ARN, or alias name (e.g., "alias/socialnet-token-key").
func NewKMSSigner(client KMSClient, keyID string) *KMSSigner {
	return &KMSSigner{
		client: client,
		keyID:  keyID,
	}
}

// Sign returns the HMAC-SHA256 of msg computed by KMS.
func (s *KMSSigner) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	out, err := s.client.GenerateMac(ctx, &kms.GenerateMacInput{
		KeyId:        aws.String(s.keyID),
		Message:      msg,
		MacAlgorithm: types.MacAlgorithmSpecHmacSha256,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: kms generate mac: %w", ErrUnavailable, err)
	}
	return out.Mac, nil
}

// Verify asks KMS to check mac against msg.
func (s *KMSSigner) Verify(ctx context.Context, msg, mac []byte) error {
	out, err := s.client.VerifyMac(ctx, &kms.VerifyMacInput{
		KeyId:        aws.String(s.keyID),
		Message:      msg,
		Mac:          mac,
		MacAlgorithm: types.MacAlgorithmSpecHmacSha256,
	})
	if err != nil {
		var invalid *types.KMSInvalidMacException
		if errors.As(err, &invalid) {
			return ErrSignatureMismatch
		}
		return fmt.Errorf("%w: kms verify mac: %w", ErrUnavailable, err)
	}
	if !out.MacValid {
		return ErrSignatureMismatch
	}
	return nil
}
