// Package secret resolves key material for the token signer from SSM
// Parameter Store or the environment.
package secret

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SSMClient is the subset of *ssm.Client methods used by SSMResolver.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver retrieves secret values by parameter name.
type Resolver interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SSMResolver reads SecureString parameters.
type SSMResolver struct {
	client SSMClient
}

func NewSSMResolver(client SSMClient) *SSMResolver {
	return &SSMResolver{client: client}
}

func (r *SSMResolver) GetSecret(ctx context.Context, name string) (string, error) {
	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("ssm get parameter %q: %w", name, err)
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return "", fmt.Errorf("ssm parameter %q has no value", name)
	}
	return *out.Parameter.Value, nil
}

// EnvResolver reads the variable named after the last path segment of the
// parameter: "/socialnet/token-key" is looked up as TOKEN_KEY.
type EnvResolver struct{}

func NewEnvResolver() *EnvResolver {
	return &EnvResolver{}
}

func (r *EnvResolver) GetSecret(_ context.Context, name string) (string, error) {
	envName := paramNameToEnvVar(name)
	val, ok := os.LookupEnv(envName)
	if !ok || val == "" {
		return "", fmt.Errorf("environment variable %q (from param %q) is not set", envName, name)
	}
	return val, nil
}

func paramNameToEnvVar(name string) string {
	last := name[strings.LastIndex(name, "/")+1:]
	return strings.ToUpper(strings.ReplaceAll(last, "-", "_"))
}

// Chain tries each resolver in order and returns the first value found.
type Chain []Resolver

func (c Chain) GetSecret(ctx context.Context, name string) (string, error) {
	var errs []error
	for _, r := range c {
		val, err := r.GetSecret(ctx, name)
		if err == nil {
			return val, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("no resolver configured for %q", name)
	}
	return "", errors.Join(errs...)
}
