// Package secret resolves the backend's secrets from SSM Parameter Store or,
// in development and container deployments, from the environment.
package secret

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SSM rejects GetParameters calls with more names than this.
const ssmBatchSize = 10

// SSMClient is the subset of *ssm.Client used by SSMResolver.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// Resolver retrieves secret values by parameter name.
type Resolver interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// BatchResolver resolves several names at once. Names that do not exist are
// left out of the result; err reports a failed lookup, not a missing name.
type BatchResolver interface {
	GetSecrets(ctx context.Context, names []string) (map[string]string, error)
}

type SSMResolver struct {
	client SSMClient
}

func NewSSMResolver(client SSMClient) *SSMResolver {
	return &SSMResolver{client: client}
}

// GetSecret reads one SecureString parameter.
func (r *SSMResolver) GetSecret(ctx context.Context, name string) (string, error) {
	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("ssm get parameter %q: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("ssm parameter %q has no value", name)
	}
	return *out.Parameter.Value, nil
}

// GetSecrets reads the parameters in batches of ten.
func (r *SSMResolver) GetSecrets(ctx context.Context, names []string) (map[string]string, error) {
	found := make(map[string]string, len(names))
	for start := 0; start < len(names); start += ssmBatchSize {
		end := min(start+ssmBatchSize, len(names))
		out, err := r.client.GetParameters(ctx, &ssm.GetParametersInput{
			Names:          names[start:end],
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("ssm get parameters: %w", err)
		}
		for _, p := range out.Parameters {
			if p.Name != nil && p.Value != nil {
				found[*p.Name] = *p.Value
			}
		}
	}
	return found, nil
}

// EnvResolver reads secrets from environment variables named after the last
// segment of the parameter: "/dijitalmektup/jwt-secret" is JWT_SECRET.
// When JWT_SECRET is unset, JWT_SECRET_FILE may name a file holding the value,
// as mounted by Docker and Kubernetes secrets.
type EnvResolver struct {
	getenv   func(string) string
	readFile func(string) ([]byte, error)
}

func NewEnvResolver() *EnvResolver {
	return &EnvResolver{getenv: os.Getenv, readFile: os.ReadFile}
}

func (r *EnvResolver) GetSecret(_ context.Context, name string) (string, error) {
	envName := paramNameToEnvVar(name)
	if val := r.getenv(envName); val != "" {
		return val, nil
	}
	if path := r.getenv(envName + "_FILE"); path != "" {
		raw, err := r.readFile(path)
		if err != nil {
			return "", fmt.Errorf("reading %s_FILE: %w", envName, err)
		}
		if val := strings.TrimRight(string(raw), "\r\n"); val != "" {
			return val, nil
		}
	}
	return "", fmt.Errorf("environment variable %q (from param %q) is not set", envName, name)
}

// "/dijitalmektup/google-client-secret" -> "GOOGLE_CLIENT_SECRET"
func paramNameToEnvVar(name string) string {
	last := name[strings.LastIndex(name, "/")+1:]
	return strings.ToUpper(strings.ReplaceAll(last, "-", "_"))
}
