// Package secrets resolves secret references at execution time.
//
// Configuration never carries credential values, only references:
//
//	env:EMAIL_PASSWORD      environment variable
//	file:/run/secrets/pw    file contents, trailing whitespace trimmed
//	aws-sm:prod/report/pw   AWS Secrets Manager secret
//
// References are validated at configuration load and resolved
// immediately before each job run, so rotated secrets take effect
// without a restart.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"reportd/internal/shared"
)

// Reference schemes.
const (
	SchemeEnv   = "env"
	SchemeFile  = "file"
	SchemeAWSSM = "aws-sm"
)

// SecretsManagerAPI is the Secrets Manager surface the resolver needs.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// ValidateRef checks reference syntax without resolving it.
func ValidateRef(ref string) error {
	scheme, name, err := splitRef(ref)
	if err != nil {
		return err
	}
	switch scheme {
	case SchemeEnv, SchemeFile, SchemeAWSSM:
		_ = name
		return nil
	default:
		return shared.MarkKind(fmt.Errorf("unknown secret scheme %q", scheme), shared.KindValidation)
	}
}

func splitRef(ref string) (scheme, name string, err error) {
	scheme, name, ok := strings.Cut(ref, ":")
	if !ok || scheme == "" || name == "" {
		return "", "", shared.MarkKind(fmt.Errorf("malformed secret reference %q, want scheme:name", ref), shared.KindValidation)
	}
	return scheme, name, nil
}

// Resolver resolves secret references against their providers.
type Resolver struct {
	mu sync.Mutex
	sm SecretsManagerAPI
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSecretsManager injects a Secrets Manager client. Without it, a
// client is built from the default AWS config chain on first use.
func WithSecretsManager(api SecretsManagerAPI) Option {
	return func(r *Resolver) { r.sm = api }
}

// NewResolver creates a Resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve returns the secret value for a reference. An empty resolved
// value is an error: every binding this service passes on must be a
// non-empty string.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	scheme, name, err := splitRef(ref)
	if err != nil {
		return "", err
	}

	var value string
	switch scheme {
	case SchemeEnv:
		value = os.Getenv(name)
	case SchemeFile:
		data, err := os.ReadFile(name)
		if err != nil {
			return "", shared.Wrapf(err, "read secret file %s", name)
		}
		value = strings.TrimRight(string(data), "\r\n")
	case SchemeAWSSM:
		value, err = r.resolveAWSSM(ctx, name)
		if err != nil {
			return "", err
		}
	default:
		return "", shared.MarkKind(fmt.Errorf("unknown secret scheme %q", scheme), shared.KindValidation)
	}

	if value == "" {
		return "", shared.MarkKind(fmt.Errorf("secret %s resolved to an empty value", ref), shared.KindValidation)
	}
	return value, nil
}

func (r *Resolver) resolveAWSSM(ctx context.Context, secretID string) (string, error) {
	client, err := r.smClient(ctx)
	if err != nil {
		return "", err
	}
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &secretID,
	})
	if err != nil {
		return "", shared.MarkKind(shared.Wrapf(err, "secretsmanager get %s", secretID), shared.KindDependencyFailure)
	}
	if out.SecretString == nil {
		return "", shared.MarkKind(fmt.Errorf("secret %s holds no string value", secretID), shared.KindValidation)
	}
	return *out.SecretString, nil
}

func (r *Resolver) smClient(ctx context.Context) (SecretsManagerAPI, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sm != nil {
		return r.sm, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, shared.MarkKind(shared.Wrap(err, "load aws config"), shared.KindDependencyFailure)
	}
	r.sm = secretsmanager.NewFromConfig(cfg)
	return r.sm, nil
}
