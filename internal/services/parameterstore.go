package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/savaki/static-site-cn/internal/errors"
	"github.com/savaki/static-site-cn/internal/staticsite"
)

// ReferencePrefix marks a config value that is read from the parameter store,
// e.g. "ssm:/prod/site/iam-certificate-id".
const ReferencePrefix = "ssm:"

// ParameterStore defines the interface for accessing configuration parameters
type ParameterStore interface {
	// GetParameter retrieves a single parameter by name
	GetParameter(ctx context.Context, name string) (string, error)
}

// SSMAPI is the subset of the SSM client the parameter store uses.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMParameterStore implements ParameterStore using AWS Systems Manager Parameter Store
type SSMParameterStore struct {
	client SSMAPI
	mu     sync.RWMutex
	cache  map[string]string
}

// NewSSMParameterStore creates a new SSM-backed parameter store
func NewSSMParameterStore(client SSMAPI) *SSMParameterStore {
	return &SSMParameterStore{
		client: client,
		cache:  make(map[string]string),
	}
}

// GetParameter retrieves a single parameter from SSM Parameter Store
func (s *SSMParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	// Check cache first
	s.mu.RLock()
	if value, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return value, nil
	}
	s.mu.RUnlock()

	result, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get parameter %s: %w", name, err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("%w: %s", errors.ErrParameterNotFound, name)
	}

	value := *result.Parameter.Value

	s.mu.Lock()
	s.cache[name] = value
	s.mu.Unlock()

	return value, nil
}

// EnvParameterStore implements ParameterStore using environment variables, for
// local runs without SSM. /prod/site/cert-id is read from PROD_SITE_CERT_ID.
type EnvParameterStore struct{}

func NewEnvParameterStore() *EnvParameterStore {
	return &EnvParameterStore{}
}

func (e *EnvParameterStore) GetParameter(_ context.Context, name string) (string, error) {
	key := EnvName(name)
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", fmt.Errorf("%w: %s (env %s)", errors.ErrParameterNotFound, name, key)
	}
	return value, nil
}

// EnvName maps a parameter path to an environment variable name.
func EnvName(name string) string {
	name = strings.Trim(name, "/")
	name = strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(name)
	return strings.ToUpper(name)
}

// Resolve returns value, or the referenced parameter when value starts with ssm:.
func Resolve(ctx context.Context, store ParameterStore, value string) (string, error) {
	name, ok := strings.CutPrefix(value, ReferencePrefix)
	if !ok {
		return value, nil
	}
	return store.GetParameter(ctx, name)
}

// ResolveProps replaces parameter references in the string settings of props.
func ResolveProps(ctx context.Context, store ParameterStore, props *staticsite.Props) error {
	fields := []*string{
		&props.CustomDomain.DomainName,
		&props.CustomDomain.IamCertificateID,
		&props.CustomDomain.IamCertificateName,
		&props.CustomDomain.HostedZone,
		&props.CustomDomain.HostedZoneID,
	}
	for _, field := range fields {
		resolved, err := Resolve(ctx, store, *field)
		if err != nil {
			return err
		}
		*field = resolved
	}

	for _, m := range []map[string]string{props.Environment, props.Parameters} {
		for key, value := range m {
			resolved, err := Resolve(ctx, store, value)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			m[key] = resolved
		}
	}

	return nil
}
