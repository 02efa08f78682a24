package services

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	siteerrors "github.com/savaki/static-site-cn/internal/errors"
	"github.com/savaki/static-site-cn/internal/staticsite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSSM struct {
	calls      int
	parameters map[string]string
}

func (m *mockSSM) GetParameter(_ context.Context, params *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	m.calls++
	value, ok := m.parameters[aws.ToString(params.Name)]
	if !ok {
		return nil, errors.New("ParameterNotFound")
	}
	return &ssm.GetParameterOutput{
		Parameter: &types.Parameter{Name: params.Name, Value: aws.String(value)},
	}, nil
}

func TestSSMParameterStore_GetParameter(t *testing.T) {
	client := &mockSSM{parameters: map[string]string{"/prod/site/cert": "ASCAFROMSSM"}}
	store := NewSSMParameterStore(client)

	for i := 0; i < 2; i++ {
		value, err := store.GetParameter(context.Background(), "/prod/site/cert")
		require.NoError(t, err)
		assert.Equal(t, "ASCAFROMSSM", value)
	}
	assert.Equal(t, 1, client.calls, "second read is served from cache")

	_, err := store.GetParameter(context.Background(), "/prod/site/missing")
	assert.ErrorContains(t, err, "ParameterNotFound")
}

func TestEnvParameterStore_GetParameter(t *testing.T) {
	t.Setenv("PROD_SITE_IAM_CERT", "ASCAFROMENV")
	store := NewEnvParameterStore()

	value, err := store.GetParameter(context.Background(), "/prod/site/iam-cert")
	require.NoError(t, err)
	assert.Equal(t, "ASCAFROMENV", value)

	_, err = store.GetParameter(context.Background(), "/prod/site/unset")
	assert.ErrorIs(t, err, siteerrors.ErrParameterNotFound)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "PROD_SITE_IAM_CERT", EnvName("/prod/site/iam-cert"))
	assert.Equal(t, "A_B_C", EnvName("a.b/c"))
}

func TestResolveProps(t *testing.T) {
	store := NewSSMParameterStore(&mockSSM{parameters: map[string]string{
		"/site/cert":  "ASCAFROMSSM",
		"/site/zone":  "example.cn",
		"/site/token": "s3cr3t",
	}})

	props := staticsite.Props{
		CustomDomain: staticsite.DomainProps{
			DomainName:       "www.example.cn",
			IamCertificateID: "ssm:/site/cert",
			HostedZone:       "ssm:/site/zone",
		},
		Environment: map[string]string{"API_TOKEN": "ssm:/site/token", "MODE": "prod"},
	}

	require.NoError(t, ResolveProps(context.Background(), store, &props))
	assert.Equal(t, "www.example.cn", props.CustomDomain.DomainName)
	assert.Equal(t, "ASCAFROMSSM", props.CustomDomain.IamCertificateID)
	assert.Equal(t, "example.cn", props.CustomDomain.HostedZone)
	assert.Equal(t, map[string]string{"API_TOKEN": "s3cr3t", "MODE": "prod"}, props.Environment)
}

func TestResolveProps_MissingParameter(t *testing.T) {
	store := NewSSMParameterStore(&mockSSM{})
	props := staticsite.Props{
		Parameters: map[string]string{"IamCertificateId": "ssm:/site/missing"},
	}
	err := ResolveProps(context.Background(), store, &props)
	assert.ErrorContains(t, err, "IamCertificateId")
}
