package di

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog"
	"github.com/savaki/static-site-cn/internal/assets"
	"github.com/savaki/static-site-cn/internal/build"
	"github.com/savaki/static-site-cn/internal/dns"
	"github.com/savaki/static-site-cn/internal/policy"
	"github.com/savaki/static-site-cn/internal/services"
	"github.com/savaki/static-site-cn/internal/stack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateAWS keeps LoadDefaultConfig away from the developer's profile.
func isolateAWS(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_REGION", "")
	t.Setenv("AWS_DEFAULT_REGION", "")
}

func TestProvideAWSConfig(t *testing.T) {
	isolateAWS(t)

	cfg, err := ProvideAWSConfig(context.Background(), "cn-northwest-1")
	require.NoError(t, err)
	assert.Equal(t, "cn-northwest-1", cfg.Region)
}

func TestCoreProviders(t *testing.T) {
	isolateAWS(t)
	t.Setenv("DISABLE_SSM", "true")

	logger := zerolog.New(io.Discard)
	container, err := New(
		WithContext(logger.WithContext(context.Background())),
		WithRegion("cn-north-1"),
	)
	require.NoError(t, err)

	assert.Equal(t, "cn-north-1", MustGet[aws.Config](container).Region)
	assert.NotNil(t, MustGet[*stack.Deployer](container))
	assert.NotNil(t, MustGet[*assets.Uploader](container))
	assert.NotNil(t, MustGet[*dns.Resolver](container))
	assert.NotNil(t, MustGet[*services.IAMService](container))
	assert.NotNil(t, MustGet[*policy.Validator](container))
	assert.NotNil(t, MustGet[*build.Runner](container))

	store, err := Get[services.ParameterStore](container)
	require.NoError(t, err)
	assert.IsType(t, &services.EnvParameterStore{}, store)
}

func TestProvideRoute53Client(t *testing.T) {
	isolateAWS(t)
	cfg, err := ProvideAWSConfig(context.Background(), "cn-north-1")
	require.NoError(t, err)

	assert.Equal(t, "cn-north-1", ProvideRoute53Client(cfg).Options().Region)
}

func TestProvideSSMClient(t *testing.T) {
	isolateAWS(t)
	cfg, err := ProvideAWSConfig(context.Background(), "cn-north-1")
	require.NoError(t, err)

	t.Setenv("DISABLE_SSM", "true")
	assert.Nil(t, ProvideSSMClient(cfg))

	t.Setenv("DISABLE_SSM", "")
	client := ProvideSSMClient(cfg)
	assert.NotNil(t, client)
	assert.IsType(t, &services.SSMParameterStore{}, ProvideParameterStore(context.Background(), client))
}

func TestNewLogger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(&buf, "json", "")
		logger.Info().Str("bucket", "site").Msg("Synced")
		assert.Contains(t, buf.String(), `"bucket":"site"`)
		assert.Contains(t, buf.String(), `"level":"info"`)
	})

	t.Run("level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(&buf, "json", "warn")
		logger.Info().Msg("hidden")
		assert.Empty(t, buf.String())
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		logger := newLogger(io.Discard, "", "loud")
		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	})
}
