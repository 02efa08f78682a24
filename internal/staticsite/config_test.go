package staticsite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	filename := filepath.Join(t.TempDir(), "static-site.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(content), 0o644))
	return filename
}

func TestLoadConfig(t *testing.T) {
	filename := writeConfig(t, `
stackName: docs-site
region: cn-northwest-1
customDomain:
  domainName: docs.example.cn
  iamCertificateId: ASCAEXAMPLE
  hostedZone: example.cn
  alternateNames:
    - example.cn
path: web
buildCommand: npm run build
buildOutput: dist
errorPage: redirect_to_index_page
environment:
  NODE_ENV: production
parameters:
  IamCertificateId: ASCAOTHER
overrides:
  Distribution:
    DistributionConfig:
      PriceClass: PriceClass_All
`)

	cfg, err := LoadConfig(filename)
	require.NoError(t, err)

	assert.Equal(t, "docs-site", cfg.StackName)
	assert.Equal(t, "cn-northwest-1", cfg.Region)
	assert.Equal(t, "docs.example.cn", cfg.CustomDomain.DomainName)
	assert.Equal(t, []string{"example.cn"}, cfg.CustomDomain.AlternateNames)
	assert.Equal(t, filepath.Join(filepath.Dir(filename), "web"), cfg.Path)
	assert.Equal(t, "dist", cfg.BuildOutput)
	assert.Equal(t, RedirectToIndexPage, cfg.ErrorPage)
	assert.Equal(t, map[string]string{"NODE_ENV": "production"}, cfg.Environment)
	assert.Equal(t, map[string]string{"IamCertificateId": "ASCAOTHER"}, cfg.Parameters)
	assert.Equal(t, map[string]any{"PriceClass": "PriceClass_All"},
		cfg.Overrides[DistributionID]["DistributionConfig"])
}

func TestLoadConfig_Defaults(t *testing.T) {
	filename := writeConfig(t, `
customDomain:
  domainName: www.example.cn
path: /srv/www
`)

	cfg, err := LoadConfig(filename)
	require.NoError(t, err)
	assert.Equal(t, DefaultStackName, cfg.StackName)
	assert.Equal(t, "/srv/www", cfg.Path)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "domain: www.example.cn\n"))
		assert.Error(t, err)
	})
}
