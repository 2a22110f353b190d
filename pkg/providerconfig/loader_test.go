package providerconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoader_LoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `{
		"providers": [
			{"id": "prov-a", "name": "Provider A", "kind": "openai-compatible", "defaultModel": "gpt-x"}
		],
		"defaultProviderId": "prov-a"
	}`)

	cfg, err := Load(LoaderOptions{Type: BackendFile, Path: path})
	require.NoError(t, err)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "prov-a", cfg.DefaultProviderID)

	p, ok := cfg.ProviderByID("prov-a")
	require.True(t, ok)
	assert.Equal(t, "gpt-x", p.DefaultModel)
}

func TestLoader_RejectsUnknownDefaultProvider(t *testing.T) {
	path := writeConfigFile(t, `{
		"providers": [{"id": "prov-a", "kind": "openai-compatible"}],
		"defaultProviderId": "prov-ghost"
	}`)

	_, err := Load(LoaderOptions{Type: BackendFile, Path: path})
	require.Error(t, err)
}

func TestLoader_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_PROVIDER_BASE_URL", "https://example.test/v1")
	path := writeConfigFile(t, `{
		"providers": [{"id": "prov-a", "kind": "openai-compatible", "baseUrl": "${TEST_PROVIDER_BASE_URL}"}]
	}`)

	cfg, err := Load(LoaderOptions{Type: BackendFile, Path: path})
	require.NoError(t, err)
	p, ok := cfg.ProviderByID("prov-a")
	require.True(t, ok)
	assert.Equal(t, "https://example.test/v1", p.BaseURL)
}
