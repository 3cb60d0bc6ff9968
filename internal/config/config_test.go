package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("KOI_TEST_VAR", "hello")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"with value set", "value: ${KOI_TEST_VAR}", "value: hello"},
		{"with default used", "value: ${KOI_TEST_UNSET:fallback}", "value: fallback"},
		{"no default and unset", "value: ${KOI_TEST_UNSET}", "value: "},
		{"plain text", "value: literal", "value: literal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SubstituteEnvVars(tt.input))
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.True(t, cfg.Federation.AllowLegacy16NodeRID)
	assert.True(t, cfg.Federation.AllowDER64NodeRID)
	assert.Equal(t, 60*time.Second, cfg.Federation.PollInterval)
	assert.Equal(t, 21600*time.Second, cfg.Federation.GitHubScanInterval)
	assert.Equal(t, 86400*time.Second, cfg.Federation.WebSensorInterval)
	assert.Equal(t, "exact_alias", cfg.Federation.CrossrefMode)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	t.Setenv("KOI_TEST_NAME", "peer-a")

	content := "node:\n  name: ${KOI_TEST_NAME}\n  base_url: http://localhost:8080\nstore:\n  dsn: postgres://localhost/koi\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "peer-a", cfg.Node.Name)
	assert.Equal(t, "http://localhost:8080", cfg.Node.BaseURL)
	assert.Equal(t, "postgres://localhost/koi", cfg.Store.DSN)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("KOI_NODE_NAME", "override-node")
	t.Setenv("KOI_STRICT_MODE", "true")
	t.Setenv("KOI_POLL_INTERVAL", "15")
	t.Setenv("KOI_CROSSREF_MODE", "semantic")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "override-node", cfg.Node.Name)
	assert.True(t, cfg.Federation.StrictMode)
	assert.Equal(t, 15*time.Second, cfg.Federation.PollInterval)
	assert.Equal(t, "semantic", cfg.Federation.CrossrefMode)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "koi-node", cfg.Node.Name)
}
