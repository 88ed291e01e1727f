package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateHome(t *testing.T, dir string) {
	t.Helper()
	oldHome := os.Getenv("HOME")
	oldXDGConfig := os.Getenv("XDG_CONFIG_HOME")
	os.Setenv("HOME", dir)
	os.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))
	t.Cleanup(func() {
		os.Setenv("HOME", oldHome)
		os.Setenv("XDG_CONFIG_HOME", oldXDGConfig)
	})
}

func TestLoadAppliesDefaultsWithNoFiles(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, 8787, cfg.Port)
	assert.Equal(t, "claude", cfg.DefaultClaudeBinary)
	assert.Equal(t, 3, cfg.CLIRestartCircuitBreaker.FailureThreshold)
}

func TestLoadProjectConfigOverridesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	projectConfig := `{
		"port": 9090,
		"maxConcurrentSessions": 10
	}`
	configPath := filepath.Join(tmpDir, ".sessionbroker", "broker.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0755))
	require.NoError(t, os.WriteFile(configPath, []byte(projectConfig), 0644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 10, cfg.MaxConcurrentSessions)
	// untouched keys keep their default
	assert.Equal(t, "claude", cfg.DefaultClaudeBinary)
}

func TestLoadStripsJSONCComments(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	jsonc := `{
		// inline comment
		"port": 7000,
		/* block
		   comment */
		"defaultClaudeBinary": "my-claude"
	}`
	configPath := filepath.Join(tmpDir, ".sessionbroker", "broker.jsonc")
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0755))
	require.NoError(t, os.WriteFile(configPath, []byte(jsonc), 0644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "my-claude", cfg.DefaultClaudeBinary)
}

func TestLoadYAMLOverlayWinsOverJSON(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	jsonCfg := `{"port": 9090}`
	configPath := filepath.Join(tmpDir, ".sessionbroker", "broker.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0755))
	require.NoError(t, os.WriteFile(configPath, []byte(jsonCfg), 0644))

	overlay := "port: 9999\n"
	overlayPath := filepath.Join(tmpDir, ".sessionbroker", "broker.overlay.yaml")
	require.NoError(t, os.WriteFile(overlayPath, []byte(overlay), 0644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Port)
}

func TestLoadEnvOverridesBeatFiles(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	configPath := filepath.Join(tmpDir, ".sessionbroker", "broker.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0755))
	require.NoError(t, os.WriteFile(configPath, []byte(`{"port": 9090}`), 0644))

	os.Setenv("BROKER_PORT", "4242")
	os.Setenv("BROKER_ENV_DENY_LIST", "FOO, BAR")
	defer os.Unsetenv("BROKER_PORT")
	defer os.Unsetenv("BROKER_ENV_DENY_LIST")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, 4242, cfg.Port)
	assert.Equal(t, []string{"FOO", "BAR"}, cfg.EnvDenyList)
}

func TestSaveAndReload(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := Defaults()
	cfg.Port = 1234

	path := filepath.Join(tmpDir, "sub", "broker.json")
	require.NoError(t, Save(&cfg, path))

	isolateHome(t, tmpDir)
	loaded, err := Load("")
	require.NoError(t, err)
	// Save/Load round-trip is not wired through the default search path;
	// verify the file itself was written correctly instead.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"port": 1234`)
	assert.Equal(t, Defaults().Port, loaded.Port)
}
