package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llmproxy-dev/llmproxy/internal/config"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "!/", cfg.CommandPrefix)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "cfg.yaml", `
port: 9090
default_backend: openrouter
api-keys:
  - abc123
command_prefix: "#/"
`)
	cfg, err := config.Load(p)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, "openrouter", cfg.DefaultBackend)
	require.Equal(t, []string{"abc123"}, cfg.APIKeys)
	require.Equal(t, "#/", cfg.CommandPrefix)
}

func TestLoadJSONSubsetFile(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "cfg.json", `{"port": 7000, "default_backend": "gemini"}`)
	cfg, err := config.Load(p)
	require.NoError(t, err)
	require.Equal(t, 7000, cfg.Port)
	require.Equal(t, "gemini", cfg.DefaultBackend)
}

func TestLoadUnknownKeyWarnsAndContinues(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "cfg.yaml", "port: 1234\ntotally-unknown-key: true\n")
	cfg, err := config.Load(p)
	require.NoError(t, err)
	require.Equal(t, 1234, cfg.Port)
}

func TestEnvNumberedOverridesUnnumbered(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "unnumbered")
	t.Setenv("OPENROUTER_API_KEY_1", "first")
	t.Setenv("OPENROUTER_API_KEY_2", "second")

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second"}, cfg.OpenRouterAPIKeys)
}

func TestEnvUnnumberedUsedWhenNoNumbered(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "solo")

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, []string{"solo"}, cfg.GlAPIKey)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "cfg.yaml", "port: 9090\n")
	t.Setenv("PROXY_PORT", "6543")

	cfg, err := config.Load(p)
	require.NoError(t, err)
	require.Equal(t, 6543, cfg.Port)
}

func TestInvalidFailoverRouteWarnsButLoads(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "cfg.yaml", `
failover_routes:
  broken:
    policy: bogus
    elements:
      - backend: openrouter
        model: gpt-4o
`)
	cfg, err := config.Load(p)
	require.NoError(t, err)
	require.Contains(t, cfg.FailoverRoutes, "broken")
}
