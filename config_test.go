package main

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadJsonConfig(t *testing.T) {
	path := writeConfig(t, "config.json", `{
  "provider": "pixabay",
  "pexels.com": {"key": "pk"},
  "pixabay.com": {"key": "xk", "pageSize": 50},
  "trending": ["nature", "city"],
  "debug": {"prettyJson": true}
}`)

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, "pixabay", cfg.Provider)
	assert.Equal(t, "pk", cfg.Pexels.Key)
	assert.Equal(t, 80, cfg.Pexels.PageSize)
	assert.Equal(t, 50, cfg.Pixabay.PageSize)
	assert.Equal(t, []string{"nature", "city"}, cfg.Trending)
	assert.True(t, cfg.Debug.PrettyJson)
	assert.Equal(t, ":8081", cfg.Listen)
	assert.Equal(t, "@hourly", cfg.Cache.PurgeSchedule)
}

func TestLoadYamlConfig(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
provider: pexels
pexels.com:
  key: from-yaml
  pageSize: 40
sessions:
  max: 10
  ttl: 5
`)

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, "from-yaml", cfg.Pexels.Key)
	assert.Equal(t, 40, cfg.Pexels.PageSize)
	assert.Equal(t, 10, cfg.Sessions.Max)
	assert.Equal(t, "5m0s", cfg.sessionTTL().String())
}

func TestEnvOverridesConfig(t *testing.T) {
	path := writeConfig(t, "config.json", `{"pexels.com": {"key": "file"}}`)
	t.Setenv("PEXELS_API_KEY", "env")
	t.Setenv("PHOTOS_LISTEN", ":9999")
	t.Setenv("PHOTOS_AUTH_REQUIRED", "true")

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, "env", cfg.Pexels.Key)
	assert.Equal(t, ":9999", cfg.Listen)
	assert.True(t, cfg.Auth.Required)
}

func TestConfigSyntaxErrorPosition(t *testing.T) {
	path := writeConfig(t, "config.json", "{\n\"provider\": x\n}")

	_, err := LoadConfig(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Line: 2")
}

func TestUnknownProvider(t *testing.T) {
	path := writeConfig(t, "config.json", `{"provider": "flickr"}`)

	_, err := LoadConfig(path)

	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestMissingExplicitConfig(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFindPos(t *testing.T) {
	text := "first line\nsecond\nthird"
	pos := findPos(bufio.NewReader(strings.NewReader(text)), 13)
	assert.Equal(t, 2, pos.line)
	assert.Equal(t, 2, pos.pos)

	pos = findPos(bufio.NewReader(strings.NewReader(text)), 3)
	assert.Equal(t, FilePos{line: 1, pos: 3}, pos)
}
