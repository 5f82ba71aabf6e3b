package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := writeConfig(t, `
server:
  mode: test
storage:
  type: local
  local_path: `+filepath.Join(t.TempDir(), "uploads")+`
practice:
  default_count: 80
  max_count: 30
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.JWT.ExpireTime)
	assert.Equal(t, "3PL", cfg.IRT.Model)
	assert.Equal(t, 120*time.Second, cfg.IRT.Timeout())
	assert.Equal(t, 7, cfg.Practice.RecentDays)
	// 默认题量不超过上限
	assert.Equal(t, 30, cfg.Practice.DefaultCount)
	assert.DirExists(t, cfg.Storage.LocalPath)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := writeConfig(t, `
server:
  mode: debug
storage:
  type: minio
irt:
  base_url: http://irt.local
`)
	t.Setenv("IRT_BASE_URL", "http://irt:8000")
	t.Setenv("AI_API_KEY", "secret-key")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "http://irt:8000", cfg.IRT.BaseURL)
	assert.Equal(t, "secret-key", cfg.AI.APIKey)
}

func TestLoadConfigRejectsWeakSecretInRelease(t *testing.T) {
	dir := writeConfig(t, `
server:
  mode: release
jwt:
  secret: short
storage:
  type: minio
`)
	_, err := LoadConfig(dir)
	assert.ErrorContains(t, err, "JWT secret is too short")

	_, err = LoadConfig(t.TempDir())
	assert.Error(t, err)
}
