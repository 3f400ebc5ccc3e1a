package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Version.MaxRetries)
	assert.Equal(t, ConflictVersion, cfg.Version.ConflictDetection)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
http_port: 9090
sqlite_path: /tmp/pc.db
log:
  level: debug
versioning:
  max_retries: 5
  conflict_detection: timestamp
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	t.Setenv("EVM_HTTP_PORT", "9191")
	t.Setenv("EVM_CONFLICT_DETECTION", "none")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.HTTPPort)
	assert.Equal(t, 50051, cfg.GRPCPort)
	assert.Equal(t, "/tmp/pc.db", cfg.SQLitePath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Version.MaxRetries)
	assert.Equal(t, ConflictNone, cfg.Version.ConflictDetection)
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	cfg := Default()
	lookup := func(k string) (string, bool) {
		if k == "EVM_MAX_RETRIES" {
			return "many", true
		}
		return "", false
	}
	assert.Error(t, applyEnv(&cfg, lookup))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Version.ConflictDetection = "vibes"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Version.MaxRetries = -1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.SQLitePath = ""
	assert.Error(t, cfg.Validate())
}
