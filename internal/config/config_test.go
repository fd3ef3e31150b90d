package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOptional_MissingFileYieldsDefaults(t *testing.T) {
	cfg := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), nil)

	assert.Equal(t, ".fozzy", cfg.BaseDir)
	assert.Equal(t, "compact", cfg.Reporter)
	assert.Equal(t, filepath.Join(".fozzy", "runs"), cfg.RunsDir())
	assert.Equal(t, filepath.Join(".fozzy", "runs.db"), cfg.IndexPath())
}

func TestLoadOptional_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fozzy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_dir: /tmp/fz\nreporter: pretty\n"), 0o644))

	cfg := LoadOptional(path, nil)
	assert.Equal(t, "/tmp/fz", cfg.BaseDir)
	assert.Equal(t, "pretty", cfg.Reporter)
}

func TestLoadOptional_MalformedFileYieldsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fozzy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("\tnot yaml {{"), 0o644))

	cfg := LoadOptional(path, nil)
	assert.Equal(t, Default(), cfg)
}
