package configutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Bucket   string   `json:"bucket" env:"GKTEST_BUCKET"`
	Prefix   string   `json:"prefix"`
	Interval int      `json:"interval" env:"GKTEST_INTERVAL"`
	Force    bool     `json:"force" env:"GKTEST_FORCE"`
	Seasons  []string `json:"seasons"`
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json5"), []byte(`{
		// comments are allowed
		bucket: "base",
		prefix: "latest",
	}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{bucket: "override"}`), 0644))

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "override", cfg.Bucket)
	require.Equal(t, "latest", cfg.Prefix)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.True(t, os.IsNotExist(err))
}

func TestReadConfigMalformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json5"), []byte(`{bucket: `), 0644))

	_, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestLoadDefaultsAndEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json5"), []byte(`{prefix: "custom"}`), 0644))

	t.Setenv("GKTEST_BUCKET", "from-env")
	t.Setenv("GKTEST_FORCE", "1")

	cfg, err := Load(filepath.Join(dir, "config.json5"), testConfig{
		Bucket:   "default-bucket",
		Prefix:   "latest",
		Interval: 300,
	})
	require.NoError(t, err)
	require.Equal(t, testConfig{
		Bucket:   "from-env",
		Prefix:   "custom",
		Interval: 300,
		Force:    true,
	}, cfg)
}

func TestLoadKeepsExplicitZeros(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json5"), []byte(`{
		prefix: "",
		interval: 0,
		seasons: ["2023-2024"],
	}`), 0644))

	defaults := testConfig{
		Bucket:   "default-bucket",
		Prefix:   "latest",
		Interval: 300,
		Seasons:  []string{"2024-2025"},
	}
	cfg, err := Load(filepath.Join(dir, "config.json5"), defaults)
	require.NoError(t, err)
	require.Equal(t, testConfig{
		Bucket:  "default-bucket",
		Prefix:  "",
		Seasons: []string{"2023-2024"},
	}, cfg)

	// decoding must not write through to the caller's defaults
	require.Equal(t, []string{"2024-2025"}, defaults.Seasons)
}

func TestLoadLocalOverrideZero(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json5"), []byte(`{interval: 60}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{interval: 0, force: true}`), 0644))

	cfg, err := Load(filepath.Join(dir, "config.json5"), testConfig{Prefix: "latest", Interval: 300})
	require.NoError(t, err)
	require.Equal(t, testConfig{Prefix: "latest", Interval: 0, Force: true}, cfg)
}

func TestLoadMalformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json5"), []byte(`{prefix: `), 0644))

	_, err := Load(filepath.Join(dir, "config.json5"), testConfig{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json5"), testConfig{Interval: 300})
	require.NoError(t, err)
	require.Equal(t, 300, cfg.Interval)
}

func TestApplyEnvInvalid(t *testing.T) {
	t.Setenv("GKTEST_INTERVAL", "not-a-number")
	cfg := testConfig{}
	err := ApplyEnv(&cfg)
	require.True(t, errors.Is(err, ErrInvalidConfig))
}
