package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jgtierney/dl-organize-sub001/internal/types"
)

func TestLoadAppliesSpecDefaults(t *testing.T) {
	t.Setenv("DLORGANIZE_INPUT_ROOT", "/data/input")
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "/data/input", cfg.InputRoot)
	require.Equal(t, string(types.AlgorithmXXH64), cfg.HashAlgorithm)
	require.True(t, cfg.EnableSampling)
	require.Equal(t, int64(20*1024*1024), cfg.LargeFileThreshold)
	require.True(t, cfg.SkipImages)
	require.Equal(t, int64(10*1024), cfg.MinFileSize)
	require.True(t, cfg.UseMediaProbe)
	require.True(t, cfg.ProbeDuration)
	require.False(t, cfg.ProbeCodec)
	require.False(t, cfg.ProbeResolution)
	require.True(t, cfg.RequireOutputRoot)
	require.True(t, cfg.DryRun)
	require.False(t, cfg.VerifyFiles)
	require.Equal(t, "delete", cfg.ReclaimMode)
}

func TestLoadYAMLFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
input_root: /mnt/input
output_root: /mnt/output
hash_algorithm: sha256
dry_run: false
reclaim_mode: hardlink
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/mnt/input", cfg.InputRoot)
	require.Equal(t, "/mnt/output", cfg.OutputRoot)
	require.Equal(t, "sha256", cfg.HashAlgorithm)
	require.False(t, cfg.DryRun)
	require.Equal(t, "hardlink", cfg.ReclaimMode)
}

func TestEnvVarOverridesYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("input_root: /from/yaml\n"), 0o644))

	t.Setenv("DLORGANIZE_INPUT_ROOT", "/from/env")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/from/env", cfg.InputRoot)
}

func TestValidateRejectsMissingInputRoot(t *testing.T) {
	cfg := &Config{LargeFileThreshold: 1, ReclaimMode: "delete"}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownReclaimMode(t *testing.T) {
	cfg := &Config{InputRoot: "/x", LargeFileThreshold: 1, ReclaimMode: "shred"}
	require.Error(t, cfg.Validate())
}

func TestDigestAlgorithmFallsBackToDefaultOnUnrecognizedValue(t *testing.T) {
	cfg := &Config{HashAlgorithm: "not-a-real-algorithm"}
	require.Equal(t, types.AlgorithmXXH64, cfg.DigestAlgorithm())
}

func TestDigestAlgorithmResolvesKnownValues(t *testing.T) {
	cfg := &Config{HashAlgorithm: "sha256"}
	require.Equal(t, types.AlgorithmSHA256, cfg.DigestAlgorithm())
}
