// Package config loads the Stage 3 configuration spec §6 enumerates, the
// way this module's teacher loads its own settings: viper layered over an
// optional .env file, with struct defaults set before any file or
// environment override is applied.
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	digest "github.com/opencontainers/go-digest"
	"github.com/spf13/viper"

	"github.com/jgtierney/dl-organize-sub001/internal/types"
)

// Config is the full set of spec §6 "Configuration (enumerated, with
// effects)" knobs, plus the ambient location settings a real run needs.
type Config struct {
	InputRoot  string `mapstructure:"input_root"`
	OutputRoot string `mapstructure:"output_root"`
	CacheFile  string `mapstructure:"cache_file"`

	HashAlgorithm string `mapstructure:"hash_algorithm"`

	EnableSampling     bool  `mapstructure:"enable_sampling"`
	LargeFileThreshold int64 `mapstructure:"large_file_threshold"`
	SampleHeadSize     int64 `mapstructure:"sample_head_size"`
	SampleTailSize     int64 `mapstructure:"sample_tail_size"`

	SkipImages  bool  `mapstructure:"skip_images"`
	MinFileSize int64 `mapstructure:"min_file_size"`

	UseMediaProbe  bool `mapstructure:"use_media_probe"`
	ProbeDuration  bool `mapstructure:"probe_duration"`
	ProbeCodec     bool `mapstructure:"probe_codec"`
	ProbeResolution bool `mapstructure:"probe_resolution"`

	ParallelHashing bool `mapstructure:"parallel_hashing"`
	MaxWorkers      int  `mapstructure:"max_workers"`

	RequireOutputRoot bool `mapstructure:"require_output_root"`
	DryRun            bool `mapstructure:"dry_run"`
	VerifyFiles       bool `mapstructure:"verify_files"`

	ReclaimMode string `mapstructure:"reclaim_mode"` // "delete" or "hardlink"

	ExcludeGlobs []string `mapstructure:"exclude_globs"`
	ShowProgress bool     `mapstructure:"show_progress"`
}

// DigestAlgorithm resolves HashAlgorithm to one of the digest.Algorithm
// values internal/types registers, falling back to the fast
// non-cryptographic default spec §6 names when the configured value is
// unrecognized.
func (c Config) DigestAlgorithm() digest.Algorithm {
	switch digest.Algorithm(c.HashAlgorithm) {
	case types.AlgorithmXXH64, types.AlgorithmSHA1, types.AlgorithmSHA256, types.AlgorithmMD5:
		return digest.Algorithm(c.HashAlgorithm)
	default:
		return types.AlgorithmXXH64
	}
}

// Validate checks the invariants a malformed config file or env override
// could otherwise violate silently.
func (c Config) Validate() error {
	if c.InputRoot == "" {
		return fmt.Errorf("config: input_root is required")
	}
	if c.LargeFileThreshold <= 0 {
		return fmt.Errorf("config: large_file_threshold must be positive")
	}
	if c.MinFileSize < 0 {
		return fmt.Errorf("config: min_file_size must not be negative")
	}
	if c.MaxWorkers < 0 {
		return fmt.Errorf("config: max_workers must not be negative")
	}
	switch c.ReclaimMode {
	case "delete", "hardlink":
	default:
		return fmt.Errorf("config: reclaim_mode must be %q or %q, got %q", "delete", "hardlink", c.ReclaimMode)
	}
	return nil
}

const envPrefix = "DLORGANIZE"

func setDefaults(v *viper.Viper) {
	v.SetDefault("input_root", "")
	v.SetDefault("output_root", "")
	v.SetDefault("hash_algorithm", string(types.AlgorithmXXH64))
	v.SetDefault("enable_sampling", true)
	v.SetDefault("large_file_threshold", int64(20*1024*1024))
	v.SetDefault("sample_head_size", int64(10*1024*1024))
	v.SetDefault("sample_tail_size", int64(10*1024*1024))
	v.SetDefault("skip_images", true)
	v.SetDefault("min_file_size", int64(10*1024))
	v.SetDefault("use_media_probe", true)
	v.SetDefault("probe_duration", true)
	v.SetDefault("probe_codec", false)
	v.SetDefault("probe_resolution", false)
	v.SetDefault("parallel_hashing", true)
	v.SetDefault("max_workers", runtime.NumCPU())
	v.SetDefault("require_output_root", true)
	v.SetDefault("dry_run", true)
	v.SetDefault("verify_files", false)
	v.SetDefault("reclaim_mode", "delete")
	v.SetDefault("cache_file", "hashes.db")
	v.SetDefault("show_progress", true)
}

// Load builds a Config from (in ascending precedence) struct defaults, an
// optional YAML file at configPath (skipped silently if empty or absent),
// a .env file in the working directory (loaded once, best-effort, mirroring
// the teacher's "not a fatal error" treatment of a missing .env), and
// environment variables prefixed DLORGANIZE_.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
