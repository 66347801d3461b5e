package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jgtierney/dl-organize-sub001/internal/config"
	"github.com/jgtierney/dl-organize-sub001/internal/hashcache"
	"github.com/jgtierney/dl-organize-sub001/internal/logging"
	"github.com/jgtierney/dl-organize-sub001/internal/mediaprobe"
	"github.com/jgtierney/dl-organize-sub001/internal/orchestrator"
	"github.com/jgtierney/dl-organize-sub001/internal/reclaim"
)

// dedupeOptions holds CLI flags for the dedupe command. Zero values mean
// "not set on the command line" for the bool/string flags that can
// override a config file value, so runDedupe only applies a flag when the
// user actually passed it. requireOutputRoot defaults to true, so only an
// explicit false overrides the config value.
type dedupeOptions struct {
	configFile  string
	outputRoot  string
	cacheFile   string
	minSize     int64
	excludes    []string
	workers     int
	noProgress  bool
	dryRun      bool
	execute     bool
	requireOutputRoot bool
	verifyFiles bool
	hashAlgorithm string
	reclaimMode string
}

func newDedupeCmd() *cobra.Command {
	opts := &dedupeOptions{}

	cmd := &cobra.Command{
		Use:   "dedupe <input-root>",
		Short: "Find and resolve duplicate files under an input root, optionally against an output root",
		Long: `Scans the input root for internal duplicates and resolves them (Phase A),
then, if --output-root is given, scans the output root and resolves
duplicates that span both trees (Phase B).

Resolution always picks exactly one winner per group and deletes the
losers, unless --reclaim-mode=hardlink is given, in which case losers are
replaced with hardlinks to the winner instead of being removed.

Dry-run is the default: pass --execute to actually delete or relink files.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runDedupe(args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.configFile, "config", "", "Path to a YAML config file")
	cmd.Flags().StringVar(&opts.outputRoot, "output-root", "", "Output root to cross-deduplicate against (enables phase B)")
	cmd.Flags().StringVar(&opts.cacheFile, "cache-file", "", "Path to the hash cache file")
	cmd.Flags().Int64Var(&opts.minSize, "min-size", 0, "Minimum file size in bytes")
	cmd.Flags().StringSliceVarP(&opts.excludes, "exclude", "e", nil, "Glob patterns to exclude")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", opts.workers, "Number of parallel scan workers (default: max_workers from config)")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable progress output")
	cmd.Flags().BoolVar(&opts.execute, "execute", false, "Actually perform deletions/relinks instead of a dry run")
	cmd.Flags().BoolVar(&opts.requireOutputRoot, "require-output-root", true, "Fail phase B if the output root is missing")
	cmd.Flags().BoolVar(&opts.verifyFiles, "verify-files", false, "Re-stat files at resolve time instead of trusting the cache")
	cmd.Flags().StringVar(&opts.hashAlgorithm, "hash-algorithm", "", "One of xxh64, sha1, sha256, md5")
	cmd.Flags().StringVar(&opts.reclaimMode, "reclaim-mode", "", "delete or hardlink")

	return cmd
}

func runDedupe(inputRoot string, opts *dedupeOptions) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(cfg, inputRoot, opts)

	log, err := logging.NewLogger(logging.DefaultConfig())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	log = log.WithRunID(logging.NewRunID())

	cache, err := hashcache.Open(cfg.CacheFile, log)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() { _ = cache.Close() }()

	var reclaimStrategy reclaim.Strategy = reclaim.Delete{}
	if cfg.ReclaimMode == "hardlink" {
		reclaimStrategy = reclaim.Hardlink{}
	}

	var prober mediaprobe.Prober = mediaprobe.Null{}
	if cfg.UseMediaProbe {
		prober = mediaprobe.FFProbe{
			ProbeCodec:      cfg.ProbeCodec,
			ProbeResolution: cfg.ProbeResolution,
		}
	}

	showProgress := !opts.noProgress && cfg.ShowProgress

	orch := orchestrator.New(orchestrator.Config{
		InputRoot:         cfg.InputRoot,
		OutputRoot:        cfg.OutputRoot,
		Cache:             cache,
		Log:               log,
		Prober:            prober,
		MinSize:           cfg.MinFileSize,
		ExcludeGlobs:      cfg.ExcludeGlobs,
		ScanWorkers:       cfg.MaxWorkers,
		ShowProgress:      showProgress,
		Algorithm:         cfg.DigestAlgorithm(),
		EnableSampling:    cfg.EnableSampling,
		ProbeDuration:     cfg.ProbeDuration,
		DryRun:            cfg.DryRun,
		VerifyFiles:       cfg.VerifyFiles,
		RequireOutputRoot: cfg.RequireOutputRoot,
		Reclaim:           reclaimStrategy,
		Sink:              renderPlan,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := orch.Run(ctx)
	printSummary(result)
	if err != nil {
		return err
	}
	return nil
}

// applyFlagOverrides applies only the flags the user actually set, so an
// unset flag never clobbers a value the config file or environment set.
func applyFlagOverrides(cfg *config.Config, inputRoot string, opts *dedupeOptions) {
	cfg.InputRoot = inputRoot
	if opts.outputRoot != "" {
		cfg.OutputRoot = opts.outputRoot
	}
	if opts.cacheFile != "" {
		cfg.CacheFile = opts.cacheFile
	}
	if opts.minSize > 0 {
		cfg.MinFileSize = opts.minSize
	}
	if len(opts.excludes) > 0 {
		cfg.ExcludeGlobs = opts.excludes
	}
	if opts.workers > 0 {
		cfg.MaxWorkers = opts.workers
	}
	if opts.execute {
		cfg.DryRun = false
	}
	if !opts.requireOutputRoot {
		cfg.RequireOutputRoot = false
	}
	if opts.verifyFiles {
		cfg.VerifyFiles = true
	}
	if opts.hashAlgorithm != "" {
		cfg.HashAlgorithm = opts.hashAlgorithm
	}
	if opts.reclaimMode != "" {
		cfg.ReclaimMode = opts.reclaimMode
	}
}

func renderPlan(phase string, plan []orchestrator.PlannedDeletion) error {
	if len(plan) == 0 {
		return nil
	}
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	bold.Printf("%s: %d duplicate group(s)\n", phase, len(plan))
	for _, pd := range plan {
		green.Printf("  keep   %s\n", pd.Outcome.Winner.Path)
		for _, loser := range pd.Outcome.Losers {
			red.Printf("  remove %s\n", loser.Path)
		}
	}
	return nil
}

func printSummary(result orchestrator.Result) {
	bold := color.New(color.Bold)
	bold.Printf("state: %s\n", result.State)
	fmt.Printf("phase a: %d group(s), %d deleted, %d failed\n",
		result.PhaseA.Groups, result.PhaseA.Deleted, result.PhaseA.Failed)
	if result.PhaseB.Skipped {
		fmt.Println("phase b: skipped (output root missing)")
		return
	}
	fmt.Printf("phase b: %d group(s), %d deleted, %d failed\n",
		result.PhaseB.Groups, result.PhaseB.Deleted, result.PhaseB.Failed)
}
