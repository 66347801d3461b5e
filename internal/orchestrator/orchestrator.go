// Package orchestrator drives the two-phase pipeline of spec §4.6 end to
// end: Phase A dedups the input root against itself, Phase B dedups the
// output root against the input root's already-computed fingerprints. It
// owns the explicit state machine and all deletion decisions; the Detector
// and Resolver it calls are pure with respect to that decision.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	digest "github.com/opencontainers/go-digest"

	"github.com/jgtierney/dl-organize-sub001/internal/detector"
	"github.com/jgtierney/dl-organize-sub001/internal/hashcache"
	"github.com/jgtierney/dl-organize-sub001/internal/logging"
	"github.com/jgtierney/dl-organize-sub001/internal/mediaprobe"
	"github.com/jgtierney/dl-organize-sub001/internal/reclaim"
	"github.com/jgtierney/dl-organize-sub001/internal/resolver"
	"github.com/jgtierney/dl-organize-sub001/internal/types"
)

// State is one node of the explicit state machine spec §4.6 names. Run only
// enters Init, Scanning, and then Done or Aborted; Hashing, Grouping,
// Resolving and Executing are defined but never entered.
type State int

const (
	Init State = iota
	Scanning
	Hashing
	Grouping
	Resolving
	Executing
	Aborted
	Done
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case Scanning:
		return "scanning"
	case Hashing:
		return "hashing"
	case Grouping:
		return "grouping"
	case Resolving:
		return "resolving"
	case Executing:
		return "executing"
	case Aborted:
		return "aborted"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// PlannedDeletion is one resolved group awaiting (or, in dry-run, only
// described as) deletion of its losers.
type PlannedDeletion struct {
	Group   types.DuplicateGroup
	Outcome types.ResolutionOutcome
}

// PlanSink receives the plan for a phase. In dry-run it is the only effect
// that phase has; in execute mode it is called too, as a record of what is
// about to happen, before deletions start.
type PlanSink func(phase string, plan []PlannedDeletion) error

// NopSink discards the plan; useful when a caller only cares about Result.
func NopSink(string, []PlannedDeletion) error { return nil }

// Config configures one end-to-end orchestrator run.
type Config struct {
	InputRoot  string
	OutputRoot string
	Cache      *hashcache.Cache
	Log        *logging.Logger
	Prober     mediaprobe.Prober

	MinSize        int64
	SkipExtensions map[string]bool
	ExcludeGlobs   []string
	ScanWorkers    int
	ShowProgress   bool

	Algorithm      digest.Algorithm
	EnableSampling bool
	ProbeDuration  bool

	DryRun            bool
	VerifyFiles       bool
	RequireOutputRoot bool
	Reclaim           reclaim.Strategy // nil defaults to reclaim.Delete{}

	Sink PlanSink // nil defaults to NopSink
}

// PhaseResult summarizes what one phase found and did.
type PhaseResult struct {
	Groups   int
	Deleted  int
	Failed   int
	Skipped  bool // Phase B only: true when RequireOutputRoot is off and the root was absent
}

// Result is the outcome of a full orchestrator run.
type Result struct {
	State  State
	PhaseA PhaseResult
	PhaseB PhaseResult
}

// Orchestrator runs Phase A then Phase B over one configured pair of roots.
type Orchestrator struct {
	cfg     Config
	log     *logging.Logger
	reclaim reclaim.Strategy
	sink    PlanSink
}

func New(cfg Config) *Orchestrator {
	log := cfg.Log
	if log == nil {
		log = logging.Nop()
	}
	rc := cfg.Reclaim
	if rc == nil {
		rc = reclaim.Delete{}
	}
	sink := cfg.Sink
	if sink == nil {
		sink = NopSink
	}
	return &Orchestrator{cfg: cfg, log: log, reclaim: rc, sink: sink}
}

// Run executes Phase A, then Phase B, returning whatever was accomplished
// even if Phase B fails — spec §4.6's "fail Phase B only, not a fatal abort
// of earlier work".
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	result := Result{State: Init}

	result.State = Scanning
	phaseA, err := o.runPhaseA(ctx)
	if err != nil {
		result.State = Aborted
		return result, fmt.Errorf("orchestrator: phase a: %w", err)
	}
	result.PhaseA = phaseA

	phaseB, err := o.runPhaseB(ctx)
	if err != nil {
		result.State = Aborted
		result.PhaseB = phaseB
		return result, fmt.Errorf("orchestrator: phase b: %w", err)
	}
	result.PhaseB = phaseB
	result.State = Done
	return result, nil
}

func (o *Orchestrator) detectorConfig(root string, role types.FolderRole) detector.Config {
	return detector.Config{
		Root:           root,
		Role:           role,
		Cache:          o.cfg.Cache,
		Log:            o.log,
		Prober:         o.cfg.Prober,
		MinSize:        o.cfg.MinSize,
		SkipExtensions: o.cfg.SkipExtensions,
		ExcludeGlobs:   o.cfg.ExcludeGlobs,
		ScanWorkers:    o.cfg.ScanWorkers,
		ShowProgress:   o.cfg.ShowProgress,
		Algorithm:      o.cfg.Algorithm,
		EnableSampling: o.cfg.EnableSampling,
		ProbeDuration:  o.cfg.ProbeDuration,
	}
}

// runPhaseA implements spec §4.6 Phase A: detect within the input root,
// resolve each group, then either render (dry-run) or execute deletions.
func (o *Orchestrator) runPhaseA(ctx context.Context) (PhaseResult, error) {
	det := detector.New(o.detectorConfig(o.cfg.InputRoot, types.RoleInput))
	groups, _, err := det.Run(ctx)
	if err != nil {
		return PhaseResult{}, fmt.Errorf("scan input root: %w", err)
	}

	plan := o.resolveGroups(groups)
	if err := o.sink("phase-a", plan); err != nil {
		return PhaseResult{}, fmt.Errorf("render phase a plan: %w", err)
	}

	result := PhaseResult{Groups: len(plan)}
	if o.cfg.DryRun {
		return result, nil
	}

	for _, pd := range plan {
		deleted, failed := o.execute(pd)
		result.Deleted += deleted
		result.Failed += failed
	}
	return result, nil
}

// runPhaseB implements spec §4.6 Phase B: precondition-check the output
// root, reuse Phase A's fingerprints for the input side without re-walking
// it, scan the output root fresh, and resolve only cross-tree groups.
func (o *Orchestrator) runPhaseB(ctx context.Context) (PhaseResult, error) {
	if _, err := os.Stat(o.cfg.OutputRoot); err != nil {
		if o.cfg.RequireOutputRoot {
			return PhaseResult{}, fmt.Errorf("output root %s: %w", o.cfg.OutputRoot, err)
		}
		o.log.Warn("output root missing, skipping phase b",
			logging.String("output_root", o.cfg.OutputRoot))
		return PhaseResult{Skipped: true}, nil
	}

	var inputEntries []types.CachedEntry
	if err := o.cfg.Cache.AllForRole(types.RoleInput, func(e types.CachedEntry) error {
		inputEntries = append(inputEntries, e)
		return nil
	}); err != nil {
		return PhaseResult{}, fmt.Errorf("load input-side cache snapshot: %w", err)
	}

	det := detector.New(o.detectorConfig(o.cfg.OutputRoot, types.RoleOutput))
	_, _, err := det.Run(ctx)
	if err != nil {
		return PhaseResult{}, fmt.Errorf("scan output root: %w", err)
	}

	var outputEntries []types.CachedEntry
	if err := o.cfg.Cache.AllForRole(types.RoleOutput, func(e types.CachedEntry) error {
		outputEntries = append(outputEntries, e)
		return nil
	}); err != nil {
		return PhaseResult{}, fmt.Errorf("load output-side cache snapshot: %w", err)
	}

	groups := crossTreeGroups(inputEntries, outputEntries)
	plan := o.resolveGroups(groups)
	if err := o.sink("phase-b", plan); err != nil {
		return PhaseResult{}, fmt.Errorf("render phase b plan: %w", err)
	}

	result := PhaseResult{Groups: len(plan)}
	if o.cfg.DryRun {
		return result, nil
	}

	for _, pd := range plan {
		deleted, failed := o.execute(pd)
		result.Deleted += deleted
		result.Failed += failed
	}
	return result, nil
}

// crossTreeGroups implements spec §4.6 Phase B step 3-4: build a hash index
// over the union of both sides keyed on (fingerprint-kind, digest), and keep
// only the keys whose members span both roles.
func crossTreeGroups(input, output []types.CachedEntry) []types.DuplicateGroup {
	index := make(map[string][]types.CachedEntry)
	for _, e := range append(append([]types.CachedEntry{}, input...), output...) {
		key := fmt.Sprintf("%s|%s", e.Fingerprint.Kind, e.Fingerprint.Digest)
		index[key] = append(index[key], e)
	}

	var groups []types.DuplicateGroup
	for _, members := range index {
		if len(members) < 2 {
			continue
		}
		g := types.NewDuplicateGroup(members[0].Fingerprint, members[0].Size, members)
		if g.CrossTree() {
			groups = append(groups, g)
		}
	}
	return groups
}

// resolveGroups runs the Resolver over every group, using the stat form
// when VerifyFiles is on and the cache form (the default, filesystem-free)
// otherwise.
func (o *Orchestrator) resolveGroups(groups []types.DuplicateGroup) []PlannedDeletion {
	var source resolver.SizeModTimeSource
	if o.cfg.VerifyFiles {
		source = resolver.StatSource(statSizeModTime)
	}

	plan := make([]PlannedDeletion, 0, len(groups))
	for _, g := range groups {
		if !g.Actionable() {
			continue
		}
		src := source
		if src == nil {
			src = cacheSourceFor(g)
		}
		outcome := resolver.Resolve(g, src)
		plan = append(plan, PlannedDeletion{Group: g, Outcome: outcome})
	}
	return plan
}

func cacheSourceFor(g types.DuplicateGroup) resolver.CacheSource {
	src := make(resolver.CacheSource, len(g.Members))
	for _, m := range g.Members {
		src[m.Path] = m
	}
	return src
}

func statSizeModTime(path string) (int64, time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, time.Time{}, false
	}
	return info.Size(), info.ModTime(), true
}

// execute deletes every loser in pd, reclaiming each via the configured
// Strategy, and removes its cache row on success — spec §4.6's "on delete
// error, log and continue; update the cache by removing deleted paths."
// Partial failure never rolls back prior successful deletions.
func (o *Orchestrator) execute(pd PlannedDeletion) (deleted, failed int) {
	_, usingHardlink := o.reclaim.(reclaim.Hardlink)

	for _, loser := range pd.Outcome.Losers {
		if usingHardlink {
			dir := filepath.Dir(loser.Path)
			if err := reclaim.CleanupOrphanedTmp(dir); err != nil {
				o.log.Warn("failed to clean orphaned temp files", logging.String("dir", dir), logging.Error(err))
			}
		}
		if err := o.reclaim.Reclaim(loser.Path, pd.Outcome.Winner.Path); err != nil {
			failed++
			o.log.Warn("failed to reclaim loser", logging.String("path", loser.Path), logging.Error(err))
			continue
		}
		if err := o.cfg.Cache.Delete(loser.Path, loser.Role); err != nil {
			o.log.Warn("deleted file but failed to update cache",
				logging.String("path", loser.Path), logging.Error(err))
		}
		deleted++
	}
	return deleted, failed
}
