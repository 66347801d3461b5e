// Package detector implements the Duplicate Detector (spec §4.4): given a
// root path and a folder role, it produces the set of duplicate groups
// whose members live under that root, reusing cached fingerprints wherever
// possible and hashing only what it must.
//
// The pipeline runs in the order spec §4.4 names: walk, filter (done by
// internal/scanner), cache reconciliation, size grouping, media pre-filter,
// fingerprint, group.
package detector

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	digest "github.com/opencontainers/go-digest"

	"github.com/jgtierney/dl-organize-sub001/internal/hashcache"
	"github.com/jgtierney/dl-organize-sub001/internal/logging"
	"github.com/jgtierney/dl-organize-sub001/internal/mediaprobe"
	"github.com/jgtierney/dl-organize-sub001/internal/progress"
	"github.com/jgtierney/dl-organize-sub001/internal/sampler"
	"github.com/jgtierney/dl-organize-sub001/internal/scanner"
	"github.com/jgtierney/dl-organize-sub001/internal/types"
)

// hashProgress is the fmt.Stringer a hashing-phase progress.Bar describes
// itself with, distinct from the scanner's own walk-phase stats line.
type hashProgress struct {
	done, total int64
}

func (p hashProgress) String() string {
	return fmt.Sprintf("%d/%d fingerprinted", p.done, p.total)
}

// Config configures one Detector run over one root/role.
type Config struct {
	Root   string
	Role   types.FolderRole
	Cache  *hashcache.Cache
	Log    *logging.Logger
	Prober mediaprobe.Prober // nil is treated as mediaprobe.Null{}

	MinSize        int64
	SkipExtensions map[string]bool
	ExcludeGlobs   []string
	ScanWorkers    int
	ShowProgress   bool

	Algorithm     digest.Algorithm
	EnableSampling bool
	ProbeDuration bool
}

// Stats tracks the counters spec §4.4 names: scanned, filtered, cache-hit,
// moved, hashed, failed.
type Stats struct {
	Scanned   int64
	Filtered  int64
	CacheHit  int64
	Moved     int64
	Hashed    int64
	Failed    int64
}

// Detector runs the pipeline for one root/role pair.
type Detector struct {
	cfg Config
	log *logging.Logger
}

// New builds a Detector. A nil logger is replaced with a no-op one.
func New(cfg Config) *Detector {
	log := cfg.Log
	if log == nil {
		log = logging.Nop()
	}
	if cfg.Prober == nil {
		cfg.Prober = mediaprobe.Null{}
	}
	return &Detector{cfg: cfg, log: log}
}

// Run executes the full pipeline and returns the duplicate groups found
// under this Detector's root, scoped to this Detector's role.
func (d *Detector) Run(ctx context.Context) ([]types.DuplicateGroup, Stats, error) {
	var stats Stats

	sc := scanner.New(scanner.Config{
		Root:           d.cfg.Root,
		MinSize:        d.cfg.MinSize,
		SkipExtensions: d.cfg.SkipExtensions,
		ExcludeGlobs:   d.cfg.ExcludeGlobs,
		Workers:        d.cfg.ScanWorkers,
		ShowProgress:   d.cfg.ShowProgress,
	})
	files, scanStats := sc.Run()
	stats.Scanned = scanStats.Scanned
	stats.Filtered = scanStats.Scanned - scanStats.Matched

	fresh, toHash, err := d.reconcile(files, &stats)
	if err != nil {
		return nil, stats, err
	}

	buckets := bucketBySize(append(fresh, toHash...))
	for size, members := range buckets {
		if len(members) < 2 {
			delete(buckets, size)
		}
	}

	subBuckets := d.prefilterByDuration(ctx, buckets, &stats)

	var toPersist []types.CachedEntry
	groupIndex := make(map[string][]types.CachedEntry) // key: kind|digest|size

	var pending int64
	for _, members := range subBuckets {
		for _, m := range members {
			if m.entry.Fingerprint.Digest == "" {
				pending++
			}
		}
	}
	bar := progress.NewLabeled(d.cfg.ShowProgress, pending, "hash")
	var hashedSoFar int64

	for _, members := range subBuckets {
		for _, m := range members {
			entry := m.entry
			if entry.Fingerprint.Digest == "" {
				hashed, herr := d.fingerprint(ctx, m.meta, entry)
				if herr != nil {
					stats.Failed++
					d.log.Warn("failed to fingerprint file",
						logging.String("path", m.meta.Path), logging.Error(herr))
					continue
				}
				entry = hashed
				stats.Hashed++
				toPersist = append(toPersist, entry)
				hashedSoFar++
				bar.Set(uint64(hashedSoFar))
				bar.Describe(hashProgress{done: hashedSoFar, total: pending})
			}
			key := fmt.Sprintf("%s|%s|%d", entry.Fingerprint.Kind, entry.Fingerprint.Digest, entry.Size)
			groupIndex[key] = append(groupIndex[key], entry)
		}
	}
	bar.Finish(hashProgress{done: hashedSoFar, total: pending})

	if len(toPersist) > 0 {
		if err := d.cfg.Cache.PutBatch(toPersist); err != nil {
			return nil, stats, fmt.Errorf("detector: persist fingerprints: %w", err)
		}
	}

	var groups []types.DuplicateGroup
	for _, members := range groupIndex {
		if len(members) < 2 {
			continue
		}
		g := types.NewDuplicateGroup(members[0].Fingerprint, members[0].Size, members)
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if len(groups[i].Members) == 0 || len(groups[j].Members) == 0 {
			return false
		}
		return groups[i].Members[0].Path < groups[j].Members[0].Path
	})

	return groups, stats, nil
}

// reconcile implements spec §4.4 step 3: partition scanned files into
// cache-fresh (reuse fingerprint), and everything else needing a hash
// (cache-stale or cache-absent, after attempting moved-file recovery).
func (d *Detector) reconcile(files []types.FileMetadata, stats *Stats) (fresh []memberWithMeta, toHash []memberWithMeta, err error) {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	cached, err := d.cfg.Cache.GetByPaths(paths, d.cfg.Role)
	if err != nil {
		return nil, nil, fmt.Errorf("detector: cache reconciliation: %w", err)
	}

	for _, f := range files {
		if entry, ok := cached[f.Path]; ok && entry.MatchesObserved(f) {
			stats.CacheHit++
			fresh = append(fresh, memberWithMeta{meta: f, entry: entry})
			continue
		}

		if recovered, ok := d.recoverMoved(f); ok {
			stats.Moved++
			fresh = append(fresh, memberWithMeta{meta: f, entry: recovered})
			continue
		}

		toHash = append(toHash, memberWithMeta{meta: f, entry: types.CachedEntry{
			Path: f.Path, Role: d.cfg.Role, Size: f.Size, ModTime: f.ModTime,
		}})
	}
	return fresh, toHash, nil
}

// recoverMoved implements spec §4.1's moved-file-recovery sequence's second
// step: look up by (size, mtime, any digest); if exactly one unambiguous
// match's stored path no longer exists on disk, transplant it to the new
// path instead of rehashing.
func (d *Detector) recoverMoved(f types.FileMetadata) (types.CachedEntry, bool) {
	candidates, err := d.cfg.Cache.GetByIdentityAny(f.Size, f.ModTime)
	if err != nil {
		d.log.Warn("identity lookup failed during moved-file recovery",
			logging.String("path", f.Path), logging.Error(err))
		return types.CachedEntry{}, false
	}

	var stale []types.CachedEntry
	for _, c := range candidates {
		if c.Role != d.cfg.Role || c.Path == f.Path {
			continue
		}
		if _, err := os.Stat(c.Path); os.IsNotExist(err) {
			stale = append(stale, c)
		}
	}
	if len(stale) != 1 {
		return types.CachedEntry{}, false
	}

	old := stale[0]
	if err := d.cfg.Cache.Delete(old.Path, old.Role); err != nil {
		d.log.Warn("failed to delete stale entry during moved-file recovery",
			logging.String("path", old.Path), logging.Error(err))
		return types.CachedEntry{}, false
	}

	transplanted := old
	transplanted.Path = f.Path
	transplanted.LastSeen = time.Now()
	if err := d.cfg.Cache.Put(transplanted); err != nil {
		d.log.Warn("failed to persist transplanted entry during moved-file recovery",
			logging.String("path", f.Path), logging.Error(err))
		return types.CachedEntry{}, false
	}
	return transplanted, true
}

type memberWithMeta struct {
	meta  types.FileMetadata
	entry types.CachedEntry
}

func bucketBySize(members []memberWithMeta) map[int64][]memberWithMeta {
	buckets := make(map[int64][]memberWithMeta)
	for _, m := range members {
		buckets[m.meta.Size] = append(buckets[m.meta.Size], m)
	}
	return buckets
}

// prefilterByDuration implements spec §4.4 step 5: within a size bucket
// containing any video, sub-partition by rounded duration (±1s tolerance);
// unknown-duration members stay in a must-hash partition; singleton
// sub-partitions are discarded.
func (d *Detector) prefilterByDuration(ctx context.Context, buckets map[int64][]memberWithMeta, stats *Stats) [][]memberWithMeta {
	var result [][]memberWithMeta

	for _, members := range buckets {
		hasVideo := false
		for _, m := range members {
			if mediaprobe.IsVideo(m.meta.Ext) {
				hasVideo = true
				break
			}
		}
		if !hasVideo || !d.cfg.ProbeDuration {
			result = append(result, members)
			continue
		}

		var unknown []memberWithMeta
		var known []memberWithMeta
		for i := range members {
			m := members[i]
			if m.entry.Media != nil {
				known = append(known, m)
				continue
			}
			if !mediaprobe.IsVideo(m.meta.Ext) {
				unknown = append(unknown, m) // non-video members ride along undivided
				continue
			}
			facts, err := d.cfg.Prober.Probe(ctx, m.meta.Path)
			if err != nil || facts == nil {
				unknown = append(unknown, m)
				continue
			}
			m.entry.Media = facts
			known = append(known, m)
		}

		sub := groupByDuration(known)
		for _, g := range sub {
			if len(g) >= 2 {
				result = append(result, g)
			}
		}
		if len(unknown) >= 2 {
			result = append(result, unknown)
		}
	}
	return result
}

func groupByDuration(members []memberWithMeta) [][]memberWithMeta {
	var groups [][]memberWithMeta
	used := make([]bool, len(members))
	for i := range members {
		if used[i] {
			continue
		}
		group := []memberWithMeta{members[i]}
		used[i] = true
		for j := i + 1; j < len(members); j++ {
			if used[j] {
				continue
			}
			if members[i].entry.Media != nil && members[j].entry.Media != nil &&
				types.DurationEqual(members[i].entry.Media.DurationSeconds, members[j].entry.Media.DurationSeconds) {
				group = append(group, members[j])
				used[j] = true
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// fingerprint computes a Fingerprint for one file via the File Sampler's
// decision, producing an updated CachedEntry ready to persist.
func (d *Detector) fingerprint(ctx context.Context, meta types.FileMetadata, base types.CachedEntry) (types.CachedEntry, error) {
	plan := sampler.Decide(meta.Size, d.cfg.EnableSampling)
	dig, err := hashPlan(ctx, meta.Path, plan, d.cfg.Algorithm)
	if err != nil {
		return types.CachedEntry{}, err
	}
	var sampleBytes int64
	if plan.Kind == types.KindSampled {
		sampleBytes = plan.TotalBytes()
	}
	base.Fingerprint = types.Fingerprint{Kind: plan.Kind, Digest: dig, SampleBytes: sampleBytes}
	base.LastSeen = time.Now()
	return base, nil
}
