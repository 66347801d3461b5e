// Package resolver implements the three-tier winner-selection policy of
// spec §4.5. It is deliberately decoupled from the filesystem: Resolve
// takes a SizeModTimeSource so it can run against the Hash Cache's
// in-memory snapshot (the default, O(1) per member) or, when a caller
// explicitly asks for filesystem verification, against live stat calls —
// the resolver must work correctly even when group members no longer exist
// on disk, provided cache data is available.
package resolver

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jgtierney/dl-organize-sub001/internal/types"
)

// SizeModTimeSource supplies the (size, mtime) pair Tier 3 needs for one
// member path. The cache-backed implementation never touches the
// filesystem; a stat-backed implementation re-reads it defensively.
type SizeModTimeSource interface {
	SizeModTime(path string) (size int64, modTime time.Time, ok bool)
}

// CacheSource reads (size, mtime) from a snapshot of CachedEntries already
// loaded into memory — the orchestrator's default source.
type CacheSource map[string]types.CachedEntry

func (c CacheSource) SizeModTime(path string) (int64, time.Time, bool) {
	e, ok := c[path]
	if !ok {
		return 0, time.Time{}, false
	}
	return e.Size, e.ModTime, true
}

// StatSource re-reads size/mtime from the filesystem via a caller-supplied
// stat function, so tests can substitute a fake without touching disk.
type StatSource func(path string) (size int64, modTime time.Time, ok bool)

func (f StatSource) SizeModTime(path string) (int64, time.Time, bool) {
	return f(path)
}

// Resolve deterministically picks exactly one winner from group, per the
// three-tier policy: (1) "keep" keyword ancestor-priority, (2) path depth,
// (3) newest mtime then lexicographically smallest path.
func Resolve(group types.DuplicateGroup, source SizeModTimeSource) types.ResolutionOutcome {
	members := make([]types.CachedEntry, len(group.Members))
	copy(members, group.Members)

	sort.SliceStable(members, func(i, j int) bool {
		return less(members[i], members[j], source)
	})

	winner := members[0]
	losers := make([]types.CachedEntry, 0, len(members)-1)
	for _, m := range members[1:] {
		losers = append(losers, m)
	}
	return types.ResolutionOutcome{Winner: winner, Losers: losers}
}

// less reports whether a should be preferred (sorts before) b under the
// three-tier policy. Sorting by this relation and taking the first element
// is equivalent to evaluating the tiers in order for a head-to-head
// comparison, since each tier is a total preorder refined by the next.
func less(a, b types.CachedEntry, source SizeModTimeSource) bool {
	aDepth, aHasKeep := keepAncestorDepth(a.Path)
	bDepth, bHasKeep := keepAncestorDepth(b.Path)

	if aHasKeep != bHasKeep {
		return aHasKeep // files with a "keep" ancestor outrank files without
	}
	if aHasKeep && bHasKeep && aDepth != bDepth {
		return aDepth < bDepth // shallower "keep" ancestor wins
	}
	if aHasKeep && bHasKeep {
		aDir, bDir := keepInDirComponent(a.Path), keepInDirComponent(b.Path)
		if aDir != bDir {
			return aDir // directory-component "keep" outranks filename-only "keep"
		}
	}

	aComponents := pathDepth(a.Path)
	bComponents := pathDepth(b.Path)
	if aComponents != bComponents {
		return aComponents > bComponents // deepest path wins
	}

	_, aMTime, aOK := source.SizeModTime(a.Path)
	_, bMTime, bOK := source.SizeModTime(b.Path)
	if aOK && bOK && !aMTime.Equal(bMTime) {
		return aMTime.After(bMTime) // newest mtime wins
	}

	return a.Path < b.Path // final deterministic tiebreak
}

// keepAncestorDepth locates the shallowest path component (directory or
// filename, nearest the filesystem root) whose lowercased name contains
// "keep", returning its index and whether one was found at all.
func keepAncestorDepth(path string) (depth int, found bool) {
	components := strings.Split(filepath.ToSlash(path), "/")
	for i, c := range components {
		if c == "" {
			continue
		}
		if strings.Contains(strings.ToLower(c), "keep") {
			return i, true
		}
	}
	return 0, false
}

// keepInDirComponent reports whether the "keep" match for path falls in a
// directory component rather than only in the filename — the tier 1
// tiebreak spec §4.5 names for equal-depth "keep" ancestors.
func keepInDirComponent(path string) bool {
	components := strings.Split(filepath.ToSlash(path), "/")
	if len(components) == 0 {
		return false
	}
	last := len(components) - 1
	for i, c := range components {
		if i == last {
			continue // filename component, not a directory
		}
		if strings.Contains(strings.ToLower(c), "keep") {
			return true
		}
	}
	return false
}

func pathDepth(path string) int {
	components := strings.Split(filepath.ToSlash(path), "/")
	n := 0
	for _, c := range components {
		if c != "" {
			n++
		}
	}
	return n
}
