package types

import (
	"fmt"
	"time"
)

// CachedEntry is the authoritative per-file record persisted by the hash
// cache. It is replaced, not mutated in place, whenever (Size, ModTime)
// change on disk — a stale entry is never patched, it is superseded.
type CachedEntry struct {
	Path        string
	Role        FolderRole
	Fingerprint Fingerprint
	Size        int64
	ModTime     time.Time
	// Media is nil when the file was never probed, or probing found nothing.
	Media    *MediaFacts
	LastSeen time.Time
}

// Validate checks the invariants spec §3 states for CachedEntry: size ≥ 0,
// a finite mtime, and (implicitly, enforced by the hash cache's keying
// rather than here) a unique (Path, Role). Callers persist an entry only
// after it passes this check, so a violated invariant surfaces at the
// point of construction rather than silently corrupting the store.
func (e CachedEntry) Validate() error {
	if e.Size < 0 {
		return fmt.Errorf("cached entry %s/%s: negative size %d", e.Role, e.Path, e.Size)
	}
	if e.ModTime.IsZero() {
		return fmt.Errorf("cached entry %s/%s: zero mod time", e.Role, e.Path)
	}
	return nil
}

// MatchesObserved reports whether this entry's (size, mtime) still agrees
// with a freshly observed FileMetadata — the "cache-fresh" test of spec
// §4.4 step 3. A mismatch means the row is stale and must be rehashed, not
// treated as an error.
func (e CachedEntry) MatchesObserved(m FileMetadata) bool {
	return e.Size == m.Size && e.ModTime.Equal(m.ModTime)
}
