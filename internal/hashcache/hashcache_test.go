package hashcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	digest "github.com/opencontainers/go-digest"

	"github.com/jgtierney/dl-organize-sub001/internal/types"
)

func entry(path string, role types.FolderRole, size int64, modTime time.Time, d digest.Digest) types.CachedEntry {
	return types.CachedEntry{
		Path:    path,
		Role:    role,
		Size:    size,
		ModTime: modTime,
		Fingerprint: types.Fingerprint{
			Kind:   types.KindFull,
			Digest: d,
		},
	}
}

func TestRoundTrip(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(cachePath, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	mtime := time.Unix(1700000000, 0)
	d := digest.FromString("payload")
	e := entry("/a/b.mp4", types.RoleInput, 1024, mtime, d)

	if err := c.Put(e); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, found, err := c.Get("/a/b.mp4", types.RoleInput)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if got.Fingerprint.Digest != d || got.Size != 1024 {
		t.Fatalf("Get returned wrong entry: %+v", got)
	}
}

func TestRoundTripAcrossReopen(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.db")
	mtime := time.Unix(1700000000, 0)
	d := digest.FromString("payload")

	c1, err := Open(cachePath, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c1.Put(entry("/a/b.mp4", types.RoleInput, 1024, mtime, d)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c2, err := Open(cachePath, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c2.Close()

	got, found, err := c2.Get("/a/b.mp4", types.RoleInput)
	if err != nil || !found {
		t.Fatalf("Get after reopen: found=%v err=%v", found, err)
	}
	if got.Fingerprint.Digest != d {
		t.Fatalf("digest lost across reopen: %+v", got)
	}
}

func TestGetMissOnAbsentPathIsNotError(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(cachePath, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	if _, found, err := c.Get("/never/stored", types.RoleInput); found || err != nil {
		t.Fatalf("expected clean miss, got found=%v err=%v", found, err)
	}
}

func TestGetByIdentityFindsMovedFile(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(cachePath, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	mtime := time.Unix(1700000000, 0)
	d := digest.FromString("payload")
	if err := c.Put(entry("/old/path.mp4", types.RoleInput, 1024, mtime, d)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	matches, err := c.GetByIdentity(1024, mtime, string(d))
	if err != nil {
		t.Fatalf("GetByIdentity: %v", err)
	}
	if len(matches) != 1 || matches[0].Path != "/old/path.mp4" {
		t.Fatalf("GetByIdentity returned %+v", matches)
	}
}

func TestGetByIdentityAnyIgnoresDigest(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(cachePath, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	mtime := time.Unix(1700000000, 0)
	if err := c.Put(entry("/old/path.mp4", types.RoleInput, 1024, mtime, digest.FromString("whatever"))); err != nil {
		t.Fatalf("Put: %v", err)
	}

	matches, err := c.GetByIdentityAny(1024, mtime)
	if err != nil {
		t.Fatalf("GetByIdentityAny: %v", err)
	}
	if len(matches) != 1 || matches[0].Path != "/old/path.mp4" {
		t.Fatalf("GetByIdentityAny returned %+v", matches)
	}
}

func TestGetByIdentityMissesOnDifferentDigest(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(cachePath, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	mtime := time.Unix(1700000000, 0)
	if err := c.Put(entry("/old/path.mp4", types.RoleInput, 1024, mtime, digest.FromString("a"))); err != nil {
		t.Fatalf("Put: %v", err)
	}

	matches, err := c.GetByIdentity(1024, mtime, string(digest.FromString("b")))
	if err != nil {
		t.Fatalf("GetByIdentity: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %+v", matches)
	}
}

func TestGetByPathsNeverReturnsUnrequestedPaths(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(cachePath, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	mtime := time.Unix(1700000000, 0)
	if err := c.PutBatch([]types.CachedEntry{
		entry("/a", types.RoleInput, 1, mtime, digest.FromString("a")),
		entry("/b", types.RoleInput, 1, mtime, digest.FromString("b")),
		entry("/c", types.RoleInput, 1, mtime, digest.FromString("c")),
	}); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}

	got, err := c.GetByPaths([]string{"/a", "/c", "/missing"}, types.RoleInput)
	if err != nil {
		t.Fatalf("GetByPaths: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(got), got)
	}
	if _, ok := got["/b"]; ok {
		t.Fatal("GetByPaths returned an unrequested path")
	}
}

func TestAllForRoleScopedToRole(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(cachePath, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	mtime := time.Unix(1700000000, 0)
	if err := c.PutBatch([]types.CachedEntry{
		entry("/in/1", types.RoleInput, 1, mtime, digest.FromString("a")),
		entry("/in/2", types.RoleInput, 1, mtime, digest.FromString("b")),
		entry("/out/1", types.RoleOutput, 1, mtime, digest.FromString("c")),
	}); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}

	var seen []string
	err = c.AllForRole(types.RoleInput, func(e types.CachedEntry) error {
		seen = append(seen, e.Path)
		return nil
	})
	if err != nil {
		t.Fatalf("AllForRole: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("expected 2 input-role entries, got %v", seen)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(cachePath, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	mtime := time.Unix(1700000000, 0)
	if err := c.Put(entry("/a", types.RoleInput, 1, mtime, digest.FromString("a"))); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Delete("/a", types.RoleInput); err != nil {
		t.Fatalf("first Delete: %v", err)
	}
	if err := c.Delete("/a", types.RoleInput); err != nil {
		t.Fatalf("second Delete should be a no-op, got: %v", err)
	}
	if _, found, _ := c.Get("/a", types.RoleInput); found {
		t.Fatal("entry survived delete")
	}
}

func TestOpenReinitializesCorruptStore(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.db")
	if err := os.WriteFile(cachePath, []byte("not a bolt database"), 0o600); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	c, err := Open(cachePath, nil)
	if err != nil {
		t.Fatalf("Open should reinitialize, not fail: %v", err)
	}
	defer c.Close()

	if _, found, _ := c.Get("/anything", types.RoleInput); found {
		t.Fatal("freshly reinitialized store should be empty")
	}
}

func TestOpenCreatesParentDir(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "nested", "dir", "cache.db")
	c, err := Open(cachePath, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c.Close()

	if _, err := os.Stat(cachePath); err != nil {
		t.Fatalf("cache file not created: %v", err)
	}
}
