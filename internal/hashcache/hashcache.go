// Package hashcache provides durable, crash-reasonable storage of
// CachedEntries, backed by bbolt.
//
// # Storage Layout
//
// Two buckets back every operation:
//
//	┌────────────┬──────────────────────────────────┬───────────────────┐
//	│ Bucket     │ Key                               │ Value             │
//	├────────────┼──────────────────────────────────┼───────────────────┤
//	│ entries    │ role(1) | path                    │ JSON-encoded entry│
//	│ identity   │ size(8) | mtimeNanos(8) | digest  │ primary key       │
//	│            │ | 0x00 | primary key              │                   │
//	└────────────┴──────────────────────────────────┴───────────────────┘
//
// role is the key's leading byte in the entries bucket, so a cursor seeked
// to that single byte already enumerates all_for_role in prefix-seek time —
// no third bucket is needed to satisfy the "sub-linear by role" indexing
// requirement. The identity bucket key embeds the primary key as a suffix
// so that get_by_identity can return every entry sharing a (size, mtime,
// digest) triple, not just the first.
//
// # Open/Close
//
// Open acquires a single read-write bbolt handle directly on path (probing
// it first for structural corruption and discarding it if unreadable — see
// probeCorrupt). Unlike the teacher's internal/cache, which kept the store
// open for writes at a side path and only swapped it over the original on a
// clean Close (a read-old/write-new/rename-on-close scheme), this cache
// writes straight through to path inside ordinary bbolt transactions:
// moved-file recovery (spec §4.1's "(2) otherwise, look up by (S, T, any
// digest)" step) needs to read back rows the same run already wrote, which
// a side file never read from until rename cannot do. Crash-safety here
// rests entirely on bbolt's own guarantee that a committed Update
// transaction is durable and an uncommitted one never touches the file —
// there is no separate rename step, so Close is just a handle release, not
// a publish point.
package hashcache

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	digest "github.com/opencontainers/go-digest"
	bolt "go.etcd.io/bbolt"

	"github.com/jgtierney/dl-organize-sub001/internal/logging"
	"github.com/jgtierney/dl-organize-sub001/internal/types"
)

const (
	bucketEntries  = "entries"
	bucketIdentity = "identity"

	writeTimeout = 30 * time.Second
)

// Cache is a single open Hash Cache, scoped to one program run (spec §3's
// "single open Hash Cache per run").
type Cache struct {
	db     *bolt.DB
	path   string
	log    *logging.Logger
	closed bool
}

// Open acquires a single read-write handle on the store at path, discarding
// and reinitializing it empty if the underlying file is unreadable or
// structurally broken (spec §4.1's data-integrity policy: this is a
// warning, not a fatal error).
func Open(path string, log *logging.Logger) (*Cache, error) {
	if log == nil {
		log = logging.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("hashcache: create dir: %w", err)
	}

	if probeErr := probeCorrupt(path); probeErr != nil {
		log.Warn("hash cache store unreadable, reinitializing empty",
			logging.String("path", path), logging.Error(probeErr))
		_ = os.Remove(path)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: writeTimeout})
	if err != nil {
		return nil, fmt.Errorf("hashcache: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketEntries)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(bucketIdentity))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("hashcache: create buckets: %w", err)
	}

	return &Cache{db: db, path: path, log: log}, nil
}

// probeCorrupt opens path read-only just to validate its structure, guarding
// against bbolt panicking on a malformed page header — spec §4.1 requires
// that a broken store is discarded, never a fatal error.
func probeCorrupt(path string) (err error) {
	if _, statErr := os.Stat(path); statErr != nil {
		return nil // absent is not corrupt, it's a fresh cache
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic opening store: %v", r)
		}
	}()
	db, openErr := bolt.Open(path, 0o600, &bolt.Options{ReadOnly: true, Timeout: 1 * time.Second})
	if openErr != nil {
		return openErr
	}
	defer db.Close()
	return db.View(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(bucketEntries)) == nil {
			return fmt.Errorf("missing entries bucket")
		}
		return nil
	})
}

// Close releases the underlying bbolt handle. It performs no swap or
// rename: every write already landed in path via a committed transaction
// by the time the call that made it returned. Safe to call on all exit
// paths including panics by callers who defer it immediately after Open
// succeeds.
func (c *Cache) Close() error {
	if c == nil || c.closed {
		return nil
	}
	c.closed = true
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func primaryKey(role types.FolderRole, path string) []byte {
	buf := make([]byte, 0, 1+len(path))
	buf = append(buf, byte(role))
	buf = append(buf, []byte(path)...)
	return buf
}

type storedEntry struct {
	Path            string  `json:"path"`
	Role            string  `json:"role"`
	FingerprintKind string  `json:"fingerprint_kind"`
	Algorithm       string  `json:"algorithm"`
	Digest          string  `json:"digest"`
	SampleBytes     int64   `json:"sample_bytes"`
	Size            int64   `json:"size"`
	ModTimeUnixNano int64   `json:"mtime_unix_nano"`
	LastSeenUnix    int64   `json:"last_seen_unix"`
	HasMedia        bool    `json:"has_media,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Codec           string  `json:"codec,omitempty"`
	Resolution      string  `json:"resolution,omitempty"`
}

func encodeEntry(e types.CachedEntry) ([]byte, error) {
	se := storedEntry{
		Path:            e.Path,
		Role:            e.Role.String(),
		FingerprintKind: e.Fingerprint.Kind.String(),
		SampleBytes:     e.Fingerprint.SampleBytes,
		Size:            e.Size,
		ModTimeUnixNano: e.ModTime.UnixNano(),
		LastSeenUnix:    e.LastSeen.Unix(),
	}
	if d := e.Fingerprint.Digest; d != "" {
		se.Algorithm = string(d.Algorithm())
		se.Digest = d.Encoded()
	}
	if e.Media != nil {
		se.HasMedia = true
		se.DurationSeconds = e.Media.DurationSeconds
		se.Codec = e.Media.Codec
		se.Resolution = e.Media.Resolution
	}
	return json.Marshal(se)
}

func decodeEntry(data []byte) (types.CachedEntry, error) {
	var se storedEntry
	if err := json.Unmarshal(data, &se); err != nil {
		return types.CachedEntry{}, fmt.Errorf("decode cached entry: %w", err)
	}
	role, ok := types.ParseFolderRole(se.Role)
	if !ok {
		return types.CachedEntry{}, fmt.Errorf("decode cached entry %s: invalid role %q", se.Path, se.Role)
	}
	kind, ok := types.ParseFingerprintKind(se.FingerprintKind)
	if !ok {
		return types.CachedEntry{}, fmt.Errorf("decode cached entry %s: invalid fingerprint kind %q", se.Path, se.FingerprintKind)
	}
	entry := types.CachedEntry{
		Path:    se.Path,
		Role:    role,
		Size:    se.Size,
		ModTime: time.Unix(0, se.ModTimeUnixNano),
		Fingerprint: types.Fingerprint{
			Kind:        kind,
			SampleBytes: se.SampleBytes,
		},
		LastSeen: time.Unix(se.LastSeenUnix, 0),
	}
	if se.Digest != "" {
		entry.Fingerprint.Digest = digestFrom(se.Algorithm, se.Digest)
	}
	if se.HasMedia {
		entry.Media = &types.MediaFacts{
			DurationSeconds: se.DurationSeconds,
			Codec:           se.Codec,
			Resolution:      se.Resolution,
		}
	}
	return entry, nil
}

func identityKey(size int64, modTime time.Time, digestStr string, primary []byte) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, size)
	_ = binary.Write(buf, binary.BigEndian, modTime.UnixNano())
	buf.WriteString(digestStr)
	buf.WriteByte(0)
	buf.Write(primary)
	return buf.Bytes()
}

func identityPrefix(size int64, modTime time.Time, digestStr string) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, size)
	_ = binary.Write(buf, binary.BigEndian, modTime.UnixNano())
	buf.WriteString(digestStr)
	buf.WriteByte(0)
	return buf.Bytes()
}

// Get is a pure read of the entry keyed by (path, role); no side effects.
func (c *Cache) Get(path string, role types.FolderRole) (types.CachedEntry, bool, error) {
	var entry types.CachedEntry
	var found bool
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketEntries)).Get(primaryKey(role, path))
		if data == nil {
			return nil
		}
		decoded, err := decodeEntry(data)
		if err != nil {
			return err
		}
		entry, found = decoded, true
		return nil
	})
	if err != nil {
		return types.CachedEntry{}, false, fmt.Errorf("hashcache: get %s: %w", path, err)
	}
	return entry, found, nil
}

// Put upserts by (path, role), atomic with respect to concurrent readers,
// and updates LastSeen to now.
func (c *Cache) Put(entry types.CachedEntry) error {
	return c.PutBatch([]types.CachedEntry{entry})
}

// PutBatch is semantically equivalent to a sequence of Put calls, but
// committed as one durable transaction to amortize sync cost.
func (c *Cache) PutBatch(entries []types.CachedEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		eb := tx.Bucket([]byte(bucketEntries))
		ib := tx.Bucket([]byte(bucketIdentity))
		for i := range entries {
			e := entries[i]
			e.LastSeen = time.Now()
			if err := e.Validate(); err != nil {
				return fmt.Errorf("hashcache: put %s: %w", e.Path, err)
			}
			data, err := encodeEntry(e)
			if err != nil {
				return err
			}
			pk := primaryKey(e.Role, e.Path)
			if prev := eb.Get(pk); prev != nil {
				if old, err := decodeEntry(prev); err == nil && old.Fingerprint.Digest != "" {
					if err := ib.Delete(identityKey(old.Size, old.ModTime, string(old.Fingerprint.Digest), pk)); err != nil {
						return err
					}
				}
			}
			if err := eb.Put(pk, data); err != nil {
				return err
			}
			if e.Fingerprint.Digest != "" {
				ikey := identityKey(e.Size, e.ModTime, string(e.Fingerprint.Digest), pk)
				if err := ib.Put(ikey, pk); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// GetByIdentity returns every entry matching (size, mtime, digest) —
// moved-file recovery's substrate.
func (c *Cache) GetByIdentity(size int64, modTime time.Time, d string) ([]types.CachedEntry, error) {
	var results []types.CachedEntry
	prefix := identityPrefix(size, modTime, d)
	err := c.db.View(func(tx *bolt.Tx) error {
		ib := tx.Bucket([]byte(bucketIdentity))
		eb := tx.Bucket([]byte(bucketEntries))
		cur := ib.Cursor()
		for k, pk := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, pk = cur.Next() {
			data := eb.Get(pk)
			if data == nil {
				continue // stale identity row outlived its primary row
			}
			entry, err := decodeEntry(data)
			if err != nil {
				return err
			}
			results = append(results, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hashcache: get_by_identity: %w", err)
	}
	return results, nil
}

// GetByIdentityAny returns every entry matching (size, mtime) regardless of
// digest — spec §4.1 step (2)'s "look up by (S, T, any digest)". Moved-file
// recovery needs this broader form because the digest of a just-observed
// file isn't known yet; GetByIdentity (exact digest) serves lookups where
// the caller already has one in hand.
func (c *Cache) GetByIdentityAny(size int64, modTime time.Time) ([]types.CachedEntry, error) {
	var results []types.CachedEntry
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, size)
	_ = binary.Write(buf, binary.BigEndian, modTime.UnixNano())
	prefix := buf.Bytes()

	err := c.db.View(func(tx *bolt.Tx) error {
		ib := tx.Bucket([]byte(bucketIdentity))
		eb := tx.Bucket([]byte(bucketEntries))
		cur := ib.Cursor()
		for k, pk := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, pk = cur.Next() {
			data := eb.Get(pk)
			if data == nil {
				continue
			}
			entry, err := decodeEntry(data)
			if err != nil {
				return err
			}
			results = append(results, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hashcache: get_by_identity_any: %w", err)
	}
	return results, nil
}

// GetByPaths is a batched membership query; it never returns entries for
// paths not requested, and chunks internally if the caller hands it an
// unusually large slice, keeping any single bbolt transaction bounded.
func (c *Cache) GetByPaths(paths []string, role types.FolderRole) (map[string]types.CachedEntry, error) {
	const chunkSize = 4096
	result := make(map[string]types.CachedEntry, len(paths))
	for start := 0; start < len(paths); start += chunkSize {
		end := start + chunkSize
		if end > len(paths) {
			end = len(paths)
		}
		chunk := paths[start:end]
		err := c.db.View(func(tx *bolt.Tx) error {
			eb := tx.Bucket([]byte(bucketEntries))
			for _, p := range chunk {
				data := eb.Get(primaryKey(role, p))
				if data == nil {
					continue
				}
				entry, err := decodeEntry(data)
				if err != nil {
					return err
				}
				result[p] = entry
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("hashcache: get_by_paths: %w", err)
		}
	}
	return result, nil
}

// AllForRole streams every entry for role by seeking the entries bucket's
// cursor to role's single-byte prefix — sub-linear because bbolt's cursor
// Seek is a B+tree descent, not a scan from the start.
func (c *Cache) AllForRole(role types.FolderRole, fn func(types.CachedEntry) error) error {
	prefix := []byte{byte(role)}
	err := c.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket([]byte(bucketEntries)).Cursor()
		for k, v := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cur.Next() {
			entry, err := decodeEntry(v)
			if err != nil {
				return err
			}
			if err := fn(entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("hashcache: all_for_role: %w", err)
	}
	return nil
}

// Delete removes the (path, role) entry; idempotent.
func (c *Cache) Delete(path string, role types.FolderRole) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		eb := tx.Bucket([]byte(bucketEntries))
		pk := primaryKey(role, path)
		if data := eb.Get(pk); data != nil {
			if old, err := decodeEntry(data); err == nil && old.Fingerprint.Digest != "" {
				if err := tx.Bucket([]byte(bucketIdentity)).Delete(identityKey(old.Size, old.ModTime, string(old.Fingerprint.Digest), pk)); err != nil {
					return err
				}
			}
		}
		return eb.Delete(pk)
	})
}

// digestFrom reconstructs a digest.Digest from its stored algorithm/encoded
// parts without re-validating hash length against a live hasher — entries
// already passed Validate() when they were written.
func digestFrom(algorithm, encoded string) digest.Digest {
	return digest.NewDigestFromEncoded(digest.Algorithm(algorithm), encoded)
}
