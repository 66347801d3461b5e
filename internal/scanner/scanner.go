// Package scanner provides parallel filesystem scanning for duplicate
// detection, adapted from the fan-out/fan-in walker this module's teacher
// used to enumerate candidate files.
//
// # Architecture Overview
//
// The scanner uses a concurrent fan-out/fan-in architecture to efficiently
// traverse directory trees while respecting system resource limits.
//
// # Concurrency Model
//
// The scanner employs three concurrent components:
//
//  1. WALKER GOROUTINES (fan-out)
//     - One goroutine spawned per directory discovered
//     - Concurrency limited by semaphore (walkerSem)
//     - Each walker: acquires semaphore → lists directory → spawns child walkers → releases semaphore
//
//  2. COLLECTOR GOROUTINE (fan-in)
//     - Single goroutine that drains resultCh into a slice
//     - Provides the aggregation point for all walker outputs
//     - Runs until resultCh is closed
//
//  3. MAIN GOROUTINE (orchestrator)
//     - Initializes channels and spawns the root walker
//     - Waits for all walkers (walkerWg.Wait)
//     - Closes resultCh to signal collector
//     - Waits for collector (collectorWg.Wait)
//
// # Data Flow
//
//	Run() starts
//	    │
//	    ├──► spawn collector goroutine (reads resultCh)
//	    ├──► walkDirectory(root)
//	    │        │
//	    │        ├──► acquire semaphore (blocks if at limit)
//	    │        ├──► listDirectory() → files, subdirs
//	    │        ├──► filter files → send matches to resultCh
//	    │        └──► for each subdir: walkDirectory(subdir)  [recursive fan-out]
//	    │        ├──► release semaphore
//	    ├──► walkerWg.Wait() [all directories processed]
//	    ├──► close(resultCh) [signal collector to finish]
//	    ├──► collectorWg.Wait() [collector drained channel]
//	    └──► return results
//
// Symbolic links are never followed (spec §4.4 step 1): they are skipped
// entirely, both as files and as directories to recurse into.
package scanner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"

	"github.com/jgtierney/dl-organize-sub001/internal/progress"
	"github.com/jgtierney/dl-organize-sub001/internal/types"
)

// DefaultSkipExtensions are the image and raw/vector formats spec §4.4
// step 2 excludes by default.
var DefaultSkipExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true,
	".tiff": true, ".tif": true, ".webp": true, ".svg": true, ".ico": true,
	".heic": true, ".heif": true, ".raw": true, ".cr2": true, ".nef": true,
	".arw": true, ".dng": true, ".psd": true, ".ai": true,
}

// DefaultMinSize is the 10 KiB minimum file size of spec §4.4 step 2. New
// does not apply it: a zero Config.MinSize keeps files of every size, and
// internal/config supplies the 10 KiB default for real runs.
const DefaultMinSize = 10 * 1024 // 10 KiB

// Scanner discovers files matching filter criteria using parallel directory
// traversal. It is designed for single use: create with New(), call Run()
// once.
type Scanner struct {
	root           string
	minSize        int64
	skipExtensions map[string]bool
	excludeGlobs   []string // doublestar patterns, matched against the path relative to root
	workers        int
	showProgress   bool
	errCh          chan error

	walkerWg  sync.WaitGroup
	walkerSem semaphore
	resultCh  chan types.FileMetadata
	stats     *stats
	bar       *progress.Bar
}

// Config configures one Run of the Scanner.
type Config struct {
	Root           string
	MinSize        int64
	SkipExtensions map[string]bool // nil means DefaultSkipExtensions
	ExcludeGlobs   []string
	Workers        int
	ShowProgress   bool
	ErrCh          chan error
}

// New creates a Scanner for discovering files under one root.
func New(cfg Config) *Scanner {
	skip := cfg.SkipExtensions
	if skip == nil {
		skip = DefaultSkipExtensions
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Scanner{
		root:           cfg.Root,
		minSize:        cfg.MinSize,
		skipExtensions: skip,
		excludeGlobs:   cfg.ExcludeGlobs,
		workers:        workers,
		showProgress:   cfg.ShowProgress,
		errCh:          cfg.ErrCh,
	}
}

// stats tracks scanning progress using atomic counters for lock-free
// updates across walker goroutines.
type stats struct {
	scannedFiles atomic.Int64
	matchedFiles atomic.Int64
	scannedBytes atomic.Int64
	matchedBytes atomic.Int64
	startTime    time.Time
}

func (s *stats) String() string {
	return fmt.Sprintf("scanned %d (%s), matched %d files (%s) in %.1fs",
		s.scannedFiles.Load(), humanize.IBytes(uint64(s.scannedBytes.Load())),
		s.matchedFiles.Load(), humanize.IBytes(uint64(s.matchedBytes.Load())),
		time.Since(s.startTime).Seconds())
}

// Stats is a snapshot of the scan counters the Detector's stats derive
// from: scanned and matched (the Detector's filtered count is
// scanned-minus-matched; hashed and failed are tracked downstream by the
// Detector itself).
type Stats struct {
	Scanned int64
	Matched int64
}

// Run executes the scan and returns matching files.
func (s *Scanner) Run() ([]types.FileMetadata, Stats) {
	s.walkerSem = newSemaphore(s.workers)
	s.bar = progress.New(s.showProgress, -1)
	s.stats = &stats{startTime: time.Now()}
	s.bar.Describe(s.stats)
	s.resultCh = make(chan types.FileMetadata, 1000)

	var results []types.FileMetadata
	collectorWg := sync.WaitGroup{}
	collectorWg.Add(1)
	go func() {
		for r := range s.resultCh {
			results = append(results, r)
		}
		collectorWg.Done()
	}()

	absRoot, err := filepath.Abs(s.root)
	if err != nil {
		s.sendError(err)
	} else {
		s.walkDirectory(absRoot)
	}

	s.walkerWg.Wait()
	close(s.resultCh)
	collectorWg.Wait()

	s.bar.Finish(s.stats)
	return results, Stats{Scanned: s.stats.scannedFiles.Load(), Matched: s.stats.matchedFiles.Load()}
}

func (s *Scanner) walkDirectory(dir string) {
	s.walkerWg.Add(1)
	go func() {
		defer s.walkerWg.Done()

		s.walkerSem.acquire()
		defer s.walkerSem.release()

		files, subdirs, err := s.listDirectory(dir)
		if err != nil {
			s.sendError(err)
			return
		}

		for _, f := range files {
			s.stats.scannedFiles.Add(1)
			s.stats.scannedBytes.Add(f.Size)
			if s.keep(f) {
				s.resultCh <- f
				s.stats.matchedFiles.Add(1)
				s.stats.matchedBytes.Add(f.Size)
			}
		}
		s.bar.Describe(s.stats)

		for _, sub := range subdirs {
			s.walkDirectory(sub)
		}
	}()
}

// listDirectory reads one directory, returning files and subdirectories.
// Symlinks and non-regular files are dropped here, before any filter runs.
func (s *Scanner) listDirectory(dirPath string) (files []types.FileMetadata, subdirs []string, err error) {
	dir, err := os.Open(dirPath)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = dir.Close() }()

	const batchSize = 1000
	for {
		entries, err := dir.ReadDir(batchSize)
		if len(entries) == 0 {
			if err != nil && err != io.EOF {
				return files, subdirs, err
			}
			break
		}

		for _, entry := range entries {
			f, sub := s.processEntry(dirPath, entry)
			if f != nil {
				files = append(files, *f)
			}
			if sub != "" {
				subdirs = append(subdirs, sub)
			}
		}
	}

	return files, subdirs, nil
}

func (s *Scanner) processEntry(dirPath string, entry os.DirEntry) (file *types.FileMetadata, subdir string) {
	fullPath := filepath.Join(dirPath, entry.Name())

	if entry.Type()&os.ModeSymlink != 0 {
		return nil, "" // never follow symlinks, file or directory
	}

	if entry.IsDir() {
		if s.isExcluded(fullPath) {
			return nil, ""
		}
		return nil, fullPath
	}

	if !entry.Type().IsRegular() {
		return nil, ""
	}

	info, err := entry.Info()
	if err != nil {
		return nil, ""
	}

	ext := strings.ToLower(filepath.Ext(fullPath))
	return &types.FileMetadata{
		Path:    fullPath,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Ext:     ext,
	}, ""
}

// keep applies the size, extension and exclude-glob filters of spec §4.4
// step 2 to one file. Directory exclusion and symlink/non-regular skipping
// happen earlier, in processEntry.
func (s *Scanner) keep(f types.FileMetadata) bool {
	if f.Size < s.minSize {
		return false
	}
	if s.skipExtensions[f.Ext] {
		return false
	}
	if s.isExcluded(f.Path) {
		return false
	}
	return true
}

// isExcluded matches path (relative to the scan root when possible) against
// the configured doublestar glob patterns, which unlike filepath.Match
// understand "**" for arbitrary depth.
func (s *Scanner) isExcluded(path string) bool {
	if len(s.excludeGlobs) == 0 {
		return false
	}
	rel := path
	if r, err := filepath.Rel(s.root, path); err == nil {
		rel = r
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range s.excludeGlobs {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
		if matched, _ := doublestar.Match(pattern, filepath.Base(path)); matched {
			return true
		}
	}
	return false
}

func (s *Scanner) sendError(err error) {
	if s.errCh != nil {
		s.errCh <- err
	}
}
