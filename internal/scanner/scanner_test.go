//go:build unix

package scanner

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInvalidGlobPatternUnclosedBracket(t *testing.T) {
	root := t.TempDir()
	createFile(t, filepath.Join(root, "file.txt"), 100)
	createFile(t, filepath.Join(root, "[bracket.txt"), 100)

	s := New(Config{Root: root, ExcludeGlobs: []string{"[invalid"}, Workers: 2, SkipExtensions: map[string]bool{}})
	files, _ := s.Run()

	if len(files) != 2 {
		t.Errorf("expected 2 files (invalid pattern skipped), got %d", len(files))
	}
}

func TestListDirectoryBasic(t *testing.T) {
	root := t.TempDir()
	createFile(t, filepath.Join(root, "file1.txt"), 100)
	createFile(t, filepath.Join(root, "file2.txt"), 200)
	if err := os.Mkdir(filepath.Join(root, "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}
	createFile(t, filepath.Join(root, "subdir", "file3.txt"), 300)

	s := New(Config{Root: root, Workers: 2, SkipExtensions: map[string]bool{}})
	files, stats := s.Run()

	if len(files) != 3 {
		t.Errorf("expected 3 files, got %d", len(files))
	}
	if stats.Scanned != 3 || stats.Matched != 3 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	sizes := make(map[int64]bool)
	for _, f := range files {
		sizes[f.Size] = true
	}
	for _, expected := range []int64{100, 200, 300} {
		if !sizes[expected] {
			t.Errorf("missing file with size %d", expected)
		}
	}
}

func TestSizeFilteringBoundaryValues(t *testing.T) {
	root := t.TempDir()
	createFile(t, filepath.Join(root, "size99.txt"), 99)
	createFile(t, filepath.Join(root, "size100.txt"), 100)
	createFile(t, filepath.Join(root, "size101.txt"), 101)

	s := New(Config{Root: root, MinSize: 100, Workers: 2, SkipExtensions: map[string]bool{}})
	files, _ := s.Run()
	if len(files) != 2 {
		t.Errorf("expected 2 files (>=100), got %d", len(files))
	}
}

func TestDefaultSkipExtensionsExcludeImages(t *testing.T) {
	root := t.TempDir()
	createFile(t, filepath.Join(root, "photo.jpg"), 1024)
	createFile(t, filepath.Join(root, "video.mp4"), 1024)

	s := New(Config{Root: root, Workers: 2}) // nil SkipExtensions -> defaults apply
	files, _ := s.Run()

	if len(files) != 1 || filepath.Base(files[0].Path) != "video.mp4" {
		t.Errorf("expected only video.mp4 to survive default image filter, got %+v", files)
	}
}

func TestGlobPatternExclusion(t *testing.T) {
	root := t.TempDir()
	createFile(t, filepath.Join(root, "keep.txt"), 100)
	createFile(t, filepath.Join(root, "exclude.tmp"), 100)
	createFile(t, filepath.Join(root, "exclude.bak"), 100)

	s := New(Config{Root: root, ExcludeGlobs: []string{"*.tmp", "*.bak"}, Workers: 2, SkipExtensions: map[string]bool{}})
	files, _ := s.Run()

	if len(files) != 1 {
		t.Errorf("expected 1 file, got %d", len(files))
	}
	if len(files) > 0 && filepath.Base(files[0].Path) != "keep.txt" {
		t.Errorf("wrong file kept: %s", files[0].Path)
	}
}

func TestDirectoryExclusionRecursiveGlob(t *testing.T) {
	root := t.TempDir()
	createFile(t, filepath.Join(root, "main.go"), 100)

	gitDir := filepath.Join(root, ".git")
	if err := os.Mkdir(gitDir, 0o755); err != nil {
		t.Fatal(err)
	}
	createFile(t, filepath.Join(gitDir, "config"), 50)

	objectsDir := filepath.Join(gitDir, "objects")
	if err := os.Mkdir(objectsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	createFile(t, filepath.Join(objectsDir, "pack"), 200)

	s := New(Config{Root: root, ExcludeGlobs: []string{".git"}, Workers: 2, SkipExtensions: map[string]bool{}})
	files, _ := s.Run()

	if len(files) != 1 {
		t.Errorf("expected 1 file (main.go only), got %d", len(files))
		for _, f := range files {
			t.Logf("  found: %s", f.Path)
		}
	}
}

func TestDoublestarDeepExclusion(t *testing.T) {
	root := t.TempDir()
	createFile(t, filepath.Join(root, "keep.txt"), 100)
	nested := filepath.Join(root, "a", "b", "c")
	createFile(t, filepath.Join(nested, "cache.tmp"), 100)

	s := New(Config{Root: root, ExcludeGlobs: []string{"**/*.tmp"}, Workers: 2, SkipExtensions: map[string]bool{}})
	files, _ := s.Run()

	if len(files) != 1 || filepath.Base(files[0].Path) != "keep.txt" {
		t.Errorf("expected only keep.txt, got %+v", files)
	}
}

func TestPermissionErrorHandling(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("skipping permission test when running as root")
	}

	root := t.TempDir()
	createFile(t, filepath.Join(root, "accessible.txt"), 100)

	unreadable := filepath.Join(root, "unreadable")
	if err := os.Mkdir(unreadable, 0o000); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chmod(unreadable, 0o755) }()

	errCh := make(chan error, 10)
	s := New(Config{Root: root, Workers: 2, SkipExtensions: map[string]bool{}, ErrCh: errCh})
	files, _ := s.Run()
	close(errCh)

	if len(files) != 1 {
		t.Errorf("expected 1 file, got %d", len(files))
	}

	var errCount int
	for range errCh {
		errCount++
	}
	if errCount == 0 {
		t.Error("expected permission error to be reported")
	}
}

func TestGlobPatternMatchesBasenameOnly(t *testing.T) {
	root := t.TempDir()

	keepDir := filepath.Join(root, "keepdir")
	if err := os.Mkdir(keepDir, 0o755); err != nil {
		t.Fatal(err)
	}
	createFile(t, filepath.Join(keepDir, "keep.txt"), 100)

	excludeDir := filepath.Join(root, "skipme")
	if err := os.Mkdir(excludeDir, 0o755); err != nil {
		t.Fatal(err)
	}
	createFile(t, filepath.Join(excludeDir, "hidden.txt"), 100)
	createFile(t, filepath.Join(keepDir, "skipme"), 100)

	s := New(Config{Root: root, ExcludeGlobs: []string{"skipme"}, Workers: 2, SkipExtensions: map[string]bool{}})
	files, _ := s.Run()

	if len(files) != 1 {
		t.Errorf("expected 1 file (keep.txt), got %d", len(files))
		for _, f := range files {
			t.Logf("  found: %s", f.Path)
		}
	}
}

func TestNonExistentPathHandling(t *testing.T) {
	root := t.TempDir()
	nonExistent := filepath.Join(root, "does-not-exist")

	errCh := make(chan error, 10)
	s := New(Config{Root: nonExistent, Workers: 2, SkipExtensions: map[string]bool{}, ErrCh: errCh})
	files, _ := s.Run()
	close(errCh)

	if len(files) != 0 {
		t.Errorf("expected 0 files for non-existent path, got %d", len(files))
	}

	var errCount int
	for range errCh {
		errCount++
	}
	if errCount == 0 {
		t.Error("expected error for non-existent path")
	}
}

func TestNonRegularFilesSkipped(t *testing.T) {
	root := t.TempDir()

	regularFile := filepath.Join(root, "regular.txt")
	createFile(t, regularFile, 100)

	symlink := filepath.Join(root, "symlink.txt")
	if err := os.Symlink(regularFile, symlink); err != nil {
		t.Fatal(err)
	}

	s := New(Config{Root: root, Workers: 2, SkipExtensions: map[string]bool{}})
	files, _ := s.Run()

	if len(files) != 1 {
		t.Errorf("expected 1 regular file, got %d", len(files))
	}
	if len(files) > 0 && filepath.Base(files[0].Path) != "regular.txt" {
		t.Errorf("expected regular.txt, got %s", files[0].Path)
	}
}

func TestFilenamesWithSpecialChars(t *testing.T) {
	root := t.TempDir()

	specialNames := []string{
		"file with spaces.txt",
		"file\twith\ttabs.txt",
		"unicode_日本語.txt",
		"quotes'and\"double.txt",
	}

	for _, name := range specialNames {
		createFile(t, filepath.Join(root, name), 100)
	}

	s := New(Config{Root: root, Workers: 2, SkipExtensions: map[string]bool{}})
	files, _ := s.Run()

	if len(files) != len(specialNames) {
		t.Errorf("expected %d files, got %d", len(specialNames), len(files))
	}
}

func createFile(t *testing.T, path string, size int64) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	content := make([]byte, size)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
}
