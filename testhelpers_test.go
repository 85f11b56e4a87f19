package germ

import (
	"os"
	"testing"
	"time"
)

// writeFile writes content to path, creating it if necessary.
func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

// bumpMtime forces path's mtime forward, since some filesystems have a
// coarser mtime resolution than a fast-running test's write-read gap.
func bumpMtime(t *testing.T, path string) {
	t.Helper()
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("bumping mtime for %s: %v", path, err)
	}
}
