package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// WriteSlices creates an object directory holding count slice images named
// <prefix><0000..>.png and returns the directory.
func WriteSlices(t testing.TB, parent, name, prefix string, count int) string {
	t.Helper()

	dir := filepath.Join(parent, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	for i := 0; i < count; i++ {
		path := filepath.Join(dir, fmt.Sprintf("%s%04d.png", prefix, i))
		if err := os.WriteFile(path, []byte{0x89, 'P', 'N', 'G'}, 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return dir
}

// WriteFile writes contents to path, creating parent directories.
func WriteFile(t testing.TB, path, contents string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
