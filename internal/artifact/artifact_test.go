package artifact

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCopyTree_CopiesNestedFiles(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "copy")

	mustWrite(t, filepath.Join(src, "weights.bin"), "binary-weights")
	mustWrite(t, filepath.Join(src, "nested", "config.json"), `{"k":"v"}`)

	if err := CopyTree(src, dst); err != nil {
		t.Fatalf("CopyTree() error = %v", err)
	}

	assertFileContent(t, filepath.Join(dst, "weights.bin"), "binary-weights")
	assertFileContent(t, filepath.Join(dst, "nested", "config.json"), `{"k":"v"}`)
}

func TestCopyTree_SkipsTmpFiles(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "copy")

	mustWrite(t, filepath.Join(src, "model.bin"), "done")
	mustWrite(t, filepath.Join(src, "checkpoint.tmp"), "still-writing")

	if err := CopyTree(src, dst); err != nil {
		t.Fatalf("CopyTree() error = %v", err)
	}

	assertFileContent(t, filepath.Join(dst, "model.bin"), "done")
	if _, err := os.Stat(filepath.Join(dst, "checkpoint.tmp")); !os.IsNotExist(err) {
		t.Errorf("expected checkpoint.tmp to be skipped, stat err = %v", err)
	}
}

func TestCopyTree_PreservesDirectoryStructure(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "copy")

	mustWrite(t, filepath.Join(src, "a", "b", "c", "leaf.txt"), "leaf")

	if err := CopyTree(src, dst); err != nil {
		t.Fatalf("CopyTree() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(dst, "a", "b", "c"))
	if err != nil {
		t.Fatalf("expected nested directory to exist: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected a/b/c to be a directory")
	}
	assertFileContent(t, filepath.Join(dst, "a", "b", "c", "leaf.txt"), "leaf")
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func assertFileContent(t *testing.T, path, want string) {
	t.Helper()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	if string(got) != want {
		t.Errorf("%s content = %q, want %q", path, got, want)
	}
}
