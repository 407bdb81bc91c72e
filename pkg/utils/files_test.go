package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReplaceExt(t *testing.T) {
	tests := []struct {
		path, ext, want string
	}{
		{"hello.bf", ".ll", "hello.ll"},
		{"dir/hello.b", ".ll", "dir/hello.ll"},
		{"hello", ".ll", "hello.ll"},
		{"a.b.bf", ".zip", "a.b.zip"},
	}
	for _, tc := range tests {
		if got := ReplaceExt(tc.path, tc.ext); got != tc.want {
			t.Errorf("ReplaceExt(%q, %q) = %q; want %q", tc.path, tc.ext, got, tc.want)
		}
	}
}

func TestReadSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.bf")
	if err := os.WriteFile(path, []byte("+."), 0o644); err != nil {
		t.Fatal(err)
	}

	src, full, err := ReadSource(path)
	if err != nil {
		t.Fatalf("ReadSource: %v", err)
	}
	if src != "+." {
		t.Errorf("source = %q", src)
	}
	if !filepath.IsAbs(full) {
		t.Errorf("path %q is not absolute", full)
	}

	if _, _, err := ReadSource(filepath.Join(dir, "missing.bf")); err == nil {
		t.Error("expected error for missing file")
	}
}
