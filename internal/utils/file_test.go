package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cat.jpg")
	if FileExists(path) {
		t.Error("missing file reported as existing")
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if !FileExists(path) {
		t.Error("existing file not found")
	}
	if FileExists(dir) {
		t.Error("directories are not files")
	}
}

func TestFormatFileSize(t *testing.T) {
	tests := map[int64]string{
		0:        "0 B",
		1023:     "1023 B",
		1024:     "1.0 KB",
		1536:     "1.5 KB",
		10 << 20: "10.0 MB",
		3 << 30:  "3.0 GB",
	}
	for in, want := range tests {
		if got := FormatFileSize(in); got != want {
			t.Errorf("FormatFileSize(%d) = %q, want %q", in, got, want)
		}
	}
}
