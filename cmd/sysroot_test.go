package cmd

import (
	"path/filepath"
	"testing"
)

func TestOpenExtractorDest(t *testing.T) {
	dir := t.TempDir()

	handle, dest, err := openExtractorDest(dir, "sysroot/usr/lib/libfdk-aac.so", sysrootSpec{Strip: 1})
	if err != nil {
		t.Fatalf("openExtractorDest failed: %v", err)
	}
	if handle == nil {
		t.Fatal("Expected a file handle for a regular entry")
	}
	handle.Close()

	expected := filepath.Join(dir, "usr", "lib", "libfdk-aac.so")
	if dest != expected {
		t.Errorf("Expected %s, got %s", expected, dest)
	}
}

func TestOpenExtractorDestSkipsStrippedRoot(t *testing.T) {
	dir := t.TempDir()

	handle, _, err := openExtractorDest(dir, "sysroot", sysrootSpec{Strip: 1})
	if err != nil {
		t.Fatalf("openExtractorDest failed: %v", err)
	}
	if handle != nil {
		handle.Close()
		t.Error("Expected the fully stripped entry to be skipped")
	}
}

func TestOpenExtractorDestRejectsEscapes(t *testing.T) {
	dir := t.TempDir()

	for _, item := range []string{"../evil.txt", "sysroot/../../evil.txt", ".."} {
		handle, _, err := openExtractorDest(dir, item, sysrootSpec{})
		if handle != nil {
			handle.Close()
		}
		if err == nil {
			t.Errorf("Expected entry %s to be rejected", item)
		}
	}
}
