package fileutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

)

func TestCopyFileVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.flv")
	if err := os.WriteFile(src, []byte("segment bytes"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}
	dst := filepath.Join(dir, "copy.flv")
	if err := CopyFileVerified(src, dst); err != nil {
		t.Fatalf("CopyFileVerified: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read dst: %v", err)
	}
	if string(got) != "segment bytes" {
		t.Fatalf("unexpected content %q", got)
	}
	assertNoTemps(t, dir, 2)
}

func TestCopyFileVerifiedMissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := CopyFileVerified(filepath.Join(dir, "missing"), filepath.Join(dir, "dst")); err == nil {
		t.Fatal("expected error for missing source")
	}
	assertNoTemps(t, dir, 0)
}

func TestWriteStreamFailureKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "meta.json")
	if err := WriteFile(dst, []byte("old")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	boom := errors.New("boom")
	err := WriteStream(dst, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fill error, got %v", err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "old" {
		t.Fatalf("destination changed to %q", got)
	}
	assertNoTemps(t, dir, 1)
}

func assertNoTemps(t *testing.T, dir string, want int) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != want {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected %d entries, got %v", want, names)
	}
}
