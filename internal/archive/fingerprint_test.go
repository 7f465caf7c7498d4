package archive

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFingerprintStable(t *testing.T) {
	path := writeZip(t, "stable.zip",
		map[string][]byte{"a.mp3": []byte("aaa"), "b.mp3": []byte("bbb")},
		[]string{"a.mp3", "b.mp3"})

	fp1, err := Fingerprint(path)
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	fp2, err := Fingerprint(path)
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if fp1 != fp2 {
		t.Errorf("fingerprint not stable: %s != %s", fp1, fp2)
	}
	if fp1.IsZero() {
		t.Error("fingerprint is empty")
	}
}

func TestFingerprintChangesWithContent(t *testing.T) {
	a := writeZip(t, "a.zip",
		map[string][]byte{"a.mp3": []byte("aaa")}, []string{"a.mp3"})
	b := writeZip(t, "b.zip",
		map[string][]byte{"a.mp3": []byte("aaa"), "b.mp3": []byte("bbb")}, []string{"a.mp3", "b.mp3"})

	fpA, err := Fingerprint(a)
	if err != nil {
		t.Fatal(err)
	}
	fpB, err := Fingerprint(b)
	if err != nil {
		t.Fatal(err)
	}
	if fpA == fpB {
		t.Error("different archives produced equal fingerprints")
	}
}

func TestFingerprintIgnoresLocation(t *testing.T) {
	// Same bytes, same mtime, different paths: contents-identical.
	src := writeZip(t, "orig.zip",
		map[string][]byte{"a.mp3": []byte("aaa")}, []string{"a.mp3"})
	dup := filepath.Join(t.TempDir(), "copy.zip")
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dup, data, 0o644); err != nil {
		t.Fatal(err)
	}
	stamp := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, p := range []string{src, dup} {
		if err := os.Chtimes(p, stamp, stamp); err != nil {
			t.Fatal(err)
		}
	}

	fpSrc, err := Fingerprint(src)
	if err != nil {
		t.Fatal(err)
	}
	fpDup, err := Fingerprint(dup)
	if err != nil {
		t.Fatal(err)
	}
	if fpSrc != fpDup {
		t.Errorf("identical archives produced different fingerprints: %s != %s", fpSrc, fpDup)
	}
}

func TestFingerprintUnreadable(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.zip")
	if err := os.WriteFile(garbage, []byte("no directory here"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing", filepath.Join(dir, "absent.zip")},
		{"no central directory", garbage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Fingerprint(tt.path); !errors.Is(err, ErrUnreadableArchive) {
				t.Errorf("Fingerprint(%s) error = %v, want ErrUnreadableArchive", tt.path, err)
			}
		})
	}
}
