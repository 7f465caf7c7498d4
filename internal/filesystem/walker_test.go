package filesystem

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/DanielSnd/zaudiobrowser/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		ArchiveExtensions: []string{"zip"},
		Exclude:           []string{"node_modules", "__MACOSX"},
		MaxArchiveSize:    "0",
	}
}

func touch(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFindArchivesInFolder(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b.zip"), 10)
	touch(t, filepath.Join(dir, "sub", "a.zip"), 10)
	touch(t, filepath.Join(dir, "kick.wav"), 10)
	touch(t, filepath.Join(dir, "node_modules", "dep.zip"), 10)
	touch(t, filepath.Join(dir, ".hidden", "h.zip"), 10)

	w := NewWalker(testConfig(), zap.NewNop())
	got, err := w.FindArchives(dir)
	if err != nil {
		t.Fatalf("FindArchives() error = %v", err)
	}

	want := []string{
		filepath.Join(dir, "b.zip"),
		filepath.Join(dir, "sub", "a.zip"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FindArchives() = %v, want %v", got, want)
	}
}

func TestFindArchivesDirectFile(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "pack.zip")
	touch(t, archive, 10)
	audio := filepath.Join(dir, "kick.wav")
	touch(t, audio, 10)

	w := NewWalker(testConfig(), zap.NewNop())

	got, err := w.FindArchives(archive)
	if err != nil {
		t.Fatalf("FindArchives(archive) error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{archive}) {
		t.Errorf("FindArchives(archive) = %v, want [%s]", got, archive)
	}

	if _, err := w.FindArchives(audio); err == nil {
		t.Error("FindArchives(non-archive file) expected error")
	}
	if _, err := w.FindArchives(filepath.Join(dir, "missing")); err == nil {
		t.Error("FindArchives(missing path) expected error")
	}
}

func TestFindArchivesMaxSize(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "small.zip"), 100)
	touch(t, filepath.Join(dir, "large.zip"), 5000)

	cfg := testConfig()
	cfg.MaxArchiveSize = "1K"
	w := NewWalker(cfg, zap.NewNop())

	got, err := w.FindArchives(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "small.zip")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FindArchives() = %v, want %v", got, want)
	}
}

func TestMountFor(t *testing.T) {
	tests := []struct {
		name     string
		root     string
		archive  string
		expected string
	}{
		{"Direct open", "/music/pack.zip", "/music/pack.zip", ""},
		{"Top level", "/music", "/music/pack.zip", "pack"},
		{"Nested", "/music", "/music/sub/disc1.zip", "sub/disc1"},
		{"No extension", "/music", "/music/sub/raw", "sub/raw"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := filepath.FromSlash(tt.root)
			archive := filepath.FromSlash(tt.archive)
			if got := MountFor(root, archive); got != tt.expected {
				t.Errorf("MountFor(%q, %q) = %q, want %q", tt.root, tt.archive, got, tt.expected)
			}
		})
	}
}

func TestGetExtension(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"kick.wav", "wav"},
		{"KICK.WAV", "wav"},
		{"a/b/pad.ogg", "ogg"},
		{"noext", ""},
		{"trailing.", ""},
	}

	for _, tt := range tests {
		if got := GetExtension(tt.path); got != tt.expected {
			t.Errorf("GetExtension(%q) = %q, want %q", tt.path, got, tt.expected)
		}
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"650", 650},
		{"650K", 650 * 1024},
		{"10m", 10 * 1024 * 1024},
		{"2G", 2 * 1024 * 1024 * 1024},
		{"0", 0},
		{"", 0},
	}

	for _, tt := range tests {
		if got := ParseSize(tt.input); got != tt.expected {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.expected)
		}
	}
}
