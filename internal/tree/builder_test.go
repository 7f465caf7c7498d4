package tree

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/DanielSnd/zaudiobrowser/pkg/models"
)

func entry(path string, index int) models.EntryRecord {
	return models.EntryRecord{
		Path:             path,
		UncompressedSize: 100,
		Locator:          models.Locator{Index: index, Name: path},
	}
}

func TestBuildSingleSource(t *testing.T) {
	src := Source{ID: "music.zip", Entries: []models.EntryRecord{
		entry("A/song1.mp3", 0),
		entry("B/song2.mp3", 1),
	}}
	tr := Build([]Source{src})

	if len(tr.Collisions) != 0 {
		t.Fatalf("unexpected collisions: %v", tr.Collisions)
	}

	root := tr.Root.Children()
	if len(root) != 2 || root[0].Name != "A" || root[1].Name != "B" {
		t.Fatalf("root children = %v, want [A B]", names(root))
	}

	n, ok := tr.Resolve("A/song1.mp3")
	if !ok {
		t.Fatal("A/song1.mp3 not resolvable")
	}
	if n.Kind != KindFile {
		t.Errorf("node kind = %v, want file", n.Kind)
	}
	if n.Ref.Source != "music.zip" {
		t.Errorf("node source = %q, want music.zip", n.Ref.Source)
	}

	folders, files := tr.Count()
	if folders != 2 || files != 2 {
		t.Errorf("Count() = (%d, %d), want (2, 2)", folders, files)
	}
}

func TestBuildLastSourceWins(t *testing.T) {
	tr := Build([]Source{
		{ID: "archive1", Entries: []models.EntryRecord{entry("A/song1.mp3", 0)}},
		{ID: "archive2", Entries: []models.EntryRecord{entry("A/song1.mp3", 5)}},
	})

	n, ok := tr.Resolve("A/song1.mp3")
	if !ok {
		t.Fatal("A/song1.mp3 not resolvable")
	}
	if n.Ref.Source != "archive2" {
		t.Errorf("winner = %q, want archive2", n.Ref.Source)
	}
	if n.Ref.Locator.Index != 5 {
		t.Errorf("winner locator index = %d, want 5", n.Ref.Locator.Index)
	}

	if len(tr.Collisions) != 1 {
		t.Fatalf("collisions = %d, want 1", len(tr.Collisions))
	}
	c := tr.Collisions[0]
	if c.Path != "A/song1.mp3" || c.Shadowed != "archive1" || c.Winner != "archive2" {
		t.Errorf("collision = %+v, want A/song1.mp3 archive1->archive2", c)
	}

	// Exactly one node per unique path.
	if len(tr.Flatten()) != 2 {
		t.Errorf("node count = %d, want 2 (A, A/song1.mp3)", len(tr.Flatten()))
	}
}

func TestBuildKindConflicts(t *testing.T) {
	tests := []struct {
		name     string
		sources  []Source
		path     string
		wantKind Kind
	}{
		{
			name: "file replaces folder",
			sources: []Source{
				{ID: "s1", Entries: []models.EntryRecord{entry("A/x.mp3", 0)}},
				{ID: "s2", Entries: []models.EntryRecord{entry("A", 0)}},
			},
			path:     "A",
			wantKind: KindFile,
		},
		{
			name: "folder replaces file",
			sources: []Source{
				{ID: "s1", Entries: []models.EntryRecord{entry("A", 0)}},
				{ID: "s2", Entries: []models.EntryRecord{entry("A/x.mp3", 0)}},
			},
			path:     "A",
			wantKind: KindFolder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := Build(tt.sources)
			n, ok := tr.Resolve(tt.path)
			if !ok {
				t.Fatalf("%s not resolvable", tt.path)
			}
			if n.Kind != tt.wantKind {
				t.Errorf("kind = %v, want %v", n.Kind, tt.wantKind)
			}
			if len(tr.Collisions) == 0 {
				t.Error("kind conflict recorded no collision")
			}
			if !tr.Collisions[0].KindFlip {
				t.Error("collision not marked as kind flip")
			}
		})
	}
}

func TestBuildDuplicateWithinOneSource(t *testing.T) {
	tr := Build([]Source{{ID: "s1", Entries: []models.EntryRecord{
		entry("A/x.mp3", 0),
		entry("A/x.mp3", 7),
	}}})

	n, _ := tr.Resolve("A/x.mp3")
	if n.Ref.Locator.Index != 7 {
		t.Errorf("later duplicate should win, got index %d", n.Ref.Locator.Index)
	}
	if len(tr.Collisions) != 1 {
		t.Errorf("collisions = %d, want 1", len(tr.Collisions))
	}
}

func TestMergeAtMount(t *testing.T) {
	sub1 := Build([]Source{{ID: "one.zip", Entries: []models.EntryRecord{entry("A/x.mp3", 0)}}})
	sub2 := Build([]Source{{ID: "two.zip", Entries: []models.EntryRecord{entry("A/x.mp3", 0)}}})

	merged := New()
	merged.Merge("disc1", sub1, "one.zip")
	merged.Merge("disc2", sub2, "two.zip")

	for _, p := range []string{"disc1/A/x.mp3", "disc2/A/x.mp3"} {
		if _, ok := merged.Resolve(p); !ok {
			t.Errorf("%s not resolvable after merge", p)
		}
	}
	if len(merged.Collisions) != 0 {
		t.Errorf("disjoint mounts produced collisions: %v", merged.Collisions)
	}

	// Same mount overlays and collides.
	overlay := New()
	overlay.Merge("", sub1, "one.zip")
	overlay.Merge("", sub2, "two.zip")
	n, _ := overlay.Resolve("A/x.mp3")
	if n.Ref.Source != "two.zip" {
		t.Errorf("overlay winner = %q, want two.zip", n.Ref.Source)
	}
	if len(overlay.Collisions) != 1 || overlay.Collisions[0].Shadowed != "one.zip" {
		t.Errorf("overlay collisions = %v, want one shadowing one.zip", overlay.Collisions)
	}
}

func TestTreeJSONRoundTrip(t *testing.T) {
	orig := Build([]Source{{ID: "m.zip", Entries: []models.EntryRecord{
		entry("B/song2.mp3", 0),
		entry("A/song1.mp3", 1),
		entry("A/song3.mp3", 2),
	}}})

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var back Tree
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	// Insertion order survives.
	got := names(back.Root.Children())
	if len(got) != 2 || got[0] != "B" || got[1] != "A" {
		t.Errorf("decoded root order = %v, want [B A]", got)
	}

	// Name lookup works on the decoded tree.
	n, ok := back.Resolve("A/song3.mp3")
	if !ok {
		t.Fatal("decoded tree cannot resolve A/song3.mp3")
	}
	if n.Ref == nil || n.Ref.Source != "m.zip" {
		t.Errorf("decoded ref = %+v, want source m.zip", n.Ref)
	}

	// Structural equality by path set.
	origFlat, backFlat := orig.Flatten(), back.Flatten()
	if len(origFlat) != len(backFlat) {
		t.Fatalf("node count changed: %d != %d", len(origFlat), len(backFlat))
	}
	for p := range origFlat {
		if _, ok := backFlat[p]; !ok {
			t.Errorf("path %s lost in round trip", p)
		}
	}
}

func TestWalkStopsOnError(t *testing.T) {
	tr := Build([]Source{{ID: "m.zip", Entries: []models.EntryRecord{
		entry("A/1.mp3", 0), entry("A/2.mp3", 1), entry("A/3.mp3", 2),
	}}})

	visited := 0
	sentinel := errors.New("stop here")
	err := tr.Walk(func(string, *Node) error {
		visited++
		if visited == 2 {
			return sentinel
		}
		return nil
	})
	if err != sentinel {
		t.Errorf("Walk() error = %v, want sentinel", err)
	}
	if visited != 2 {
		t.Errorf("visited %d nodes after error, want 2", visited)
	}
}

func names(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name
	}
	return out
}
