package tree

import (
	"github.com/DanielSnd/zaudiobrowser/pkg/models"
)

// Source is one archive's contribution to a merged tree. Mount is the
// slash-separated path the source's entries hang under; empty mounts all
// sources at the root so same-path entries overlay each other.
type Source struct {
	ID      string
	Mount   string
	Entries []models.EntryRecord
}

// Build merges entry records from one or more sources into a single tree.
// Sources are processed in the given order and one source's entries are
// inserted atomically relative to other sources. Path collisions resolve
// last-write-wins and are recorded on the returned tree.
//
// Complexity is O(total entries x average path depth).
func Build(sources []Source) *Tree {
	t := New()
	for _, src := range sources {
		mount := models.SplitPath(src.Mount)
		for _, e := range src.Entries {
			t.insert(append(mount, e.Segments()...), src.ID, models.FileRef{
				Source:  src.ID,
				Locator: e.Locator,
				Size:    e.UncompressedSize,
			})
		}
	}
	return t
}

// Merge grafts a previously built source subtree under mount. Used when a
// source's tree came from the cache and its entry records were never
// re-parsed. Collision policy is identical to Build.
func (t *Tree) Merge(mount string, src *Tree, sourceID string) {
	prefix := models.SplitPath(mount)
	mergeNode(t, prefix, src.Root, sourceID)
	for _, c := range src.Collisions {
		c.Path = models.JoinPath(append(append([]string(nil), prefix...), models.SplitPath(c.Path)...))
		t.Collisions = append(t.Collisions, c)
	}
}

func mergeNode(t *Tree, prefix []string, n *Node, sourceID string) {
	for _, c := range n.children {
		path := append(append([]string(nil), prefix...), c.Name)
		if c.Kind == KindFile {
			t.insert(path, sourceID, *c.Ref)
			continue
		}
		mergeNode(t, path, c, sourceID)
	}
}

// insert attaches a file node at the given segments, creating folders on
// the way down. Whatever is encountered later wins; folder-vs-file
// conflicts displace the existing node and are recorded. This is a policy
// choice: overlays are resolved in source order, never silently duplicated.
func (t *Tree) insert(segs []string, sourceID string, ref models.FileRef) {
	if len(segs) == 0 {
		return
	}
	cur := t.Root
	for i, seg := range segs[:len(segs)-1] {
		next, ok := cur.Child(seg)
		if ok && next.Kind == KindFile {
			// A file sits where this entry needs a folder. Replace it.
			t.Collisions = append(t.Collisions, Collision{
				Path:     models.JoinPath(segs[:i+1]),
				Shadowed: next.Ref.Source,
				Winner:   sourceID,
				KindFlip: true,
			})
			ok = false
		}
		if !ok {
			next = NewFolder(seg)
			cur.attach(next)
		}
		cur = next
	}

	name := segs[len(segs)-1]
	leaf := NewFile(name, ref)
	if prev, ok := cur.Child(name); ok {
		col := Collision{Path: models.JoinPath(segs), Winner: sourceID}
		if prev.Kind == KindFile {
			col.Shadowed = prev.Ref.Source
		} else {
			col.KindFlip = true
		}
		t.Collisions = append(t.Collisions, col)
	}
	cur.attach(leaf)
}
