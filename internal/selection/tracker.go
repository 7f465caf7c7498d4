// Package selection tracks user-selected tree nodes with folder propagation
// semantics, independent of tree rebuilds.
package selection

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/DanielSnd/zaudiobrowser/internal/tree"
)

// State is the checkbox state of one node. Indeterminate applies to folders
// only and is always derived, never set directly.
type State int

const (
	Unselected State = iota
	Selected
	Indeterminate
)

func (s State) String() string {
	switch s {
	case Selected:
		return "selected"
	case Indeterminate:
		return "indeterminate"
	default:
		return "unselected"
	}
}

// ErrUnknownPath is returned when a path does not resolve in the bound tree.
var ErrUnknownPath = errors.New("selection: unknown path")

// Tracker holds the selected set for one tree. Selection is stored per file
// path; folder states are derived from descendants on demand.
type Tracker struct {
	mu       sync.Mutex
	tree     *tree.Tree
	selected map[string]struct{}
}

// NewTracker creates a tracker bound to a tree.
func NewTracker(t *tree.Tree) *Tracker {
	return &Tracker{tree: t, selected: make(map[string]struct{})}
}

// Toggle flips a file's selection, or toggles a folder's whole subtree:
// a folder that is not fully selected selects all descendant files, a fully
// selected one unselects them. Propagation is unconditional.
func (tr *Tracker) Toggle(path string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	n, ok := tr.tree.Resolve(path)
	if !ok {
		return ErrUnknownPath
	}

	if n.Kind == tree.KindFile {
		if _, sel := tr.selected[path]; sel {
			delete(tr.selected, path)
		} else {
			tr.selected[path] = struct{}{}
		}
		return nil
	}

	files := tr.descendantFiles(path)
	all := len(files) > 0
	for _, f := range files {
		if _, sel := tr.selected[f]; !sel {
			all = false
			break
		}
	}
	for _, f := range files {
		if all {
			delete(tr.selected, f)
		} else {
			tr.selected[f] = struct{}{}
		}
	}
	return nil
}

// StateOf reports the node's state. Folders are selected iff every
// descendant file is selected, unselected iff none is, and indeterminate
// otherwise. A folder with no files reports unselected.
func (tr *Tracker) StateOf(path string) (State, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	n, ok := tr.tree.Resolve(path)
	if !ok {
		return Unselected, ErrUnknownPath
	}

	if n.Kind == tree.KindFile {
		if _, sel := tr.selected[path]; sel {
			return Selected, nil
		}
		return Unselected, nil
	}

	files := tr.descendantFiles(path)
	if len(files) == 0 {
		return Unselected, nil
	}
	count := 0
	for _, f := range files {
		if _, sel := tr.selected[f]; sel {
			count++
		}
	}
	switch count {
	case 0:
		return Unselected, nil
	case len(files):
		return Selected, nil
	default:
		return Indeterminate, nil
	}
}

// SelectedLeaves returns the selected file paths in sorted order. This is
// the only selection shape the extraction service accepts.
func (tr *Tracker) SelectedLeaves() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	out := make([]string, 0, len(tr.selected))
	for p := range tr.selected {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Clear unselects everything.
func (tr *Tracker) Clear() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.selected = make(map[string]struct{})
}

// Rebind points the tracker at a replacement tree, preserving selection by
// path. Paths that no longer resolve to a file are dropped.
func (tr *Tracker) Rebind(t *tree.Tree) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.tree = t
	kept := make(map[string]struct{}, len(tr.selected))
	for p := range tr.selected {
		if n, ok := t.Resolve(p); ok && n.Kind == tree.KindFile {
			kept[p] = struct{}{}
		}
	}
	tr.selected = kept
}

// descendantFiles lists full paths of all file nodes under a folder path.
// Callers hold tr.mu.
func (tr *Tracker) descendantFiles(folder string) []string {
	prefix := ""
	if folder != "" {
		prefix = folder + "/"
	}
	var files []string
	tr.tree.Walk(func(p string, n *tree.Node) error {
		if n.Kind == tree.KindFile && strings.HasPrefix(p, prefix) {
			files = append(files, p)
		}
		return nil
	})
	return files
}
