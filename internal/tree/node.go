package tree

import (
	"encoding/json"
	"fmt"

	"github.com/DanielSnd/zaudiobrowser/pkg/models"
)

// Kind distinguishes the two node variants. Every consumer handles both.
type Kind int

const (
	KindFolder Kind = iota
	KindFile
)

func (k Kind) String() string {
	if k == KindFile {
		return "file"
	}
	return "folder"
}

// Node is one node in the merged virtual namespace. Folders keep children
// in insertion order for stable display, with a name map for O(1) lookup.
// Sibling names are unique within a folder.
//
// Nodes are never mutated once their tree is built; trees are only replaced.
type Node struct {
	Name     string
	Kind     Kind
	Ref      *models.FileRef // file nodes only
	children []*Node
	byName   map[string]*Node
}

// NewFolder creates an empty folder node.
func NewFolder(name string) *Node {
	return &Node{Name: name, Kind: KindFolder, byName: make(map[string]*Node)}
}

// NewFile creates a file node backed by an archive entry.
func NewFile(name string, ref models.FileRef) *Node {
	return &Node{Name: name, Kind: KindFile, Ref: &ref}
}

// Child returns the named child, if any. Folder nodes only.
func (n *Node) Child(name string) (*Node, bool) {
	c, ok := n.byName[name]
	return c, ok
}

// Children returns the node's children in insertion order.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// attach adds or replaces a child, preserving the original slot on replace
// so display order stays stable.
func (n *Node) attach(c *Node) {
	if old, ok := n.byName[c.Name]; ok {
		for i, cur := range n.children {
			if cur == old {
				n.children[i] = c
				break
			}
		}
	} else {
		n.children = append(n.children, c)
	}
	n.byName[c.Name] = c
}

// Tree is a merged namespace spanning one or more archives, plus the path
// collisions recorded while merging.
type Tree struct {
	Root       *Node       `json:"root"`
	Collisions []Collision `json:"collisions,omitempty"`
}

// Collision records two sources claiming the same path. The later source
// won; the earlier one is reported, never silently dropped.
type Collision struct {
	Path     string `json:"path"`
	Shadowed string `json:"shadowed,omitempty"` // empty when a folder subtree was displaced
	Winner   string `json:"winner"`
	KindFlip bool   `json:"kind_flip,omitempty"` // folder replaced by file or vice versa
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{Root: NewFolder("")}
}

// Resolve walks the tree along a slash-separated path.
func (t *Tree) Resolve(path string) (*Node, bool) {
	n := t.Root
	for _, seg := range models.SplitPath(path) {
		if n.Kind != KindFolder {
			return nil, false
		}
		c, ok := n.Child(seg)
		if !ok {
			return nil, false
		}
		n = c
	}
	return n, true
}

// Walk visits every node except the root in depth-first insertion order,
// passing each node's full path. Returning an error stops the walk.
func (t *Tree) Walk(fn func(path string, n *Node) error) error {
	return walk("", t.Root, fn)
}

func walk(prefix string, n *Node, fn func(string, *Node) error) error {
	for _, c := range n.children {
		p := c.Name
		if prefix != "" {
			p = prefix + "/" + c.Name
		}
		if err := fn(p, c); err != nil {
			return err
		}
		if c.Kind == KindFolder {
			if err := walk(p, c, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flatten returns every node keyed by its full path.
func (t *Tree) Flatten() map[string]*Node {
	out := make(map[string]*Node)
	t.Walk(func(path string, n *Node) error {
		out[path] = n
		return nil
	})
	return out
}

// Count returns the number of folder and file nodes in the tree.
func (t *Tree) Count() (folders, files int) {
	t.Walk(func(_ string, n *Node) error {
		if n.Kind == KindFile {
			files++
		} else {
			folders++
		}
		return nil
	})
	return folders, files
}

// nodeJSON is the serialized node shape. The name lookup map is rebuilt on
// decode; only order and content are persisted.
type nodeJSON struct {
	Name     string          `json:"name"`
	Kind     string          `json:"kind"`
	Ref      *models.FileRef `json:"ref,omitempty"`
	Children []*Node         `json:"children,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeJSON{
		Name:     n.Name,
		Kind:     n.Kind.String(),
		Ref:      n.Ref,
		Children: n.children,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	n.Name = raw.Name
	n.Ref = raw.Ref
	switch raw.Kind {
	case "file":
		n.Kind = KindFile
		if n.Ref == nil {
			return fmt.Errorf("file node %q has no archive reference", raw.Name)
		}
	case "folder":
		n.Kind = KindFolder
		n.byName = make(map[string]*Node, len(raw.Children))
		for _, c := range raw.Children {
			if _, dup := n.byName[c.Name]; dup {
				return fmt.Errorf("folder %q has duplicate child %q", raw.Name, c.Name)
			}
			n.children = append(n.children, c)
			n.byName[c.Name] = c
		}
	default:
		return fmt.Errorf("unknown node kind %q", raw.Kind)
	}
	return nil
}
