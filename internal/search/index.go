// Package search answers substring and prefix queries over the node names
// of one virtual tree. An index is immutable once built and is rebuilt
// whenever the tree is replaced.
package search

import (
	"sort"
	"strings"

	"github.com/DanielSnd/zaudiobrowser/internal/tree"
)

// Match tiers, best first. Results order by tier, then name, then path.
const (
	TierExact = iota
	TierPrefix
	TierSubstring
)

// Match is one ranked query result.
type Match struct {
	Path string
	Name string
	Kind tree.Kind
	Tier int
}

type entry struct {
	name  string
	lower string
	path  string
	kind  tree.Kind
}

// Index is a queryable snapshot of all node names in a tree.
type Index struct {
	// entries sorted by (lower, path); all lookup structures index into it.
	entries []entry
	exact   map[string][]int
	trigram map[string][]int
}

const minTrigramQuery = 3

// NewIndex builds an index over every node in the tree.
func NewIndex(t *tree.Tree) *Index {
	idx := &Index{
		exact:   make(map[string][]int),
		trigram: make(map[string][]int),
	}
	t.Walk(func(path string, n *tree.Node) error {
		idx.entries = append(idx.entries, entry{
			name:  n.Name,
			lower: strings.ToLower(n.Name),
			path:  path,
			kind:  n.Kind,
		})
		return nil
	})

	sort.Slice(idx.entries, func(i, j int) bool {
		a, b := idx.entries[i], idx.entries[j]
		if a.lower != b.lower {
			return a.lower < b.lower
		}
		return a.path < b.path
	})

	for i, e := range idx.entries {
		idx.exact[e.lower] = append(idx.exact[e.lower], i)
		for _, g := range trigrams(e.lower) {
			posts := idx.trigram[g]
			if len(posts) == 0 || posts[len(posts)-1] != i {
				idx.trigram[g] = append(posts, i)
			}
		}
	}
	return idx
}

// Len returns the number of indexed nodes.
func (idx *Index) Len() int { return len(idx.entries) }

// Query returns matches for text ranked exact, then prefix, then substring,
// alphabetical within each tier. Repeated identical queries against the
// same index return identical ordered results. An empty query matches
// nothing.
func (idx *Index) Query(text string, caseSensitive bool) []Match {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)

	accept := func(e entry) bool {
		return !caseSensitive || strings.Contains(e.name, text)
	}

	seen := make(map[int]bool)
	var out []Match

	collect := func(tier int, indices []int, ok func(entry) bool) {
		for _, i := range indices {
			if seen[i] {
				continue
			}
			e := idx.entries[i]
			if !ok(e) || !accept(e) {
				continue
			}
			seen[i] = true
			out = append(out, Match{Path: e.path, Name: e.name, Kind: e.kind, Tier: tier})
		}
	}

	// Exact tier.
	exactOK := func(e entry) bool { return !caseSensitive || e.name == text }
	collect(TierExact, idx.exact[lower], exactOK)

	// Prefix tier: binary search for the lowercase prefix range. Entries
	// are sorted, so the collected slice is already alphabetical.
	lo := sort.Search(len(idx.entries), func(i int) bool { return idx.entries[i].lower >= lower })
	hi := sort.Search(len(idx.entries), func(i int) bool {
		return !strings.HasPrefix(idx.entries[i].lower, lower) && idx.entries[i].lower > lower
	})
	prefixIdx := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		prefixIdx = append(prefixIdx, i)
	}
	prefixOK := func(e entry) bool { return !caseSensitive || strings.HasPrefix(e.name, text) }
	collect(TierPrefix, prefixIdx, prefixOK)

	// Substring tier: intersect trigram postings when the query is long
	// enough, otherwise fall back to scanning the name list.
	var candidates []int
	if len(lower) >= minTrigramQuery {
		candidates = idx.intersectTrigrams(lower)
	} else {
		candidates = make([]int, len(idx.entries))
		for i := range idx.entries {
			candidates[i] = i
		}
	}
	subOK := func(e entry) bool { return strings.Contains(e.lower, lower) }
	collect(TierSubstring, candidates, subOK)

	return out
}

// intersectTrigrams returns candidate entry indices containing every
// trigram of the query, in sorted order.
func (idx *Index) intersectTrigrams(lower string) []int {
	grams := trigrams(lower)
	if len(grams) == 0 {
		return nil
	}
	result := idx.trigram[grams[0]]
	for _, g := range grams[1:] {
		result = intersectSorted(result, idx.trigram[g])
		if len(result) == 0 {
			return nil
		}
	}
	return result
}

func intersectSorted(a, b []int) []int {
	var out []int
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

// trigrams returns the distinct 3-rune windows of s in first-seen order.
func trigrams(s string) []string {
	runes := []rune(s)
	if len(runes) < 3 {
		return nil
	}
	seen := make(map[string]bool, len(runes))
	out := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		g := string(runes[i : i+3])
		if !seen[g] {
			seen[g] = true
			out = append(out, g)
		}
	}
	return out
}
