// Package boxtree implements the pure forest math for a warehouse's boxes:
// child maps, subtree collection, recursive counts, pre-order flattening,
// and path reconstruction. Handlers load all rows for a warehouse once and
// feed them here; nothing in this package touches the database.
package boxtree

import (
	"sort"
	"strings"

	"github.com/bodega-app/bodega-api/internal/model"
)

// maxDepth guards path walks against corrupt parent chains.
const maxDepth = 128

// Forest indexes one warehouse's boxes by id and by parent.
type Forest struct {
	ByID     map[string]*model.Box
	children map[string][]string // parent id ("" for roots) -> child ids
}

// Build indexes boxes. The caller decides whether deleted boxes are part of
// the view by filtering before calling.
func Build(boxes []model.Box) *Forest {
	f := &Forest{
		ByID:     make(map[string]*model.Box, len(boxes)),
		children: make(map[string][]string),
	}
	for i := range boxes {
		b := &boxes[i]
		f.ByID[b.ID] = b
		f.children[parentKey(b.ParentBoxID)] = append(f.children[parentKey(b.ParentBoxID)], b.ID)
	}
	return f
}

func parentKey(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Children returns the ids of the direct children of id.
func (f *Forest) Children(id string) []string {
	return f.children[id]
}

// Roots returns the ids of boxes with no parent in the view.
func (f *Forest) Roots() []string {
	return f.children[""]
}

// Descendants collects id and every box transitively below it.
func (f *Forest) Descendants(id string) map[string]bool {
	out := make(map[string]bool)
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if out[cur] {
			continue
		}
		out[cur] = true
		stack = append(stack, f.children[cur]...)
	}
	return out
}

// WouldCycle reports whether re-parenting boxID under newParentID would
// close a cycle: the new parent must not be the box itself or any box in
// its subtree. The check runs over the full precomputed forest, never a
// per-step parent climb.
func (f *Forest) WouldCycle(boxID, newParentID string) bool {
	if newParentID == "" {
		return false
	}
	if newParentID == boxID {
		return true
	}
	return f.Descendants(boxID)[newParentID]
}

// Path returns the names from the root down to id, capped at maxDepth.
func (f *Forest) Path(id string) []string {
	var rev []string
	cur := id
	for guard := 0; cur != "" && guard < maxDepth; guard++ {
		b, ok := f.ByID[cur]
		if !ok {
			break
		}
		rev = append(rev, b.Name)
		cur = parentKey(b.ParentBoxID)
	}
	reverse(rev)
	return rev
}

// PathIDs is Path over ids instead of names.
func (f *Forest) PathIDs(id string) []string {
	var rev []string
	cur := id
	for guard := 0; cur != "" && guard < maxDepth; guard++ {
		b, ok := f.ByID[cur]
		if !ok {
			break
		}
		rev = append(rev, b.ID)
		cur = parentKey(b.ParentBoxID)
	}
	reverse(rev)
	return rev
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// Counts carries the two recursive aggregates of a node.
type Counts struct {
	Items int // live items in the subtree, node included
	Boxes int // descendant boxes, node excluded
}

// CountSubtrees computes Counts for every box in one memoized DFS over a
// single scan of boxes plus the warehouse's live items.
func (f *Forest) CountSubtrees(liveItems []model.Item) map[string]Counts {
	direct := make(map[string]int)
	for i := range liveItems {
		direct[liveItems[i].BoxID]++
	}

	memo := make(map[string]Counts, len(f.ByID))
	var walk func(id string) Counts
	walk = func(id string) Counts {
		if c, ok := memo[id]; ok {
			return c
		}
		c := Counts{Items: direct[id]}
		for _, child := range f.children[id] {
			cc := walk(child)
			c.Items += cc.Items
			c.Boxes += 1 + cc.Boxes
		}
		memo[id] = c
		return c
	}
	for id := range f.ByID {
		walk(id)
	}
	return memo
}

// Node is one row of the flattened tree listing.
type Node struct {
	Box                 *model.Box
	Level               int
	TotalItemsRecursive int
	TotalBoxesRecursive int
}

// Flatten produces the pre-order listing: roots sorted case-insensitively
// by name, each followed by its subtree sorted the same way.
func (f *Forest) Flatten(counts map[string]Counts) []Node {
	out := make([]Node, 0, len(f.ByID))

	var visit func(id string, level int)
	visit = func(id string, level int) {
		c := counts[id]
		out = append(out, Node{
			Box:                 f.ByID[id],
			Level:               level,
			TotalItemsRecursive: c.Items,
			TotalBoxesRecursive: c.Boxes,
		})
		for _, child := range f.sortedByName(f.children[id]) {
			visit(child, level+1)
		}
	}

	for _, root := range f.sortedByName(f.children[""]) {
		visit(root, 0)
	}
	return out
}

func (f *Forest) sortedByName(ids []string) []string {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.SliceStable(sorted, func(i, j int) bool {
		return strings.ToLower(f.ByID[sorted[i]].Name) < strings.ToLower(f.ByID[sorted[j]].Name)
	})
	return sorted
}
