package boxtree

import (
	"reflect"
	"testing"

	"github.com/bodega-app/bodega-api/internal/model"
)

func box(id, name string, parent *string) model.Box {
	return model.Box{ID: id, Name: name, ParentBoxID: parent}
}

func sp(s string) *string { return &s }

// garage
//   shelf
//     crate
//   bench
// attic
func sampleForest() *Forest {
	return Build([]model.Box{
		box("garage", "Garage", nil),
		box("shelf", "Shelf", sp("garage")),
		box("crate", "Crate", sp("shelf")),
		box("bench", "Bench", sp("garage")),
		box("attic", "Attic", nil),
	})
}

func TestDescendants(t *testing.T) {
	f := sampleForest()

	got := f.Descendants("garage")
	want := map[string]bool{"garage": true, "shelf": true, "crate": true, "bench": true}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Descendants(garage) = %v, want %v", got, want)
	}

	if len(f.Descendants("attic")) != 1 {
		t.Errorf("Descendants(attic) should contain only itself")
	}
}

func TestWouldCycle(t *testing.T) {
	f := sampleForest()

	tests := []struct {
		name      string
		boxID     string
		newParent string
		want      bool
	}{
		{"move into own child", "garage", "shelf", true},
		{"move into deep descendant", "garage", "crate", true},
		{"move into itself", "shelf", "shelf", true},
		{"move to sibling", "shelf", "bench", false},
		{"move to other root", "shelf", "attic", false},
		{"move to root level", "crate", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.WouldCycle(tt.boxID, tt.newParent); got != tt.want {
				t.Errorf("WouldCycle(%s, %s) = %v, want %v", tt.boxID, tt.newParent, got, tt.want)
			}
		})
	}
}

func TestPath(t *testing.T) {
	f := sampleForest()

	if got := f.Path("crate"); !reflect.DeepEqual(got, []string{"Garage", "Shelf", "Crate"}) {
		t.Errorf("Path(crate) = %v", got)
	}
	if got := f.PathIDs("crate"); !reflect.DeepEqual(got, []string{"garage", "shelf", "crate"}) {
		t.Errorf("PathIDs(crate) = %v", got)
	}
	if got := f.Path("attic"); !reflect.DeepEqual(got, []string{"Attic"}) {
		t.Errorf("Path(attic) = %v", got)
	}
}

func TestPathCorruptParentChain(t *testing.T) {
	// a and b point at each other; the guard must terminate the walk.
	f := Build([]model.Box{
		box("a", "A", sp("b")),
		box("b", "B", sp("a")),
	})
	got := f.Path("a")
	if len(got) == 0 || len(got) > maxDepth {
		t.Errorf("Path over a cyclic chain returned %d names", len(got))
	}
}

func TestCountSubtrees(t *testing.T) {
	f := sampleForest()
	items := []model.Item{
		{ID: "i1", BoxID: "crate"},
		{ID: "i2", BoxID: "crate"},
		{ID: "i3", BoxID: "shelf"},
		{ID: "i4", BoxID: "garage"},
	}

	counts := f.CountSubtrees(items)

	tests := []struct {
		id        string
		wantItems int
		wantBoxes int
	}{
		{"crate", 2, 0},
		{"shelf", 3, 1},
		{"garage", 4, 3},
		{"bench", 0, 0},
		{"attic", 0, 0},
	}
	for _, tt := range tests {
		c := counts[tt.id]
		if c.Items != tt.wantItems || c.Boxes != tt.wantBoxes {
			t.Errorf("counts[%s] = {Items:%d Boxes:%d}, want {Items:%d Boxes:%d}",
				tt.id, c.Items, c.Boxes, tt.wantItems, tt.wantBoxes)
		}
	}
}

func TestFlattenOrder(t *testing.T) {
	f := sampleForest()
	nodes := f.Flatten(f.CountSubtrees(nil))

	var ids []string
	var levels []int
	for _, n := range nodes {
		ids = append(ids, n.Box.ID)
		levels = append(levels, n.Level)
	}

	// Roots sorted by name (Attic < Garage), children the same way
	// (Bench < Shelf), each parent immediately before its subtree.
	wantIDs := []string{"attic", "garage", "bench", "shelf", "crate"}
	wantLevels := []int{0, 0, 1, 1, 2}
	if !reflect.DeepEqual(ids, wantIDs) {
		t.Errorf("Flatten order = %v, want %v", ids, wantIDs)
	}
	if !reflect.DeepEqual(levels, wantLevels) {
		t.Errorf("Flatten levels = %v, want %v", levels, wantLevels)
	}
}
