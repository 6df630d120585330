package transfer

import (
	"errors"
	"testing"
)

func sp(s string) *string { return &s }

func TestOrderBoxesParentsFirst(t *testing.T) {
	// Deliberately listed child-before-parent.
	boxes := []SnapshotBox{
		{ID: "crate", ParentBoxID: sp("shelf")},
		{ID: "shelf", ParentBoxID: sp("garage")},
		{ID: "garage"},
		{ID: "attic"},
	}

	ordered, err := orderBoxes(boxes)
	if err != nil {
		t.Fatalf("orderBoxes: %v", err)
	}

	pos := make(map[string]int, len(ordered))
	for i, b := range ordered {
		pos[b.ID] = i
	}
	for _, b := range boxes {
		if b.ParentBoxID == nil {
			continue
		}
		if pos[*b.ParentBoxID] > pos[b.ID] {
			t.Errorf("box %s emitted before its parent %s", b.ID, *b.ParentBoxID)
		}
	}
}

func TestOrderBoxesOutOfBatchParent(t *testing.T) {
	// Parent outside the batch counts as resolvable; validation against the
	// target warehouse happens before ordering.
	ordered, err := orderBoxes([]SnapshotBox{
		{ID: "child", ParentBoxID: sp("already-in-target")},
	})
	if err != nil {
		t.Fatalf("orderBoxes: %v", err)
	}
	if len(ordered) != 1 {
		t.Fatalf("got %d boxes, want 1", len(ordered))
	}
}

func TestOrderBoxesCycle(t *testing.T) {
	_, err := orderBoxes([]SnapshotBox{
		{ID: "a", ParentBoxID: sp("b")},
		{ID: "b", ParentBoxID: sp("a")},
	})
	var bad *BadRequestError
	if !errors.As(err, &bad) {
		t.Fatalf("orderBoxes on a cycle = %v, want BadRequestError", err)
	}
}

func TestOrderBoxesEmpty(t *testing.T) {
	ordered, err := orderBoxes(nil)
	if err != nil {
		t.Fatalf("orderBoxes(nil): %v", err)
	}
	if len(ordered) != 0 {
		t.Fatalf("got %d boxes, want 0", len(ordered))
	}
}
