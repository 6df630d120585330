package transfer

// orderBoxes arranges a snapshot's boxes so every box comes after its
// in-batch parent. It works in rounds: a box is ready once its parent is
// nil or no longer pending (already emitted, or resolvable outside the
// batch). A round with no progress means the parent references are cyclic
// or dangling.
func orderBoxes(boxes []SnapshotBox) ([]SnapshotBox, error) {
	pending := make(map[string]bool, len(boxes))
	for _, b := range boxes {
		pending[b.ID] = true
	}

	ordered := make([]SnapshotBox, 0, len(boxes))
	for len(ordered) < len(boxes) {
		progressed := false
		for _, b := range boxes {
			if !pending[b.ID] {
				continue
			}
			if b.ParentBoxID != nil && pending[*b.ParentBoxID] {
				continue
			}
			ordered = append(ordered, b)
			pending[b.ID] = false
			progressed = true
		}
		if !progressed {
			return nil, badRequestf("cyclic or invalid box parent references")
		}
	}
	return ordered, nil
}
