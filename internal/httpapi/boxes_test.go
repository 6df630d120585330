package httpapi

import (
	"fmt"
	"testing"
)

func TestBoxTree_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	_, router := newTestServer(t)
	token := signupUser(t, router, "tree@example.com")
	warehouseID := createWarehouse(t, router, token, "Tree Warehouse")

	garage := createBox(t, router, token, warehouseID, "Garage", nil)
	shelf := createBox(t, router, token, warehouseID, "Shelf", &garage)
	createBox(t, router, token, warehouseID, "Attic", nil)
	createItem(t, router, token, warehouseID, shelf, "Drill")
	createItem(t, router, token, warehouseID, garage, "Ladder")

	w := makeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/warehouses/%s/boxes/tree", warehouseID), nil, token)
	if w.Code != 200 {
		t.Fatalf("tree: status %d, body %s", w.Code, w.Body.String())
	}

	var nodes []struct {
		ID                  string `json:"id"`
		Name                string `json:"name"`
		Level               int    `json:"level"`
		TotalItemsRecursive int    `json:"total_items_recursive"`
		TotalBoxesRecursive int    `json:"total_boxes_recursive"`
	}
	decodeBody(t, w, &nodes)

	if len(nodes) != 3 {
		t.Fatalf("got %d nodes, want 3", len(nodes))
	}
	// Pre-order, roots alphabetical: Attic, Garage, then Garage's Shelf.
	if nodes[0].Name != "Attic" || nodes[1].Name != "Garage" || nodes[2].Name != "Shelf" {
		t.Errorf("order = %s, %s, %s", nodes[0].Name, nodes[1].Name, nodes[2].Name)
	}
	if nodes[1].TotalItemsRecursive != 2 || nodes[1].TotalBoxesRecursive != 1 {
		t.Errorf("Garage counts = %+v", nodes[1])
	}
	if nodes[2].Level != 1 {
		t.Errorf("Shelf level = %d, want 1", nodes[2].Level)
	}
}

func TestBoxMoveCycle_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	_, router := newTestServer(t)
	token := signupUser(t, router, "move@example.com")
	warehouseID := createWarehouse(t, router, token, "Move Warehouse")

	parent := createBox(t, router, token, warehouseID, "Parent", nil)
	child := createBox(t, router, token, warehouseID, "Child", &parent)
	grandchild := createBox(t, router, token, warehouseID, "Grandchild", &child)

	move := func(boxID string, newParent *string) int {
		body := map[string]any{"new_parent_box_id": newParent}
		w := makeRequest(t, router, "POST",
			fmt.Sprintf("/api/v1/warehouses/%s/boxes/%s/move", warehouseID, boxID), body, token)
		return w.Code
	}

	if code := move(parent, &grandchild); code != 400 {
		t.Errorf("move into grandchild: status %d, want 400", code)
	}
	if code := move(parent, &parent); code != 400 {
		t.Errorf("move into itself: status %d, want 400", code)
	}
	if code := move(grandchild, nil); code != 200 {
		t.Errorf("move to root: status %d, want 200", code)
	}
	if code := move(parent, &grandchild); code != 200 {
		t.Errorf("move under detached ex-descendant: status %d, want 200", code)
	}
}

func TestBoxDeleteCascade_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	_, router := newTestServer(t)
	token := signupUser(t, router, "delete@example.com")
	warehouseID := createWarehouse(t, router, token, "Delete Warehouse")

	parent := createBox(t, router, token, warehouseID, "Parent", nil)
	child := createBox(t, router, token, warehouseID, "Child", &parent)
	itemID := createItem(t, router, token, warehouseID, child, "Nested Item")

	// Nested content without force is refused.
	w := makeRequest(t, router, "DELETE",
		fmt.Sprintf("/api/v1/warehouses/%s/boxes/%s", warehouseID, parent),
		map[string]any{"force": false}, token)
	if w.Code != 400 {
		t.Fatalf("delete without force: status %d, body %s", w.Code, w.Body.String())
	}

	w = makeRequest(t, router, "DELETE",
		fmt.Sprintf("/api/v1/warehouses/%s/boxes/%s", warehouseID, parent),
		map[string]any{"force": true}, token)
	if w.Code != 200 {
		t.Fatalf("forced delete: status %d, body %s", w.Code, w.Body.String())
	}

	// Whole subtree is gone from the live view.
	for _, boxID := range []string{parent, child} {
		w = makeRequest(t, router, "GET",
			fmt.Sprintf("/api/v1/warehouses/%s/boxes/%s", warehouseID, boxID), nil, token)
		var box struct {
			DeletedAt *string `json:"deleted_at"`
		}
		decodeBody(t, w, &box)
		if box.DeletedAt == nil {
			t.Errorf("box %s still live after cascade", boxID)
		}
	}
	w = makeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/warehouses/%s/items/%s", warehouseID, itemID), nil, token)
	var item struct {
		DeletedAt *string `json:"deleted_at"`
	}
	decodeBody(t, w, &item)
	if item.DeletedAt == nil {
		t.Error("nested item still live after cascade")
	}

	// Restoring the child while its parent is deleted is refused.
	w = makeRequest(t, router, "POST",
		fmt.Sprintf("/api/v1/warehouses/%s/boxes/%s/restore", warehouseID, child), nil, token)
	if w.Code != 400 {
		t.Errorf("restore under deleted parent: status %d, want 400", w.Code)
	}

	// Parent first, then child.
	w = makeRequest(t, router, "POST",
		fmt.Sprintf("/api/v1/warehouses/%s/boxes/%s/restore", warehouseID, parent), nil, token)
	if w.Code != 200 {
		t.Fatalf("restore parent: status %d, body %s", w.Code, w.Body.String())
	}
	w = makeRequest(t, router, "POST",
		fmt.Sprintf("/api/v1/warehouses/%s/boxes/%s/restore", warehouseID, child), nil, token)
	if w.Code != 200 {
		t.Errorf("restore child: status %d, body %s", w.Code, w.Body.String())
	}
}

func TestBoxDeleteEmptyLeaf_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	_, router := newTestServer(t)
	token := signupUser(t, router, "leaf-delete@example.com")
	warehouseID := createWarehouse(t, router, token, "Leaf Warehouse")
	boxID := createBox(t, router, token, warehouseID, "Empty Leaf", nil)

	w := makeRequest(t, router, "DELETE",
		fmt.Sprintf("/api/v1/warehouses/%s/boxes/%s", warehouseID, boxID), nil, token)
	if w.Code != 200 {
		t.Fatalf("delete leaf: status %d, body %s", w.Code, w.Body.String())
	}

	w = makeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/warehouses/%s/boxes/%s", warehouseID, boxID), nil, token)
	var box struct {
		DeletedAt *string `json:"deleted_at"`
		Version   int     `json:"version"`
	}
	decodeBody(t, w, &box)
	if box.DeletedAt == nil {
		t.Error("box still live after delete")
	}
	if box.Version != 2 {
		t.Errorf("version = %d, want 2", box.Version)
	}

	// Replay is a no-op and leaves the stamp alone.
	w = makeRequest(t, router, "DELETE",
		fmt.Sprintf("/api/v1/warehouses/%s/boxes/%s", warehouseID, boxID), nil, token)
	if w.Code != 200 {
		t.Fatalf("repeat delete: status %d, body %s", w.Code, w.Body.String())
	}
	w = makeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/warehouses/%s/boxes/%s", warehouseID, boxID), nil, token)
	decodeBody(t, w, &box)
	if box.DeletedAt == nil || box.Version != 2 {
		t.Errorf("box after repeat delete = %+v", box)
	}
}

func TestBoxByQR_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	_, router := newTestServer(t)
	token := signupUser(t, router, "qr@example.com")
	warehouseID := createWarehouse(t, router, token, "QR Warehouse")
	boxID := createBox(t, router, token, warehouseID, "Labeled", nil)

	w := makeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/warehouses/%s/boxes/%s", warehouseID, boxID), nil, token)
	var box struct {
		QRToken string `json:"qr_token"`
	}
	decodeBody(t, w, &box)

	w = makeRequest(t, router, "GET", "/api/v1/boxes/by-qr/"+box.QRToken, nil, token)
	if w.Code != 200 {
		t.Fatalf("by-qr: status %d, body %s", w.Code, w.Body.String())
	}
	var resolved struct {
		BoxID       string `json:"box_id"`
		WarehouseID string `json:"warehouse_id"`
	}
	decodeBody(t, w, &resolved)
	if resolved.BoxID != boxID || resolved.WarehouseID != warehouseID {
		t.Errorf("resolved = %+v", resolved)
	}

	// A non-member sees 403, not 404: the label exists but is off limits.
	outsider := signupUser(t, router, "qr-outsider@example.com")
	w = makeRequest(t, router, "GET", "/api/v1/boxes/by-qr/"+box.QRToken, nil, outsider)
	if w.Code != 403 {
		t.Errorf("outsider by-qr: status %d, want 403", w.Code)
	}

	w = makeRequest(t, router, "GET", "/api/v1/boxes/by-qr/unknown-token", nil, token)
	if w.Code != 404 {
		t.Errorf("unknown token: status %d, want 404", w.Code)
	}
}
