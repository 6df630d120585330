package httpapi

import (
	"fmt"
	"testing"

	"github.com/bodega-app/bodega-api/internal/service/transfer"
)

func TestExportImportRoundTrip_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	_, router := newTestServer(t)
	token := signupUser(t, router, "transfer@example.com")

	source := createWarehouse(t, router, token, "Source Warehouse")
	garage := createBox(t, router, token, source, "Garage", nil)
	shelf := createBox(t, router, token, source, "Shelf", &garage)
	itemID := createItem(t, router, token, source, shelf, "Drill")

	// Put some stock on the ledger so movements travel too.
	w := makeRequest(t, router, "POST",
		fmt.Sprintf("/api/v1/warehouses/%s/items/%s/stock/adjust", source, itemID),
		map[string]any{"delta": 1, "command_id": "cmd-transfer-stock-1"}, token)
	if w.Code != 200 {
		t.Fatalf("stock adjust: status %d, body %s", w.Code, w.Body.String())
	}

	w = makeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/warehouses/%s/export", source), nil, token)
	if w.Code != 200 {
		t.Fatalf("export: status %d, body %s", w.Code, w.Body.String())
	}
	var snap transfer.Snapshot
	decodeBody(t, w, &snap)

	if snap.SchemaVersion != transfer.SchemaVersion {
		t.Fatalf("schema_version = %d", snap.SchemaVersion)
	}
	if len(snap.Boxes) != 2 || len(snap.Items) != 1 || len(snap.StockMovements) != 1 {
		t.Fatalf("snapshot shape: boxes=%d items=%d movements=%d",
			len(snap.Boxes), len(snap.Items), len(snap.StockMovements))
	}

	// Import into the same warehouse: everything already exists, movements
	// are already on the ledger.
	w = makeRequest(t, router, "POST",
		fmt.Sprintf("/api/v1/warehouses/%s/import", source), snap, token)
	if w.Code != 200 {
		t.Fatalf("self import: status %d, body %s", w.Code, w.Body.String())
	}
	var selfRes transfer.ImportResult
	decodeBody(t, w, &selfRes)
	if selfRes.StockMovementsUpserted != 0 {
		t.Errorf("self import re-recorded %d movements", selfRes.StockMovementsUpserted)
	}

	w = makeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/warehouses/%s/items/%s", source, itemID), nil, token)
	var after struct {
		Stock int `json:"stock"`
	}
	decodeBody(t, w, &after)
	if after.Stock != 1 {
		t.Errorf("stock after self import = %d, want 1", after.Stock)
	}

	// Import into a fresh warehouse: ids collide with rows the source
	// warehouse owns, so every row is remapped to fresh ids.
	target := createWarehouse(t, router, token, "Target Warehouse")
	w = makeRequest(t, router, "POST",
		fmt.Sprintf("/api/v1/warehouses/%s/import", target), snap, token)
	if w.Code != 200 {
		t.Fatalf("import: status %d, body %s", w.Code, w.Body.String())
	}
	var res transfer.ImportResult
	decodeBody(t, w, &res)
	if res.BoxesUpserted != 2 || res.ItemsUpserted != 1 || res.StockMovementsUpserted != 1 {
		t.Errorf("import result = %+v", res)
	}

	// The target now carries the renamed warehouse and the copied forest.
	w = makeRequest(t, router, "GET", fmt.Sprintf("/api/v1/warehouses/%s", target), nil, token)
	var wh struct {
		Name string `json:"name"`
	}
	decodeBody(t, w, &wh)
	if wh.Name != "Source Warehouse" {
		t.Errorf("target name = %q, want the snapshot's name", wh.Name)
	}

	w = makeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/warehouses/%s/export", target), nil, token)
	var reexport transfer.Snapshot
	decodeBody(t, w, &reexport)
	if len(reexport.Boxes) != 2 || len(reexport.Items) != 1 || len(reexport.StockMovements) != 1 {
		t.Errorf("re-export shape: boxes=%d items=%d movements=%d",
			len(reexport.Boxes), len(reexport.Items), len(reexport.StockMovements))
	}
	for _, b := range reexport.Boxes {
		if b.ID == garage || b.ID == shelf {
			t.Errorf("box id %s crossed warehouses without a remap", b.ID)
		}
	}
}

func TestImportRejectsCycles_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	_, router := newTestServer(t)
	token := signupUser(t, router, "cycle-import@example.com")
	target := createWarehouse(t, router, token, "Cycle Target")

	a, b := "11111111-1111-4111-8111-111111111111", "22222222-2222-4222-8222-222222222222"
	snap := map[string]any{
		"schema_version": transfer.SchemaVersion,
		"warehouse":      map[string]any{"name": "Broken"},
		"boxes": []map[string]any{
			{"id": a, "parent_box_id": b, "name": "A", "version": 1},
			{"id": b, "parent_box_id": a, "name": "B", "version": 1},
		},
		"items":           []any{},
		"stock_movements": []any{},
	}

	w := makeRequest(t, router, "POST",
		fmt.Sprintf("/api/v1/warehouses/%s/import", target), snap, token)
	if w.Code != 400 {
		t.Errorf("cyclic import: status %d, want 400 (body %s)", w.Code, w.Body.String())
	}
}

func TestImportUnknownParent_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	_, router := newTestServer(t)
	token := signupUser(t, router, "parent-import@example.com")
	target := createWarehouse(t, router, token, "Parent Target")

	snap := map[string]any{
		"schema_version": transfer.SchemaVersion,
		"warehouse":      map[string]any{"name": ""},
		"boxes": []map[string]any{
			{
				"id":            "33333333-3333-4333-8333-333333333333",
				"parent_box_id": "44444444-4444-4444-8444-444444444444",
				"name":          "Orphan",
				"version":       1,
			},
		},
		"items":           []any{},
		"stock_movements": []any{},
	}

	w := makeRequest(t, router, "POST",
		fmt.Sprintf("/api/v1/warehouses/%s/import", target), snap, token)
	if w.Code != 400 {
		t.Errorf("unknown parent: status %d, want 400 (body %s)", w.Code, w.Body.String())
	}
}
