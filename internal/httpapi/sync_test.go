package httpapi

import (
	"fmt"
	"testing"
)

func pushBody(warehouseID string, commands ...map[string]any) map[string]any {
	return map[string]any{
		"warehouse_id": warehouseID,
		"device_id":    "test-device",
		"commands":     commands,
	}
}

type pushResp struct {
	AppliedCommandIDs []string `json:"applied_command_ids"`
	SkippedCommandIDs []string `json:"skipped_command_ids"`
	Conflicts         []struct {
		ID            string         `json:"id"`
		CommandID     string         `json:"command_id"`
		EntityType    string         `json:"entity_type"`
		EntityID      string         `json:"entity_id"`
		Status        string         `json:"status"`
		ClientPayload map[string]any `json:"client_payload"`
	} `json:"conflicts"`
	LastSeq int64 `json:"last_seq"`
}

func TestSyncPush_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	_, router := newTestServer(t)
	token := signupUser(t, router, "sync@example.com")
	warehouseID := createWarehouse(t, router, token, "Sync Warehouse")

	t.Run("apply then replay is idempotent", func(t *testing.T) {
		cmd := map[string]any{
			"command_id": "cmd-create-box-1",
			"type":       "box.create",
			"payload":    map[string]any{"name": "Pushed Box"},
		}

		w := makeRequest(t, router, "POST", "/api/v1/sync/push", pushBody(warehouseID, cmd), token)
		if w.Code != 200 {
			t.Fatalf("push: status %d, body %s", w.Code, w.Body.String())
		}
		var first pushResp
		decodeBody(t, w, &first)
		if len(first.AppliedCommandIDs) != 1 || first.AppliedCommandIDs[0] != "cmd-create-box-1" {
			t.Fatalf("applied = %v", first.AppliedCommandIDs)
		}

		w = makeRequest(t, router, "POST", "/api/v1/sync/push", pushBody(warehouseID, cmd), token)
		var second pushResp
		decodeBody(t, w, &second)
		if len(second.AppliedCommandIDs) != 0 {
			t.Errorf("replay applied commands: %v", second.AppliedCommandIDs)
		}
		if len(second.SkippedCommandIDs) != 1 {
			t.Errorf("replay skipped = %v, want the original command", second.SkippedCommandIDs)
		}
		if second.LastSeq < first.LastSeq {
			t.Errorf("last_seq went backwards: %d -> %d", first.LastSeq, second.LastSeq)
		}
	})

	t.Run("move into own subtree is rejected", func(t *testing.T) {
		parent := createBox(t, router, token, warehouseID, "Parent", nil)
		child := createBox(t, router, token, warehouseID, "Child", &parent)

		w := makeRequest(t, router, "POST", "/api/v1/sync/push", pushBody(warehouseID, map[string]any{
			"command_id":   "cmd-cycle-move-1",
			"type":         "box.move",
			"entity_id":    parent,
			"base_version": 1,
			"payload":      map[string]any{"new_parent_box_id": child},
		}), token)
		if w.Code != 400 {
			t.Fatalf("cycle move: status %d, body %s", w.Code, w.Body.String())
		}
	})

	t.Run("stale base_version opens a conflict", func(t *testing.T) {
		boxID := createBox(t, router, token, warehouseID, "Contested", nil)

		// Server-side edit bumps the version past the client's base.
		w := makeRequest(t, router, "PATCH",
			fmt.Sprintf("/api/v1/warehouses/%s/boxes/%s", warehouseID, boxID),
			map[string]any{"name": "Contested v2"}, token)
		if w.Code != 200 {
			t.Fatalf("patch: status %d, body %s", w.Code, w.Body.String())
		}

		staleCmd := map[string]any{
			"command_id":   "cmd-stale-update-1",
			"type":         "box.update",
			"entity_id":    boxID,
			"base_version": 1,
			"payload":      map[string]any{"name": "Client Name"},
		}
		w = makeRequest(t, router, "POST", "/api/v1/sync/push", pushBody(warehouseID, staleCmd), token)
		if w.Code != 200 {
			t.Fatalf("push: status %d, body %s", w.Code, w.Body.String())
		}
		var resp pushResp
		decodeBody(t, w, &resp)
		if len(resp.Conflicts) != 1 {
			t.Fatalf("conflicts = %d, want 1 (body %s)", len(resp.Conflicts), w.Body.String())
		}
		conflict := resp.Conflicts[0]
		if conflict.Status != "open" || conflict.EntityID != boxID {
			t.Errorf("conflict = %+v", conflict)
		}

		// Replaying the conflicted command returns the same conflict and
		// skips the command.
		w = makeRequest(t, router, "POST", "/api/v1/sync/push", pushBody(warehouseID, staleCmd), token)
		var replay pushResp
		decodeBody(t, w, &replay)
		if len(replay.Conflicts) != 1 || replay.Conflicts[0].ID != conflict.ID {
			t.Errorf("replay conflicts = %+v", replay.Conflicts)
		}
		if len(replay.SkippedCommandIDs) != 1 {
			t.Errorf("replay skipped = %v", replay.SkippedCommandIDs)
		}

		// keep_client applies the stored payload and closes the conflict.
		w = makeRequest(t, router, "POST", "/api/v1/sync/resolve", map[string]any{
			"warehouse_id": warehouseID,
			"conflict_id":  conflict.ID,
			"resolution":   "keep_client",
		}, token)
		if w.Code != 200 {
			t.Fatalf("resolve: status %d, body %s", w.Code, w.Body.String())
		}

		w = makeRequest(t, router, "GET",
			fmt.Sprintf("/api/v1/warehouses/%s/boxes/%s", warehouseID, boxID), nil, token)
		var box struct {
			Name    string `json:"name"`
			Version int    `json:"version"`
		}
		decodeBody(t, w, &box)
		if box.Name != "Client Name" {
			t.Errorf("box name after keep_client = %q", box.Name)
		}
		if box.Version < 3 {
			t.Errorf("version = %d, want a bump past the server edit", box.Version)
		}
	})

	t.Run("non-member is rejected", func(t *testing.T) {
		otherToken := signupUser(t, router, "other@example.com")
		w := makeRequest(t, router, "POST", "/api/v1/sync/push", pushBody(warehouseID, map[string]any{
			"command_id": "cmd-outsider-1",
			"type":       "box.create",
			"payload":    map[string]any{},
		}), otherToken)
		if w.Code != 403 {
			t.Errorf("outsider push: status %d, want 403", w.Code)
		}
	})
}

func TestSyncPull_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	_, router := newTestServer(t)
	token := signupUser(t, router, "pull@example.com")
	warehouseID := createWarehouse(t, router, token, "Pull Warehouse")

	boxID := createBox(t, router, token, warehouseID, "Feed Box", nil)
	createItem(t, router, token, warehouseID, boxID, "Feed Item")

	type pullResp struct {
		Changes []struct {
			Seq        int64  `json:"seq"`
			EntityType string `json:"entity_type"`
			Action     string `json:"action"`
		} `json:"changes"`
		LastSeq int64 `json:"last_seq"`
	}

	w := makeRequest(t, router, "GET", "/api/v1/sync/pull?warehouse_id="+warehouseID, nil, token)
	if w.Code != 200 {
		t.Fatalf("pull: status %d, body %s", w.Code, w.Body.String())
	}
	var full pullResp
	decodeBody(t, w, &full)
	if len(full.Changes) < 2 {
		t.Fatalf("changes = %d, want the box and item creates", len(full.Changes))
	}
	for i := 1; i < len(full.Changes); i++ {
		if full.Changes[i].Seq <= full.Changes[i-1].Seq {
			t.Fatalf("seq not strictly increasing: %d then %d",
				full.Changes[i-1].Seq, full.Changes[i].Seq)
		}
	}
	if full.LastSeq != full.Changes[len(full.Changes)-1].Seq {
		t.Errorf("last_seq = %d, final change seq = %d",
			full.LastSeq, full.Changes[len(full.Changes)-1].Seq)
	}

	// Pulling from last_seq yields nothing new.
	w = makeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/sync/pull?warehouse_id=%s&since_seq=%d", warehouseID, full.LastSeq), nil, token)
	var empty pullResp
	decodeBody(t, w, &empty)
	if len(empty.Changes) != 0 {
		t.Errorf("pull past the head returned %d changes", len(empty.Changes))
	}
	if empty.LastSeq != full.LastSeq {
		t.Errorf("last_seq drifted: %d -> %d", full.LastSeq, empty.LastSeq)
	}
}

func TestSyncStockAdjust_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	_, router := newTestServer(t)
	token := signupUser(t, router, "stock@example.com")
	warehouseID := createWarehouse(t, router, token, "Stock Warehouse")
	boxID := createBox(t, router, token, warehouseID, "Stock Box", nil)
	itemID := createItem(t, router, token, warehouseID, boxID, "Stock Item")

	adjust := func(commandID string, delta int) pushResp {
		w := makeRequest(t, router, "POST", "/api/v1/sync/push", pushBody(warehouseID, map[string]any{
			"command_id": commandID,
			"type":       "stock.adjust",
			"entity_id":  itemID,
			"payload":    map[string]any{"delta": delta, "command_id": commandID},
		}), token)
		if w.Code != 200 {
			t.Fatalf("stock adjust: status %d, body %s", w.Code, w.Body.String())
		}
		var resp pushResp
		decodeBody(t, w, &resp)
		return resp
	}

	adjust("cmd-stock-up-1", 1)
	adjust("cmd-stock-up-2", 1)
	adjust("cmd-stock-down-1", -1)
	// Replay of an already-recorded movement must not double count.
	adjust("cmd-stock-up-1", 1)

	w := makeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/warehouses/%s/items/%s", warehouseID, itemID), nil, token)
	var item struct {
		Stock int `json:"stock"`
	}
	decodeBody(t, w, &item)
	if item.Stock != 1 {
		t.Errorf("stock = %d, want 1 (replays ignored)", item.Stock)
	}
}
