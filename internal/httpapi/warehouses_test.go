package httpapi

import (
	"fmt"
	"testing"
)

func TestWarehouseMembership_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	_, router := newTestServer(t)
	alice := signupUser(t, router, "wh-alice@example.com")
	bob := signupUser(t, router, "wh-bob@example.com")

	warehouseID := createWarehouse(t, router, alice, "Alice's Warehouse")

	// The creator sees it; bob does not.
	w := makeRequest(t, router, "GET", "/api/v1/warehouses", nil, alice)
	var mine []struct {
		ID string `json:"id"`
	}
	decodeBody(t, w, &mine)
	if len(mine) != 1 || mine[0].ID != warehouseID {
		t.Errorf("alice's warehouses = %+v", mine)
	}

	w = makeRequest(t, router, "GET", "/api/v1/warehouses", nil, bob)
	var theirs []struct {
		ID string `json:"id"`
	}
	decodeBody(t, w, &theirs)
	if len(theirs) != 0 {
		t.Errorf("bob's warehouses = %+v", theirs)
	}

	// Every warehouse-scoped route is gated on membership.
	w = makeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/warehouses/%s/boxes/tree", warehouseID), nil, bob)
	if w.Code != 403 {
		t.Errorf("outsider tree: status %d, want 403", w.Code)
	}
}

func TestInviteFlow_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	_, router := newTestServer(t)
	alice := signupUser(t, router, "invite-alice@example.com")
	warehouseID := createWarehouse(t, router, alice, "Invite Warehouse")

	w := makeRequest(t, router, "POST",
		fmt.Sprintf("/api/v1/warehouses/%s/invites", warehouseID),
		map[string]any{"email": "invite-bob@example.com"}, alice)
	if w.Code != 201 {
		t.Fatalf("invite: status %d, body %s", w.Code, w.Body.String())
	}
	var invite struct {
		InviteToken string `json:"invite_token"`
		InviteURL   string `json:"invite_url"`
	}
	decodeBody(t, w, &invite)
	if invite.InviteURL == "" {
		t.Error("invite_url missing")
	}

	// Address-bound invite rejects a different account.
	carol := signupUser(t, router, "invite-carol@example.com")
	w = makeRequest(t, router, "POST", "/api/v1/invites/"+invite.InviteToken+"/accept", nil, carol)
	if w.Code != 403 {
		t.Errorf("wrong account accept: status %d, want 403", w.Code)
	}

	bob := signupUser(t, router, "invite-bob@example.com")
	w = makeRequest(t, router, "POST", "/api/v1/invites/"+invite.InviteToken+"/accept", nil, bob)
	if w.Code != 200 {
		t.Fatalf("accept: status %d, body %s", w.Code, w.Body.String())
	}

	// Single use.
	w = makeRequest(t, router, "POST", "/api/v1/invites/"+invite.InviteToken+"/accept", nil, bob)
	if w.Code != 400 {
		t.Errorf("second accept: status %d, want 400", w.Code)
	}

	w = makeRequest(t, router, "POST", "/api/v1/invites/no-such-token/accept", nil, bob)
	if w.Code != 404 {
		t.Errorf("unknown invite: status %d, want 404", w.Code)
	}

	w = makeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/warehouses/%s/members", warehouseID), nil, bob)
	if w.Code != 200 {
		t.Fatalf("members: status %d, body %s", w.Code, w.Body.String())
	}
	var members []struct {
		UserID string `json:"user_id"`
	}
	decodeBody(t, w, &members)
	if len(members) != 2 {
		t.Errorf("members = %d, want 2", len(members))
	}
}

func TestActivityFeed_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	_, router := newTestServer(t)
	token := signupUser(t, router, "activity@example.com")
	warehouseID := createWarehouse(t, router, token, "Activity Warehouse")
	boxID := createBox(t, router, token, warehouseID, "Box", nil)
	createItem(t, router, token, warehouseID, boxID, "Item")

	w := makeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/warehouses/%s/activity", warehouseID), nil, token)
	if w.Code != 200 {
		t.Fatalf("activity: status %d, body %s", w.Code, w.Body.String())
	}
	var events []struct {
		EventType string `json:"event_type"`
	}
	decodeBody(t, w, &events)

	// Newest first: item.created, box.created, warehouse.created.
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if events[0].EventType != "item.created" || events[2].EventType != "warehouse.created" {
		t.Errorf("event order = %+v", events)
	}

	// Limit is honored.
	w = makeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/warehouses/%s/activity?limit=1", warehouseID), nil, token)
	decodeBody(t, w, &events)
	if len(events) != 1 {
		t.Errorf("limited events = %d, want 1", len(events))
	}
}
