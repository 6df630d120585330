package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bodega-app/bodega-api/internal/config"
	"github.com/bodega-app/bodega-api/internal/db"
	"github.com/bodega-app/bodega-api/internal/secrets"
)

// Test database URL from environment or skip if not set
func getTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration tests")
	}

	pool, err := db.Open(context.Background(), dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := db.Migrate(context.Background(), pool); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	// Start every test from an empty dataset
	_, err = pool.Exec(context.Background(), `
		TRUNCATE users, warehouses, memberships, refresh_tokens, password_reset_tokens,
			boxes, items, item_favorites, stock_movements, warehouse_invites,
			activity_events, smtp_settings, llm_settings, change_log,
			processed_commands, sync_conflicts CASCADE
	`)
	if err != nil {
		t.Fatalf("Failed to truncate tables: %v", err)
	}

	return pool
}

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()

	pool := getTestDB(t)
	t.Cleanup(pool.Close)

	cfg := config.Config{
		Env:                 "test",
		JWTSecret:           "test-secret",
		JWTAlgorithm:        "HS256",
		AccessTokenMinutes:  30,
		RefreshTokenDays:    30,
		FrontendURL:         "http://localhost:4200",
		SecretEncryptionKey: "test-encryption-key",
		APIV1Prefix:         "/api/v1",
	}
	sec, err := secrets.New(cfg.SecretEncryptionKey, cfg.JWTSecret)
	if err != nil {
		t.Fatalf("Failed to build secret store: %v", err)
	}

	srv := NewServer(pool, cfg, sec)
	return srv, srv.Routes()
}

// makeRequest issues a JSON request against router, attaching the bearer
// token when given.
func makeRequest(t *testing.T, router http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var bodyReader *bytes.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	} else {
		bodyReader = bytes.NewReader([]byte{})
	}

	req := httptest.NewRequest(method, path, bodyReader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
}

// signupUser creates an account and returns its access token.
func signupUser(t *testing.T, router http.Handler, email string) string {
	t.Helper()

	w := makeRequest(t, router, "POST", "/api/v1/auth/signup", map[string]any{
		"email":    email,
		"password": "password123",
	}, "")
	if w.Code != 201 {
		t.Fatalf("Signup failed: status %d, body %s", w.Code, w.Body.String())
	}

	w = makeRequest(t, router, "POST", "/api/v1/auth/login", map[string]any{
		"email":    email,
		"password": "password123",
	}, "")
	if w.Code != 200 {
		t.Fatalf("Login failed: status %d, body %s", w.Code, w.Body.String())
	}

	var tokens struct {
		AccessToken string `json:"access_token"`
	}
	decodeBody(t, w, &tokens)
	if tokens.AccessToken == "" {
		t.Fatal("Login returned no access token")
	}
	return tokens.AccessToken
}

// createWarehouse returns the new warehouse's id.
func createWarehouse(t *testing.T, router http.Handler, token, name string) string {
	t.Helper()

	w := makeRequest(t, router, "POST", "/api/v1/warehouses", map[string]any{"name": name}, token)
	if w.Code != 201 {
		t.Fatalf("Create warehouse failed: status %d, body %s", w.Code, w.Body.String())
	}
	var wh struct {
		ID string `json:"id"`
	}
	decodeBody(t, w, &wh)
	return wh.ID
}

// createBox returns the new box's id.
func createBox(t *testing.T, router http.Handler, token, warehouseID, name string, parent *string) string {
	t.Helper()

	body := map[string]any{"name": name}
	if parent != nil {
		body["parent_box_id"] = *parent
	}
	w := makeRequest(t, router, "POST", fmt.Sprintf("/api/v1/warehouses/%s/boxes", warehouseID), body, token)
	if w.Code != 201 {
		t.Fatalf("Create box failed: status %d, body %s", w.Code, w.Body.String())
	}
	var box struct {
		ID string `json:"id"`
	}
	decodeBody(t, w, &box)
	return box.ID
}

// createItem returns the new item's id.
func createItem(t *testing.T, router http.Handler, token, warehouseID, boxID, name string) string {
	t.Helper()

	w := makeRequest(t, router, "POST", fmt.Sprintf("/api/v1/warehouses/%s/items", warehouseID), map[string]any{
		"box_id": boxID,
		"name":   name,
	}, token)
	if w.Code != 201 {
		t.Fatalf("Create item failed: status %d, body %s", w.Code, w.Body.String())
	}
	var item struct {
		ID string `json:"id"`
	}
	decodeBody(t, w, &item)
	return item.ID
}
