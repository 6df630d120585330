package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/bodega-app/bodega-api/internal/activity"
	"github.com/bodega-app/bodega-api/internal/auth"
	"github.com/bodega-app/bodega-api/internal/ident"
	"github.com/bodega-app/bodega-api/internal/model"
)

// ListWarehouses handles GET /warehouses: every warehouse the caller is a
// member of, newest first.
func (s *Server) ListWarehouses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rows, err := s.DB.Query(ctx, `
		SELECT w.id, w.name, w.created_by, w.created_at
		FROM warehouses w
		JOIN memberships m ON m.warehouse_id = w.id
		WHERE m.user_id = $1
		ORDER BY w.created_at DESC
	`, auth.UserID(ctx))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer rows.Close()

	warehouses := make([]model.Warehouse, 0)
	for rows.Next() {
		var wh model.Warehouse
		if err := rows.Scan(&wh.ID, &wh.Name, &wh.CreatedBy, &wh.CreatedAt); err != nil {
			writeServiceError(w, r, err)
			return
		}
		warehouses = append(warehouses, wh)
	}
	if err := rows.Err(); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, warehouses)
}

type warehouseCreateReq struct {
	Name string `json:"name"`
}

// CreateWarehouse handles POST /warehouses; the creator gets the first
// membership row in the same transaction.
func (s *Server) CreateWarehouse(w http.ResponseWriter, r *http.Request) {
	var req warehouseCreateReq
	if !decodeJSON(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, r, 400, "name is required")
		return
	}

	ctx := r.Context()
	userID := auth.UserID(ctx)

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer tx.Rollback(ctx)

	wh := model.Warehouse{ID: ident.NewID(), Name: name, CreatedBy: userID}
	err = tx.QueryRow(ctx, `
		INSERT INTO warehouses (id, name, created_by)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, wh.ID, wh.Name, wh.CreatedBy).Scan(&wh.CreatedAt)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO memberships (user_id, warehouse_id) VALUES ($1, $2)`, userID, wh.ID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	activity.Record(ctx, tx, wh.ID, userID, "warehouse.created", strPtr("warehouse"), &wh.ID,
		map[string]any{"name": wh.Name})

	if err := tx.Commit(ctx); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 201, wh)
}

// GetWarehouse handles GET /warehouses/{w}.
func (s *Server) GetWarehouse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	warehouseID := chi.URLParam(r, "warehouseID")

	var wh model.Warehouse
	err := s.DB.QueryRow(ctx, `
		SELECT id, name, created_by, created_at FROM warehouses WHERE id = $1
	`, warehouseID).Scan(&wh.ID, &wh.Name, &wh.CreatedBy, &wh.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, r, 404, "Warehouse not found")
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, wh)
}

type memberResp struct {
	UserID      string    `json:"user_id"`
	WarehouseID string    `json:"warehouse_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListMembers handles GET /warehouses/{w}/members.
func (s *Server) ListMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rows, err := s.DB.Query(ctx, `
		SELECT user_id, warehouse_id, created_at FROM memberships WHERE warehouse_id = $1
	`, chi.URLParam(r, "warehouseID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer rows.Close()

	members := make([]memberResp, 0)
	for rows.Next() {
		var m memberResp
		if err := rows.Scan(&m.UserID, &m.WarehouseID, &m.CreatedAt); err != nil {
			writeServiceError(w, r, err)
			return
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, members)
}

type inviteCreateReq struct {
	Email          *string `json:"email"`
	ExpiresInHours int     `json:"expires_in_hours"`
}

type inviteResp struct {
	WarehouseID string    `json:"warehouse_id"`
	InviteToken string    `json:"invite_token"`
	InviteURL   string    `json:"invite_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// CreateInvite handles POST /warehouses/{w}/invites. Only the token's
// SHA-256 digest is stored; the raw token leaves once, in this response.
func (s *Server) CreateInvite(w http.ResponseWriter, r *http.Request) {
	var req inviteCreateReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ExpiresInHours <= 0 {
		req.ExpiresInHours = 72
	}

	ctx := r.Context()
	warehouseID := chi.URLParam(r, "warehouseID")
	userID := auth.UserID(ctx)

	var inviteeEmail *string
	if req.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*req.Email))
		if e != "" {
			inviteeEmail = &e
		}
	}

	rawToken := ident.URLToken(32)
	inviteID := ident.NewID()
	expiresAt := time.Now().UTC().Add(time.Duration(req.ExpiresInHours) * time.Hour)
	_, err := s.DB.Exec(ctx, `
		INSERT INTO warehouse_invites (id, warehouse_id, invited_by, invitee_email, token_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, inviteID, warehouseID, userID, inviteeEmail, ident.HashToken(rawToken), expiresAt)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	activity.Record(ctx, s.DB, warehouseID, userID, "invite.created", strPtr("invite"), &inviteID,
		map[string]any{"email": inviteeEmail})

	writeJSON(w, 201, inviteResp{
		WarehouseID: warehouseID,
		InviteToken: rawToken,
		InviteURL:   strings.TrimRight(s.Cfg.FrontendURL, "/") + "/invites/" + rawToken,
		ExpiresAt:   expiresAt,
	})
}

type inviteAcceptResp struct {
	Message     string `json:"message"`
	WarehouseID string `json:"warehouse_id"`
}

// AcceptInvite handles POST /invites/{token}/accept.
func (s *Server) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.UserID(ctx)

	var inviteID, warehouseID string
	var inviteeEmail *string
	var expiresAt time.Time
	var acceptedAt *time.Time
	err := s.DB.QueryRow(ctx, `
		SELECT id, warehouse_id, invitee_email, expires_at, accepted_at
		FROM warehouse_invites WHERE token_hash = $1
	`, ident.HashToken(chi.URLParam(r, "token"))).Scan(&inviteID, &warehouseID, &inviteeEmail, &expiresAt, &acceptedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, r, 404, "Invite not found")
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if acceptedAt != nil || expiresAt.Before(time.Now().UTC()) {
		writeError(w, r, 400, "Invite expired or already used")
		return
	}

	var email string
	if err := s.DB.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if inviteeEmail != nil && !strings.EqualFold(*inviteeEmail, email) {
		writeError(w, r, 403, "Invite does not belong to this email")
		return
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO memberships (user_id, warehouse_id) VALUES ($1, $2)
		ON CONFLICT (user_id, warehouse_id) DO NOTHING
	`, userID, warehouseID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if _, err := tx.Exec(ctx,
		`UPDATE warehouse_invites SET accepted_at = now() WHERE id = $1`, inviteID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	activity.Record(ctx, tx, warehouseID, userID, "invite.accepted", strPtr("invite"), &inviteID,
		map[string]any{"invitee_email": email})
	if err := tx.Commit(ctx); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, 200, inviteAcceptResp{Message: "Invite accepted", WarehouseID: warehouseID})
}

type activityEventResp struct {
	ID          string         `json:"id"`
	WarehouseID string         `json:"warehouse_id"`
	ActorUserID string         `json:"actor_user_id"`
	EventType   string         `json:"event_type"`
	EntityType  *string        `json:"entity_type"`
	EntityID    *string        `json:"entity_id"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ListActivity handles GET /warehouses/{w}/activity?limit=.
func (s *Server) ListActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := parseLimit(r.URL.Query().Get("limit"), 50, 200)

	rows, err := s.DB.Query(ctx, `
		SELECT id, warehouse_id, actor_user_id, event_type, entity_type, entity_id, metadata_json, created_at
		FROM activity_events
		WHERE warehouse_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, chi.URLParam(r, "warehouseID"), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer rows.Close()

	events := make([]activityEventResp, 0, limit)
	for rows.Next() {
		var e activityEventResp
		if err := rows.Scan(&e.ID, &e.WarehouseID, &e.ActorUserID, &e.EventType,
			&e.EntityType, &e.EntityID, &e.Metadata, &e.CreatedAt); err != nil {
			writeServiceError(w, r, err)
			return
		}
		if e.Metadata == nil {
			e.Metadata = map[string]any{}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, events)
}

func strPtr(s string) *string { return &s }
