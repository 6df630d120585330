package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/bodega-app/bodega-api/internal/activity"
	"github.com/bodega-app/bodega-api/internal/auth"
	"github.com/bodega-app/bodega-api/internal/changelog"
	"github.com/bodega-app/bodega-api/internal/enrich"
	"github.com/bodega-app/bodega-api/internal/secrets"
	"github.com/bodega-app/bodega-api/internal/store"
)

type smtpSettingsResp struct {
	WarehouseID    string     `json:"warehouse_id"`
	Host           string     `json:"host"`
	Port           int        `json:"port"`
	Username       string     `json:"username"`
	PasswordMasked string     `json:"password_masked"`
	HasPassword    bool       `json:"has_password"`
	EncryptionMode string     `json:"encryption_mode"`
	FromAddress    string     `json:"from_address"`
	FromName       string     `json:"from_name"`
	UpdatedAt      *time.Time `json:"updated_at"`
}

type smtpRow struct {
	Host              string
	Port              int
	Username          string
	PasswordEncrypted string
	EncryptionMode    string
	FromAddress       string
	FromName          string
	UpdatedAt         time.Time
}

func (s *Server) loadSMTP(r *http.Request, warehouseID string) (*smtpRow, error) {
	var row smtpRow
	err := s.DB.QueryRow(r.Context(), `
		SELECT host, port, username, password_encrypted, encryption_mode, from_address, from_name, updated_at
		FROM smtp_settings WHERE warehouse_id = $1
	`, warehouseID).Scan(&row.Host, &row.Port, &row.Username, &row.PasswordEncrypted,
		&row.EncryptionMode, &row.FromAddress, &row.FromName, &row.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Server) smtpResponse(warehouseID string, row *smtpRow) smtpSettingsResp {
	resp := smtpSettingsResp{WarehouseID: warehouseID, Port: 587, EncryptionMode: "starttls"}
	if row == nil {
		return resp
	}
	resp.Host = row.Host
	resp.Port = row.Port
	resp.Username = row.Username
	resp.EncryptionMode = row.EncryptionMode
	resp.FromAddress = row.FromAddress
	resp.FromName = row.FromName
	resp.UpdatedAt = &row.UpdatedAt
	if row.PasswordEncrypted != "" {
		resp.HasPassword = true
		if plain, err := s.Secrets.Decrypt(row.PasswordEncrypted); err == nil {
			resp.PasswordMasked = secrets.Mask(plain)
		} else {
			resp.PasswordMasked = "***"
		}
	}
	return resp
}

// GetSMTPSettings handles GET /settings/smtp?warehouse_id=. The password
// never leaves in clear text, only masked.
func (s *Server) GetSMTPSettings(w http.ResponseWriter, r *http.Request) {
	warehouseID := r.URL.Query().Get("warehouse_id")
	if warehouseID == "" {
		writeError(w, r, 400, "warehouse_id is required")
		return
	}
	if !s.requireMembershipID(w, r, warehouseID) {
		return
	}
	row, err := s.loadSMTP(r, warehouseID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, s.smtpResponse(warehouseID, row))
}

type smtpUpdateReq struct {
	WarehouseID    string  `json:"warehouse_id"`
	Host           string  `json:"host"`
	Port           int     `json:"port"`
	Username       string  `json:"username"`
	Password       *string `json:"password"`
	EncryptionMode string  `json:"encryption_mode"`
	FromAddress    string  `json:"from_address"`
	FromName       string  `json:"from_name"`
}

// UpdateSMTPSettings handles PUT /settings/smtp. An absent password keeps
// the stored one; a present one is encrypted at rest.
func (s *Server) UpdateSMTPSettings(w http.ResponseWriter, r *http.Request) {
	var req smtpUpdateReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.WarehouseID == "" {
		writeError(w, r, 400, "warehouse_id is required")
		return
	}
	if !s.requireMembershipID(w, r, req.WarehouseID) {
		return
	}
	if req.Port <= 0 {
		req.Port = 587
	}
	if req.EncryptionMode == "" {
		req.EncryptionMode = "starttls"
	}

	ctx := r.Context()
	userID := auth.UserID(ctx)

	existing, err := s.loadSMTP(r, req.WarehouseID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	encrypted := ""
	if existing != nil {
		encrypted = existing.PasswordEncrypted
	}
	if req.Password != nil && *req.Password != "" {
		encrypted, err = s.Secrets.Encrypt(*req.Password)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
	}

	_, err = s.DB.Exec(ctx, `
		INSERT INTO smtp_settings (warehouse_id, host, port, username, password_encrypted,
			encryption_mode, from_address, from_name, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (warehouse_id) DO UPDATE SET
			host = EXCLUDED.host, port = EXCLUDED.port, username = EXCLUDED.username,
			password_encrypted = EXCLUDED.password_encrypted,
			encryption_mode = EXCLUDED.encryption_mode,
			from_address = EXCLUDED.from_address, from_name = EXCLUDED.from_name,
			updated_by = EXCLUDED.updated_by, updated_at = now()
	`, req.WarehouseID, req.Host, req.Port, req.Username, encrypted,
		req.EncryptionMode, req.FromAddress, req.FromName, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	activity.Record(ctx, s.DB, req.WarehouseID, userID, "settings.smtp.updated", strPtr("settings"), nil,
		map[string]any{"host": req.Host})

	row, err := s.loadSMTP(r, req.WarehouseID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, s.smtpResponse(req.WarehouseID, row))
}

type smtpTestReq struct {
	WarehouseID string `json:"warehouse_id"`
	To          string `json:"to"`
}

// TestSMTPSettings handles POST /settings/smtp/test. Delivery is simulated;
// only configuration completeness is checked.
func (s *Server) TestSMTPSettings(w http.ResponseWriter, r *http.Request) {
	var req smtpTestReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.WarehouseID == "" {
		writeError(w, r, 400, "warehouse_id is required")
		return
	}
	if !s.requireMembershipID(w, r, req.WarehouseID) {
		return
	}

	row, err := s.loadSMTP(r, req.WarehouseID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if row == nil {
		writeError(w, r, 400, "SMTP settings not configured")
		return
	}
	if row.Host == "" || row.FromAddress == "" {
		writeError(w, r, 400, "SMTP settings incomplete")
		return
	}
	to := strings.TrimSpace(req.To)
	if to == "" {
		to = row.FromAddress
	}
	writeJSON(w, 200, messageResponse{Message: fmt.Sprintf("SMTP test queued for %s (simulated)", to)})
}

type llmSettingsResp struct {
	WarehouseID      string     `json:"warehouse_id"`
	Provider         string     `json:"provider"`
	HasAPIKey        bool       `json:"has_api_key"`
	APIKeyMasked     string     `json:"api_key_masked"`
	AutoTagsEnabled  bool       `json:"auto_tags_enabled"`
	AutoAliasEnabled bool       `json:"auto_alias_enabled"`
	UpdatedAt        *time.Time `json:"updated_at"`
}

type llmRow struct {
	Provider         string
	APIKeyEncrypted  string
	AutoTagsEnabled  bool
	AutoAliasEnabled bool
	UpdatedAt        time.Time
}

func (s *Server) loadLLM(r *http.Request, warehouseID string) (*llmRow, error) {
	var row llmRow
	err := s.DB.QueryRow(r.Context(), `
		SELECT provider, api_key_encrypted, auto_tags_enabled, auto_alias_enabled, updated_at
		FROM llm_settings WHERE warehouse_id = $1
	`, warehouseID).Scan(&row.Provider, &row.APIKeyEncrypted,
		&row.AutoTagsEnabled, &row.AutoAliasEnabled, &row.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Server) llmResponse(warehouseID string, row *llmRow) llmSettingsResp {
	resp := llmSettingsResp{
		WarehouseID:      warehouseID,
		Provider:         "gemini",
		AutoTagsEnabled:  true,
		AutoAliasEnabled: true,
	}
	if row == nil {
		return resp
	}
	resp.Provider = row.Provider
	resp.AutoTagsEnabled = row.AutoTagsEnabled
	resp.AutoAliasEnabled = row.AutoAliasEnabled
	resp.UpdatedAt = &row.UpdatedAt
	if row.APIKeyEncrypted != "" {
		resp.HasAPIKey = true
		if plain, err := s.Secrets.Decrypt(row.APIKeyEncrypted); err == nil {
			resp.APIKeyMasked = secrets.Mask(plain)
		} else {
			resp.APIKeyMasked = "***"
		}
	}
	return resp
}

// GetLLMSettings handles GET /settings/llm?warehouse_id=.
func (s *Server) GetLLMSettings(w http.ResponseWriter, r *http.Request) {
	warehouseID := r.URL.Query().Get("warehouse_id")
	if warehouseID == "" {
		writeError(w, r, 400, "warehouse_id is required")
		return
	}
	if !s.requireMembershipID(w, r, warehouseID) {
		return
	}
	row, err := s.loadLLM(r, warehouseID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, s.llmResponse(warehouseID, row))
}

type llmUpdateReq struct {
	WarehouseID      string  `json:"warehouse_id"`
	Provider         string  `json:"provider"`
	APIKey           *string `json:"api_key"`
	AutoTagsEnabled  *bool   `json:"auto_tags_enabled"`
	AutoAliasEnabled *bool   `json:"auto_alias_enabled"`
}

// UpdateLLMSettings handles PUT /settings/llm.
func (s *Server) UpdateLLMSettings(w http.ResponseWriter, r *http.Request) {
	var req llmUpdateReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.WarehouseID == "" {
		writeError(w, r, 400, "warehouse_id is required")
		return
	}
	if !s.requireMembershipID(w, r, req.WarehouseID) {
		return
	}
	if req.Provider == "" {
		req.Provider = "gemini"
	}

	ctx := r.Context()
	userID := auth.UserID(ctx)

	existing, err := s.loadLLM(r, req.WarehouseID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	encrypted := ""
	autoTags, autoAlias := true, true
	if existing != nil {
		encrypted = existing.APIKeyEncrypted
		autoTags = existing.AutoTagsEnabled
		autoAlias = existing.AutoAliasEnabled
	}
	if req.APIKey != nil && *req.APIKey != "" {
		encrypted, err = s.Secrets.Encrypt(*req.APIKey)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	if req.AutoTagsEnabled != nil {
		autoTags = *req.AutoTagsEnabled
	}
	if req.AutoAliasEnabled != nil {
		autoAlias = *req.AutoAliasEnabled
	}

	_, err = s.DB.Exec(ctx, `
		INSERT INTO llm_settings (warehouse_id, provider, api_key_encrypted,
			auto_tags_enabled, auto_alias_enabled, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (warehouse_id) DO UPDATE SET
			provider = EXCLUDED.provider, api_key_encrypted = EXCLUDED.api_key_encrypted,
			auto_tags_enabled = EXCLUDED.auto_tags_enabled,
			auto_alias_enabled = EXCLUDED.auto_alias_enabled,
			updated_by = EXCLUDED.updated_by, updated_at = now()
	`, req.WarehouseID, req.Provider, encrypted, autoTags, autoAlias, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	activity.Record(ctx, s.DB, req.WarehouseID, userID, "settings.llm.updated", strPtr("settings"), nil,
		map[string]any{"provider": req.Provider})

	row, err := s.loadLLM(r, req.WarehouseID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, s.llmResponse(req.WarehouseID, row))
}

type reprocessResp struct {
	Message string `json:"message"`
	ItemID  string `json:"item_id"`
}

// ReprocessItem handles POST /settings/llm/reprocess-item/{item}: reruns
// the enrichment heuristics over the item under the warehouse's auto flags.
func (s *Server) ReprocessItem(w http.ResponseWriter, r *http.Request) {
	warehouseID := r.URL.Query().Get("warehouse_id")
	if warehouseID == "" {
		writeError(w, r, 400, "warehouse_id is required")
		return
	}
	if !s.requireMembershipID(w, r, warehouseID) {
		return
	}

	ctx := r.Context()
	row, err := s.loadLLM(r, warehouseID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if row == nil {
		writeError(w, r, 400, "LLM settings not configured")
		return
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer tx.Rollback(ctx)

	it, err := store.GetItem(ctx, tx, warehouseID, chi.URLParam(r, "itemID"), false)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	desc := ""
	if it.Description != nil {
		desc = *it.Description
	}
	tags, aliases := enrich.TagsAndAliases(it.Name, desc)
	if row.AutoTagsEnabled {
		it.Tags = tags
	}
	if row.AutoAliasEnabled {
		it.Aliases = aliases
	}
	it.Version++
	if err := store.UpdateItem(ctx, tx, it); err != nil {
		writeServiceError(w, r, err)
		return
	}
	activity.Record(ctx, tx, warehouseID, auth.UserID(ctx), "llm.reprocess.item", strPtr("item"), &it.ID, nil)
	if err := changelog.Append(ctx, tx, warehouseID, "item", &it.ID, "update", &it.Version,
		map[string]any{"tags": it.Tags, "aliases": it.Aliases}); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, reprocessResp{Message: "Item reprocessed", ItemID: it.ID})
}
