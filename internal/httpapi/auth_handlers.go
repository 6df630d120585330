package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/bodega-app/bodega-api/internal/auth"
	"github.com/bodega-app/bodega-api/internal/ident"
	"github.com/bodega-app/bodega-api/internal/model"
)

type signupReq struct {
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	DisplayName *string `json:"display_name"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResp struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

// Signup handles POST /auth/signup.
func (s *Server) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupReq
	if !decodeJSON(w, r, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || len(req.Password) < 8 {
		writeError(w, r, 400, "email and a password of at least 8 characters are required")
		return
	}

	ctx := r.Context()
	var exists int
	err := s.DB.QueryRow(ctx, `SELECT 1 FROM users WHERE email = $1`, email).Scan(&exists)
	if err == nil {
		writeError(w, r, 409, "Email already exists")
		return
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		writeServiceError(w, r, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	user := model.User{ID: ident.NewID(), Email: email, DisplayName: req.DisplayName}
	err = s.DB.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, display_name)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, user.ID, user.Email, hash, user.DisplayName).Scan(&user.CreatedAt)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	log.Info().Str("user_id", user.ID).Msg("user signed up")
	writeJSON(w, 201, user)
}

// Login handles POST /auth/login.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if !decodeJSON(w, r, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	ctx := r.Context()
	var userID, passwordHash string
	err := s.DB.QueryRow(ctx,
		`SELECT id, password_hash FROM users WHERE email = $1`, email).Scan(&userID, &passwordHash)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && !auth.VerifyPassword(req.Password, passwordHash)) {
		writeError(w, r, 401, "Invalid credentials")
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	tokens, err := s.issueTokens(r, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, tokens)
}

// issueTokens mints an access/refresh pair and persists the refresh
// token's digest.
func (s *Server) issueTokens(r *http.Request, userID string) (*tokenResp, error) {
	cfg := s.jwtCfg()
	access, err := cfg.BuildAccessToken(userID)
	if err != nil {
		return nil, err
	}
	refresh, err := cfg.BuildRefreshToken(userID)
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().UTC().Add(time.Duration(cfg.RefreshTokenDays) * 24 * time.Hour)
	_, err = s.DB.Exec(r.Context(), `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
	`, ident.NewID(), userID, ident.HashToken(refresh), expiresAt)
	if err != nil {
		return nil, err
	}
	return &tokenResp{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh handles POST /auth/refresh: the incoming refresh token is
// revoked and a fresh pair is issued.
func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshReq
	if !decodeJSON(w, r, &req) {
		return
	}

	sub, typ, err := s.jwtCfg().ParseToken(req.RefreshToken)
	if err != nil || typ != auth.TokenTypeRefresh {
		writeError(w, r, 401, "Invalid refresh token")
		return
	}

	ctx := r.Context()
	var tokenID string
	var revoked bool
	var expiresAt time.Time
	err = s.DB.QueryRow(ctx, `
		SELECT id, revoked, expires_at FROM refresh_tokens WHERE token_hash = $1
	`, ident.HashToken(req.RefreshToken)).Scan(&tokenID, &revoked, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, r, 401, "Refresh token expired")
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if revoked || expiresAt.Before(time.Now().UTC()) {
		writeError(w, r, 401, "Refresh token expired")
		return
	}

	if _, err := s.DB.Exec(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE id = $1`, tokenID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	tokens, err := s.issueTokens(r, sub)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, tokens)
}

// Logout handles POST /auth/logout by revoking the presented refresh
// token; unknown tokens are a silent no-op.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshReq
	if !decodeJSON(w, r, &req) {
		return
	}
	_, err := s.DB.Exec(r.Context(),
		`UPDATE refresh_tokens SET revoked = TRUE WHERE token_hash = $1`,
		ident.HashToken(req.RefreshToken))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, messageResponse{Message: "Logged out"})
}

type forgotPasswordReq struct {
	Email string `json:"email"`
}

type forgotPasswordResp struct {
	Message    string  `json:"message"`
	ResetToken *string `json:"reset_token,omitempty"`
}

// ForgotPassword handles POST /auth/forgot-password. The raw token is
// returned in the response until the SMTP delivery flow is wired to it.
func (s *Server) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordReq
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	var userID string
	err := s.DB.QueryRow(ctx,
		`SELECT id FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(req.Email))).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeJSON(w, 200, forgotPasswordResp{Message: "If the email exists, reset instructions were generated"})
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	rawToken := ident.URLToken(32)
	_, err = s.DB.Exec(ctx, `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
	`, ident.NewID(), userID, ident.HashToken(rawToken), time.Now().UTC().Add(time.Hour))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, 200, forgotPasswordResp{Message: "Reset token generated", ResetToken: &rawToken})
}

type resetPasswordReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// ResetPassword handles POST /auth/reset-password. A successful reset
// revokes every refresh token of the user.
func (s *Server) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, r, 400, "new password must be at least 8 characters")
		return
	}

	ctx := r.Context()
	var tokenID, userID string
	var used bool
	var expiresAt time.Time
	err := s.DB.QueryRow(ctx, `
		SELECT id, user_id, used, expires_at FROM password_reset_tokens WHERE token_hash = $1
	`, ident.HashToken(req.Token)).Scan(&tokenID, &userID, &used, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, r, 400, "Invalid or expired token")
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if used || expiresAt.Before(time.Now().UTC()) {
		writeError(w, r, 400, "Invalid or expired token")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, userID, hash); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if _, err := tx.Exec(ctx, `UPDATE password_reset_tokens SET used = TRUE WHERE id = $1`, tokenID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if _, err := tx.Exec(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1`, userID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, 200, messageResponse{Message: "Password reset successfully"})
}

type changePasswordReq struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword handles POST /auth/change-password (authenticated).
func (s *Server) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, r, 400, "new password must be at least 8 characters")
		return
	}

	ctx := r.Context()
	userID := auth.UserID(ctx)
	var passwordHash string
	if err := s.DB.QueryRow(ctx, `SELECT password_hash FROM users WHERE id = $1`, userID).Scan(&passwordHash); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !auth.VerifyPassword(req.CurrentPassword, passwordHash) {
		writeError(w, r, 400, "Current password is incorrect")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, userID, hash); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if _, err := tx.Exec(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1`, userID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, 200, messageResponse{Message: "Password changed"})
}

// Me handles GET /auth/me.
func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var user model.User
	err := s.DB.QueryRow(ctx, `
		SELECT id, email, display_name, created_at FROM users WHERE id = $1
	`, auth.UserID(ctx)).Scan(&user.ID, &user.Email, &user.DisplayName, &user.CreatedAt)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, user)
}
