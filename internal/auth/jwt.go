package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/bodega-app/bodega-api/internal/db"
	"github.com/bodega-app/bodega-api/internal/ident"
)

type ctxKey string

const ctxUserID ctxKey = "uid"

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var ErrInvalidToken = errors.New("auth: invalid token")

// JWTCfg holds token signing configuration. Algorithm must be an HMAC
// variant; anything else is rejected at parse time.
type JWTCfg struct {
	Secret             string
	Algorithm          string // HS256
	AccessTokenMinutes int
	RefreshTokenDays   int
}

func (c JWTCfg) signingMethod() jwt.SigningMethod {
	if m := jwt.GetSigningMethod(c.Algorithm); m != nil {
		return m
	}
	return jwt.SigningMethodHS256
}

// BuildAccessToken mints a short-lived access token {sub, type, iat, exp}.
func (c JWTCfg) BuildAccessToken(userID string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":  userID,
		"type": TokenTypeAccess,
		"iat":  now.Unix(),
		"exp":  now.Add(time.Duration(c.AccessTokenMinutes) * time.Minute).Unix(),
	}
	return jwt.NewWithClaims(c.signingMethod(), claims).SignedString([]byte(c.Secret))
}

// BuildRefreshToken mints a refresh token. The random jti keeps two tokens
// issued in the same second distinct.
func (c JWTCfg) BuildRefreshToken(userID string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":  userID,
		"type": TokenTypeRefresh,
		"iat":  now.Unix(),
		"exp":  now.Add(time.Duration(c.RefreshTokenDays) * 24 * time.Hour).Unix(),
		"jti":  ident.URLToken(16),
	}
	return jwt.NewWithClaims(c.signingMethod(), claims).SignedString([]byte(c.Secret))
}

// ParseToken validates signature and expiry and returns (sub, type).
func (c JWTCfg) ParseToken(token string) (string, string, error) {
	claims := jwt.MapClaims{}
	t, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(c.Secret), nil
	})
	if err != nil || !t.Valid {
		return "", "", ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	typ, _ := claims["type"].(string)
	if sub == "" {
		return "", "", ErrInvalidToken
	}
	return sub, typ, nil
}

// Middleware authenticates the bearer access token and resolves it to an
// existing user row; the user id is placed on the request context.
func Middleware(q db.Querier, cfg JWTCfg) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := ""
			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				tok = h[len("Bearer "):]
			}
			if tok == "" {
				unauthorized(w)
				return
			}

			sub, typ, err := cfg.ParseToken(tok)
			if err != nil || typ != TokenTypeAccess {
				log.Warn().Err(err).Msg("access token validation failed")
				unauthorized(w)
				return
			}

			var userID string
			err = q.QueryRow(r.Context(), `SELECT id FROM users WHERE id = $1`, sub).Scan(&userID)
			if err == pgx.ErrNoRows {
				unauthorized(w)
				return
			}
			if err != nil {
				log.Error().Err(err).Str("sub", sub).Msg("failed to load user")
				http.Error(w, "server error", http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), ctxUserID, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"detail":"Could not validate credentials"}`))
}

// UserID extracts the authenticated user id from the request context.
func UserID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

// IsMember reports whether the user holds a membership row for the
// warehouse. Presence is the whole access model.
func IsMember(ctx context.Context, q db.Querier, userID, warehouseID string) (bool, error) {
	var one int
	err := q.QueryRow(ctx,
		`SELECT 1 FROM memberships WHERE user_id = $1 AND warehouse_id = $2`,
		userID, warehouseID).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
