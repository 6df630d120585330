// Package httpapi exposes the REST surface: request decoding, routing,
// the warehouse-membership gate, and translation of service errors into
// {"detail": ...} responses.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/bodega-app/bodega-api/internal/config"
	"github.com/bodega-app/bodega-api/internal/secrets"
	"github.com/bodega-app/bodega-api/internal/service/syncservice"
	"github.com/bodega-app/bodega-api/internal/service/transfer"
	"github.com/bodega-app/bodega-api/internal/store"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	DB       *pgxpool.Pool
	Cfg      config.Config
	Secrets  *secrets.Store
	Sync     *syncservice.Engine
	Transfer *transfer.Engine
}

func NewServer(pool *pgxpool.Pool, cfg config.Config, sec *secrets.Store) *Server {
	return &Server{
		DB:       pool,
		Cfg:      cfg,
		Secrets:  sec,
		Sync:     syncservice.NewEngine(pool),
		Transfer: transfer.NewEngine(pool),
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

// writeError writes the {"detail": ...} failure shape all endpoints share.
func writeError(w http.ResponseWriter, r *http.Request, code int, detail string) {
	if code >= 500 {
		log.Error().Str("path", r.URL.Path).Int("status", code).Str("detail", detail).Msg("request failed")
	}
	writeJSON(w, code, map[string]string{"detail": detail})
}

// writeServiceError maps service-layer errors onto status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var syncBad *syncservice.BadRequestError
	var transferBad *transfer.BadRequestError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, 404, "Not found")
	case errors.As(err, &syncBad):
		writeError(w, r, 400, syncBad.Msg)
	case errors.As(err, &transferBad):
		writeError(w, r, 400, transferBad.Msg)
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("unhandled service error")
		writeError(w, r, 500, "Internal server error")
	}
}

// decodeJSON parses the request body into v; a false return means the
// 400 has already been written.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("invalid request body")
		writeError(w, r, 400, "Invalid JSON body")
		return false
	}
	return true
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}

// queryBoolPtr distinguishes absent from true/false.
func queryBoolPtr(r *http.Request, key string) *bool {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}

// parseLimit parses a limit query param clamped to [1, max].
func parseLimit(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
