package httpapi

import (
	"net/http"
	"strconv"

	"github.com/bodega-app/bodega-api/internal/auth"
	"github.com/bodega-app/bodega-api/internal/service/syncservice"
)

// SyncPush handles POST /sync/push. The warehouse rides in the body, so the
// membership gate runs after decode.
func (s *Server) SyncPush(w http.ResponseWriter, r *http.Request) {
	var req syncservice.PushRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !s.requireMembershipID(w, r, req.WarehouseID) {
		return
	}
	resp, err := s.Sync.Push(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, resp)
}

// SyncPull handles GET /sync/pull?warehouse_id=&since_seq=.
func (s *Server) SyncPull(w http.ResponseWriter, r *http.Request) {
	warehouseID := r.URL.Query().Get("warehouse_id")
	if warehouseID == "" {
		writeError(w, r, 400, "warehouse_id is required")
		return
	}
	if !s.requireMembershipID(w, r, warehouseID) {
		return
	}

	sinceSeq := int64(0)
	if raw := r.URL.Query().Get("since_seq"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			writeError(w, r, 400, "since_seq must be a non-negative integer")
			return
		}
		sinceSeq = v
	}

	resp, err := s.Sync.Pull(r.Context(), warehouseID, sinceSeq)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, resp)
}

// SyncResolve handles POST /sync/resolve.
func (s *Server) SyncResolve(w http.ResponseWriter, r *http.Request) {
	var req syncservice.ResolveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.WarehouseID == "" || req.ConflictID == "" {
		writeError(w, r, 400, "warehouse_id and conflict_id are required")
		return
	}
	if !s.requireMembershipID(w, r, req.WarehouseID) {
		return
	}
	resp, err := s.Sync.Resolve(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, resp)
}
