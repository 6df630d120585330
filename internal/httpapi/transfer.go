package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bodega-app/bodega-api/internal/auth"
	"github.com/bodega-app/bodega-api/internal/service/transfer"
)

// ExportWarehouse handles GET /warehouses/{w}/export: the complete portable
// snapshot, deleted rows included.
func (s *Server) ExportWarehouse(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Transfer.Export(r.Context(), chi.URLParam(r, "warehouseID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, snap)
}

// ImportWarehouse handles POST /warehouses/{w}/import.
func (s *Server) ImportWarehouse(w http.ResponseWriter, r *http.Request) {
	var snap transfer.Snapshot
	if !decodeJSON(w, r, &snap) {
		return
	}
	if snap.SchemaVersion != transfer.SchemaVersion {
		writeError(w, r, 400, "Unsupported schema_version")
		return
	}
	res, err := s.Transfer.Import(r.Context(), auth.UserID(r.Context()),
		chi.URLParam(r, "warehouseID"), snap)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, res)
}
