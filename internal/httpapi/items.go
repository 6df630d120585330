package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bodega-app/bodega-api/internal/activity"
	"github.com/bodega-app/bodega-api/internal/auth"
	"github.com/bodega-app/bodega-api/internal/boxtree"
	"github.com/bodega-app/bodega-api/internal/changelog"
	"github.com/bodega-app/bodega-api/internal/db"
	"github.com/bodega-app/bodega-api/internal/ident"
	"github.com/bodega-app/bodega-api/internal/model"
	"github.com/bodega-app/bodega-api/internal/search"
	"github.com/bodega-app/bodega-api/internal/store"
)

type itemResponse struct {
	*model.Item
	Stock      int      `json:"stock"`
	IsFavorite bool     `json:"is_favorite"`
	BoxPath    string   `json:"box_path"`
	BoxPathIDs []string `json:"box_path_ids"`
}

// itemResponses decorates items with stock, the caller's favorite flag and
// the box path derived from forest.
func (s *Server) itemResponses(ctx context.Context, items []model.Item, forest *boxtree.Forest) ([]itemResponse, error) {
	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	stock, err := store.StockMap(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}
	favs, err := store.FavoriteSet(ctx, s.DB, auth.UserID(ctx), ids)
	if err != nil {
		return nil, err
	}

	resp := make([]itemResponse, 0, len(items))
	for i := range items {
		it := &items[i]
		resp = append(resp, itemResponse{
			Item:       it,
			Stock:      stock[it.ID],
			IsFavorite: favs[it.ID],
			BoxPath:    strings.Join(forest.Path(it.BoxID), " / "),
			BoxPathIDs: forest.PathIDs(it.BoxID),
		})
	}
	return resp, nil
}

func (s *Server) itemResponse(ctx context.Context, it *model.Item) (*itemResponse, error) {
	boxes, err := store.ListBoxes(ctx, s.DB, it.WarehouseID, true)
	if err != nil {
		return nil, err
	}
	resp, err := s.itemResponses(ctx, []model.Item{*it}, boxtree.Build(boxes))
	if err != nil {
		return nil, err
	}
	return &resp[0], nil
}

// ListItems handles GET /warehouses/{w}/items with the full filter set:
// q (ranked search), tag, favorites_only, stock_zero, with_photo and
// include_deleted. Items whose box is deleted drop out of the live view.
func (s *Server) ListItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	warehouseID := chi.URLParam(r, "warehouseID")
	qp := r.URL.Query()
	q := strings.TrimSpace(qp.Get("q"))
	tag := strings.TrimSpace(qp.Get("tag"))
	includeDeleted := queryBool(r, "include_deleted")

	items, err := store.ListItems(ctx, s.DB, warehouseID, store.ItemFilter{
		IncludeDeleted: includeDeleted,
		WithPhoto:      queryBoolPtr(r, "with_photo"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	boxes, err := store.ListBoxes(ctx, s.DB, warehouseID, true)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	forest := boxtree.Build(boxes)

	if !includeDeleted {
		kept := items[:0]
		for _, it := range items {
			if b := forest.ByID[it.BoxID]; b != nil && b.DeletedAt == nil {
				kept = append(kept, it)
			}
		}
		items = kept
	}

	if tag != "" {
		items = search.FilterTag(items, tag)
	}
	if q != "" {
		items = search.Rank(items, q, func(it *model.Item) string {
			return strings.ToLower(strings.Join(forest.Path(it.BoxID), " > "))
		})
	} else {
		search.SortNewestFirst(items)
	}

	resp, err := s.itemResponses(ctx, items, forest)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if queryBool(r, "favorites_only") {
		kept := resp[:0]
		for _, it := range resp {
			if it.IsFavorite {
				kept = append(kept, it)
			}
		}
		resp = kept
	}
	if queryBool(r, "stock_zero") {
		kept := resp[:0]
		for _, it := range resp {
			if it.Stock == 0 {
				kept = append(kept, it)
			}
		}
		resp = kept
	}
	writeJSON(w, 200, resp)
}

type itemCreateReq struct {
	BoxID            string   `json:"box_id"`
	Name             string   `json:"name"`
	Description      *string  `json:"description"`
	PhotoURL         *string  `json:"photo_url"`
	PhysicalLocation *string  `json:"physical_location"`
	Tags             []string `json:"tags"`
	Aliases          []string `json:"aliases"`
}

// CreateItem handles POST /warehouses/{w}/items. The target box must be
// live.
func (s *Server) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req itemCreateReq
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, r, 400, "name is required")
		return
	}
	if req.BoxID == "" {
		writeError(w, r, 400, "box_id is required")
		return
	}

	ctx := r.Context()
	warehouseID := chi.URLParam(r, "warehouseID")

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer tx.Rollback(ctx)

	if _, err := store.GetBox(ctx, tx, warehouseID, req.BoxID, false); err != nil {
		if err == store.ErrNotFound {
			writeError(w, r, 400, "Box not found")
			return
		}
		writeServiceError(w, r, err)
		return
	}

	it := &model.Item{
		ID:               ident.NewID(),
		WarehouseID:      warehouseID,
		BoxID:            req.BoxID,
		Name:             req.Name,
		Description:      req.Description,
		PhotoURL:         req.PhotoURL,
		PhysicalLocation: req.PhysicalLocation,
		Tags:             req.Tags,
		Aliases:          req.Aliases,
		Version:          1,
	}
	if it.Tags == nil {
		it.Tags = []string{}
	}
	if it.Aliases == nil {
		it.Aliases = []string{}
	}
	if err := store.InsertItem(ctx, tx, it); err != nil {
		writeServiceError(w, r, err)
		return
	}
	activity.Record(ctx, tx, warehouseID, auth.UserID(ctx), "item.created", strPtr("item"), &it.ID,
		map[string]any{"name": it.Name, "box_id": it.BoxID})
	if err := changelog.Append(ctx, tx, warehouseID, "item", &it.ID, "create", &it.Version,
		map[string]any{"name": it.Name, "box_id": it.BoxID}); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp, err := s.itemResponse(ctx, it)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 201, resp)
}

// GetItem handles GET /warehouses/{w}/items/{item}.
func (s *Server) GetItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	it, err := store.GetItem(ctx, s.DB, chi.URLParam(r, "warehouseID"), chi.URLParam(r, "itemID"), true)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	resp, err := s.itemResponse(ctx, it)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, resp)
}

type itemUpdateReq struct {
	Name             *string   `json:"name"`
	Description      *string   `json:"description"`
	PhotoURL         *string   `json:"photo_url"`
	PhysicalLocation *string   `json:"physical_location"`
	Tags             *[]string `json:"tags"`
	Aliases          *[]string `json:"aliases"`
	BoxID            *string   `json:"box_id"`
}

// UpdateItem handles PATCH /warehouses/{w}/items/{item}: partial update,
// versioned only when something actually changed.
func (s *Server) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req itemUpdateReq
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	warehouseID := chi.URLParam(r, "warehouseID")

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer tx.Rollback(ctx)

	it, err := store.GetItem(ctx, tx, warehouseID, chi.URLParam(r, "itemID"), true)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	changed := false
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" && *req.Name != it.Name {
		it.Name = strings.TrimSpace(*req.Name)
		changed = true
	}
	if req.Description != nil && !strPtrEq(req.Description, it.Description) {
		it.Description = req.Description
		changed = true
	}
	if req.PhotoURL != nil && !strPtrEq(req.PhotoURL, it.PhotoURL) {
		it.PhotoURL = req.PhotoURL
		changed = true
	}
	if req.PhysicalLocation != nil && !strPtrEq(req.PhysicalLocation, it.PhysicalLocation) {
		it.PhysicalLocation = req.PhysicalLocation
		changed = true
	}
	if req.Tags != nil {
		it.Tags = *req.Tags
		changed = true
	}
	if req.Aliases != nil {
		it.Aliases = *req.Aliases
		changed = true
	}
	if req.BoxID != nil && *req.BoxID != it.BoxID {
		if _, err := store.GetBox(ctx, tx, warehouseID, *req.BoxID, false); err != nil {
			if err == store.ErrNotFound {
				writeError(w, r, 400, "Box not found")
				return
			}
			writeServiceError(w, r, err)
			return
		}
		it.BoxID = *req.BoxID
		changed = true
	}

	if changed {
		it.Version++
		if err := store.UpdateItem(ctx, tx, it); err != nil {
			writeServiceError(w, r, err)
			return
		}
		if err := changelog.Append(ctx, tx, warehouseID, "item", &it.ID, "update", &it.Version,
			map[string]any{"name": it.Name}); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	if err := tx.Commit(ctx); err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp, err := s.itemResponse(ctx, it)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, resp)
}

// DeleteItem handles DELETE /warehouses/{w}/items/{item}.
func (s *Server) DeleteItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	warehouseID := chi.URLParam(r, "warehouseID")

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer tx.Rollback(ctx)

	it, err := store.GetItem(ctx, tx, warehouseID, chi.URLParam(r, "itemID"), true)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if it.DeletedAt == nil {
		if err := softDeleteItem(ctx, tx, it, time.Now().UTC()); err != nil {
			writeServiceError(w, r, err)
			return
		}
		activity.Record(ctx, tx, warehouseID, auth.UserID(ctx), "item.deleted", strPtr("item"), &it.ID, nil)
	}
	if err := tx.Commit(ctx); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, messageResponse{Message: "Item moved to trash"})
}

func softDeleteItem(ctx context.Context, q db.Querier, it *model.Item, at time.Time) error {
	it.DeletedAt = &at
	it.Version++
	if err := store.UpdateItem(ctx, q, it); err != nil {
		return err
	}
	return changelog.Append(ctx, q, it.WarehouseID, "item", &it.ID, "delete", &it.Version, nil)
}

// RestoreItem handles POST /warehouses/{w}/items/{item}/restore. The
// containing box must be live.
func (s *Server) RestoreItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	warehouseID := chi.URLParam(r, "warehouseID")

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer tx.Rollback(ctx)

	it, err := store.GetItem(ctx, tx, warehouseID, chi.URLParam(r, "itemID"), true)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if it.DeletedAt != nil {
		if _, err := store.GetBox(ctx, tx, warehouseID, it.BoxID, false); err != nil {
			if err == store.ErrNotFound {
				writeError(w, r, 400, "Restore parent box first")
				return
			}
			writeServiceError(w, r, err)
			return
		}
		it.DeletedAt = nil
		it.Version++
		if err := store.UpdateItem(ctx, tx, it); err != nil {
			writeServiceError(w, r, err)
			return
		}
		activity.Record(ctx, tx, warehouseID, auth.UserID(ctx), "item.restored", strPtr("item"), &it.ID, nil)
		if err := changelog.Append(ctx, tx, warehouseID, "item", &it.ID, "restore", &it.Version, nil); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	if err := tx.Commit(ctx); err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp, err := s.itemResponse(ctx, it)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, resp)
}

type favoriteReq struct {
	IsFavorite bool `json:"is_favorite"`
}

// FavoriteItem handles POST /warehouses/{w}/items/{item}/favorite. The flag
// is per caller, not per warehouse.
func (s *Server) FavoriteItem(w http.ResponseWriter, r *http.Request) {
	var req favoriteReq
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	userID := auth.UserID(ctx)
	it, err := store.GetItem(ctx, s.DB, chi.URLParam(r, "warehouseID"), chi.URLParam(r, "itemID"), false)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.IsFavorite {
		err = store.SetFavorite(ctx, s.DB, userID, it.ID)
	} else {
		err = store.Unfavorite(ctx, s.DB, userID, it.ID)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp, err := s.itemResponse(ctx, it)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, resp)
}

type stockAdjustReq struct {
	Delta     int     `json:"delta"`
	CommandID string  `json:"command_id"`
	Note      *string `json:"note"`
}

// AdjustStock handles POST /warehouses/{w}/items/{item}/stock. Replays of
// the same command_id are accepted and ignored.
func (s *Server) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req stockAdjustReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Delta != 1 && req.Delta != -1 {
		writeError(w, r, 400, "delta must be +1 or -1")
		return
	}
	if len(req.CommandID) < 6 {
		writeError(w, r, 400, "command_id must be at least 6 characters")
		return
	}

	ctx := r.Context()
	warehouseID := chi.URLParam(r, "warehouseID")

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

	inserted, err := store.InsertMovement(ctx, tx, ident.NewID(), warehouseID, it.ID, req.Delta, req.CommandID, req.Note)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if inserted {
		if err := changelog.Append(ctx, tx, warehouseID, "stock", &it.ID, "adjust", nil,
			map[string]any{"delta": req.Delta, "command_id": req.CommandID}); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	if err := tx.Commit(ctx); err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp, err := s.itemResponse(ctx, it)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, resp)
}

type batchReq struct {
	ItemIDs     []string `json:"item_ids"`
	Action      string   `json:"action"`
	TargetBoxID *string  `json:"target_box_id"`
}

// BatchItems handles POST /warehouses/{w}/items/batch. The whole batch is
// one transaction: any unavailable item fails the lot.
func (s *Server) BatchItems(w http.ResponseWriter, r *http.Request) {
	var req batchReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.ItemIDs) == 0 {
		writeError(w, r, 400, "item_ids is required")
		return
	}
	action := strings.ToLower(strings.TrimSpace(req.Action))
	switch action {
	case "move", "favorite", "unfavorite", "delete":
	default:
		writeError(w, r, 400, "Unsupported batch action: "+req.Action)
		return
	}
	if action == "move" && (req.TargetBoxID == nil || *req.TargetBoxID == "") {
		writeError(w, r, 400, "target_box_id is required for move")
		return
	}

	seen := make(map[string]bool, len(req.ItemIDs))
	ids := make([]string, 0, len(req.ItemIDs))
	for _, id := range req.ItemIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	ctx := r.Context()
	warehouseID := chi.URLParam(r, "warehouseID")
	userID := auth.UserID(ctx)

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer tx.Rollback(ctx)

	items := make([]*model.Item, 0, len(ids))
	for _, id := range ids {
		it, err := store.GetItem(ctx, tx, warehouseID, id, false)
		if err != nil {
			if err == store.ErrNotFound {
				writeError(w, r, 400, "Some items are not available")
				return
			}
			writeServiceError(w, r, err)
			return
		}
		items = append(items, it)
	}

	switch action {
	case "move":
		if _, err := store.GetBox(ctx, tx, warehouseID, *req.TargetBoxID, false); err != nil {
			if err == store.ErrNotFound {
				writeError(w, r, 400, "Box not found")
				return
			}
			writeServiceError(w, r, err)
			return
		}
		for _, it := range items {
			it.BoxID = *req.TargetBoxID
			it.Version++
			if err := store.UpdateItem(ctx, tx, it); err != nil {
				writeServiceError(w, r, err)
				return
			}
			if err := changelog.Append(ctx, tx, warehouseID, "item", &it.ID, "move", &it.Version,
				map[string]any{"box_id": it.BoxID}); err != nil {
				writeServiceError(w, r, err)
				return
			}
		}
	case "favorite", "unfavorite":
		if err := store.SetFavorites(ctx, tx, userID, ids, action == "favorite"); err != nil {
			writeServiceError(w, r, err)
			return
		}
	case "delete":
		// One timestamp across the whole batch.
		now := time.Now().UTC()
		for _, it := range items {
			if err := softDeleteItem(ctx, tx, it, now); err != nil {
				writeServiceError(w, r, err)
				return
			}
		}
	}

	activity.Record(ctx, tx, warehouseID, userID, "items.batch", strPtr("item"), nil,
		map[string]any{"action": action, "count": len(ids)})
	if err := tx.Commit(ctx); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, messageResponse{
		Message: fmt.Sprintf("Batch action '%s' applied to %d items", action, len(ids)),
	})
}
