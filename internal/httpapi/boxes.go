package httpapi

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bodega-app/bodega-api/internal/activity"
	"github.com/bodega-app/bodega-api/internal/auth"
	"github.com/bodega-app/bodega-api/internal/boxtree"
	"github.com/bodega-app/bodega-api/internal/changelog"
	"github.com/bodega-app/bodega-api/internal/ident"
	"github.com/bodega-app/bodega-api/internal/model"
	"github.com/bodega-app/bodega-api/internal/store"
)

type boxTreeNode struct {
	*model.Box
	Level               int `json:"level"`
	TotalItemsRecursive int `json:"total_items_recursive"`
	TotalBoxesRecursive int `json:"total_boxes_recursive"`
}

// BoxTree handles GET /warehouses/{w}/boxes/tree: the flattened pre-order forest
// with recursive subtree counts per node.
func (s *Server) BoxTree(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	warehouseID := chi.URLParam(r, "warehouseID")
	includeDeleted := queryBool(r, "include_deleted")

	boxes, err := store.ListBoxes(ctx, s.DB, warehouseID, includeDeleted)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	items, err := store.ListItems(ctx, s.DB, warehouseID, store.ItemFilter{})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	forest := boxtree.Build(boxes)
	counts := forest.CountSubtrees(items)
	nodes := forest.Flatten(counts)

	resp := make([]boxTreeNode, 0, len(nodes))
	for _, n := range nodes {
		resp = append(resp, boxTreeNode{
			Box:                 n.Box,
			Level:               n.Level,
			TotalItemsRecursive: n.TotalItemsRecursive,
			TotalBoxesRecursive: n.TotalBoxesRecursive,
		})
	}
	writeJSON(w, 200, resp)
}

type boxCreateReq struct {
	Name             *string `json:"name"`
	Description      *string `json:"description"`
	PhysicalLocation *string `json:"physical_location"`
	ParentBoxID      *string `json:"parent_box_id"`
}

// CreateBox handles POST /warehouses/{w}/boxes. A missing name gets the
// "Caja N" default keyed off the current box count.
func (s *Server) CreateBox(w http.ResponseWriter, r *http.Request) {
	var req boxCreateReq
	if !decodeJSON(w, r, &req) {
		return
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

	if req.ParentBoxID != nil {
		if _, err := store.GetBox(ctx, tx, warehouseID, *req.ParentBoxID, false); err != nil {
			if err == store.ErrNotFound {
				writeError(w, r, 400, "Parent box not found")
				return
			}
			writeServiceError(w, r, err)
			return
		}
	}

	name := ""
	if req.Name != nil {
		name = strings.TrimSpace(*req.Name)
	}
	if name == "" {
		count, err := store.CountBoxes(ctx, tx, warehouseID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		name = fmt.Sprintf("Caja %d", count+1)
	}

	b := &model.Box{
		ID:               ident.NewID(),
		WarehouseID:      warehouseID,
		ParentBoxID:      req.ParentBoxID,
		Name:             name,
		Description:      req.Description,
		PhysicalLocation: req.PhysicalLocation,
		QRToken:          ident.NewQRToken(),
		ShortCode:        ident.NewShortCode(),
		Version:          1,
	}
	if err := store.InsertBox(ctx, tx, b); err != nil {
		writeServiceError(w, r, err)
		return
	}
	activity.Record(ctx, tx, warehouseID, userID, "box.created", strPtr("box"), &b.ID,
		map[string]any{"name": b.Name})
	if err := changelog.Append(ctx, tx, warehouseID, "box", &b.ID, "create", &b.Version,
		map[string]any{"name": b.Name, "parent_box_id": b.ParentBoxID}); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 201, b)
}

// GetBox handles GET /warehouses/{w}/boxes/{box}.
func (s *Server) GetBox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	b, err := store.GetBox(ctx, s.DB, chi.URLParam(r, "warehouseID"), chi.URLParam(r, "boxID"), true)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, b)
}

type boxUpdateReq struct {
	Name             *string `json:"name"`
	Description      *string `json:"description"`
	PhysicalLocation *string `json:"physical_location"`
}

// UpdateBox handles PATCH /warehouses/{w}/boxes/{box}. Only a change bumps
// the version and emits a feed entry.
func (s *Server) UpdateBox(w http.ResponseWriter, r *http.Request) {
	var req boxUpdateReq
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

	b, err := store.GetBox(ctx, tx, warehouseID, chi.URLParam(r, "boxID"), true)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	changed := false
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" && *req.Name != b.Name {
		b.Name = strings.TrimSpace(*req.Name)
		changed = true
	}
	if req.Description != nil && !strPtrEq(req.Description, b.Description) {
		b.Description = req.Description
		changed = true
	}
	if req.PhysicalLocation != nil && !strPtrEq(req.PhysicalLocation, b.PhysicalLocation) {
		b.PhysicalLocation = req.PhysicalLocation
		changed = true
	}

	if changed {
		b.Version++
		if err := store.UpdateBox(ctx, tx, b); err != nil {
			writeServiceError(w, r, err)
			return
		}
		if err := changelog.Append(ctx, tx, warehouseID, "box", &b.ID, "update", &b.Version,
			map[string]any{"name": b.Name}); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	if err := tx.Commit(ctx); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, b)
}

type boxMoveReq struct {
	NewParentBoxID *string `json:"new_parent_box_id"`
}

// MoveBox handles POST /warehouses/{w}/boxes/{box}/move. Rejects self and
// descendant targets so the forest stays acyclic.
func (s *Server) MoveBox(w http.ResponseWriter, r *http.Request) {
	var req boxMoveReq
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	warehouseID := chi.URLParam(r, "warehouseID")
	boxID := chi.URLParam(r, "boxID")

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer tx.Rollback(ctx)

	b, err := store.GetBox(ctx, tx, warehouseID, boxID, true)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if req.NewParentBoxID != nil {
		if *req.NewParentBoxID == boxID {
			writeError(w, r, 400, "Box cannot be parent of itself")
			return
		}
		if _, err := store.GetBox(ctx, tx, warehouseID, *req.NewParentBoxID, false); err != nil {
			if err == store.ErrNotFound {
				writeError(w, r, 400, "Parent box not found")
				return
			}
			writeServiceError(w, r, err)
			return
		}
		all, err := store.ListBoxes(ctx, tx, warehouseID, true)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if boxtree.Build(all).WouldCycle(boxID, *req.NewParentBoxID) {
			writeError(w, r, 400, "Cannot move box into a descendant")
			return
		}
	}

	b.ParentBoxID = req.NewParentBoxID
	b.Version++
	if err := store.UpdateBox(ctx, tx, b); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := changelog.Append(ctx, tx, warehouseID, "box", &b.ID, "move", &b.Version,
		map[string]any{"new_parent_box_id": b.ParentBoxID}); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, b)
}

type boxDeleteReq struct {
	Force bool `json:"force"`
}

// DeleteBox handles DELETE /warehouses/{w}/boxes/{box}. Nested live
// content requires force, which cascades the soft delete over the subtree
// with one shared timestamp.
func (s *Server) DeleteBox(w http.ResponseWriter, r *http.Request) {
	var req boxDeleteReq
	if r.ContentLength > 0 && !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	warehouseID := chi.URLParam(r, "warehouseID")
	boxID := chi.URLParam(r, "boxID")
	userID := auth.UserID(ctx)

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer tx.Rollback(ctx)

	b, err := store.GetBox(ctx, tx, warehouseID, boxID, true)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if b.DeletedAt != nil {
		writeJSON(w, 200, messageResponse{Message: "Box moved to trash"})
		return
	}

	all, err := store.ListBoxes(ctx, tx, warehouseID, true)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	forest := boxtree.Build(all)
	subtree := forest.Descendants(boxID)
	subtree[boxID] = true

	liveBoxes := make([]string, 0, len(subtree))
	for id := range subtree {
		if bx := forest.ByID[id]; bx != nil && bx.DeletedAt == nil {
			liveBoxes = append(liveBoxes, id)
		}
	}
	sort.Strings(liveBoxes)

	if !req.Force {
		hasNested := len(liveBoxes) > 1
		if !hasNested {
			items, err := store.ListItems(ctx, tx, warehouseID, store.ItemFilter{BoxIDs: []string{boxID}})
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			hasNested = len(items) > 0
		}
		if hasNested {
			writeError(w, r, 400, "Box has nested content. Repeat with force=true to soft-delete recursively.")
			return
		}
	}

	now := time.Now().UTC()
	if err := store.SoftDeleteBoxes(ctx, tx, warehouseID, liveBoxes, now); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := store.SoftDeleteItemsInBoxes(ctx, tx, warehouseID, liveBoxes, now); err != nil {
		writeServiceError(w, r, err)
		return
	}

	activity.Record(ctx, tx, warehouseID, userID, "box.deleted", strPtr("box"), &boxID,
		map[string]any{"force": req.Force, "boxes_deleted": len(liveBoxes)})
	// SoftDeleteBoxes already stamped and versioned the target row; writing
	// the pre-delete struct back would resurrect it.
	b.Version++
	if err := changelog.Append(ctx, tx, warehouseID, "box", &boxID, "delete", &b.Version,
		map[string]any{"force": req.Force}); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, messageResponse{Message: "Box moved to trash"})
}

// RestoreBox handles POST /warehouses/{w}/boxes/{box}/restore. The parent
// must already be live.
func (s *Server) RestoreBox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	warehouseID := chi.URLParam(r, "warehouseID")
	userID := auth.UserID(ctx)

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer tx.Rollback(ctx)

	b, err := store.GetBox(ctx, tx, warehouseID, chi.URLParam(r, "boxID"), true)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if b.DeletedAt == nil {
		writeJSON(w, 200, b)
		return
	}
	if b.ParentBoxID != nil {
		parent, err := store.GetBox(ctx, tx, warehouseID, *b.ParentBoxID, true)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if parent.DeletedAt != nil {
			writeError(w, r, 400, "Restore parent box first")
			return
		}
	}

	b.DeletedAt = nil
	b.Version++
	if err := store.UpdateBox(ctx, tx, b); err != nil {
		writeServiceError(w, r, err)
		return
	}
	activity.Record(ctx, tx, warehouseID, userID, "box.restored", strPtr("box"), &b.ID, nil)
	if err := changelog.Append(ctx, tx, warehouseID, "box", &b.ID, "restore", &b.Version, nil); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, b)
}

// BoxItems handles GET /warehouses/{w}/boxes/{box}/items: live items across
// the box's live subtree, name-sorted, optionally filtered by q.
func (s *Server) BoxItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	warehouseID := chi.URLParam(r, "warehouseID")
	boxID := chi.URLParam(r, "boxID")
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))

	if _, err := store.GetBox(ctx, s.DB, warehouseID, boxID, false); err != nil {
		writeServiceError(w, r, err)
		return
	}

	boxes, err := store.ListBoxes(ctx, s.DB, warehouseID, false)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	forest := boxtree.Build(boxes)
	subtree := forest.Descendants(boxID)
	subtree[boxID] = true
	boxIDs := make([]string, 0, len(subtree))
	for id := range subtree {
		boxIDs = append(boxIDs, id)
	}

	items, err := store.ListItems(ctx, s.DB, warehouseID, store.ItemFilter{BoxIDs: boxIDs})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if q != "" {
		filtered := items[:0]
		for _, it := range items {
			if strings.Contains(strings.ToLower(it.Name), q) {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}
	sort.SliceStable(items, func(i, j int) bool {
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})

	resp, err := s.itemResponses(ctx, items, forest)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, 200, resp)
}

type boxByQRResp struct {
	BoxID       string `json:"box_id"`
	WarehouseID string `json:"warehouse_id"`
	ShortCode   string `json:"short_code"`
	Name        string `json:"name"`
}

// BoxByQR handles GET /boxes/by-qr/{qrToken}: resolves a printed label to
// its box, membership-gated after the lookup.
func (s *Server) BoxByQR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	b, err := store.GetBoxByQR(ctx, s.DB, chi.URLParam(r, "qrToken"))
	if err != nil {
		if err == store.ErrNotFound {
			writeError(w, r, 404, "QR not found")
			return
		}
		writeServiceError(w, r, err)
		return
	}
	ok, err := auth.IsMember(ctx, s.DB, auth.UserID(ctx), b.WarehouseID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, 403, "No access to warehouse")
		return
	}
	writeJSON(w, 200, boxByQRResp{
		BoxID:       b.ID,
		WarehouseID: b.WarehouseID,
		ShortCode:   b.ShortCode,
		Name:        b.Name,
	})
}

func strPtrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
