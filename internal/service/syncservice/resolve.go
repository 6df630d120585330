package syncservice

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/bodega-app/bodega-api/internal/changelog"
	"github.com/bodega-app/bodega-api/internal/db"
	"github.com/bodega-app/bodega-api/internal/model"
	"github.com/bodega-app/bodega-api/internal/store"
)

// Resolve closes one conflict. keep_server leaves the entity untouched;
// keep_client replays the stored client payload as an update; merge does
// the same with the caller-supplied payload, which must not be empty.
// Resolving an already-resolved conflict is a no-op.
func (e *Engine) Resolve(ctx context.Context, userID string, req ResolveRequest) (*ResolveResponse, error) {
	logger := log.With().Str("warehouse_id", req.WarehouseID).Str("conflict_id", req.ConflictID).Logger()

	tx, err := e.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	conflict, err := conflictByID(ctx, tx, req.WarehouseID, req.ConflictID)
	if err != nil {
		return nil, err
	}
	if conflict == nil {
		return nil, store.ErrNotFound
	}
	if conflict.Status != model.ConflictOpen {
		return &ResolveResponse{Message: "Conflict already resolved", Conflict: *conflict}, nil
	}

	switch req.Resolution {
	case KeepServer:
		// Entity stays as-is; the command id just stops blocking.

	case KeepClient, Merge:
		source := req.Payload
		if req.Resolution == KeepClient && len(source) == 0 {
			source = conflict.ClientPayload
		}
		if req.Resolution == Merge && len(source) == 0 {
			return nil, badRequestf("merge resolution requires a payload")
		}
		if err := applyResolution(ctx, tx, req.WarehouseID, conflict, source); err != nil {
			return nil, err
		}

	default:
		return nil, badRequestf("resolution must be one of keep_server, keep_client, merge")
	}

	if err := markResolved(ctx, tx, conflict.ID, userID); err != nil {
		return nil, err
	}
	resolved, err := conflictByID(ctx, tx, req.WarehouseID, conflict.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to commit resolution")
		return nil, err
	}

	logger.Info().Str("resolution", req.Resolution).Msg("conflict resolved")
	return &ResolveResponse{Message: "Conflict resolved", Conflict: *resolved}, nil
}

// applyResolution writes the chosen payload onto the conflicted entity and
// records a resolve entry in the change feed.
func applyResolution(ctx context.Context, q db.Querier, warehouseID string, conflict *model.SyncConflict, source map[string]any) error {
	switch conflict.EntityType {
	case "box":
		box, err := store.GetBox(ctx, q, warehouseID, conflict.EntityID, true)
		if err != nil {
			return err
		}
		if name, ok := getString(source, "name"); ok {
			box.Name = strings.TrimSpace(name)
		}
		if hasKey(source, "description") {
			box.Description = stringPtr(source["description"])
		}
		if hasKey(source, "physical_location") {
			box.PhysicalLocation = stringPtr(source["physical_location"])
		}
		if hasKey(source, "new_parent_box_id") {
			if parentID, ok := getString(source, "new_parent_box_id"); ok && parentID != "" {
				if _, err := store.GetBox(ctx, q, warehouseID, parentID, false); err != nil {
					return err
				}
				box.ParentBoxID = &parentID
			} else {
				box.ParentBoxID = nil
			}
		}
		box.Version++
		if err := store.UpdateBox(ctx, q, box); err != nil {
			return err
		}
		return changelog.Append(ctx, q, warehouseID, "box", &box.ID, "resolve", &box.Version, source)

	case "item":
		item, err := store.GetItem(ctx, q, warehouseID, conflict.EntityID, true)
		if err != nil {
			return err
		}
		if err := applyItemFields(ctx, q, warehouseID, item, source); err != nil {
			return err
		}
		item.Version++
		if err := store.UpdateItem(ctx, q, item); err != nil {
			return err
		}
		return changelog.Append(ctx, q, warehouseID, "item", &item.ID, "resolve", &item.Version, source)
	}

	return badRequestf("unsupported conflict entity_type: %s", conflict.EntityType)
}
