// Package syncservice applies offline-device command batches with
// at-most-once semantics, serves the ordered change feed, and resolves
// version conflicts. Every push runs as one transaction so a batch
// commits or aborts as a unit.
package syncservice

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/bodega-app/bodega-api/internal/boxtree"
	"github.com/bodega-app/bodega-api/internal/changelog"
	"github.com/bodega-app/bodega-api/internal/db"
	"github.com/bodega-app/bodega-api/internal/ident"
	"github.com/bodega-app/bodega-api/internal/model"
	"github.com/bodega-app/bodega-api/internal/store"
)

// Engine runs the sync protocol over a shared pool.
type Engine struct {
	DB *pgxpool.Pool
}

// NewEngine creates a sync engine.
func NewEngine(pool *pgxpool.Pool) *Engine {
	return &Engine{DB: pool}
}

// Push processes commands in input order, each classified as applied,
// skipped, or conflicted. A non-conflict failure on any command aborts
// the whole batch.
func (e *Engine) Push(ctx context.Context, userID string, req PushRequest) (*PushResponse, error) {
	logger := log.With().Str("warehouse_id", req.WarehouseID).Str("device_id", req.DeviceID).Logger()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	tx, err := e.DB.Begin(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to begin push transaction")
		return nil, err
	}
	defer tx.Rollback(ctx)

	resp := &PushResponse{
		AppliedCommandIDs: make([]string, 0, len(req.Commands)),
		SkippedCommandIDs: make([]string, 0),
		Conflicts:         make([]model.SyncConflict, 0),
	}

	seen := make(map[string]bool, len(req.Commands))
	for _, cmd := range req.Commands {
		if seen[cmd.CommandID] {
			resp.SkippedCommandIDs = append(resp.SkippedCommandIDs, cmd.CommandID)
			continue
		}
		seen[cmd.CommandID] = true

		processed, err := commandProcessed(ctx, tx, cmd.CommandID)
		if err != nil {
			return nil, err
		}
		if processed {
			resp.SkippedCommandIDs = append(resp.SkippedCommandIDs, cmd.CommandID)
			continue
		}

		existing, err := conflictByCommandID(ctx, tx, cmd.CommandID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			resp.Conflicts = append(resp.Conflicts, *existing)
			resp.SkippedCommandIDs = append(resp.SkippedCommandIDs, cmd.CommandID)
			continue
		}

		conflict, err := e.apply(ctx, tx, userID, req.WarehouseID, cmd)
		if err != nil {
			logger.Warn().Err(err).Str("command_id", cmd.CommandID).Str("type", cmd.Type).Msg("push command failed")
			return nil, err
		}
		if conflict != nil {
			resp.Conflicts = append(resp.Conflicts, *conflict)
			continue
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO processed_commands (command_id, warehouse_id, user_id, device_id)
			VALUES ($1, $2, $3, $4)
		`, cmd.CommandID, req.WarehouseID, userID, req.DeviceID); err != nil {
			return nil, err
		}
		resp.AppliedCommandIDs = append(resp.AppliedCommandIDs, cmd.CommandID)
	}

	lastSeq, err := changelog.LastSeq(ctx, tx, req.WarehouseID)
	if err != nil {
		return nil, err
	}
	resp.LastSeq = lastSeq

	if err := tx.Commit(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to commit push transaction")
		return nil, err
	}
	return resp, nil
}

func commandProcessed(ctx context.Context, q db.Querier, commandID string) (bool, error) {
	var one int
	err := q.QueryRow(ctx,
		`SELECT 1 FROM processed_commands WHERE command_id = $1`, commandID).Scan(&one)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, err
}

// checkVersion opens (or fetches) a conflict when the client's base
// diverged from the server. A nil base means the client has no base and
// the check is skipped.
func checkVersion(ctx context.Context, q db.Querier, warehouseID string, cmd Command, entityType, entityID string, serverVersion int, userID string) (*model.SyncConflict, error) {
	if cmd.BaseVersion == nil || *cmd.BaseVersion == serverVersion {
		return nil, nil
	}
	return createOrGetConflict(ctx, q, warehouseID, cmd.CommandID, entityType, entityID,
		cmd.BaseVersion, serverVersion, cmd.Payload, userID)
}

// apply dispatches one command. A returned conflict is not an error; any
// returned error aborts the batch.
func (e *Engine) apply(ctx context.Context, q db.Querier, userID, warehouseID string, cmd Command) (*model.SyncConflict, error) {
	payload := cmd.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	switch strings.ToLower(strings.TrimSpace(cmd.Type)) {
	case "box.create":
		return nil, applyBoxCreate(ctx, q, warehouseID, cmd, payload)
	case "box.update", "box.move", "box.delete", "box.restore":
		return e.applyBoxMutation(ctx, q, userID, warehouseID, cmd, payload)
	case "item.create":
		return nil, applyItemCreate(ctx, q, warehouseID, cmd, payload)
	case "item.update", "item.delete", "item.restore":
		return e.applyItemMutation(ctx, q, userID, warehouseID, cmd, payload)
	case "item.favorite", "item.unfavorite":
		return nil, applyFavorite(ctx, q, userID, warehouseID, cmd)
	case "stock.adjust":
		return nil, applyStockAdjust(ctx, q, warehouseID, cmd, payload)
	}
	return nil, badRequestf("unsupported command type: %s", cmd.Type)
}

func entityOrPayloadID(cmd Command, payload map[string]any) string {
	if cmd.EntityID != nil && *cmd.EntityID != "" {
		return *cmd.EntityID
	}
	if id, ok := getString(payload, "id"); ok && id != "" {
		return id
	}
	return ident.NewID()
}

func applyBoxCreate(ctx context.Context, q db.Querier, warehouseID string, cmd Command, payload map[string]any) error {
	if parentID, ok := getString(payload, "parent_box_id"); ok && parentID != "" {
		if _, err := store.GetBox(ctx, q, warehouseID, parentID, false); err != nil {
			return err
		}
	}

	boxID := entityOrPayloadID(cmd, payload)
	box, err := store.GetBox(ctx, q, warehouseID, boxID, true)
	if errors.Is(err, store.ErrNotFound) {
		name, _ := getString(payload, "name")
		name = strings.TrimSpace(name)
		if name == "" {
			name = "Caja Sync"
		}
		qrToken, _ := getString(payload, "qr_token")
		if qrToken == "" {
			qrToken = ident.NewQRToken()
		}
		shortCode, _ := getString(payload, "short_code")
		if shortCode == "" {
			shortCode = ident.NewShortCode()
		}
		box = &model.Box{
			ID:               boxID,
			WarehouseID:      warehouseID,
			ParentBoxID:      stringPtr(payload["parent_box_id"]),
			Name:             name,
			Description:      stringPtr(payload["description"]),
			PhysicalLocation: stringPtr(payload["physical_location"]),
			QRToken:          qrToken,
			ShortCode:        shortCode,
			Version:          1,
		}
		if err := store.InsertBox(ctx, q, box); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	// Duplicate creates are absorbed: log against whatever row is there.
	return changelog.Append(ctx, q, warehouseID, "box", &box.ID, "create", &box.Version,
		map[string]any{"name": box.Name, "parent_box_id": box.ParentBoxID})
}

func (e *Engine) applyBoxMutation(ctx context.Context, q db.Querier, userID, warehouseID string, cmd Command, payload map[string]any) (*model.SyncConflict, error) {
	if cmd.EntityID == nil || *cmd.EntityID == "" {
		return nil, badRequestf("%s requires entity_id", cmd.Type)
	}
	box, err := store.GetBox(ctx, q, warehouseID, *cmd.EntityID, true)
	if err != nil {
		return nil, err
	}

	conflict, err := checkVersion(ctx, q, warehouseID, cmd, "box", box.ID, box.Version, userID)
	if err != nil || conflict != nil {
		return conflict, err
	}

	switch strings.ToLower(strings.TrimSpace(cmd.Type)) {
	case "box.update":
		if name, ok := getString(payload, "name"); ok {
			box.Name = strings.TrimSpace(name)
		}
		if hasKey(payload, "description") {
			box.Description = stringPtr(payload["description"])
		}
		if hasKey(payload, "physical_location") {
			box.PhysicalLocation = stringPtr(payload["physical_location"])
		}
		box.Version++
		if err := store.UpdateBox(ctx, q, box); err != nil {
			return nil, err
		}
		return nil, changelog.Append(ctx, q, warehouseID, "box", &box.ID, "update", &box.Version, payload)

	case "box.move":
		var newParent *string
		if parentID, ok := getString(payload, "new_parent_box_id"); ok && parentID != "" {
			if _, err := store.GetBox(ctx, q, warehouseID, parentID, false); err != nil {
				return nil, err
			}
			boxes, err := store.ListBoxes(ctx, q, warehouseID, true)
			if err != nil {
				return nil, err
			}
			if boxtree.Build(boxes).WouldCycle(box.ID, parentID) {
				return nil, badRequestf("cannot move a box into its own subtree")
			}
			newParent = &parentID
		}
		box.ParentBoxID = newParent
		box.Version++
		if err := store.UpdateBox(ctx, q, box); err != nil {
			return nil, err
		}
		return nil, changelog.Append(ctx, q, warehouseID, "box", &box.ID, "move", &box.Version,
			map[string]any{"new_parent_box_id": newParent})

	case "box.delete":
		if box.DeletedAt != nil {
			return nil, nil
		}
		now := time.Now().UTC()
		box.DeletedAt = &now
		box.Version++
		if err := store.UpdateBox(ctx, q, box); err != nil {
			return nil, err
		}
		return nil, changelog.Append(ctx, q, warehouseID, "box", &box.ID, "delete", &box.Version, nil)

	default: // box.restore
		if box.DeletedAt == nil {
			return nil, nil
		}
		box.DeletedAt = nil
		box.Version++
		if err := store.UpdateBox(ctx, q, box); err != nil {
			return nil, err
		}
		return nil, changelog.Append(ctx, q, warehouseID, "box", &box.ID, "restore", &box.Version, nil)
	}
}

func applyItemCreate(ctx context.Context, q db.Querier, warehouseID string, cmd Command, payload map[string]any) error {
	boxID, ok := getString(payload, "box_id")
	if !ok || boxID == "" {
		return badRequestf("item.create requires box_id")
	}
	if _, err := store.GetBox(ctx, q, warehouseID, boxID, false); err != nil {
		return err
	}

	itemID := entityOrPayloadID(cmd, payload)
	item, err := store.GetItem(ctx, q, warehouseID, itemID, true)
	if errors.Is(err, store.ErrNotFound) {
		name, _ := getString(payload, "name")
		name = strings.TrimSpace(name)
		if name == "" {
			name = "Item Sync"
		}
		tags, _ := getStrings(payload, "tags")
		aliases, _ := getStrings(payload, "aliases")
		if tags == nil {
			tags = []string{}
		}
		if aliases == nil {
			aliases = []string{}
		}
		item = &model.Item{
			ID:               itemID,
			WarehouseID:      warehouseID,
			BoxID:            boxID,
			Name:             name,
			Description:      stringPtr(payload["description"]),
			PhotoURL:         stringPtr(payload["photo_url"]),
			PhysicalLocation: stringPtr(payload["physical_location"]),
			Tags:             tags,
			Aliases:          aliases,
			Version:          1,
		}
		if err := store.InsertItem(ctx, q, item); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	return changelog.Append(ctx, q, warehouseID, "item", &item.ID, "create", &item.Version,
		map[string]any{"name": item.Name, "box_id": item.BoxID})
}

func (e *Engine) applyItemMutation(ctx context.Context, q db.Querier, userID, warehouseID string, cmd Command, payload map[string]any) (*model.SyncConflict, error) {
	if cmd.EntityID == nil || *cmd.EntityID == "" {
		return nil, badRequestf("%s requires entity_id", cmd.Type)
	}
	item, err := store.GetItem(ctx, q, warehouseID, *cmd.EntityID, true)
	if err != nil {
		return nil, err
	}

	conflict, err := checkVersion(ctx, q, warehouseID, cmd, "item", item.ID, item.Version, userID)
	if err != nil || conflict != nil {
		return conflict, err
	}

	switch strings.ToLower(strings.TrimSpace(cmd.Type)) {
	case "item.update":
		if err := applyItemFields(ctx, q, warehouseID, item, payload); err != nil {
			return nil, err
		}
		item.Version++
		if err := store.UpdateItem(ctx, q, item); err != nil {
			return nil, err
		}
		return nil, changelog.Append(ctx, q, warehouseID, "item", &item.ID, "update", &item.Version, payload)

	case "item.delete":
		if item.DeletedAt != nil {
			return nil, nil
		}
		now := time.Now().UTC()
		item.DeletedAt = &now
		item.Version++
		if err := store.UpdateItem(ctx, q, item); err != nil {
			return nil, err
		}
		return nil, changelog.Append(ctx, q, warehouseID, "item", &item.ID, "delete", &item.Version, nil)

	default: // item.restore
		if item.DeletedAt == nil {
			return nil, nil
		}
		// The item's box must be live again before the item can come back.
		if _, err := store.GetBox(ctx, q, warehouseID, item.BoxID, false); err != nil {
			return nil, err
		}
		item.DeletedAt = nil
		item.Version++
		if err := store.UpdateItem(ctx, q, item); err != nil {
			return nil, err
		}
		return nil, changelog.Append(ctx, q, warehouseID, "item", &item.ID, "restore", &item.Version, nil)
	}
}

// applyItemFields copies the payload's supplied fields onto the item.
// Shared by item.update and conflict resolution.
func applyItemFields(ctx context.Context, q db.Querier, warehouseID string, item *model.Item, payload map[string]any) error {
	if boxID, ok := getString(payload, "box_id"); ok && boxID != "" {
		if _, err := store.GetBox(ctx, q, warehouseID, boxID, false); err != nil {
			return err
		}
		item.BoxID = boxID
	}
	if name, ok := getString(payload, "name"); ok {
		item.Name = strings.TrimSpace(name)
	}
	if hasKey(payload, "description") {
		item.Description = stringPtr(payload["description"])
	}
	if hasKey(payload, "photo_url") {
		item.PhotoURL = stringPtr(payload["photo_url"])
	}
	if hasKey(payload, "physical_location") {
		item.PhysicalLocation = stringPtr(payload["physical_location"])
	}
	if tags, ok := getStrings(payload, "tags"); ok {
		item.Tags = tags
	}
	if aliases, ok := getStrings(payload, "aliases"); ok {
		item.Aliases = aliases
	}
	return nil
}

func applyFavorite(ctx context.Context, q db.Querier, userID, warehouseID string, cmd Command) error {
	if cmd.EntityID == nil || *cmd.EntityID == "" {
		return badRequestf("%s requires entity_id", cmd.Type)
	}
	item, err := store.GetItem(ctx, q, warehouseID, *cmd.EntityID, true)
	if err != nil {
		return err
	}

	makeFavorite := strings.EqualFold(strings.TrimSpace(cmd.Type), "item.favorite")
	if makeFavorite {
		err = store.SetFavorite(ctx, q, userID, item.ID)
	} else {
		err = store.Unfavorite(ctx, q, userID, item.ID)
	}
	if err != nil {
		return err
	}

	return changelog.Append(ctx, q, warehouseID, "favorite", &item.ID, "set", nil,
		map[string]any{"user_id": userID, "is_favorite": makeFavorite})
}

func applyStockAdjust(ctx context.Context, q db.Querier, warehouseID string, cmd Command, payload map[string]any) error {
	if cmd.EntityID == nil || *cmd.EntityID == "" {
		return badRequestf("stock.adjust requires entity_id")
	}
	item, err := store.GetItem(ctx, q, warehouseID, *cmd.EntityID, false)
	if err != nil {
		return err
	}

	delta, _ := getInt(payload, "delta")
	if delta != 1 && delta != -1 {
		return badRequestf("stock.adjust delta must be +1/-1")
	}

	var note *string
	if n, ok := getString(payload, "note"); ok {
		note = &n
	}
	inserted, err := store.InsertMovement(ctx, q, ident.NewID(), warehouseID, item.ID, delta, cmd.CommandID, note)
	if err != nil {
		return err
	}
	if !inserted {
		// Ledger already has this command: idempotent no-op.
		return nil
	}

	return changelog.Append(ctx, q, warehouseID, "stock", &item.ID, "adjust", nil,
		map[string]any{"delta": delta, "command_id": cmd.CommandID})
}
