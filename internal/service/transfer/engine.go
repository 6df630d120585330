package transfer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/bodega-app/bodega-api/internal/changelog"
	"github.com/bodega-app/bodega-api/internal/db"
	"github.com/bodega-app/bodega-api/internal/ident"
	"github.com/bodega-app/bodega-api/internal/model"
	"github.com/bodega-app/bodega-api/internal/store"
)

// Engine runs export and import against a shared pool.
type Engine struct {
	DB *pgxpool.Pool
}

func NewEngine(pool *pgxpool.Pool) *Engine {
	return &Engine{DB: pool}
}

func warehouseName(ctx context.Context, q db.Querier, warehouseID string) (string, error) {
	var name string
	err := q.QueryRow(ctx, `SELECT name FROM warehouses WHERE id = $1`, warehouseID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", store.ErrNotFound
	}
	return name, err
}

// Export snapshots one warehouse: every box and item (deleted included)
// and the full stock ledger, all ordered by created_at ascending.
func (e *Engine) Export(ctx context.Context, warehouseID string) (*Snapshot, error) {
	name, err := warehouseName(ctx, e.DB, warehouseID)
	if err != nil {
		return nil, err
	}

	boxes, err := store.ListBoxes(ctx, e.DB, warehouseID, true)
	if err != nil {
		return nil, err
	}
	items, err := store.ListItems(ctx, e.DB, warehouseID, store.ItemFilter{IncludeDeleted: true})
	if err != nil {
		return nil, err
	}
	movements, err := store.ListMovements(ctx, e.DB, warehouseID)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		SchemaVersion:  SchemaVersion,
		ExportedAt:     time.Now().UTC(),
		Warehouse:      SnapshotWarehouse{ID: warehouseID, Name: name},
		Boxes:          make([]SnapshotBox, 0, len(boxes)),
		Items:          make([]SnapshotItem, 0, len(items)),
		StockMovements: make([]SnapshotMovement, 0, len(movements)),
	}
	for _, b := range boxes {
		snap.Boxes = append(snap.Boxes, SnapshotBox{
			ID:               b.ID,
			ParentBoxID:      b.ParentBoxID,
			Name:             b.Name,
			Description:      b.Description,
			PhysicalLocation: b.PhysicalLocation,
			ShortCode:        b.ShortCode,
			QRToken:          b.QRToken,
			Version:          b.Version,
			DeletedAt:        b.DeletedAt,
		})
	}
	for _, it := range items {
		snap.Items = append(snap.Items, SnapshotItem{
			ID:               it.ID,
			BoxID:            it.BoxID,
			Name:             it.Name,
			Description:      it.Description,
			PhotoURL:         it.PhotoURL,
			PhysicalLocation: it.PhysicalLocation,
			Tags:             it.Tags,
			Aliases:          it.Aliases,
			Version:          it.Version,
			DeletedAt:        it.DeletedAt,
		})
	}
	for _, m := range movements {
		snap.StockMovements = append(snap.StockMovements, SnapshotMovement{
			ID:        m.ID,
			ItemID:    m.ItemID,
			Delta:     m.Delta,
			CommandID: m.CommandID,
			Note:      m.Note,
			CreatedAt: m.CreatedAt,
		})
	}
	return snap, nil
}

// Import replays a snapshot into the target warehouse in one transaction.
// Ids colliding with rows owned by other warehouses get fresh UUIDs; QR
// token collisions get fresh tokens; movements already in the ledger are
// skipped.
func (e *Engine) Import(ctx context.Context, userID, warehouseID string, snap Snapshot) (*ImportResult, error) {
	logger := log.With().Str("warehouse_id", warehouseID).Logger()

	tx, err := e.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := warehouseName(ctx, tx, warehouseID); err != nil {
		return nil, err
	}

	// Parents that point outside the batch must already exist in the
	// target warehouse.
	inBatch := make(map[string]bool, len(snap.Boxes))
	for _, b := range snap.Boxes {
		inBatch[b.ID] = true
	}
	for _, b := range snap.Boxes {
		if b.ParentBoxID == nil || inBatch[*b.ParentBoxID] {
			continue
		}
		if _, err := store.GetBox(ctx, tx, warehouseID, *b.ParentBoxID, true); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, badRequestf("parent box %s not found for box %s", *b.ParentBoxID, b.ID)
			}
			return nil, err
		}
	}

	if name := strings.TrimSpace(snap.Warehouse.Name); name != "" {
		if _, err := tx.Exec(ctx, `UPDATE warehouses SET name = $2, updated_at = now() WHERE id = $1`, warehouseID, name); err != nil {
			return nil, err
		}
	}

	boxIDMap, err := remapBoxIDs(ctx, tx, warehouseID, snap.Boxes)
	if err != nil {
		return nil, err
	}

	ordered, err := orderBoxes(snap.Boxes)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Message: "Import completed"}
	for _, b := range ordered {
		if err := upsertBox(ctx, tx, warehouseID, b, boxIDMap); err != nil {
			return nil, err
		}
		result.BoxesUpserted++
	}

	itemIDMap, err := remapItemIDs(ctx, tx, warehouseID, snap.Items)
	if err != nil {
		return nil, err
	}
	for _, it := range snap.Items {
		if err := upsertItem(ctx, tx, warehouseID, it, boxIDMap, itemIDMap); err != nil {
			return nil, err
		}
		result.ItemsUpserted++
	}

	for _, m := range snap.StockMovements {
		inserted, err := upsertMovement(ctx, tx, warehouseID, m, itemIDMap)
		if err != nil {
			return nil, err
		}
		if inserted {
			result.StockMovementsUpserted++
		}
	}

	if err := changelog.Append(ctx, tx, warehouseID, "warehouse", &warehouseID, "import", nil,
		map[string]any{"updated_by": userID}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	logger.Info().
		Int("boxes", result.BoxesUpserted).
		Int("items", result.ItemsUpserted).
		Int("stock_movements", result.StockMovementsUpserted).
		Msg("warehouse import completed")
	return result, nil
}

// remapBoxIDs keeps snapshot ids unless another warehouse already owns
// them, in which case a fresh UUID is assigned.
func remapBoxIDs(ctx context.Context, q db.Querier, warehouseID string, boxes []SnapshotBox) (map[string]string, error) {
	idMap := make(map[string]string, len(boxes))
	for _, b := range boxes {
		existing, err := store.GetBoxAnyWarehouse(ctx, q, b.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if existing != nil && existing.WarehouseID != warehouseID {
			idMap[b.ID] = ident.NewID()
		} else {
			idMap[b.ID] = b.ID
		}
	}
	return idMap, nil
}

func remapItemIDs(ctx context.Context, q db.Querier, warehouseID string, items []SnapshotItem) (map[string]string, error) {
	idMap := make(map[string]string, len(items))
	for _, it := range items {
		existing, err := store.GetItemAnyWarehouse(ctx, q, it.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if existing != nil && existing.WarehouseID != warehouseID {
			idMap[it.ID] = ident.NewID()
		} else {
			idMap[it.ID] = it.ID
		}
	}
	return idMap, nil
}

func mappedID(idMap map[string]string, id string) string {
	if mapped, ok := idMap[id]; ok {
		return mapped
	}
	return id
}

func upsertBox(ctx context.Context, q db.Querier, warehouseID string, b SnapshotBox, boxIDMap map[string]string) error {
	boxID := mappedID(boxIDMap, b.ID)
	var parentID *string
	if b.ParentBoxID != nil {
		p := mappedID(boxIDMap, *b.ParentBoxID)
		parentID = &p
	}

	existing, err := store.GetBox(ctx, q, warehouseID, boxID, true)
	switch {
	case errors.Is(err, store.ErrNotFound):
		qrToken := b.QRToken
		shortCode := b.ShortCode
		taken, err := store.QRTokenTaken(ctx, q, qrToken, boxID)
		if err != nil {
			return err
		}
		if taken {
			qrToken = ident.NewQRToken()
			shortCode = ident.NewShortCode()
		}
		box := &model.Box{
			ID:               boxID,
			WarehouseID:      warehouseID,
			ParentBoxID:      parentID,
			Name:             b.Name,
			Description:      b.Description,
			PhysicalLocation: b.PhysicalLocation,
			QRToken:          qrToken,
			ShortCode:        shortCode,
			Version:          b.Version,
			DeletedAt:        b.DeletedAt,
		}
		if err := store.InsertBox(ctx, q, box); err != nil {
			return err
		}

	case err != nil:
		return err

	default:
		qrToken := b.QRToken
		taken, err := store.QRTokenTaken(ctx, q, qrToken, existing.ID)
		if err != nil {
			return err
		}
		if taken {
			// Another box holds the snapshot's token; keep the current one.
			qrToken = existing.QRToken
		}
		existing.ParentBoxID = parentID
		existing.Name = b.Name
		existing.Description = b.Description
		existing.PhysicalLocation = b.PhysicalLocation
		existing.ShortCode = b.ShortCode
		existing.QRToken = qrToken
		existing.Version = b.Version
		existing.DeletedAt = b.DeletedAt
		if err := store.UpdateBox(ctx, q, existing); err != nil {
			return err
		}
	}

	return changelog.Append(ctx, q, warehouseID, "box", &boxID, "import", &b.Version,
		map[string]any{"name": b.Name})
}

func upsertItem(ctx context.Context, q db.Querier, warehouseID string, it SnapshotItem, boxIDMap, itemIDMap map[string]string) error {
	itemID := mappedID(itemIDMap, it.ID)
	boxID := mappedID(boxIDMap, it.BoxID)

	if _, err := store.GetBox(ctx, q, warehouseID, boxID, true); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return badRequestf("box %s not found for item %s", it.BoxID, it.ID)
		}
		return err
	}

	tags := it.Tags
	if tags == nil {
		tags = []string{}
	}
	aliases := it.Aliases
	if aliases == nil {
		aliases = []string{}
	}

	existing, err := store.GetItem(ctx, q, warehouseID, itemID, true)
	switch {
	case errors.Is(err, store.ErrNotFound):
		item := &model.Item{
			ID:               itemID,
			WarehouseID:      warehouseID,
			BoxID:            boxID,
			Name:             it.Name,
			Description:      it.Description,
			PhotoURL:         it.PhotoURL,
			PhysicalLocation: it.PhysicalLocation,
			Tags:             tags,
			Aliases:          aliases,
			Version:          it.Version,
			DeletedAt:        it.DeletedAt,
		}
		if err := store.InsertItem(ctx, q, item); err != nil {
			return err
		}

	case err != nil:
		return err

	default:
		existing.BoxID = boxID
		existing.Name = it.Name
		existing.Description = it.Description
		existing.PhotoURL = it.PhotoURL
		existing.PhysicalLocation = it.PhysicalLocation
		existing.Tags = tags
		existing.Aliases = aliases
		existing.Version = it.Version
		existing.DeletedAt = it.DeletedAt
		if err := store.UpdateItem(ctx, q, existing); err != nil {
			return err
		}
	}

	return changelog.Append(ctx, q, warehouseID, "item", &itemID, "import", &it.Version,
		map[string]any{"name": it.Name, "box_id": boxID})
}

func upsertMovement(ctx context.Context, q db.Querier, warehouseID string, m SnapshotMovement, itemIDMap map[string]string) (bool, error) {
	itemID := mappedID(itemIDMap, m.ItemID)

	exists, err := store.MovementExists(ctx, q, itemID, m.CommandID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if _, err := store.GetItem(ctx, q, warehouseID, itemID, true); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, badRequestf("item %s not found for stock movement %s", m.ItemID, m.ID)
		}
		return false, err
	}

	movementID := m.ID
	ownedElsewhere, err := store.MovementIDOwnedElsewhere(ctx, q, movementID, warehouseID)
	if err != nil {
		return false, err
	}
	if ownedElsewhere {
		movementID = ident.NewID()
	}

	inserted, err := store.InsertMovement(ctx, q, movementID, warehouseID, itemID, m.Delta, m.CommandID, m.Note)
	if err != nil || !inserted {
		return inserted, err
	}

	return true, changelog.Append(ctx, q, warehouseID, "stock", &itemID, "import", nil,
		map[string]any{"delta": m.Delta, "command_id": m.CommandID})
}
