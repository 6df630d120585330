package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bodega-app/bodega-api/internal/db"
	"github.com/bodega-app/bodega-api/internal/model"
)

const itemCols = `id, warehouse_id, box_id, name, description, photo_url, physical_location,
	tags, aliases, version, deleted_at, created_at, updated_at`

func scanItemRow(row pgx.Row) (*model.Item, error) {
	var it model.Item
	err := row.Scan(&it.ID, &it.WarehouseID, &it.BoxID, &it.Name, &it.Description,
		&it.PhotoURL, &it.PhysicalLocation, &it.Tags, &it.Aliases, &it.Version,
		&it.DeletedAt, &it.CreatedAt, &it.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if it.Tags == nil {
		it.Tags = []string{}
	}
	if it.Aliases == nil {
		it.Aliases = []string{}
	}
	return &it, nil
}

// GetItem loads one item scoped to a warehouse.
func GetItem(ctx context.Context, q db.Querier, warehouseID, itemID string, includeDeleted bool) (*model.Item, error) {
	sql := `SELECT ` + itemCols + ` FROM items WHERE id = $1 AND warehouse_id = $2`
	if !includeDeleted {
		sql += ` AND deleted_at IS NULL`
	}
	return scanItemRow(q.QueryRow(ctx, sql, itemID, warehouseID))
}

// GetItemAnyWarehouse loads an item by id regardless of tenancy.
func GetItemAnyWarehouse(ctx context.Context, q db.Querier, itemID string) (*model.Item, error) {
	return scanItemRow(q.QueryRow(ctx, `SELECT `+itemCols+` FROM items WHERE id = $1`, itemID))
}

// ItemFilter narrows ListItems. WithPhoto distinguishes unset (nil) from
// true/false.
type ItemFilter struct {
	IncludeDeleted bool
	WithPhoto      *bool
	BoxIDs         []string
}

// ListItems loads the warehouse's items under filter.
func ListItems(ctx context.Context, q db.Querier, warehouseID string, filter ItemFilter) ([]model.Item, error) {
	sql := `SELECT ` + itemCols + ` FROM items WHERE warehouse_id = $1`
	args := []any{warehouseID}
	if !filter.IncludeDeleted {
		sql += ` AND deleted_at IS NULL`
	}
	if filter.WithPhoto != nil {
		if *filter.WithPhoto {
			sql += ` AND photo_url IS NOT NULL`
		} else {
			sql += ` AND photo_url IS NULL`
		}
	}
	if filter.BoxIDs != nil {
		sql += ` AND box_id = ANY($2)`
		args = append(args, filter.BoxIDs)
	}
	sql += ` ORDER BY created_at ASC`

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		var it model.Item
		if err := rows.Scan(&it.ID, &it.WarehouseID, &it.BoxID, &it.Name, &it.Description,
			&it.PhotoURL, &it.PhysicalLocation, &it.Tags, &it.Aliases, &it.Version,
			&it.DeletedAt, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		if it.Tags == nil {
			it.Tags = []string{}
		}
		if it.Aliases == nil {
			it.Aliases = []string{}
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func marshalStrings(s []string) ([]byte, error) {
	if s == nil {
		s = []string{}
	}
	return json.Marshal(s)
}

// InsertItem persists a new item row.
func InsertItem(ctx context.Context, q db.Querier, it *model.Item) error {
	tags, err := marshalStrings(it.Tags)
	if err != nil {
		return err
	}
	aliases, err := marshalStrings(it.Aliases)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO items (id, warehouse_id, box_id, name, description, photo_url,
			physical_location, tags, aliases, version, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, it.ID, it.WarehouseID, it.BoxID, it.Name, it.Description, it.PhotoURL,
		it.PhysicalLocation, tags, aliases, it.Version, it.DeletedAt)
	return err
}

// UpdateItem writes back every mutable column of it.
func UpdateItem(ctx context.Context, q db.Querier, it *model.Item) error {
	tags, err := marshalStrings(it.Tags)
	if err != nil {
		return err
	}
	aliases, err := marshalStrings(it.Aliases)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		UPDATE items
		SET box_id = $3, name = $4, description = $5, photo_url = $6, physical_location = $7,
			tags = $8, aliases = $9, version = $10, deleted_at = $11, updated_at = now()
		WHERE id = $1 AND warehouse_id = $2
	`, it.ID, it.WarehouseID, it.BoxID, it.Name, it.Description, it.PhotoURL,
		it.PhysicalLocation, tags, aliases, it.Version, it.DeletedAt)
	return err
}

// SoftDeleteItems stamps deleted_at on the live items in ids at one instant.
func SoftDeleteItems(ctx context.Context, q db.Querier, warehouseID string, ids []string, at time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE items SET deleted_at = $3, version = version + 1, updated_at = now()
		WHERE warehouse_id = $1 AND id = ANY($2) AND deleted_at IS NULL
	`, warehouseID, ids, at)
	return err
}

// SoftDeleteItemsInBoxes is SoftDeleteItems keyed by containing box.
func SoftDeleteItemsInBoxes(ctx context.Context, q db.Querier, warehouseID string, boxIDs []string, at time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE items SET deleted_at = $3, version = version + 1, updated_at = now()
		WHERE warehouse_id = $1 AND box_id = ANY($2) AND deleted_at IS NULL
	`, warehouseID, boxIDs, at)
	return err
}
