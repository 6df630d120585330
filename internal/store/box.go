// Package store holds the row-level data access shared by the direct
// handlers, the sync engine, and the transfer engine. Every function takes
// a db.Querier so it runs equally inside a transaction or on the pool.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bodega-app/bodega-api/internal/db"
	"github.com/bodega-app/bodega-api/internal/model"
)

// ErrNotFound means the referenced row is absent, or soft-deleted when a
// live view was requested.
var ErrNotFound = errors.New("store: not found")

const boxCols = `id, warehouse_id, parent_box_id, name, description, physical_location,
	qr_token, short_code, version, deleted_at, created_at, updated_at`

func scanBox(row pgx.Row) (*model.Box, error) {
	var b model.Box
	err := row.Scan(&b.ID, &b.WarehouseID, &b.ParentBoxID, &b.Name, &b.Description,
		&b.PhysicalLocation, &b.QRToken, &b.ShortCode, &b.Version, &b.DeletedAt,
		&b.CreatedAt, &b.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBox loads one box scoped to a warehouse.
func GetBox(ctx context.Context, q db.Querier, warehouseID, boxID string, includeDeleted bool) (*model.Box, error) {
	sql := `SELECT ` + boxCols + ` FROM boxes WHERE id = $1 AND warehouse_id = $2`
	if !includeDeleted {
		sql += ` AND deleted_at IS NULL`
	}
	return scanBox(q.QueryRow(ctx, sql, boxID, warehouseID))
}

// GetBoxAnyWarehouse loads a box by id regardless of tenancy; the transfer
// engine uses it for id-collision detection.
func GetBoxAnyWarehouse(ctx context.Context, q db.Querier, boxID string) (*model.Box, error) {
	return scanBox(q.QueryRow(ctx, `SELECT `+boxCols+` FROM boxes WHERE id = $1`, boxID))
}

// GetBoxByQR matches a qr_token across all live boxes globally.
func GetBoxByQR(ctx context.Context, q db.Querier, qrToken string) (*model.Box, error) {
	return scanBox(q.QueryRow(ctx,
		`SELECT `+boxCols+` FROM boxes WHERE qr_token = $1 AND deleted_at IS NULL`, qrToken))
}

// ListBoxes returns every box of the warehouse, optionally keeping deleted
// ones in the view.
func ListBoxes(ctx context.Context, q db.Querier, warehouseID string, includeDeleted bool) ([]model.Box, error) {
	sql := `SELECT ` + boxCols + ` FROM boxes WHERE warehouse_id = $1`
	if !includeDeleted {
		sql += ` AND deleted_at IS NULL`
	}
	sql += ` ORDER BY created_at ASC`
	rows, err := q.Query(ctx, sql, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var boxes []model.Box
	for rows.Next() {
		var b model.Box
		if err := rows.Scan(&b.ID, &b.WarehouseID, &b.ParentBoxID, &b.Name, &b.Description,
			&b.PhysicalLocation, &b.QRToken, &b.ShortCode, &b.Version, &b.DeletedAt,
			&b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		boxes = append(boxes, b)
	}
	return boxes, rows.Err()
}

// CountBoxes counts all boxes in the warehouse, deleted included; the
// default "Caja N" name is derived from it.
func CountBoxes(ctx context.Context, q db.Querier, warehouseID string) (int, error) {
	var n int
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM boxes WHERE warehouse_id = $1`, warehouseID).Scan(&n)
	return n, err
}

// InsertBox persists a new box row.
func InsertBox(ctx context.Context, q db.Querier, b *model.Box) error {
	_, err := q.Exec(ctx, `
		INSERT INTO boxes (id, warehouse_id, parent_box_id, name, description, physical_location,
			qr_token, short_code, version, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, b.ID, b.WarehouseID, b.ParentBoxID, b.Name, b.Description, b.PhysicalLocation,
		b.QRToken, b.ShortCode, b.Version, b.DeletedAt)
	return err
}

// UpdateBox writes back every mutable column of b.
func UpdateBox(ctx context.Context, q db.Querier, b *model.Box) error {
	_, err := q.Exec(ctx, `
		UPDATE boxes
		SET parent_box_id = $3, name = $4, description = $5, physical_location = $6,
			qr_token = $7, short_code = $8, version = $9, deleted_at = $10, updated_at = now()
		WHERE id = $1 AND warehouse_id = $2
	`, b.ID, b.WarehouseID, b.ParentBoxID, b.Name, b.Description, b.PhysicalLocation,
		b.QRToken, b.ShortCode, b.Version, b.DeletedAt)
	return err
}

// QRTokenTaken reports whether another box already owns qrToken.
func QRTokenTaken(ctx context.Context, q db.Querier, qrToken, exceptBoxID string) (bool, error) {
	var one int
	err := q.QueryRow(ctx,
		`SELECT 1 FROM boxes WHERE qr_token = $1 AND id <> $2`, qrToken, exceptBoxID).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SoftDeleteBoxes stamps deleted_at on every live box in ids and bumps the
// versions, all at the same instant.
func SoftDeleteBoxes(ctx context.Context, q db.Querier, warehouseID string, ids []string, at time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE boxes SET deleted_at = $3, version = version + 1, updated_at = now()
		WHERE warehouse_id = $1 AND id = ANY($2) AND deleted_at IS NULL
	`, warehouseID, ids, at)
	return err
}
