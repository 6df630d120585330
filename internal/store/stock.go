package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/bodega-app/bodega-api/internal/db"
	"github.com/bodega-app/bodega-api/internal/model"
)

// StockMap returns computed stock per item id. Stock is never stored as a
// scalar; it is always the sum of the ledger.
func StockMap(ctx context.Context, q db.Querier, itemIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `
		SELECT item_id, COALESCE(SUM(delta), 0)
		FROM stock_movements
		WHERE item_id = ANY($1)
		GROUP BY item_id
	`, itemIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var stock int
		if err := rows.Scan(&id, &stock); err != nil {
			return nil, err
		}
		out[id] = stock
	}
	return out, rows.Err()
}

// InsertMovement appends one ledger entry. The (item_id, command_id) unique
// constraint makes retries idempotent: a duplicate is silently dropped and
// inserted=false is returned.
func InsertMovement(ctx context.Context, q db.Querier, id, warehouseID, itemID string, delta int, commandID string, note *string) (bool, error) {
	tag, err := q.Exec(ctx, `
		INSERT INTO stock_movements (id, warehouse_id, item_id, delta, command_id, note)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (item_id, command_id) DO NOTHING
	`, id, warehouseID, itemID, delta, commandID, note)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MovementExists reports whether the (itemID, commandID) pair is already in
// the ledger.
func MovementExists(ctx context.Context, q db.Querier, itemID, commandID string) (bool, error) {
	var one int
	err := q.QueryRow(ctx,
		`SELECT 1 FROM stock_movements WHERE item_id = $1 AND command_id = $2`,
		itemID, commandID).Scan(&one)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, err
}

// ListMovements returns the warehouse's ledger ordered by created_at asc,
// the export ordering.
func ListMovements(ctx context.Context, q db.Querier, warehouseID string) ([]model.StockMovement, error) {
	rows, err := q.Query(ctx, `
		SELECT id, item_id, delta, command_id, note, created_at
		FROM stock_movements
		WHERE warehouse_id = $1
		ORDER BY created_at ASC
	`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []model.StockMovement
	for rows.Next() {
		var m model.StockMovement
		if err := rows.Scan(&m.ID, &m.ItemID, &m.Delta, &m.CommandID, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// MovementIDOwnedElsewhere reports whether a movement with this id exists
// under a different warehouse (import remaps in that case).
func MovementIDOwnedElsewhere(ctx context.Context, q db.Querier, movementID, warehouseID string) (bool, error) {
	var one int
	err := q.QueryRow(ctx,
		`SELECT 1 FROM stock_movements WHERE id = $1 AND warehouse_id <> $2`,
		movementID, warehouseID).Scan(&one)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, err
}
