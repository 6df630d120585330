package syncservice

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/bodega-app/bodega-api/internal/db"
	"github.com/bodega-app/bodega-api/internal/ident"
	"github.com/bodega-app/bodega-api/internal/model"
)

const conflictCols = `id, warehouse_id, command_id, entity_type, entity_id, base_version,
	server_version, client_payload_json, status, created_by, created_at, resolved_at, resolved_by`

func scanConflict(row pgx.Row) (*model.SyncConflict, error) {
	var c model.SyncConflict
	err := row.Scan(&c.ID, &c.WarehouseID, &c.CommandID, &c.EntityType, &c.EntityID,
		&c.BaseVersion, &c.ServerVersion, &c.ClientPayload, &c.Status,
		&c.CreatedBy, &c.CreatedAt, &c.ResolvedAt, &c.ResolvedBy)
	if err != nil {
		return nil, err
	}
	if c.ClientPayload == nil {
		c.ClientPayload = map[string]any{}
	}
	return &c, nil
}

// conflictByCommandID returns nil when no conflict holds the command id.
func conflictByCommandID(ctx context.Context, q db.Querier, commandID string) (*model.SyncConflict, error) {
	c, err := scanConflict(q.QueryRow(ctx,
		`SELECT `+conflictCols+` FROM sync_conflicts WHERE command_id = $1`, commandID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func conflictByID(ctx context.Context, q db.Querier, warehouseID, conflictID string) (*model.SyncConflict, error) {
	c, err := scanConflict(q.QueryRow(ctx,
		`SELECT `+conflictCols+` FROM sync_conflicts WHERE id = $1 AND warehouse_id = $2`,
		conflictID, warehouseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func openConflicts(ctx context.Context, q db.Querier, warehouseID string) ([]model.SyncConflict, error) {
	rows, err := q.Query(ctx,
		`SELECT `+conflictCols+` FROM sync_conflicts
		 WHERE warehouse_id = $1 AND status = $2
		 ORDER BY created_at ASC`, warehouseID, model.ConflictOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conflicts := make([]model.SyncConflict, 0)
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, *c)
	}
	return conflicts, rows.Err()
}

// createOrGetConflict opens a conflict for the command id, or returns the
// one that already holds it. The unique constraint on command_id is the
// race arbiter here.
func createOrGetConflict(ctx context.Context, q db.Querier, warehouseID, commandID, entityType, entityID string, baseVersion *int, serverVersion int, clientPayload map[string]any, createdBy string) (*model.SyncConflict, error) {
	if clientPayload == nil {
		clientPayload = map[string]any{}
	}
	_, err := q.Exec(ctx, `
		INSERT INTO sync_conflicts
			(id, warehouse_id, command_id, entity_type, entity_id, base_version,
			 server_version, client_payload_json, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (command_id) DO NOTHING
	`, ident.NewID(), warehouseID, commandID, entityType, entityID,
		baseVersion, serverVersion, clientPayload, model.ConflictOpen, createdBy)
	if err != nil {
		return nil, err
	}
	return conflictByCommandID(ctx, q, commandID)
}

func markResolved(ctx context.Context, q db.Querier, conflictID, resolvedBy string) error {
	_, err := q.Exec(ctx, `
		UPDATE sync_conflicts
		SET status = $2, resolved_at = now(), resolved_by = $3
		WHERE id = $1
	`, conflictID, model.ConflictResolved, resolvedBy)
	return err
}
