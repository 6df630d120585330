// Package changelog is the durable change feed. Every mutation, whether it
// came through a direct handler or the sync engine, appends here inside the
// same transaction, and replicas replay by (warehouse_id, seq).
package changelog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bodega-app/bodega-api/internal/db"
)

// Entry is one change record as served to pulling clients.
type Entry struct {
	Seq           int64          `json:"seq"`
	WarehouseID   string         `json:"warehouse_id"`
	EntityType    string         `json:"entity_type"`
	EntityID      *string        `json:"entity_id"`
	Action        string         `json:"action"`
	EntityVersion *int           `json:"entity_version"`
	Payload       map[string]any `json:"payload"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Append writes one record. q is expected to be the mutation's own
// transaction so the feed and the entity commit or abort together.
func Append(ctx context.Context, q db.Querier, warehouseID, entityType string, entityID *string, action string, entityVersion *int, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO change_log (warehouse_id, entity_type, entity_id, action, entity_version, payload_json)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, warehouseID, entityType, entityID, action, entityVersion, raw)
	return err
}

// LastSeq returns the warehouse's current high-water mark (0 when the feed
// is empty).
func LastSeq(ctx context.Context, q db.Querier, warehouseID string) (int64, error) {
	var seq int64
	err := q.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM change_log WHERE warehouse_id = $1`,
		warehouseID).Scan(&seq)
	return seq, err
}

// Since returns up to limit entries with seq > sinceSeq in ascending order.
func Since(ctx context.Context, q db.Querier, warehouseID string, sinceSeq int64, limit int) ([]Entry, error) {
	rows, err := q.Query(ctx, `
		SELECT seq, warehouse_id, entity_type, entity_id, action, entity_version, payload_json, created_at
		FROM change_log
		WHERE warehouse_id = $1 AND seq > $2
		ORDER BY seq ASC
		LIMIT $3
	`, warehouseID, sinceSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Seq, &e.WarehouseID, &e.EntityType, &e.EntityID, &e.Action, &e.EntityVersion, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
