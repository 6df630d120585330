// Package activity is the fire-and-forget audit sink. Records ride the
// caller's transaction; a write failure is logged and swallowed so the
// primary mutation never fails on its audit trail.
package activity

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/bodega-app/bodega-api/internal/db"
	"github.com/bodega-app/bodega-api/internal/ident"
)

// Record appends one activity event.
func Record(ctx context.Context, q db.Querier, warehouseID, actorUserID, eventType string, entityType, entityID *string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal activity metadata")
		return
	}
	_, err = q.Exec(ctx, `
		INSERT INTO activity_events (id, warehouse_id, actor_user_id, event_type, entity_type, entity_id, metadata_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ident.NewID(), warehouseID, actorUserID, eventType, entityType, entityID, raw)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to record activity event")
	}
}
