package syncservice

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/bodega-app/bodega-api/internal/changelog"
)

// pullPageSize caps one pull; clients poll again with the returned
// last_seq until they catch up.
const pullPageSize = 500

// Pull returns change records after sinceSeq in ascending seq order, all
// currently-open conflicts, and the warehouse's max seq.
func (e *Engine) Pull(ctx context.Context, warehouseID string, sinceSeq int64) (*PullResponse, error) {
	logger := log.With().Str("warehouse_id", warehouseID).Logger()

	changes, err := changelog.Since(ctx, e.DB, warehouseID, sinceSeq, pullPageSize)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read change feed")
		return nil, err
	}

	conflicts, err := openConflicts(ctx, e.DB, warehouseID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read open conflicts")
		return nil, err
	}

	lastSeq, err := changelog.LastSeq(ctx, e.DB, warehouseID)
	if err != nil {
		return nil, err
	}

	return &PullResponse{
		Changes:   changes,
		Conflicts: conflicts,
		LastSeq:   lastSeq,
	}, nil
}
