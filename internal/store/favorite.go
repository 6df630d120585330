package store

import (
	"context"

	"github.com/bodega-app/bodega-api/internal/db"
)

// FavoriteSet returns the subset of itemIDs the user has favorited, as a set.
func FavoriteSet(ctx context.Context, q db.Querier, userID string, itemIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `
		SELECT item_id FROM item_favorites
		WHERE user_id = $1 AND item_id = ANY($2)
	`, userID, itemIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// SetFavorite marks an item as a favorite for the user. Idempotent.
func SetFavorite(ctx context.Context, q db.Querier, userID, itemID string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO item_favorites (user_id, item_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, item_id) DO NOTHING
	`, userID, itemID)
	return err
}

// Unfavorite removes the favorite mark. Idempotent.
func Unfavorite(ctx context.Context, q db.Querier, userID, itemID string) error {
	_, err := q.Exec(ctx,
		`DELETE FROM item_favorites WHERE user_id = $1 AND item_id = $2`,
		userID, itemID)
	return err
}

// SetFavorites applies one favorite state to many items at once.
func SetFavorites(ctx context.Context, q db.Querier, userID string, itemIDs []string, favorite bool) error {
	if len(itemIDs) == 0 {
		return nil
	}
	if favorite {
		_, err := q.Exec(ctx, `
			INSERT INTO item_favorites (user_id, item_id)
			SELECT $1, unnest($2::text[])
			ON CONFLICT (user_id, item_id) DO NOTHING
		`, userID, itemIDs)
		return err
	}
	_, err := q.Exec(ctx,
		`DELETE FROM item_favorites WHERE user_id = $1 AND item_id = ANY($2)`,
		userID, itemIDs)
	return err
}
