package eventdb

import (
	"context"
	"fmt"
)

// UpsertSubscriber inserts a subscriber or, on a (delivery_url, source_url)
// conflict, overwrites its delivery_id (spec.md §4.2).
func UpsertSubscriber(ctx context.Context, q Queryer, deliveryID int64, deliveryURL, sourceURL string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO subscriber (delivery_id, delivery_url, source_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (delivery_url, source_url) DO UPDATE SET delivery_id = EXCLUDED.delivery_id
	`, deliveryID, deliveryURL, sourceURL)
	if err != nil {
		return fmt.Errorf("upsert subscriber %s/%s: %w", deliveryURL, sourceURL, err)
	}
	return nil
}

// DeleteSubscriber removes a subscriber regardless of state, reporting
// whether a row existed.
func DeleteSubscriber(ctx context.Context, q Queryer, deliveryURL, sourceURL string) (bool, error) {
	res, err := q.ExecContext(ctx, `
		DELETE FROM subscriber WHERE delivery_url = $1 AND source_url = $2
	`, deliveryURL, sourceURL)
	if err != nil {
		return false, fmt.Errorf("delete subscriber %s/%s: %w", deliveryURL, sourceURL, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected deleting subscriber: %w", err)
	}
	return n > 0, nil
}
