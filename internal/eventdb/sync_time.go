package eventdb

import (
	"context"
	"fmt"
	"time"

	"github.com/renku-io/event-log/internal/domain"
)

// UpsertCategorySyncTime records the last successful sync for a project
// within a category.
func UpsertCategorySyncTime(ctx context.Context, q Queryer, projectID int64, category string, lastSynced time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO subscription_category_sync_time (project_id, category, last_synced)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, category) DO UPDATE SET last_synced = EXCLUDED.last_synced
	`, projectID, category, lastSynced)
	if err != nil {
		return fmt.Errorf("upsert category sync time for project %d/%s: %w", projectID, category, err)
	}
	return nil
}

// FindProjectCategorySyncTimes returns every category's last-synced time
// for a project.
func FindProjectCategorySyncTimes(ctx context.Context, q Queryer, projectID int64) ([]domain.CategorySyncTime, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT project_id, category, last_synced
		FROM subscription_category_sync_time
		WHERE project_id = $1
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("find category sync times for project %d: %w", projectID, err)
	}
	defer rows.Close()

	var out []domain.CategorySyncTime
	for rows.Next() {
		var c domain.CategorySyncTime
		if err := rows.Scan(&c.ProjectID, &c.Category, &c.LastSynced); err != nil {
			return nil, fmt.Errorf("scan category sync time: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
