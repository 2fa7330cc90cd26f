package repository

import (
	"context"
	"fmt"
)

// ProjectionStats are row counts across the projection tables, for the
// status endpoint.
type ProjectionStats struct {
	Markets      int64 `json:"markets"`
	Positions    int64 `json:"positions"`
	Transactions int64 `json:"transactions"`
	Accruals     int64 `json:"accruals"`
	Snapshots    int64 `json:"snapshots"`
}

func (r *Repository) GetProjectionStats(ctx context.Context) (*ProjectionStats, error) {
	var s ProjectionStats
	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM markets),
			(SELECT COUNT(*) FROM user_positions),
			(SELECT COUNT(*) FROM transactions),
			(SELECT COUNT(*) FROM interest_accrual_events),
			(SELECT COUNT(*) FROM market_snapshots)`).
		Scan(&s.Markets, &s.Positions, &s.Transactions, &s.Accruals, &s.Snapshots)
	if err != nil {
		return nil, fmt.Errorf("get projection stats: %w", err)
	}
	return &s, nil
}
