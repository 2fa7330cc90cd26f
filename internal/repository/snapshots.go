package repository

import (
	"context"
	"fmt"
	"time"

	"lendscan/internal/models"
)

// ListSnapshots returns the per-event history of one market, newest first,
// optionally bounded by a time range. Nil bounds are open-ended.
func (r *Repository) ListSnapshots(ctx context.Context, marketID string, from, to *time.Time, limit, offset int) ([]*models.MarketSnapshot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT market_id, timestamp,
			total_supply, total_debt, total_collateral, utilization,
			borrow_index, liquidity_index, borrow_rate, liquidity_rate,
			loan_to_value, liquidation_threshold, enabled, block_height
		FROM market_snapshots
		WHERE market_id = $1
		  AND ($2::timestamptz IS NULL OR timestamp >= $2)
		  AND ($3::timestamptz IS NULL OR timestamp <= $3)
		ORDER BY timestamp DESC
		LIMIT $4 OFFSET $5`,
		marketID, from, to, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*models.MarketSnapshot
	for rows.Next() {
		var s models.MarketSnapshot
		if err := rows.Scan(
			&s.MarketID, &s.Timestamp,
			&s.TotalSupply, &s.TotalDebt, &s.TotalCollateral, &s.Utilization,
			&s.BorrowIndex, &s.LiquidityIndex, &s.BorrowRate, &s.LiquidityRate,
			&s.LoanToValue, &s.LiquidationThreshold, &s.Enabled, &s.BlockHeight,
		); err != nil {
			return nil, err
		}
		snaps = append(snaps, &s)
	}
	return snaps, rows.Err()
}
