package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// AggregateDrift compares a market's stored totals against the sums over its
// position rows. The totals are maintained incrementally from event deltas
// while positions clamp at zero, and a reorg can replay a different event
// sequence, so the two can drift apart.
type AggregateDrift struct {
	MarketID           string          `json:"market_id"`
	StoredSupplyScaled decimal.Decimal `json:"stored_supply_scaled"`
	SummedSupplyScaled decimal.Decimal `json:"summed_supply_scaled"`
	StoredDebtScaled   decimal.Decimal `json:"stored_debt_scaled"`
	SummedDebtScaled   decimal.Decimal `json:"summed_debt_scaled"`
	StoredCollateral   decimal.Decimal `json:"stored_collateral"`
	SummedCollateral   decimal.Decimal `json:"summed_collateral"`
}

// InSync reports whether all three totals match their position sums.
func (d *AggregateDrift) InSync() bool {
	return d.StoredSupplyScaled.Equal(d.SummedSupplyScaled) &&
		d.StoredDebtScaled.Equal(d.SummedDebtScaled) &&
		d.StoredCollateral.Equal(d.SummedCollateral)
}

// ComputeAggregateDrift measures one market's drift, or nil when the market
// is unknown.
func (r *Repository) ComputeAggregateDrift(ctx context.Context, marketID string) (*AggregateDrift, error) {
	var d AggregateDrift
	err := r.db.QueryRow(ctx, `
		SELECT m.id,
			m.total_supply_scaled, COALESCE(SUM(p.supply_scaled), 0),
			m.total_debt_scaled, COALESCE(SUM(p.debt_scaled), 0),
			m.total_collateral, COALESCE(SUM(p.collateral), 0)
		FROM markets m
		LEFT JOIN user_positions p ON p.market_id = m.id
		WHERE m.id = $1
		GROUP BY m.id`, marketID,
	).Scan(
		&d.MarketID,
		&d.StoredSupplyScaled, &d.SummedSupplyScaled,
		&d.StoredDebtScaled, &d.SummedDebtScaled,
		&d.StoredCollateral, &d.SummedCollateral,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("compute aggregate drift: %w", err)
	}
	return &d, nil
}

// RepairMarketAggregates overwrites a market's totals with the sums over its
// positions and recomputes available liquidity. Operator action; the next
// projected event continues from the repaired values.
func (r *Repository) RepairMarketAggregates(ctx context.Context, marketID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE markets m SET
			total_supply_scaled = s.supply,
			total_debt_scaled = s.debt,
			total_collateral = s.collateral,
			available_liquidity = TRUNC(GREATEST(s.supply * m.liquidity_index - s.debt * m.borrow_index, 0)),
			updated_at = NOW()
		FROM (
			SELECT
				COALESCE(SUM(supply_scaled), 0) AS supply,
				COALESCE(SUM(debt_scaled), 0) AS debt,
				COALESCE(SUM(collateral), 0) AS collateral
			FROM user_positions
			WHERE market_id = $1
		) s
		WHERE m.id = $1`, marketID)
	if err != nil {
		return fmt.Errorf("repair market aggregates: %w", err)
	}
	return nil
}
