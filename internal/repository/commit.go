package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"lendscan/internal/models"
)

// ProjectedEvent is the full set of rows one handled market event produces.
// Ledger and Accrual carry the (tx_hash, log_index) dedupe key: whichever is
// present is written first, and a conflict there means the event was already
// applied, so nothing else may be written either.
type ProjectedEvent struct {
	Ledger    *models.Transaction          // nil for accrue_interest and update_params
	Accrual   *models.InterestAccrualEvent // set only for accrue_interest
	Market    *models.Market               // post-event market row, always set
	Positions []*models.UserPosition       // zero, one or two upserts
	Snapshot  *models.MarketSnapshot       // always set

	// ParamsChanged marks update_params: the param columns are overwritten
	// too. There is no dedupe row for it; the overwrite is replay-safe.
	ParamsChanged bool
}

// CommitEvent writes a projected event atomically. Returns false without
// touching anything when the event's dedupe row already exists.
func (r *Repository) CommitEvent(ctx context.Context, ev *ProjectedEvent) (bool, error) {
	dbtx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer dbtx.Rollback(ctx)

	if ev.Ledger != nil {
		inserted, err := insertTransaction(ctx, dbtx, ev.Ledger)
		if err != nil {
			return false, err
		}
		if !inserted {
			return false, nil
		}
	}
	if ev.Accrual != nil {
		inserted, err := insertAccrual(ctx, dbtx, ev.Accrual)
		if err != nil {
			return false, err
		}
		if !inserted {
			return false, nil
		}
	}

	if err := updateMarketState(ctx, dbtx, ev.Market); err != nil {
		return false, err
	}
	if ev.ParamsChanged {
		if err := updateMarketParams(ctx, dbtx, ev.Market); err != nil {
			return false, err
		}
	}

	for _, p := range ev.Positions {
		if err := upsertPosition(ctx, dbtx, p); err != nil {
			return false, err
		}
	}

	if ev.Snapshot != nil {
		if err := insertSnapshot(ctx, dbtx, ev.Snapshot); err != nil {
			return false, err
		}
	}

	if err := dbtx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit event: %w", err)
	}
	return true, nil
}

func insertTransaction(ctx context.Context, dbtx pgx.Tx, t *models.Transaction) (bool, error) {
	tag, err := dbtx.Exec(ctx, `
		INSERT INTO transactions (
			tx_hash, log_index, market_id, action, user_address,
			recipient, borrower,
			amount, scaled_amount, debt_repaid, collateral_seized, protocol_fee,
			total_supply, total_debt, total_collateral, utilization,
			borrow_rate, liquidity_rate, block_height, timestamp
		)
		VALUES (
			$1, $2, $3, $4, $5,
			NULLIF($6, ''), NULLIF($7, ''),
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $19, $20
		)
		ON CONFLICT (tx_hash, log_index) DO NOTHING`,
		t.TxHash, t.LogIndex, t.MarketID, t.Action, t.UserAddress,
		t.Recipient, t.Borrower,
		t.Amount, t.ScaledAmount, t.DebtRepaid, t.CollateralSeized, t.ProtocolFee,
		t.TotalSupply, t.TotalDebt, t.TotalCollateral, t.Utilization,
		t.BorrowRate, t.LiquidityRate, t.BlockHeight, t.Timestamp,
	)
	if err != nil {
		return false, fmt.Errorf("insert transaction: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func insertAccrual(ctx context.Context, dbtx pgx.Tx, e *models.InterestAccrualEvent) (bool, error) {
	tag, err := dbtx.Exec(ctx, `
		INSERT INTO interest_accrual_events (
			tx_hash, log_index, market_id,
			borrow_index, liquidity_index, borrow_rate, liquidity_rate,
			block_height, timestamp
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tx_hash, log_index) DO NOTHING`,
		e.TxHash, e.LogIndex, e.MarketID,
		e.BorrowIndex, e.LiquidityIndex, e.BorrowRate, e.LiquidityRate,
		e.BlockHeight, e.Timestamp,
	)
	if err != nil {
		return false, fmt.Errorf("insert accrual: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func updateMarketState(ctx context.Context, dbtx pgx.Tx, m *models.Market) error {
	_, err := dbtx.Exec(ctx, `
		UPDATE markets SET
			borrow_index = $2,
			liquidity_index = $3,
			borrow_rate = $4,
			liquidity_rate = $5,
			total_supply_scaled = $6,
			total_debt_scaled = $7,
			total_collateral = $8,
			utilization = $9,
			available_liquidity = $10,
			last_update = $11,
			updated_at = NOW()
		WHERE id = $1`,
		m.ID,
		m.BorrowIndex, m.LiquidityIndex, m.BorrowRate, m.LiquidityRate,
		m.TotalSupplyScaled, m.TotalDebtScaled, m.TotalCollateral,
		m.Utilization, m.AvailableLiquidity, m.LastUpdate,
	)
	if err != nil {
		return fmt.Errorf("update market state: %w", err)
	}
	return nil
}

func updateMarketParams(ctx context.Context, dbtx pgx.Tx, m *models.Market) error {
	_, err := dbtx.Exec(ctx, `
		UPDATE markets SET
			loan_to_value = $2,
			liquidation_threshold = $3,
			liquidation_bonus = $4,
			liquidation_protocol_fee = $5,
			close_factor = $6,
			protocol_fee = $7,
			curator_fee = $8,
			supply_cap = $9,
			borrow_cap = $10,
			enabled = $11,
			is_mutable = $12,
			updated_at = NOW()
		WHERE id = $1`,
		m.ID,
		m.LoanToValue, m.LiquidationThreshold, m.LiquidationBonus,
		m.LiquidationProtocolFee, m.CloseFactor, m.ProtocolFee, m.CuratorFee,
		m.SupplyCap, m.BorrowCap, m.Enabled, m.IsMutable,
	)
	if err != nil {
		return fmt.Errorf("update market params: %w", err)
	}
	return nil
}

func upsertPosition(ctx context.Context, dbtx pgx.Tx, p *models.UserPosition) error {
	_, err := dbtx.Exec(ctx, `
		INSERT INTO user_positions (
			market_id, user_address, supply_scaled, debt_scaled, collateral,
			first_interaction, last_interaction
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (market_id, user_address) DO UPDATE SET
			supply_scaled = EXCLUDED.supply_scaled,
			debt_scaled = EXCLUDED.debt_scaled,
			collateral = EXCLUDED.collateral,
			last_interaction = EXCLUDED.last_interaction`,
		p.MarketID, p.UserAddress, p.SupplyScaled, p.DebtScaled, p.Collateral,
		p.FirstInteraction, p.LastInteraction,
	)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

func insertSnapshot(ctx context.Context, dbtx pgx.Tx, s *models.MarketSnapshot) error {
	_, err := dbtx.Exec(ctx, `
		INSERT INTO market_snapshots (
			market_id, timestamp,
			total_supply, total_debt, total_collateral, utilization,
			borrow_index, liquidity_index, borrow_rate, liquidity_rate,
			loan_to_value, liquidation_threshold, enabled, block_height
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (market_id, timestamp) DO NOTHING`,
		s.MarketID, s.Timestamp,
		s.TotalSupply, s.TotalDebt, s.TotalCollateral, s.Utilization,
		s.BorrowIndex, s.LiquidityIndex, s.BorrowRate, s.LiquidityRate,
		s.LoanToValue, s.LiquidationThreshold, s.Enabled, s.BlockHeight,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}
