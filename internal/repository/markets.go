package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"lendscan/internal/models"
)

// marketColumns is the canonical column list for scanMarket. Keep the two in sync.
const marketColumns = `
	id, market_address, curator, collateral_denom, debt_denom, oracle,
	created_at, created_at_block,
	loan_to_value, liquidation_threshold, liquidation_bonus, liquidation_protocol_fee,
	close_factor, protocol_fee, curator_fee, supply_cap, borrow_cap,
	enabled, is_mutable, interest_rate_model,
	borrow_index, liquidity_index, borrow_rate, liquidity_rate,
	total_supply_scaled, total_debt_scaled, total_collateral,
	utilization, available_liquidity, last_update, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMarket(row rowScanner) (*models.Market, error) {
	var m models.Market
	err := row.Scan(
		&m.ID, &m.MarketAddress, &m.Curator, &m.CollateralDenom, &m.DebtDenom, &m.Oracle,
		&m.CreatedAt, &m.CreatedAtBlock,
		&m.LoanToValue, &m.LiquidationThreshold, &m.LiquidationBonus, &m.LiquidationProtocolFee,
		&m.CloseFactor, &m.ProtocolFee, &m.CuratorFee, &m.SupplyCap, &m.BorrowCap,
		&m.Enabled, &m.IsMutable, &m.InterestRateModel,
		&m.BorrowIndex, &m.LiquidityIndex, &m.BorrowRate, &m.LiquidityRate,
		&m.TotalSupplyScaled, &m.TotalDebtScaled, &m.TotalCollateral,
		&m.Utilization, &m.AvailableLiquidity, &m.LastUpdate, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMarket inserts a newly instantiated market together with its
// initial snapshot. Replays of the same factory event are ignored, so it
// reports whether the row was created.
func (r *Repository) CreateMarket(ctx context.Context, m *models.Market, snap *models.MarketSnapshot) (bool, error) {
	dbtx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin create market: %w", err)
	}
	defer dbtx.Rollback(ctx)

	tag, err := dbtx.Exec(ctx, `
		INSERT INTO markets (
			id, market_address, curator, collateral_denom, debt_denom, oracle,
			created_at, created_at_block,
			loan_to_value, liquidation_threshold, liquidation_bonus, liquidation_protocol_fee,
			close_factor, protocol_fee, curator_fee, supply_cap, borrow_cap,
			enabled, is_mutable, interest_rate_model,
			borrow_index, liquidity_index, borrow_rate, liquidity_rate,
			total_supply_scaled, total_debt_scaled, total_collateral,
			utilization, available_liquidity, last_update, updated_at
		)
		VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8,
			$9, $10, $11, $12,
			$13, $14, $15, $16, $17,
			$18, $19, $20,
			$21, $22, $23, $24,
			$25, $26, $27,
			$28, $29, $30, NOW()
		)
		ON CONFLICT (id) DO NOTHING`,
		m.ID, m.MarketAddress, m.Curator, m.CollateralDenom, m.DebtDenom, m.Oracle,
		m.CreatedAt, m.CreatedAtBlock,
		m.LoanToValue, m.LiquidationThreshold, m.LiquidationBonus, m.LiquidationProtocolFee,
		m.CloseFactor, m.ProtocolFee, m.CuratorFee, m.SupplyCap, m.BorrowCap,
		m.Enabled, m.IsMutable, sanitizeJSONB(m.InterestRateModel),
		m.BorrowIndex, m.LiquidityIndex, m.BorrowRate, m.LiquidityRate,
		m.TotalSupplyScaled, m.TotalDebtScaled, m.TotalCollateral,
		m.Utilization, m.AvailableLiquidity, m.LastUpdate,
	)
	if err != nil {
		return false, fmt.Errorf("create market: %w", err)
	}
	created := tag.RowsAffected() > 0
	if created && snap != nil {
		if err := insertSnapshot(ctx, dbtx, snap); err != nil {
			return false, err
		}
	}
	if err := dbtx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit create market: %w", err)
	}
	return created, nil
}

// GetMarket returns a market by ID, or nil when unknown.
func (r *Repository) GetMarket(ctx context.Context, id string) (*models.Market, error) {
	m, err := scanMarket(r.db.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get market: %w", err)
	}
	return m, nil
}

// GetMarketByAddress returns a market by its contract address, or nil when unknown.
func (r *Repository) GetMarketByAddress(ctx context.Context, addr string) (*models.Market, error) {
	m, err := scanMarket(r.db.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE market_address = $1`, addr))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get market by address: %w", err)
	}
	return m, nil
}

// KnownMarketAddresses returns contract address -> market ID for every
// tracked market. Used to seed the classifier set on startup.
func (r *Repository) KnownMarketAddresses(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.Query(ctx, `SELECT market_address, id FROM markets`)
	if err != nil {
		return nil, fmt.Errorf("known market addresses: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var addr, id string
		if err := rows.Scan(&addr, &id); err != nil {
			return nil, err
		}
		out[addr] = id
	}
	return out, rows.Err()
}

// ListMarkets returns markets filtered by optional curator, collateral denom
// and debt denom. Empty filter values match everything.
func (r *Repository) ListMarkets(ctx context.Context, curator, collateralDenom, debtDenom string, enabledOnly bool, limit, offset int) ([]*models.Market, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+marketColumns+`
		FROM markets
		WHERE ($1 = '' OR curator = $1)
		  AND ($2 = '' OR collateral_denom = $2)
		  AND ($3 = '' OR debt_denom = $3)
		  AND ($4 = false OR enabled)
		ORDER BY created_at_block ASC, id ASC
		LIMIT $5 OFFSET $6`,
		curator, collateralDenom, debtDenom, enabledOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	defer rows.Close()

	var markets []*models.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// CountMarkets returns the number of tracked markets.
func (r *Repository) CountMarkets(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count markets: %w", err)
	}
	return count, nil
}

