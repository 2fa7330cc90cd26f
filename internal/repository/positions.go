package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"lendscan/internal/models"
)

const positionColumns = `
	market_id, user_address, supply_scaled, debt_scaled, collateral,
	first_interaction, last_interaction`

func scanPosition(row rowScanner) (*models.UserPosition, error) {
	var p models.UserPosition
	err := row.Scan(
		&p.MarketID, &p.UserAddress, &p.SupplyScaled, &p.DebtScaled, &p.Collateral,
		&p.FirstInteraction, &p.LastInteraction,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPosition returns one user's position in one market, or nil when the user
// has never interacted with it.
func (r *Repository) GetPosition(ctx context.Context, marketID, userAddress string) (*models.UserPosition, error) {
	p, err := scanPosition(r.db.QueryRow(ctx, `
		SELECT `+positionColumns+`
		FROM user_positions
		WHERE market_id = $1 AND user_address = $2`,
		marketID, userAddress))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

// ListPositionsByUser returns all of a user's positions across markets.
func (r *Repository) ListPositionsByUser(ctx context.Context, userAddress string, limit, offset int) ([]*models.UserPosition, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+positionColumns+`
		FROM user_positions
		WHERE user_address = $1
		ORDER BY market_id ASC
		LIMIT $2 OFFSET $3`,
		userAddress, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list positions by user: %w", err)
	}
	defer rows.Close()

	var positions []*models.UserPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// ListPositionsByMarket returns positions in one market ordered by debt, so
// the largest borrowers come first.
func (r *Repository) ListPositionsByMarket(ctx context.Context, marketID string, limit, offset int) ([]*models.UserPosition, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+positionColumns+`
		FROM user_positions
		WHERE market_id = $1
		ORDER BY debt_scaled DESC, user_address ASC
		LIMIT $2 OFFSET $3`,
		marketID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list positions by market: %w", err)
	}
	defer rows.Close()

	var positions []*models.UserPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// ListPositionsAtRisk returns borrowing positions joined with the market
// fields a liquidation-bot style consumer needs: current (index-adjusted)
// debt, collateral, and the market's risk params. Positions with no debt are
// excluded; this rides the partial index on debt_scaled > 0.
func (r *Repository) ListPositionsAtRisk(ctx context.Context, marketID string, limit, offset int) ([]*models.PositionAtRisk, error) {
	rows, err := r.db.Query(ctx, `
		SELECT
			p.market_id, p.user_address, p.supply_scaled, p.debt_scaled, p.collateral,
			p.first_interaction, p.last_interaction,
			m.collateral_denom, m.debt_denom,
			p.debt_scaled * m.borrow_index AS current_debt,
			m.loan_to_value, m.liquidation_threshold
		FROM user_positions p
		JOIN markets m ON m.id = p.market_id
		WHERE p.debt_scaled > 0
		  AND ($1 = '' OR p.market_id = $1)
		ORDER BY current_debt DESC
		LIMIT $2 OFFSET $3`,
		marketID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list positions at risk: %w", err)
	}
	defer rows.Close()

	var positions []*models.PositionAtRisk
	for rows.Next() {
		var p models.PositionAtRisk
		if err := rows.Scan(
			&p.MarketID, &p.UserAddress, &p.SupplyScaled, &p.DebtScaled, &p.Collateral,
			&p.FirstInteraction, &p.LastInteraction,
			&p.CollateralDenom, &p.DebtDenom,
			&p.CurrentDebt,
			&p.LoanToValue, &p.LiquidationThreshold,
		); err != nil {
			return nil, err
		}
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}
