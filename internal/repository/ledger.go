package repository

import (
	"context"
	"fmt"

	"lendscan/internal/models"
)

const transactionColumns = `
	tx_hash, log_index, market_id, action, user_address,
	COALESCE(recipient, ''), COALESCE(borrower, ''),
	amount, scaled_amount, debt_repaid, collateral_seized, protocol_fee,
	total_supply, total_debt, total_collateral, utilization,
	borrow_rate, liquidity_rate, block_height, timestamp`

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.TxHash, &t.LogIndex, &t.MarketID, &t.Action, &t.UserAddress,
		&t.Recipient, &t.Borrower,
		&t.Amount, &t.ScaledAmount, &t.DebtRepaid, &t.CollateralSeized, &t.ProtocolFee,
		&t.TotalSupply, &t.TotalDebt, &t.TotalCollateral, &t.Utilization,
		&t.BorrowRate, &t.LiquidityRate, &t.BlockHeight, &t.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTransactions returns financial events newest first, filtered by
// optional market, user and action. A user filter matches the acting
// principal, the recipient, and the affected borrower, so third-party repays
// and liquidations show up in the borrower's history too.
func (r *Repository) ListTransactions(ctx context.Context, marketID, userAddress, action string, limit, offset int) ([]*models.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE ($1 = '' OR market_id = $1)
		  AND ($2 = '' OR user_address = $2 OR recipient = $2 OR borrower = $2)
		  AND ($3 = '' OR action = $3)
		ORDER BY block_height DESC, log_index DESC
		LIMIT $4 OFFSET $5`,
		marketID, userAddress, action, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// ListTransactionsByHash returns every financial event emitted by one chain
// transaction, in log order.
func (r *Repository) ListTransactionsByHash(ctx context.Context, txHash string) ([]*models.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE tx_hash = $1
		ORDER BY log_index ASC`,
		txHash)
	if err != nil {
		return nil, fmt.Errorf("list transactions by hash: %w", err)
	}
	defer rows.Close()

	var txs []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// ListAccruals returns interest accrual events for a market, newest first.
func (r *Repository) ListAccruals(ctx context.Context, marketID string, limit, offset int) ([]*models.InterestAccrualEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT tx_hash, log_index, market_id,
			borrow_index, liquidity_index, borrow_rate, liquidity_rate,
			block_height, timestamp
		FROM interest_accrual_events
		WHERE ($1 = '' OR market_id = $1)
		ORDER BY block_height DESC, log_index DESC
		LIMIT $2 OFFSET $3`,
		marketID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list accruals: %w", err)
	}
	defer rows.Close()

	var events []*models.InterestAccrualEvent
	for rows.Next() {
		var e models.InterestAccrualEvent
		if err := rows.Scan(
			&e.TxHash, &e.LogIndex, &e.MarketID,
			&e.BorrowIndex, &e.LiquidityIndex, &e.BorrowRate, &e.LiquidityRate,
			&e.BlockHeight, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
