package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction actions as stored in the 'transactions' table.
const (
	ActionSupply             = "supply"
	ActionWithdraw           = "withdraw"
	ActionSupplyCollateral   = "supply_collateral"
	ActionWithdrawCollateral = "withdraw_collateral"
	ActionBorrow             = "borrow"
	ActionRepay              = "repay"
	ActionLiquidate          = "liquidate"
)

// IndexerState represents the singleton 'indexer_state' row
type IndexerState struct {
	LastProcessedBlock uint64    `json:"last_processed_block"`
	LastProcessedHash  string    `json:"last_processed_hash"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Market represents the 'markets' table
type Market struct {
	ID            string `json:"id"`
	MarketAddress string `json:"market_address"`

	// Immutable config, fetched from the contract at instantiation.
	Curator         string    `json:"curator"`
	CollateralDenom string    `json:"collateral_denom"`
	DebtDenom       string    `json:"debt_denom"`
	Oracle          string    `json:"oracle"`
	CreatedAt       time.Time `json:"created_at"`
	CreatedAtBlock  uint64    `json:"created_at_block"`

	// Mutable params, overwritten by update_params.
	LoanToValue            decimal.Decimal     `json:"loan_to_value"`
	LiquidationThreshold   decimal.Decimal     `json:"liquidation_threshold"`
	LiquidationBonus       decimal.Decimal     `json:"liquidation_bonus"`
	LiquidationProtocolFee decimal.Decimal     `json:"liquidation_protocol_fee"`
	CloseFactor            decimal.Decimal     `json:"close_factor"`
	ProtocolFee            decimal.Decimal     `json:"protocol_fee"`
	CuratorFee             decimal.Decimal     `json:"curator_fee"`
	SupplyCap              decimal.NullDecimal `json:"supply_cap"`
	BorrowCap              decimal.NullDecimal `json:"borrow_cap"`
	Enabled                bool                `json:"enabled"`
	IsMutable              bool                `json:"is_mutable"`
	InterestRateModel      json.RawMessage     `json:"interest_rate_model,omitempty"`

	// State, overwritten by market events. Indices never decrease.
	BorrowIndex        decimal.Decimal `json:"borrow_index"`
	LiquidityIndex     decimal.Decimal `json:"liquidity_index"`
	BorrowRate         decimal.Decimal `json:"borrow_rate"`
	LiquidityRate      decimal.Decimal `json:"liquidity_rate"`
	TotalSupplyScaled  decimal.Decimal `json:"total_supply_scaled"`
	TotalDebtScaled    decimal.Decimal `json:"total_debt_scaled"`
	TotalCollateral    decimal.Decimal `json:"total_collateral"`
	Utilization        decimal.Decimal `json:"utilization"`
	AvailableLiquidity decimal.Decimal `json:"available_liquidity"`
	LastUpdate         time.Time       `json:"last_update"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// TotalSupply is the actual supply, total_supply_scaled dereferenced by the
// liquidity index.
func (m *Market) TotalSupply() decimal.Decimal {
	return m.TotalSupplyScaled.Mul(m.LiquidityIndex)
}

// TotalDebt is the actual debt, total_debt_scaled dereferenced by the borrow
// index.
func (m *Market) TotalDebt() decimal.Decimal {
	return m.TotalDebtScaled.Mul(m.BorrowIndex)
}

// UserPosition represents the 'user_positions' table
type UserPosition struct {
	MarketID         string          `json:"market_id"`
	UserAddress      string          `json:"user_address"`
	SupplyScaled     decimal.Decimal `json:"supply_scaled"`
	DebtScaled       decimal.Decimal `json:"debt_scaled"`
	Collateral       decimal.Decimal `json:"collateral"`
	FirstInteraction time.Time       `json:"first_interaction"`
	LastInteraction  time.Time       `json:"last_interaction"`
}

// Transaction represents the 'transactions' table: one row per financial
// event, keyed by (tx_hash, log_index). UserAddress is always the acting
// principal (repayer on repay, liquidator on liquidate), never the recipient.
type Transaction struct {
	TxHash   string `json:"tx_hash"`
	LogIndex int    `json:"log_index"`
	MarketID string `json:"market_id"`
	Action   string `json:"action"`

	UserAddress string `json:"user_address"`
	Recipient   string `json:"recipient,omitempty"`
	Borrower    string `json:"borrower,omitempty"`

	Amount           decimal.NullDecimal `json:"amount"`
	ScaledAmount     decimal.NullDecimal `json:"scaled_amount"`
	DebtRepaid       decimal.NullDecimal `json:"debt_repaid"`
	CollateralSeized decimal.NullDecimal `json:"collateral_seized"`
	ProtocolFee      decimal.NullDecimal `json:"protocol_fee"`

	// Market-state snapshot as reported by the event.
	TotalSupply     decimal.Decimal `json:"total_supply"`
	TotalDebt       decimal.Decimal `json:"total_debt"`
	TotalCollateral decimal.Decimal `json:"total_collateral"`
	Utilization     decimal.Decimal `json:"utilization"`
	BorrowRate      decimal.Decimal `json:"borrow_rate"`
	LiquidityRate   decimal.Decimal `json:"liquidity_rate"`

	BlockHeight uint64    `json:"block_height"`
	Timestamp   time.Time `json:"timestamp"`
}

// InterestAccrualEvent represents the 'interest_accrual_events' table
type InterestAccrualEvent struct {
	TxHash         string          `json:"tx_hash"`
	LogIndex       int             `json:"log_index"`
	MarketID       string          `json:"market_id"`
	BorrowIndex    decimal.Decimal `json:"borrow_index"`
	LiquidityIndex decimal.Decimal `json:"liquidity_index"`
	BorrowRate     decimal.Decimal `json:"borrow_rate"`
	LiquidityRate  decimal.Decimal `json:"liquidity_rate"`
	BlockHeight    uint64          `json:"block_height"`
	Timestamp      time.Time       `json:"timestamp"`
}

// MarketSnapshot represents the 'market_snapshots' table: a materialized view
// of one market at one moment, keyed by (market_id, timestamp). Totals are
// dereferenced (scaled totals multiplied by their index).
type MarketSnapshot struct {
	MarketID             string          `json:"market_id"`
	Timestamp            time.Time       `json:"timestamp"`
	TotalSupply          decimal.Decimal `json:"total_supply"`
	TotalDebt            decimal.Decimal `json:"total_debt"`
	TotalCollateral      decimal.Decimal `json:"total_collateral"`
	Utilization          decimal.Decimal `json:"utilization"`
	BorrowIndex          decimal.Decimal `json:"borrow_index"`
	LiquidityIndex       decimal.Decimal `json:"liquidity_index"`
	BorrowRate           decimal.Decimal `json:"borrow_rate"`
	LiquidityRate        decimal.Decimal `json:"liquidity_rate"`
	LoanToValue          decimal.Decimal `json:"loan_to_value"`
	LiquidationThreshold decimal.Decimal `json:"liquidation_threshold"`
	Enabled              bool            `json:"enabled"`
	BlockHeight          uint64          `json:"block_height"`
}

// PositionAtRisk is a user position joined with the market fields needed to
// judge liquidation exposure. CurrentDebt is debt_scaled dereferenced by the
// market's borrow index at read time.
type PositionAtRisk struct {
	UserPosition
	CollateralDenom      string          `json:"collateral_denom"`
	DebtDenom            string          `json:"debt_denom"`
	CurrentDebt          decimal.Decimal `json:"current_debt"`
	LoanToValue          decimal.Decimal `json:"loan_to_value"`
	LiquidationThreshold decimal.Decimal `json:"liquidation_threshold"`
}
