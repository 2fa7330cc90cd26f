package chain

import (
	"context"
	"encoding/json"
	"fmt"
)

// MarketConfig is the immutable configuration a market contract returns for
// {"config": {}}.
type MarketConfig struct {
	Curator         string `json:"curator"`
	CollateralDenom string `json:"collateral_denom"`
	DebtDenom       string `json:"debt_denom"`
	Oracle          string `json:"oracle"`
}

// MarketParams is the mutable parameter set a market contract returns for
// {"params": {}}. Numeric fields arrive as decimal strings; the caps are
// omitted when unset.
type MarketParams struct {
	LoanToValue            string          `json:"loan_to_value"`
	LiquidationThreshold   string          `json:"liquidation_threshold"`
	LiquidationBonus       string          `json:"liquidation_bonus"`
	LiquidationProtocolFee string          `json:"liquidation_protocol_fee"`
	CloseFactor            string          `json:"close_factor"`
	ProtocolFee            string          `json:"protocol_fee"`
	CuratorFee             string          `json:"curator_fee"`
	SupplyCap              *string         `json:"supply_cap,omitempty"`
	BorrowCap              *string         `json:"borrow_cap,omitempty"`
	Enabled                bool            `json:"enabled"`
	IsMutable              bool            `json:"is_mutable"`
	InterestRateModel      json.RawMessage `json:"interest_rate_model,omitempty"`
}

// QueryMarketConfig fetches and validates a market's config.
func (c *Client) QueryMarketConfig(ctx context.Context, contract string) (*MarketConfig, error) {
	var cfg MarketConfig
	if err := c.SmartQuery(ctx, contract, map[string]interface{}{"config": struct{}{}}, &cfg); err != nil {
		return nil, err
	}
	if cfg.CollateralDenom == "" || cfg.DebtDenom == "" {
		return nil, fmt.Errorf("market %s returned incomplete config (collateral_denom=%q debt_denom=%q)",
			contract, cfg.CollateralDenom, cfg.DebtDenom)
	}
	return &cfg, nil
}

// QueryMarketParams fetches and validates a market's params.
func (c *Client) QueryMarketParams(ctx context.Context, contract string) (*MarketParams, error) {
	var params MarketParams
	if err := c.SmartQuery(ctx, contract, map[string]interface{}{"params": struct{}{}}, &params); err != nil {
		return nil, err
	}
	if params.LoanToValue == "" || params.LiquidationThreshold == "" {
		return nil, fmt.Errorf("market %s returned incomplete params (loan_to_value=%q liquidation_threshold=%q)",
			contract, params.LoanToValue, params.LiquidationThreshold)
	}
	return &params, nil
}
