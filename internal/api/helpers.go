package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"lendscan/internal/models"
)

type apiEnvelope struct {
	Links map[string]string      `json:"_links,omitempty"`
	Meta  map[string]interface{} `json:"_meta,omitempty"`
	Data  interface{}            `json:"data,omitempty"`
	Error interface{}            `json:"error,omitempty"`
}

func writeAPIResponse(w http.ResponseWriter, data interface{}, meta map[string]interface{}, links map[string]string) {
	resp := apiEnvelope{
		Links: links,
		Meta:  meta,
		Data:  data,
	}
	json.NewEncoder(w).Encode(resp)
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiEnvelope{
		Error: map[string]string{"message": message},
	})
}

func parseLimitOffset(r *http.Request) (int, int) {
	limit := 20
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// parseTimeParam accepts RFC3339 or unix seconds. Empty means unbounded.
func parseTimeParam(val string) (*time.Time, error) {
	if val == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, val); err == nil {
		ts = ts.UTC()
		return &ts, nil
	}
	secs, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return nil, err
	}
	ts := time.Unix(secs, 0).UTC()
	return &ts, nil
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}

func safeRawJSON(b []byte) json.RawMessage {
	if len(b) == 0 || string(b) == "null" {
		return json.RawMessage(`null`)
	}
	return json.RawMessage(b)
}

// Amounts and rates render as strings via the decimal marshaller, so
// 1e18-scale values survive JSON untouched.

func marketToOutput(m *models.Market) map[string]interface{} {
	out := map[string]interface{}{
		"id":               m.ID,
		"market_address":   m.MarketAddress,
		"curator":          m.Curator,
		"collateral_denom": m.CollateralDenom,
		"debt_denom":       m.DebtDenom,
		"oracle":           m.Oracle,
		"created_at":       formatTime(m.CreatedAt),
		"created_at_block": m.CreatedAtBlock,

		"loan_to_value":            m.LoanToValue,
		"liquidation_threshold":    m.LiquidationThreshold,
		"liquidation_bonus":        m.LiquidationBonus,
		"liquidation_protocol_fee": m.LiquidationProtocolFee,
		"close_factor":             m.CloseFactor,
		"protocol_fee":             m.ProtocolFee,
		"curator_fee":              m.CuratorFee,
		"supply_cap":               m.SupplyCap,
		"borrow_cap":               m.BorrowCap,
		"enabled":                  m.Enabled,
		"is_mutable":               m.IsMutable,
		"interest_rate_model":      safeRawJSON(m.InterestRateModel),

		"borrow_index":        m.BorrowIndex,
		"liquidity_index":     m.LiquidityIndex,
		"borrow_rate":         m.BorrowRate,
		"liquidity_rate":      m.LiquidityRate,
		"total_supply_scaled": m.TotalSupplyScaled,
		"total_debt_scaled":   m.TotalDebtScaled,
		"total_supply":        m.TotalSupply().Truncate(0),
		"total_debt":          m.TotalDebt().Truncate(0),
		"total_collateral":    m.TotalCollateral,
		"utilization":         m.Utilization,
		"available_liquidity": m.AvailableLiquidity,
		"last_update":         formatTime(m.LastUpdate),
		"updated_at":          formatTime(m.UpdatedAt),
	}
	return out
}

func positionToOutput(p *models.UserPosition) map[string]interface{} {
	return map[string]interface{}{
		"market_id":         p.MarketID,
		"user_address":      p.UserAddress,
		"supply_scaled":     p.SupplyScaled,
		"debt_scaled":       p.DebtScaled,
		"collateral":        p.Collateral,
		"first_interaction": formatTime(p.FirstInteraction),
		"last_interaction":  formatTime(p.LastInteraction),
	}
}

func positionAtRiskToOutput(p *models.PositionAtRisk) map[string]interface{} {
	out := positionToOutput(&p.UserPosition)
	out["collateral_denom"] = p.CollateralDenom
	out["debt_denom"] = p.DebtDenom
	out["current_debt"] = p.CurrentDebt.Truncate(0)
	out["loan_to_value"] = p.LoanToValue
	out["liquidation_threshold"] = p.LiquidationThreshold
	return out
}

func transactionToOutput(t *models.Transaction) map[string]interface{} {
	out := map[string]interface{}{
		"tx_hash":      t.TxHash,
		"log_index":    t.LogIndex,
		"market_id":    t.MarketID,
		"action":       t.Action,
		"user_address": t.UserAddress,

		"total_supply":     t.TotalSupply,
		"total_debt":       t.TotalDebt,
		"total_collateral": t.TotalCollateral,
		"utilization":      t.Utilization,
		"borrow_rate":      t.BorrowRate,
		"liquidity_rate":   t.LiquidityRate,

		"block_height": t.BlockHeight,
		"timestamp":    formatTime(t.Timestamp),
	}
	if t.Recipient != "" {
		out["recipient"] = t.Recipient
	}
	if t.Borrower != "" {
		out["borrower"] = t.Borrower
	}
	if t.Amount.Valid {
		out["amount"] = t.Amount.Decimal
	}
	if t.ScaledAmount.Valid {
		out["scaled_amount"] = t.ScaledAmount.Decimal
	}
	if t.DebtRepaid.Valid {
		out["debt_repaid"] = t.DebtRepaid.Decimal
	}
	if t.CollateralSeized.Valid {
		out["collateral_seized"] = t.CollateralSeized.Decimal
	}
	if t.ProtocolFee.Valid {
		out["protocol_fee"] = t.ProtocolFee.Decimal
	}
	return out
}

func snapshotToOutput(s *models.MarketSnapshot) map[string]interface{} {
	return map[string]interface{}{
		"market_id":             s.MarketID,
		"timestamp":             formatTime(s.Timestamp),
		"block_height":          s.BlockHeight,
		"total_supply":          s.TotalSupply,
		"total_debt":            s.TotalDebt,
		"total_collateral":      s.TotalCollateral,
		"utilization":           s.Utilization,
		"borrow_index":          s.BorrowIndex,
		"liquidity_index":       s.LiquidityIndex,
		"borrow_rate":           s.BorrowRate,
		"liquidity_rate":        s.LiquidityRate,
		"loan_to_value":         s.LoanToValue,
		"liquidation_threshold": s.LiquidationThreshold,
		"enabled":               s.Enabled,
	}
}

func accrualToOutput(a *models.InterestAccrualEvent) map[string]interface{} {
	return map[string]interface{}{
		"tx_hash":         a.TxHash,
		"log_index":       a.LogIndex,
		"market_id":       a.MarketID,
		"borrow_index":    a.BorrowIndex,
		"liquidity_index": a.LiquidityIndex,
		"borrow_rate":     a.BorrowRate,
		"liquidity_rate":  a.LiquidityRate,
		"block_height":    a.BlockHeight,
		"timestamp":       formatTime(a.Timestamp),
	}
}
