package events

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"lendscan/internal/chain"
)

func supplyAttrs() map[string]string {
	return map[string]string{
		"_contract_address": "market1addr",
		"action":            "supply",
		"supplier":          "user1",
		"recipient":         "user1",
		"amount":            "1000000000000000000",
		"scaled_amount":     "1000000000000000000",
		"borrow_index":      "1",
		"liquidity_index":   "1",
		"total_supply":      "1000000000000000000",
		"total_debt":        "0",
		"utilization":       "0",
	}
}

func TestAttrMapFirstWins(t *testing.T) {
	t.Parallel()
	ev := chain.Event{
		Type: "wasm",
		Attributes: []chain.Attribute{
			{Key: "action", Value: "supply"},
			{Key: "amount", Value: "100"},
			{Key: "amount", Value: "999"},
		},
	}
	m := AttrMap(ev)
	if m["amount"] != "100" {
		t.Fatalf("amount=%q, want first occurrence 100", m["amount"])
	}
}

func TestContractAddressFallback(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		attrs map[string]string
		want  string
	}{
		{"underscore key", map[string]string{"_contract_address": "a1"}, "a1"},
		{"plain key", map[string]string{"contract_address": "a2"}, "a2"},
		{"underscore preferred", map[string]string{"_contract_address": "a1", "contract_address": "a2"}, "a1"},
		{"absent", map[string]string{"action": "supply"}, ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ContractAddress(tc.attrs); got != tc.want {
				t.Fatalf("ContractAddress=%q want %q", got, tc.want)
			}
		})
	}
}

func TestDecodeFactoryEvent(t *testing.T) {
	t.Parallel()
	ev, err := DecodeFactoryEvent(map[string]string{
		"action":         "market_instantiated",
		"market_id":      "1",
		"market_address": "market1addr",
	})
	if err != nil {
		t.Fatalf("DecodeFactoryEvent: %v", err)
	}
	if ev.MarketID != "1" || ev.MarketAddress != "market1addr" {
		t.Fatalf("decoded=%+v", ev)
	}

	if _, err := DecodeFactoryEvent(map[string]string{
		"action":    "market_instantiated",
		"market_id": "1",
	}); err == nil || !strings.Contains(err.Error(), "market_address") {
		t.Fatalf("missing market_address err=%v", err)
	}

	if _, err := DecodeFactoryEvent(map[string]string{"action": "config_updated"}); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("unknown factory action err=%v", err)
	}
}

func TestDecodeSupply(t *testing.T) {
	t.Parallel()
	ev, err := DecodeMarketEvent(supplyAttrs())
	if err != nil {
		t.Fatalf("DecodeMarketEvent: %v", err)
	}
	supply, ok := ev.(Supply)
	if !ok {
		t.Fatalf("decoded type %T, want Supply", ev)
	}
	if supply.Supplier != "user1" || supply.Recipient != "user1" {
		t.Fatalf("principals=%+v", supply)
	}
	if !supply.ScaledAmount.Equal(decimal.RequireFromString("1000000000000000000")) {
		t.Fatalf("scaled_amount=%s", supply.ScaledAmount)
	}
	if !supply.State.BorrowIndex.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("borrow_index=%s", supply.State.BorrowIndex)
	}
	if supply.State.BorrowRate.Valid {
		t.Fatalf("borrow_rate should be unset when the event omits it")
	}
}

func TestDecodeMarketEventMissingAttr(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		mutate  func(map[string]string)
		missing string
	}{
		{"no scaled_amount", func(m map[string]string) { delete(m, "scaled_amount") }, "scaled_amount"},
		{"no utilization", func(m map[string]string) { delete(m, "utilization") }, "utilization"},
		{"empty supplier", func(m map[string]string) { m["supplier"] = "" }, "supplier"},
		{"bad amount", func(m map[string]string) { m["amount"] = "12,5" }, "amount"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			attrs := supplyAttrs()
			tc.mutate(attrs)
			_, err := DecodeMarketEvent(attrs)
			if err == nil || !strings.Contains(err.Error(), tc.missing) {
				t.Fatalf("err=%v, want mention of %q", err, tc.missing)
			}
		})
	}
}

func TestDecodeRepayWithOptionalRates(t *testing.T) {
	t.Parallel()
	attrs := map[string]string{
		"action":          "repay",
		"repayer":         "user3",
		"borrower":        "user2",
		"amount":          "525000000000000000",
		"scaled_decrease": "500000000000000000",
		"borrow_index":    "1.05",
		"liquidity_index": "1.01",
		"total_supply":    "1000000000000000000",
		"total_debt":      "0",
		"utilization":     "0",
		"borrow_rate":     "0.12",
		"liquidity_rate":  "0.07",
	}
	ev, err := DecodeMarketEvent(attrs)
	if err != nil {
		t.Fatalf("DecodeMarketEvent: %v", err)
	}
	repay := ev.(Repay)
	if repay.Repayer != "user3" || repay.Borrower != "user2" {
		t.Fatalf("principals=%+v", repay)
	}
	if !repay.State.BorrowRate.Valid || !repay.State.BorrowRate.Decimal.Equal(decimal.RequireFromString("0.12")) {
		t.Fatalf("borrow_rate=%+v", repay.State.BorrowRate)
	}
	if !repay.State.BorrowIndex.Equal(decimal.RequireFromString("1.05")) {
		t.Fatalf("borrow_index=%s", repay.State.BorrowIndex)
	}
}

func TestDecodeLiquidate(t *testing.T) {
	t.Parallel()
	attrs := map[string]string{
		"action":               "liquidate",
		"liquidator":           "liq1",
		"borrower":             "user2",
		"debt_repaid":          "400000000000000000000",
		"collateral_seized":    "440000000000000000000",
		"protocol_fee":         "40000000000000000000",
		"scaled_debt_decrease": "333330000000000000000",
		"borrow_index":         "1.2",
		"liquidity_index":      "1.1",
		"total_supply":         "5000000000000000000000",
		"total_debt":           "600000000000000000000",
		"total_collateral":     "560000000000000000000",
		"utilization":          "0.12",
	}
	ev, err := DecodeMarketEvent(attrs)
	if err != nil {
		t.Fatalf("DecodeMarketEvent: %v", err)
	}
	liq := ev.(Liquidate)
	if liq.Liquidator != "liq1" || liq.Borrower != "user2" {
		t.Fatalf("principals=%+v", liq)
	}
	if !liq.State.TotalCollateral.Valid ||
		!liq.State.TotalCollateral.Decimal.Equal(decimal.RequireFromString("560000000000000000000")) {
		t.Fatalf("total_collateral=%+v", liq.State.TotalCollateral)
	}

	delete(attrs, "total_collateral")
	if _, err := DecodeMarketEvent(attrs); err == nil || !strings.Contains(err.Error(), "total_collateral") {
		t.Fatalf("missing total_collateral err=%v", err)
	}
}

func TestDecodeAccrueInterest(t *testing.T) {
	t.Parallel()
	ev, err := DecodeMarketEvent(map[string]string{
		"action":          "accrue_interest",
		"borrow_index":    "1.05",
		"liquidity_index": "1.02",
		"borrow_rate":     "0.11",
		"liquidity_rate":  "0.06",
		"last_update":     "1714557600",
	})
	if err != nil {
		t.Fatalf("DecodeMarketEvent: %v", err)
	}
	accrue := ev.(AccrueInterest)
	want := time.Unix(1714557600, 0).UTC()
	if !accrue.LastUpdate.Equal(want) {
		t.Fatalf("last_update=%v want %v", accrue.LastUpdate, want)
	}
	if !accrue.BorrowRate.Equal(decimal.RequireFromString("0.11")) {
		t.Fatalf("borrow_rate=%s", accrue.BorrowRate)
	}
}

func updateParamsAttrs() map[string]string {
	return map[string]string{
		"action":                         "update_params",
		"final_ltv":                      "0.8",
		"final_liquidation_threshold":    "0.85",
		"final_liquidation_bonus":        "0.1",
		"final_liquidation_protocol_fee": "0.02",
		"final_close_factor":             "0.5",
		"final_protocol_fee":             "0.1",
		"final_curator_fee":              "0.05",
		"final_enabled":                  "true",
		"final_is_mutable":               "false",
	}
}

func TestDecodeUpdateParams(t *testing.T) {
	t.Parallel()
	attrs := updateParamsAttrs()
	attrs["final_supply_cap"] = "1000000000000000000000000"

	ev, err := DecodeMarketEvent(attrs)
	if err != nil {
		t.Fatalf("DecodeMarketEvent: %v", err)
	}
	params := ev.(UpdateParams)
	if !params.Enabled || params.IsMutable {
		t.Fatalf("flags=%+v", params)
	}
	if !params.SupplyCap.Valid {
		t.Fatalf("supply_cap should be set")
	}
	if params.BorrowCap.Valid {
		t.Fatalf("borrow_cap should be unset when the attribute is absent")
	}
	if !params.LoanToValue.Equal(decimal.RequireFromString("0.8")) {
		t.Fatalf("loan_to_value=%s", params.LoanToValue)
	}
}

func TestDecodeUpdateParamsRejectsLooseBooleans(t *testing.T) {
	t.Parallel()
	attrs := updateParamsAttrs()
	attrs["final_enabled"] = "TRUE"
	if _, err := DecodeMarketEvent(attrs); err == nil || !strings.Contains(err.Error(), "final_enabled") {
		t.Fatalf("loose boolean err=%v", err)
	}
}

func TestDecodeUnknownMarketAction(t *testing.T) {
	t.Parallel()
	_, err := DecodeMarketEvent(map[string]string{"action": "flash_loan"})
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("err=%v, want ErrUnknownAction", err)
	}
}
