package api

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"lendscan/internal/models"
)

func TestParseLimitOffset(t *testing.T) {
	cases := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", 20, 0},
		{"explicit", "limit=50&offset=10", 50, 10},
		{"zero limit falls back", "limit=0", 20, 0},
		{"above max falls back", "limit=500", 20, 0},
		{"negative limit falls back", "limit=-5", 20, 0},
		{"negative offset falls back", "offset=-3", 20, 0},
		{"garbage falls back", "limit=abc&offset=xyz", 20, 0},
		{"max limit accepted", "limit=200", 200, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/markets?"+tc.query, nil)
			limit, offset := parseLimitOffset(r)
			if limit != tc.wantLimit || offset != tc.wantOffset {
				t.Fatalf("got=(%d,%d) want (%d,%d)", limit, offset, tc.wantLimit, tc.wantOffset)
			}
		})
	}
}

func TestParseTimeParam(t *testing.T) {
	t.Run("empty means unbounded", func(t *testing.T) {
		ts, err := parseTimeParam("")
		if err != nil || ts != nil {
			t.Fatalf("got=(%v,%v) want (nil,nil)", ts, err)
		}
	})

	t.Run("rfc3339", func(t *testing.T) {
		ts, err := parseTimeParam("2024-05-01T12:00:00Z")
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		if !ts.Equal(want) {
			t.Fatalf("got=%v want %v", ts, want)
		}
	})

	t.Run("unix seconds", func(t *testing.T) {
		ts, err := parseTimeParam("1714564800")
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		if !ts.Equal(want) {
			t.Fatalf("got=%v want %v", ts, want)
		}
	})

	t.Run("garbage rejected", func(t *testing.T) {
		if _, err := parseTimeParam("yesterday"); err == nil {
			t.Fatal("expected error for non-time input")
		}
	})
}

func TestFormatTime(t *testing.T) {
	if got := formatTime(time.Time{}); got != "" {
		t.Fatalf("zero time: got=%q want empty", got)
	}
	ts := time.Date(2024, 5, 1, 14, 30, 0, 0, time.FixedZone("X", 2*3600))
	if got := formatTime(ts); got != "2024-05-01T12:30:00Z" {
		t.Fatalf("got=%q want 2024-05-01T12:30:00Z", got)
	}
}

func TestSafeRawJSON(t *testing.T) {
	if got := string(safeRawJSON(nil)); got != "null" {
		t.Fatalf("nil: got=%q", got)
	}
	if got := string(safeRawJSON([]byte("null"))); got != "null" {
		t.Fatalf("null literal: got=%q", got)
	}
	if got := string(safeRawJSON([]byte(`{"base":"0.02"}`))); got != `{"base":"0.02"}` {
		t.Fatalf("passthrough: got=%q", got)
	}
}

func TestTransactionToOutputOptionalFields(t *testing.T) {
	base := models.Transaction{
		TxHash:      "AB12",
		LogIndex:    0,
		MarketID:    "7",
		UserAddress: "neutron1alice",
		BlockHeight: 500,
		Timestamp:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	t.Run("supply carries amount only", func(t *testing.T) {
		tx := base
		tx.Action = models.ActionSupply
		tx.Recipient = "neutron1bob"
		tx.Amount = decimal.NewNullDecimal(decimal.NewFromInt(100))
		tx.ScaledAmount = decimal.NewNullDecimal(decimal.NewFromInt(95))

		out := transactionToOutput(&tx)
		if _, ok := out["amount"]; !ok {
			t.Fatal("amount missing")
		}
		if _, ok := out["scaled_amount"]; !ok {
			t.Fatal("scaled_amount missing")
		}
		if out["recipient"] != "neutron1bob" {
			t.Fatalf("recipient: got=%v", out["recipient"])
		}
		for _, key := range []string{"borrower", "debt_repaid", "collateral_seized", "protocol_fee"} {
			if _, ok := out[key]; ok {
				t.Fatalf("%s should be absent on supply", key)
			}
		}
	})

	t.Run("liquidate carries seizure fields", func(t *testing.T) {
		tx := base
		tx.Action = models.ActionLiquidate
		tx.Borrower = "neutron1bob"
		tx.DebtRepaid = decimal.NewNullDecimal(decimal.NewFromInt(400))
		tx.CollateralSeized = decimal.NewNullDecimal(decimal.NewFromInt(440))
		tx.ProtocolFee = decimal.NewNullDecimal(decimal.NewFromInt(4))

		out := transactionToOutput(&tx)
		if out["borrower"] != "neutron1bob" {
			t.Fatalf("borrower: got=%v", out["borrower"])
		}
		for _, key := range []string{"debt_repaid", "collateral_seized", "protocol_fee"} {
			if _, ok := out[key]; !ok {
				t.Fatalf("%s missing on liquidate", key)
			}
		}
		if _, ok := out["amount"]; ok {
			t.Fatal("amount should be absent on liquidate")
		}
		if _, ok := out["recipient"]; ok {
			t.Fatal("recipient should be absent without a distinct receiver")
		}
	})
}

func TestMarketToOutputDerivedTotals(t *testing.T) {
	m := &models.Market{
		ID:                "7",
		MarketAddress:     "neutron1marketaaaa",
		LiquidityIndex:    decimal.RequireFromString("1.05"),
		BorrowIndex:       decimal.RequireFromString("1.10"),
		TotalSupplyScaled: decimal.NewFromInt(1000),
		TotalDebtScaled:   decimal.NewFromInt(500),
	}
	out := marketToOutput(m)

	supply, ok := out["total_supply"].(decimal.Decimal)
	if !ok {
		t.Fatalf("total_supply has type %T", out["total_supply"])
	}
	if !supply.Equal(decimal.NewFromInt(1050)) {
		t.Fatalf("total_supply: got=%s want 1050", supply)
	}
	debt := out["total_debt"].(decimal.Decimal)
	if !debt.Equal(decimal.NewFromInt(550)) {
		t.Fatalf("total_debt: got=%s want 550", debt)
	}
}
