// Package events turns the string attribute bags of wasm events into a
// closed set of typed variants. Downstream code never sees raw maps.
package events

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"lendscan/internal/chain"
)

// ErrUnknownAction marks an action the decoder does not recognize; callers
// skip those events silently.
var ErrUnknownAction = errors.New("unknown action")

// Factory action.
const ActionMarketInstantiated = "market_instantiated"

// Market actions.
const (
	ActionSupply             = "supply"
	ActionWithdraw           = "withdraw"
	ActionSupplyCollateral   = "supply_collateral"
	ActionWithdrawCollateral = "withdraw_collateral"
	ActionBorrow             = "borrow"
	ActionRepay              = "repay"
	ActionLiquidate          = "liquidate"
	ActionAccrueInterest     = "accrue_interest"
	ActionUpdateParams       = "update_params"
)

// AttrMap flattens an event's ordered attribute list into a map. The first
// occurrence of a key wins, matching how contracts report merged attributes.
func AttrMap(ev chain.Event) map[string]string {
	m := make(map[string]string, len(ev.Attributes))
	for _, attr := range ev.Attributes {
		if _, ok := m[attr.Key]; !ok {
			m[attr.Key] = attr.Value
		}
	}
	return m
}

// ContractAddress resolves the emitting contract from an attribute map.
func ContractAddress(attrs map[string]string) string {
	if addr := attrs["_contract_address"]; addr != "" {
		return addr
	}
	return attrs["contract_address"]
}

// Action returns the action attribute, empty when absent.
func Action(attrs map[string]string) string {
	return attrs["action"]
}

// MarketInstantiated is the factory event announcing a new market. All other
// facts about the market are fetched from the contract itself.
type MarketInstantiated struct {
	MarketID      string
	MarketAddress string
}

// ReportedState carries the market state a financial event reports.
// Rates are optional on financial events; TotalCollateral is reported by
// liquidate only.
type ReportedState struct {
	BorrowIndex     decimal.Decimal
	LiquidityIndex  decimal.Decimal
	TotalSupply     decimal.Decimal
	TotalDebt       decimal.Decimal
	Utilization     decimal.Decimal
	BorrowRate      decimal.NullDecimal
	LiquidityRate   decimal.NullDecimal
	TotalCollateral decimal.NullDecimal
}

// MarketEvent is the closed set of events a market contract emits.
type MarketEvent interface {
	marketEvent()
}

type Supply struct {
	Supplier     string
	Recipient    string
	Amount       decimal.Decimal
	ScaledAmount decimal.Decimal
	State        ReportedState
}

type Withdraw struct {
	Withdrawer     string
	Recipient      string
	Amount         decimal.Decimal
	ScaledDecrease decimal.Decimal
	State          ReportedState
}

type SupplyCollateral struct {
	Supplier  string
	Recipient string
	Amount    decimal.Decimal
}

type WithdrawCollateral struct {
	Withdrawer string
	Recipient  string
	Amount     decimal.Decimal
}

type Borrow struct {
	Borrower     string
	Recipient    string
	Amount       decimal.Decimal
	ScaledAmount decimal.Decimal
	State        ReportedState
}

type Repay struct {
	Repayer        string
	Borrower       string
	Amount         decimal.Decimal
	ScaledDecrease decimal.Decimal
	State          ReportedState
}

type Liquidate struct {
	Liquidator         string
	Borrower           string
	DebtRepaid         decimal.Decimal
	CollateralSeized   decimal.Decimal
	ProtocolFee        decimal.Decimal
	ScaledDebtDecrease decimal.Decimal
	State              ReportedState
}

type AccrueInterest struct {
	BorrowIndex    decimal.Decimal
	LiquidityIndex decimal.Decimal
	BorrowRate     decimal.Decimal
	LiquidityRate  decimal.Decimal
	LastUpdate     time.Time
}

type UpdateParams struct {
	LoanToValue            decimal.Decimal
	LiquidationThreshold   decimal.Decimal
	LiquidationBonus       decimal.Decimal
	LiquidationProtocolFee decimal.Decimal
	CloseFactor            decimal.Decimal
	ProtocolFee            decimal.Decimal
	CuratorFee             decimal.Decimal
	SupplyCap              decimal.NullDecimal
	BorrowCap              decimal.NullDecimal
	Enabled                bool
	IsMutable              bool
}

func (Supply) marketEvent()             {}
func (Withdraw) marketEvent()           {}
func (SupplyCollateral) marketEvent()   {}
func (WithdrawCollateral) marketEvent() {}
func (Borrow) marketEvent()             {}
func (Repay) marketEvent()              {}
func (Liquidate) marketEvent()          {}
func (AccrueInterest) marketEvent()     {}
func (UpdateParams) marketEvent()       {}

// DecodeFactoryEvent decodes an event emitted by the factory contract.
func DecodeFactoryEvent(attrs map[string]string) (*MarketInstantiated, error) {
	if Action(attrs) != ActionMarketInstantiated {
		return nil, fmt.Errorf("factory action %q: %w", Action(attrs), ErrUnknownAction)
	}
	f := newFields(attrs)
	ev := &MarketInstantiated{
		MarketID:      f.str("market_id"),
		MarketAddress: f.str("market_address"),
	}
	if f.err != nil {
		return nil, fmt.Errorf("market_instantiated: %w", f.err)
	}
	return ev, nil
}

// DecodeMarketEvent decodes an event emitted by a tracked market contract.
func DecodeMarketEvent(attrs map[string]string) (MarketEvent, error) {
	action := Action(attrs)
	f := newFields(attrs)

	var ev MarketEvent
	switch action {
	case ActionSupply:
		ev = Supply{
			Supplier:     f.str("supplier"),
			Recipient:    f.str("recipient"),
			Amount:       f.dec("amount"),
			ScaledAmount: f.dec("scaled_amount"),
			State:        f.reportedState(),
		}
	case ActionWithdraw:
		ev = Withdraw{
			Withdrawer:     f.str("withdrawer"),
			Recipient:      f.str("recipient"),
			Amount:         f.dec("amount"),
			ScaledDecrease: f.dec("scaled_decrease"),
			State:          f.reportedState(),
		}
	case ActionSupplyCollateral:
		ev = SupplyCollateral{
			Supplier:  f.str("supplier"),
			Recipient: f.str("recipient"),
			Amount:    f.dec("amount"),
		}
	case ActionWithdrawCollateral:
		ev = WithdrawCollateral{
			Withdrawer: f.str("withdrawer"),
			Recipient:  f.str("recipient"),
			Amount:     f.dec("amount"),
		}
	case ActionBorrow:
		ev = Borrow{
			Borrower:     f.str("borrower"),
			Recipient:    f.str("recipient"),
			Amount:       f.dec("amount"),
			ScaledAmount: f.dec("scaled_amount"),
			State:        f.reportedState(),
		}
	case ActionRepay:
		ev = Repay{
			Repayer:        f.str("repayer"),
			Borrower:       f.str("borrower"),
			Amount:         f.dec("amount"),
			ScaledDecrease: f.dec("scaled_decrease"),
			State:          f.reportedState(),
		}
	case ActionLiquidate:
		state := f.reportedState()
		state.TotalCollateral = decimal.NewNullDecimal(f.dec("total_collateral"))
		ev = Liquidate{
			Liquidator:         f.str("liquidator"),
			Borrower:           f.str("borrower"),
			DebtRepaid:         f.dec("debt_repaid"),
			CollateralSeized:   f.dec("collateral_seized"),
			ProtocolFee:        f.dec("protocol_fee"),
			ScaledDebtDecrease: f.dec("scaled_debt_decrease"),
			State:              state,
		}
	case ActionAccrueInterest:
		ev = AccrueInterest{
			BorrowIndex:    f.dec("borrow_index"),
			LiquidityIndex: f.dec("liquidity_index"),
			BorrowRate:     f.dec("borrow_rate"),
			LiquidityRate:  f.dec("liquidity_rate"),
			LastUpdate:     f.epoch("last_update"),
		}
	case ActionUpdateParams:
		ev = UpdateParams{
			LoanToValue:            f.dec("final_ltv"),
			LiquidationThreshold:   f.dec("final_liquidation_threshold"),
			LiquidationBonus:       f.dec("final_liquidation_bonus"),
			LiquidationProtocolFee: f.dec("final_liquidation_protocol_fee"),
			CloseFactor:            f.dec("final_close_factor"),
			ProtocolFee:            f.dec("final_protocol_fee"),
			CuratorFee:             f.dec("final_curator_fee"),
			SupplyCap:              f.optDec("final_supply_cap"),
			BorrowCap:              f.optDec("final_borrow_cap"),
			Enabled:                f.boolean("final_enabled"),
			IsMutable:              f.boolean("final_is_mutable"),
		}
	default:
		return nil, fmt.Errorf("market action %q: %w", action, ErrUnknownAction)
	}

	if f.err != nil {
		return nil, fmt.Errorf("%s: %w", action, f.err)
	}
	return ev, nil
}

// fields reads typed values out of an attribute map, keeping the first error.
type fields struct {
	m   map[string]string
	err error
}

func newFields(m map[string]string) *fields {
	return &fields{m: m}
}

func (f *fields) str(key string) string {
	if f.err != nil {
		return ""
	}
	v, ok := f.m[key]
	if !ok || v == "" {
		f.err = fmt.Errorf("missing attribute %q", key)
		return ""
	}
	return v
}

func (f *fields) dec(key string) decimal.Decimal {
	v := f.str(key)
	if f.err != nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		f.err = fmt.Errorf("attribute %q: %w", key, err)
		return decimal.Zero
	}
	return d
}

func (f *fields) optDec(key string) decimal.NullDecimal {
	if f.err != nil {
		return decimal.NullDecimal{}
	}
	v, ok := f.m[key]
	if !ok || v == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		f.err = fmt.Errorf("attribute %q: %w", key, err)
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func (f *fields) boolean(key string) bool {
	v := f.str(key)
	if f.err != nil {
		return false
	}
	switch v {
	case "true":
		return true
	case "false":
		return false
	default:
		f.err = fmt.Errorf("attribute %q: invalid boolean %q", key, v)
		return false
	}
}

func (f *fields) epoch(key string) time.Time {
	v := f.str(key)
	if f.err != nil {
		return time.Time{}
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		f.err = fmt.Errorf("attribute %q: %w", key, err)
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

func (f *fields) reportedState() ReportedState {
	return ReportedState{
		BorrowIndex:    f.dec("borrow_index"),
		LiquidityIndex: f.dec("liquidity_index"),
		TotalSupply:    f.dec("total_supply"),
		TotalDebt:      f.dec("total_debt"),
		Utilization:    f.dec("utilization"),
		BorrowRate:     f.optDec("borrow_rate"),
		LiquidityRate:  f.optDec("liquidity_rate"),
	}
}
