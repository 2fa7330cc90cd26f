package indexer

import (
	"fmt"

	"github.com/shopspring/decimal"

	"lendscan/internal/events"
	"lendscan/internal/models"
	"lendscan/internal/repository"
)

// The apply functions below are pure: they take the market (and, when the
// event touches one, the target position) as loaded from the store, mutate
// the copies, and return the full row set to commit. Persistence and
// publishing stay in the handlers.

func nd(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// clampSub floors position decrements at zero. Scaling conversions can leave
// dust between the event's scaled delta and the stored balance; going
// negative on a position is always dust, never real.
func clampSub(a, b decimal.Decimal) decimal.Decimal {
	r := a.Sub(b)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// overwriteReportedState folds the market-state attributes of an event into
// the market row. Indices never decrease; rates are optional and keep their
// previous value when the event omits them.
func overwriteReportedState(m *models.Market, st events.ReportedState) error {
	if st.BorrowIndex.LessThan(m.BorrowIndex) {
		return fmt.Errorf("%w: market %s borrow_index decreased from %s to %s",
			ErrInvariantViolation, m.ID, m.BorrowIndex, st.BorrowIndex)
	}
	if st.LiquidityIndex.LessThan(m.LiquidityIndex) {
		return fmt.Errorf("%w: market %s liquidity_index decreased from %s to %s",
			ErrInvariantViolation, m.ID, m.LiquidityIndex, st.LiquidityIndex)
	}
	m.BorrowIndex = st.BorrowIndex
	m.LiquidityIndex = st.LiquidityIndex
	if st.BorrowRate.Valid {
		m.BorrowRate = st.BorrowRate.Decimal
	}
	if st.LiquidityRate.Valid {
		m.LiquidityRate = st.LiquidityRate.Decimal
	}
	m.Utilization = st.Utilization
	return nil
}

// refreshAvailableLiquidity recomputes the derived liquidity column after
// any change to the scaled totals or the indices.
func refreshAvailableLiquidity(m *models.Market) {
	avail := m.TotalSupply().Sub(m.TotalDebt()).Truncate(0)
	if avail.IsNegative() {
		avail = decimal.Zero
	}
	m.AvailableLiquidity = avail
}

// newPosition lazily creates a position row for a user the event credits.
func newPosition(marketID, userAddress string, meta eventMeta) *models.UserPosition {
	return &models.UserPosition{
		MarketID:         marketID,
		UserAddress:      userAddress,
		SupplyScaled:     decimal.Zero,
		DebtScaled:       decimal.Zero,
		Collateral:       decimal.Zero,
		FirstInteraction: meta.Time,
		LastInteraction:  meta.Time,
	}
}

// buildSnapshot materializes the market's post-event state. Totals are
// dereferenced through the current indices and truncated to whole units.
func buildSnapshot(m *models.Market, meta eventMeta) *models.MarketSnapshot {
	return &models.MarketSnapshot{
		MarketID:             m.ID,
		Timestamp:            meta.Time,
		TotalSupply:          m.TotalSupply().Truncate(0),
		TotalDebt:            m.TotalDebt().Truncate(0),
		TotalCollateral:      m.TotalCollateral,
		Utilization:          m.Utilization,
		BorrowIndex:          m.BorrowIndex,
		LiquidityIndex:       m.LiquidityIndex,
		BorrowRate:           m.BorrowRate,
		LiquidityRate:        m.LiquidityRate,
		LoanToValue:          m.LoanToValue,
		LiquidationThreshold: m.LiquidationThreshold,
		Enabled:              m.Enabled,
		BlockHeight:          meta.Height,
	}
}

// ledgerBase starts a Transaction row from the post-event market state.
// Callers overwrite the totals with event-reported values where the event
// carries them.
func ledgerBase(m *models.Market, meta eventMeta, action, userAddress string) *models.Transaction {
	return &models.Transaction{
		TxHash:          meta.TxHash,
		LogIndex:        meta.LogIndex,
		MarketID:        m.ID,
		Action:          action,
		UserAddress:     userAddress,
		TotalSupply:     m.TotalSupply().Truncate(0),
		TotalDebt:       m.TotalDebt().Truncate(0),
		TotalCollateral: m.TotalCollateral,
		Utilization:     m.Utilization,
		BorrowRate:      m.BorrowRate,
		LiquidityRate:   m.LiquidityRate,
		BlockHeight:     meta.Height,
		Timestamp:       meta.Time,
	}
}

// positionTarget names the user whose position an event touches, or "" when
// the event is market-only.
func positionTarget(decoded events.MarketEvent) string {
	switch ev := decoded.(type) {
	case events.Supply:
		return ev.Recipient
	case events.Withdraw:
		return ev.Withdrawer
	case events.SupplyCollateral:
		return ev.Recipient
	case events.WithdrawCollateral:
		return ev.Withdrawer
	case events.Borrow:
		return ev.Borrower
	case events.Repay:
		return ev.Borrower
	case events.Liquidate:
		return ev.Borrower
	default:
		return ""
	}
}

// applyMarketEvent dispatches one decoded market event against the loaded
// market and position copies.
func applyMarketEvent(m *models.Market, pos *models.UserPosition, decoded events.MarketEvent, meta eventMeta) (*repository.ProjectedEvent, error) {
	switch ev := decoded.(type) {
	case events.Supply:
		return applySupply(m, pos, ev, meta)
	case events.Withdraw:
		return applyWithdraw(m, pos, ev, meta)
	case events.SupplyCollateral:
		return applySupplyCollateral(m, pos, ev, meta)
	case events.WithdrawCollateral:
		return applyWithdrawCollateral(m, pos, ev, meta)
	case events.Borrow:
		return applyBorrow(m, pos, ev, meta)
	case events.Repay:
		return applyRepay(m, pos, ev, meta)
	case events.Liquidate:
		return applyLiquidate(m, pos, ev, meta)
	case events.AccrueInterest:
		return applyAccrueInterest(m, ev, meta)
	case events.UpdateParams:
		return applyUpdateParams(m, ev, meta)
	default:
		return nil, fmt.Errorf("unhandled market event %T", decoded)
	}
}

func applySupply(m *models.Market, pos *models.UserPosition, ev events.Supply, meta eventMeta) (*repository.ProjectedEvent, error) {
	if err := overwriteReportedState(m, ev.State); err != nil {
		return nil, err
	}
	m.TotalSupplyScaled = m.TotalSupplyScaled.Add(ev.ScaledAmount)
	refreshAvailableLiquidity(m)

	if pos == nil {
		pos = newPosition(m.ID, ev.Recipient, meta)
	}
	pos.SupplyScaled = pos.SupplyScaled.Add(ev.ScaledAmount)
	pos.LastInteraction = meta.Time

	ledger := ledgerBase(m, meta, models.ActionSupply, ev.Supplier)
	ledger.Recipient = ev.Recipient
	ledger.Amount = nd(ev.Amount)
	ledger.ScaledAmount = nd(ev.ScaledAmount)
	ledger.TotalSupply = ev.State.TotalSupply
	ledger.TotalDebt = ev.State.TotalDebt

	return &repository.ProjectedEvent{
		Ledger:    ledger,
		Market:    m,
		Positions: []*models.UserPosition{pos},
		Snapshot:  buildSnapshot(m, meta),
	}, nil
}

func applyWithdraw(m *models.Market, pos *models.UserPosition, ev events.Withdraw, meta eventMeta) (*repository.ProjectedEvent, error) {
	if err := overwriteReportedState(m, ev.State); err != nil {
		return nil, err
	}
	newTotal := m.TotalSupplyScaled.Sub(ev.ScaledDecrease)
	if newTotal.IsNegative() {
		return nil, fmt.Errorf("%w: market %s total_supply_scaled would go negative (%s - %s)",
			ErrInvariantViolation, m.ID, m.TotalSupplyScaled, ev.ScaledDecrease)
	}
	m.TotalSupplyScaled = newTotal
	refreshAvailableLiquidity(m)

	var positions []*models.UserPosition
	if pos != nil {
		pos.SupplyScaled = clampSub(pos.SupplyScaled, ev.ScaledDecrease)
		pos.LastInteraction = meta.Time
		positions = append(positions, pos)
	}

	ledger := ledgerBase(m, meta, models.ActionWithdraw, ev.Withdrawer)
	ledger.Recipient = ev.Recipient
	ledger.Amount = nd(ev.Amount)
	ledger.ScaledAmount = nd(ev.ScaledDecrease)
	ledger.TotalSupply = ev.State.TotalSupply
	ledger.TotalDebt = ev.State.TotalDebt

	return &repository.ProjectedEvent{
		Ledger:    ledger,
		Market:    m,
		Positions: positions,
		Snapshot:  buildSnapshot(m, meta),
	}, nil
}

func applySupplyCollateral(m *models.Market, pos *models.UserPosition, ev events.SupplyCollateral, meta eventMeta) (*repository.ProjectedEvent, error) {
	// Collateral events report no market state; the new total is computed,
	// not read from attributes.
	m.TotalCollateral = m.TotalCollateral.Add(ev.Amount)

	if pos == nil {
		pos = newPosition(m.ID, ev.Recipient, meta)
	}
	pos.Collateral = pos.Collateral.Add(ev.Amount)
	pos.LastInteraction = meta.Time

	ledger := ledgerBase(m, meta, models.ActionSupplyCollateral, ev.Supplier)
	ledger.Recipient = ev.Recipient
	ledger.Amount = nd(ev.Amount)

	return &repository.ProjectedEvent{
		Ledger:    ledger,
		Market:    m,
		Positions: []*models.UserPosition{pos},
		Snapshot:  buildSnapshot(m, meta),
	}, nil
}

func applyWithdrawCollateral(m *models.Market, pos *models.UserPosition, ev events.WithdrawCollateral, meta eventMeta) (*repository.ProjectedEvent, error) {
	newTotal := m.TotalCollateral.Sub(ev.Amount)
	if newTotal.IsNegative() {
		return nil, fmt.Errorf("%w: market %s total_collateral would go negative (%s - %s)",
			ErrInvariantViolation, m.ID, m.TotalCollateral, ev.Amount)
	}
	m.TotalCollateral = newTotal

	var positions []*models.UserPosition
	if pos != nil {
		pos.Collateral = clampSub(pos.Collateral, ev.Amount)
		pos.LastInteraction = meta.Time
		positions = append(positions, pos)
	}

	ledger := ledgerBase(m, meta, models.ActionWithdrawCollateral, ev.Withdrawer)
	ledger.Recipient = ev.Recipient
	ledger.Amount = nd(ev.Amount)

	return &repository.ProjectedEvent{
		Ledger:    ledger,
		Market:    m,
		Positions: positions,
		Snapshot:  buildSnapshot(m, meta),
	}, nil
}

func applyBorrow(m *models.Market, pos *models.UserPosition, ev events.Borrow, meta eventMeta) (*repository.ProjectedEvent, error) {
	if err := overwriteReportedState(m, ev.State); err != nil {
		return nil, err
	}
	m.TotalDebtScaled = m.TotalDebtScaled.Add(ev.ScaledAmount)
	refreshAvailableLiquidity(m)

	if pos == nil {
		pos = newPosition(m.ID, ev.Borrower, meta)
	}
	pos.DebtScaled = pos.DebtScaled.Add(ev.ScaledAmount)
	pos.LastInteraction = meta.Time

	ledger := ledgerBase(m, meta, models.ActionBorrow, ev.Borrower)
	ledger.Recipient = ev.Recipient
	ledger.Amount = nd(ev.Amount)
	ledger.ScaledAmount = nd(ev.ScaledAmount)
	ledger.TotalSupply = ev.State.TotalSupply
	ledger.TotalDebt = ev.State.TotalDebt

	return &repository.ProjectedEvent{
		Ledger:    ledger,
		Market:    m,
		Positions: []*models.UserPosition{pos},
		Snapshot:  buildSnapshot(m, meta),
	}, nil
}

func applyRepay(m *models.Market, pos *models.UserPosition, ev events.Repay, meta eventMeta) (*repository.ProjectedEvent, error) {
	if err := overwriteReportedState(m, ev.State); err != nil {
		return nil, err
	}
	newTotal := m.TotalDebtScaled.Sub(ev.ScaledDecrease)
	if newTotal.IsNegative() {
		return nil, fmt.Errorf("%w: market %s total_debt_scaled would go negative (%s - %s)",
			ErrInvariantViolation, m.ID, m.TotalDebtScaled, ev.ScaledDecrease)
	}
	m.TotalDebtScaled = newTotal
	refreshAvailableLiquidity(m)

	var positions []*models.UserPosition
	if pos != nil {
		pos.DebtScaled = clampSub(pos.DebtScaled, ev.ScaledDecrease)
		pos.LastInteraction = meta.Time
		positions = append(positions, pos)
	}

	// The repayer is the acting principal even when paying someone else's debt.
	ledger := ledgerBase(m, meta, models.ActionRepay, ev.Repayer)
	ledger.Borrower = ev.Borrower
	ledger.Amount = nd(ev.Amount)
	ledger.ScaledAmount = nd(ev.ScaledDecrease)
	ledger.TotalSupply = ev.State.TotalSupply
	ledger.TotalDebt = ev.State.TotalDebt

	return &repository.ProjectedEvent{
		Ledger:    ledger,
		Market:    m,
		Positions: positions,
		Snapshot:  buildSnapshot(m, meta),
	}, nil
}

func applyLiquidate(m *models.Market, pos *models.UserPosition, ev events.Liquidate, meta eventMeta) (*repository.ProjectedEvent, error) {
	if err := overwriteReportedState(m, ev.State); err != nil {
		return nil, err
	}
	newDebt := m.TotalDebtScaled.Sub(ev.ScaledDebtDecrease)
	if newDebt.IsNegative() {
		return nil, fmt.Errorf("%w: market %s total_debt_scaled would go negative (%s - %s)",
			ErrInvariantViolation, m.ID, m.TotalDebtScaled, ev.ScaledDebtDecrease)
	}
	m.TotalDebtScaled = newDebt
	// Multiple seizures can settle atomically, so the event's post-value is
	// authoritative for the collateral total.
	m.TotalCollateral = ev.State.TotalCollateral.Decimal
	refreshAvailableLiquidity(m)

	var positions []*models.UserPosition
	if pos != nil {
		pos.DebtScaled = clampSub(pos.DebtScaled, ev.ScaledDebtDecrease)
		pos.Collateral = clampSub(pos.Collateral, ev.CollateralSeized)
		pos.LastInteraction = meta.Time
		positions = append(positions, pos)
	}

	ledger := ledgerBase(m, meta, models.ActionLiquidate, ev.Liquidator)
	ledger.Borrower = ev.Borrower
	ledger.DebtRepaid = nd(ev.DebtRepaid)
	ledger.CollateralSeized = nd(ev.CollateralSeized)
	ledger.ProtocolFee = nd(ev.ProtocolFee)
	ledger.ScaledAmount = nd(ev.ScaledDebtDecrease)
	ledger.TotalSupply = ev.State.TotalSupply
	ledger.TotalDebt = ev.State.TotalDebt

	return &repository.ProjectedEvent{
		Ledger:    ledger,
		Market:    m,
		Positions: positions,
		Snapshot:  buildSnapshot(m, meta),
	}, nil
}

func applyAccrueInterest(m *models.Market, ev events.AccrueInterest, meta eventMeta) (*repository.ProjectedEvent, error) {
	if ev.BorrowIndex.LessThan(m.BorrowIndex) {
		return nil, fmt.Errorf("%w: market %s borrow_index decreased from %s to %s",
			ErrInvariantViolation, m.ID, m.BorrowIndex, ev.BorrowIndex)
	}
	if ev.LiquidityIndex.LessThan(m.LiquidityIndex) {
		return nil, fmt.Errorf("%w: market %s liquidity_index decreased from %s to %s",
			ErrInvariantViolation, m.ID, m.LiquidityIndex, ev.LiquidityIndex)
	}
	m.BorrowIndex = ev.BorrowIndex
	m.LiquidityIndex = ev.LiquidityIndex
	m.BorrowRate = ev.BorrowRate
	m.LiquidityRate = ev.LiquidityRate
	m.LastUpdate = ev.LastUpdate
	refreshAvailableLiquidity(m)

	accrual := &models.InterestAccrualEvent{
		TxHash:         meta.TxHash,
		LogIndex:       meta.LogIndex,
		MarketID:       m.ID,
		BorrowIndex:    ev.BorrowIndex,
		LiquidityIndex: ev.LiquidityIndex,
		BorrowRate:     ev.BorrowRate,
		LiquidityRate:  ev.LiquidityRate,
		BlockHeight:    meta.Height,
		Timestamp:      meta.Time,
	}

	return &repository.ProjectedEvent{
		Accrual:  accrual,
		Market:   m,
		Snapshot: buildSnapshot(m, meta),
	}, nil
}

func applyUpdateParams(m *models.Market, ev events.UpdateParams, meta eventMeta) (*repository.ProjectedEvent, error) {
	m.LoanToValue = ev.LoanToValue
	m.LiquidationThreshold = ev.LiquidationThreshold
	m.LiquidationBonus = ev.LiquidationBonus
	m.LiquidationProtocolFee = ev.LiquidationProtocolFee
	m.CloseFactor = ev.CloseFactor
	m.ProtocolFee = ev.ProtocolFee
	m.CuratorFee = ev.CuratorFee
	// Absent caps unset the stored values.
	m.SupplyCap = ev.SupplyCap
	m.BorrowCap = ev.BorrowCap
	m.Enabled = ev.Enabled
	m.IsMutable = ev.IsMutable

	return &repository.ProjectedEvent{
		Market:        m,
		Snapshot:      buildSnapshot(m, meta),
		ParamsChanged: true,
	}, nil
}
