package indexer

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"lendscan/internal/chain"
	"lendscan/internal/eventbus"
	"lendscan/internal/events"
	"lendscan/internal/models"
	"lendscan/internal/repository"
)

// handleFactoryEvent projects factory announcements. Only
// market_instantiated is recognized.
func (s *Service) handleFactoryEvent(ctx context.Context, attrs map[string]string, meta eventMeta) error {
	decoded, err := events.DecodeFactoryEvent(attrs)
	if err != nil {
		if errors.Is(err, events.ErrUnknownAction) {
			if s.config.Debug {
				log.Printf("[indexer] Ignoring factory action %q in tx %s", attrs["action"], meta.TxHash)
			}
			return nil
		}
		log.Printf("[indexer] Warning: dropping malformed factory event in tx %s: %v", meta.TxHash, err)
		return nil
	}

	// Config and params live on the contract, not in the event. A query
	// failure aborts the block so the creation is retried.
	cfg, err := s.chain.QueryMarketConfig(ctx, decoded.MarketAddress)
	if err != nil {
		return fmt.Errorf("query config for market %s: %w", decoded.MarketAddress, err)
	}
	params, err := s.chain.QueryMarketParams(ctx, decoded.MarketAddress)
	if err != nil {
		return fmt.Errorf("query params for market %s: %w", decoded.MarketAddress, err)
	}

	m, err := buildMarket(decoded, cfg, params, meta)
	if err != nil {
		return err
	}

	created, err := s.store.CreateMarket(ctx, m, buildSnapshot(m, meta))
	if err != nil {
		return err
	}
	s.markets.add(m.MarketAddress, m.ID)
	if created {
		log.Printf("[indexer] New market %s at %s (%s/%s)",
			m.ID, m.MarketAddress, m.CollateralDenom, m.DebtDenom)
		s.bus.Publish(eventbus.Event{
			Topic:     eventbus.MarketUpdated(m.ID),
			Height:    meta.Height,
			Timestamp: meta.Time,
			Data:      m,
		})
	}
	return nil
}

// handleMarketEvent projects one event emitted by a tracked market:
// decode, load current rows, apply, commit, publish.
func (s *Service) handleMarketEvent(ctx context.Context, marketID string, attrs map[string]string, meta eventMeta) error {
	decoded, err := events.DecodeMarketEvent(attrs)
	if err != nil {
		if errors.Is(err, events.ErrUnknownAction) {
			if s.config.Debug {
				log.Printf("[indexer] Ignoring market action %q in tx %s", attrs["action"], meta.TxHash)
			}
			return nil
		}
		log.Printf("[indexer] Warning: dropping malformed %q event from market %s in tx %s: %v",
			attrs["action"], marketID, meta.TxHash, err)
		return nil
	}

	m, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		return err
	}
	if m == nil {
		// Tracked address without a market row: the creation event has not
		// been projected yet. Abort the block so ordering is preserved.
		return fmt.Errorf("market %s not found for tracked address", marketID)
	}

	var pos *models.UserPosition
	if target := positionTarget(decoded); target != "" {
		pos, err = s.store.GetPosition(ctx, marketID, target)
		if err != nil {
			return err
		}
	}

	proj, err := applyMarketEvent(m, pos, decoded, meta)
	if err != nil {
		return err
	}

	applied, err := s.store.CommitEvent(ctx, proj)
	if err != nil {
		return err
	}
	if !applied {
		if s.config.Debug {
			log.Printf("[indexer] Replay of %s:%d already applied, skipping", meta.TxHash, meta.LogIndex)
		}
		return nil
	}

	if s.config.Debug {
		log.Printf("[indexer] Applied %s on market %s (tx %s:%d height %d)",
			attrs["action"], marketID, meta.TxHash, meta.LogIndex, meta.Height)
	}
	s.publish(proj, meta)
	return nil
}

// publish fans out the per-entity topics after a successful commit.
func (s *Service) publish(proj *repository.ProjectedEvent, meta eventMeta) {
	s.bus.Publish(eventbus.Event{
		Topic:     eventbus.MarketUpdated(proj.Market.ID),
		Height:    meta.Height,
		Timestamp: meta.Time,
		Data:      proj.Market,
	})
	for _, pos := range proj.Positions {
		s.bus.Publish(eventbus.Event{
			Topic:     eventbus.PositionUpdated(pos.UserAddress),
			Height:    meta.Height,
			Timestamp: meta.Time,
			Data:      pos,
		})
	}
	if proj.Ledger != nil {
		s.bus.Publish(eventbus.Event{
			Topic:     eventbus.NewTransaction(proj.Ledger.MarketID),
			Height:    meta.Height,
			Timestamp: meta.Time,
			Data:      proj.Ledger,
		})
	}
}

// buildMarket assembles the initial Market row from the factory event and
// the contract's own config and params.
func buildMarket(ev *events.MarketInstantiated, cfg *chain.MarketConfig, params *chain.MarketParams, meta eventMeta) (*models.Market, error) {
	m := &models.Market{
		ID:                ev.MarketID,
		MarketAddress:     ev.MarketAddress,
		Curator:           cfg.Curator,
		CollateralDenom:   cfg.CollateralDenom,
		DebtDenom:         cfg.DebtDenom,
		Oracle:            cfg.Oracle,
		CreatedAt:         meta.Time,
		CreatedAtBlock:    meta.Height,
		Enabled:           params.Enabled,
		IsMutable:         params.IsMutable,
		InterestRateModel: params.InterestRateModel,
		BorrowIndex:       decimal.New(1, 0),
		LiquidityIndex:    decimal.New(1, 0),
		LastUpdate:        meta.Time,
	}

	var err error
	parse := func(field, value string) decimal.Decimal {
		d, perr := decimal.NewFromString(value)
		if perr != nil && err == nil {
			err = fmt.Errorf("market %s params: invalid %s %q", ev.MarketID, field, value)
		}
		return d
	}
	m.LoanToValue = parse("loan_to_value", params.LoanToValue)
	m.LiquidationThreshold = parse("liquidation_threshold", params.LiquidationThreshold)
	m.LiquidationBonus = parse("liquidation_bonus", params.LiquidationBonus)
	m.LiquidationProtocolFee = parse("liquidation_protocol_fee", params.LiquidationProtocolFee)
	m.CloseFactor = parse("close_factor", params.CloseFactor)
	m.ProtocolFee = parse("protocol_fee", params.ProtocolFee)
	m.CuratorFee = parse("curator_fee", params.CuratorFee)
	if params.SupplyCap != nil {
		m.SupplyCap = nd(parse("supply_cap", *params.SupplyCap))
	}
	if params.BorrowCap != nil {
		m.BorrowCap = nd(parse("borrow_cap", *params.BorrowCap))
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}
