package indexer

import (
	"context"
	"fmt"
	"log"
	"time"

	"lendscan/internal/events"
)

// eventMeta pins a decoded event to its place on chain. LogIndex is the
// event's position in the transaction's full event list, which together with
// the tx hash forms the dedupe key for everything the event writes.
type eventMeta struct {
	TxHash   string
	LogIndex int
	Height   uint64
	Time     time.Time
}

// processBlock projects every qualifying event of one block and advances the
// checkpoint. Any handler error aborts the block before the checkpoint
// moves, so the outer loop retries it whole; replay is safe because every
// written row is keyed.
func (s *Service) processBlock(ctx context.Context, height uint64) error {
	blk, err := s.chain.Block(ctx, height)
	if err != nil {
		return fmt.Errorf("fetch block %d: %w", height, err)
	}

	for _, txHash := range blk.TxHashes {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx, err := s.chain.Tx(ctx, txHash)
		if err != nil {
			return fmt.Errorf("fetch tx %s: %w", txHash, err)
		}
		if tx.Code != 0 {
			if s.config.Debug {
				log.Printf("[indexer] Skipping failed tx %s (code=%d) at height %d", txHash, tx.Code, height)
			}
			continue
		}

		for logIndex, ev := range tx.Events {
			if ev.Type != "wasm" {
				continue
			}
			attrs := events.AttrMap(ev)
			emitter := events.ContractAddress(attrs)
			if emitter == "" {
				continue
			}

			meta := eventMeta{
				TxHash:   txHash,
				LogIndex: logIndex,
				Height:   height,
				Time:     blk.Time,
			}

			if emitter == s.config.FactoryAddress {
				if err := s.handleFactoryEvent(ctx, attrs, meta); err != nil {
					return err
				}
				continue
			}
			if marketID, ok := s.markets.lookup(emitter); ok {
				if err := s.handleMarketEvent(ctx, marketID, attrs, meta); err != nil {
					return err
				}
			}
			// Anything else is some unrelated contract; ignore.
		}
	}

	return s.store.SaveIndexerState(ctx, height, blk.Hash)
}
