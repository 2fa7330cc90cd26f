package indexer

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"lendscan/internal/chain"
	"lendscan/internal/eventbus"
	"lendscan/internal/models"
	"lendscan/internal/repository"
)

// ErrInvariantViolation marks projection errors no healthy chain can cause:
// a decreasing index or a market total driven negative. The current block is
// aborted without advancing the checkpoint, so the condition is visible in
// the logs on every retry until an operator steps in.
var ErrInvariantViolation = errors.New("invariant violation")

// Chain is the slice of the chain client the pipeline needs.
type Chain interface {
	LatestHeight(ctx context.Context) (uint64, error)
	Block(ctx context.Context, height uint64) (*chain.Block, error)
	Tx(ctx context.Context, hash string) (*chain.TxResult, error)
	QueryMarketConfig(ctx context.Context, contract string) (*chain.MarketConfig, error)
	QueryMarketParams(ctx context.Context, contract string) (*chain.MarketParams, error)
}

// Store is the slice of the repository the pipeline writes through.
type Store interface {
	GetIndexerState(ctx context.Context) (*models.IndexerState, error)
	SaveIndexerState(ctx context.Context, height uint64, blockHash string) error
	KnownMarketAddresses(ctx context.Context) (map[string]string, error)
	GetMarket(ctx context.Context, id string) (*models.Market, error)
	GetPosition(ctx context.Context, marketID, userAddress string) (*models.UserPosition, error)
	CreateMarket(ctx context.Context, m *models.Market, snap *models.MarketSnapshot) (bool, error)
	CommitEvent(ctx context.Context, ev *repository.ProjectedEvent) (bool, error)
	RollbackToHeight(ctx context.Context, deleteFrom, checkpointHeight uint64, checkpointHash string) error
}

type Config struct {
	FactoryAddress string
	StartHeight    uint64
	BatchSize      int
	PollInterval   time.Duration
	RetryBackoff   time.Duration
	ReorgDepth     uint64
	Debug          bool
}

type Service struct {
	chain   Chain
	store   Store
	bus     *eventbus.Bus
	config  Config
	markets *marketSet
}

func NewService(chainClient Chain, store Store, bus *eventbus.Bus, cfg Config) *Service {
	if cfg.StartHeight == 0 {
		cfg.StartHeight = 1
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 10 * time.Second
	}
	if cfg.ReorgDepth == 0 {
		cfg.ReorgDepth = 10
	}
	return &Service{
		chain:   chainClient,
		store:   store,
		bus:     bus,
		config:  cfg,
		markets: newMarketSet(),
	}
}

// Start runs the ingestion loop until the context is cancelled. It rebuilds
// the tracked-market set from the store first, so a restart resumes
// classifying events for every market seen before.
func (s *Service) Start(ctx context.Context) error {
	known, err := s.store.KnownMarketAddresses(ctx)
	if err != nil {
		return err
	}
	s.markets.load(known)
	log.Printf("[indexer] Starting: factory=%s tracked_markets=%d batch=%d",
		s.config.FactoryAddress, s.markets.size(), s.config.BatchSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			advanced, err := s.runCycle(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("[indexer] Cycle error: %v", err)
				s.sleep(ctx, s.config.RetryBackoff)
				continue
			}
			if advanced {
				// Small yield between batches so a long catch-up
				// doesn't starve everything else.
				s.sleep(ctx, 50*time.Millisecond)
			} else {
				s.sleep(ctx, s.config.PollInterval)
			}
		}
	}
}

// runCycle performs one loop iteration: poll the tip, detect reorgs, then
// process at most one batch of blocks. It reports whether any block work was
// attempted, so the caller knows when to fall back to the poll interval.
func (s *Service) runCycle(ctx context.Context) (bool, error) {
	tip, err := s.chain.LatestHeight(ctx)
	if err != nil {
		return false, err
	}

	st, err := s.store.GetIndexerState(ctx)
	if err != nil {
		return false, err
	}

	last := s.config.StartHeight - 1
	if st != nil {
		last = st.LastProcessedBlock
	}

	if last >= tip {
		return false, nil
	}

	if s.detectReorg(ctx, st, tip) {
		if err := s.handleReorg(ctx, st.LastProcessedBlock); err != nil {
			return true, err
		}
		// Checkpoint was rewound; pick up the new range next cycle.
		return true, nil
	}

	to := last + uint64(s.config.BatchSize)
	if to > tip {
		to = tip
	}
	if to > last+1 {
		log.Printf("[indexer] Syncing range %d -> %d (%d blocks, behind: %d)",
			last+1, to, to-last, tip-to)
	}

	for h := last + 1; h <= to; h++ {
		if err := ctx.Err(); err != nil {
			return true, err
		}
		if err := s.processBlock(ctx, h); err != nil {
			return true, err
		}
	}
	return true, nil
}

// detectReorg reports whether the stored hash at the checkpoint height no
// longer matches the chain. Missing state and RPC failures both return
// false: a reorg is never declared on incomplete evidence.
func (s *Service) detectReorg(ctx context.Context, st *models.IndexerState, tip uint64) bool {
	if st == nil || st.LastProcessedHash == "" {
		return false
	}
	if tip <= st.LastProcessedBlock {
		return false
	}
	blk, err := s.chain.Block(ctx, st.LastProcessedBlock)
	if err != nil {
		return false
	}
	return !strings.EqualFold(blk.Hash, st.LastProcessedHash)
}

// handleReorg rewinds the projection to a safe height below the divergence
// and re-anchors the checkpoint on the canonical hash there. Markets and
// positions survive; the replayable tables are deleted and re-projected.
func (s *Service) handleReorg(ctx context.Context, from uint64) error {
	safe := s.config.StartHeight
	if from > s.config.ReorgDepth && from-s.config.ReorgDepth > safe {
		safe = from - s.config.ReorgDepth
	}
	log.Printf("[indexer] Reorg detected at height %d, rolling back to %d", from, safe)

	canonical, err := s.chain.Block(ctx, safe)
	if err != nil {
		return err
	}
	if err := s.store.RollbackToHeight(ctx, safe, safe, canonical.Hash); err != nil {
		return err
	}
	log.Printf("[indexer] Reorg recovery complete, resuming from height %d", safe+1)
	return nil
}

// sleep waits for d or until the context is cancelled, whichever comes first.
func (s *Service) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
