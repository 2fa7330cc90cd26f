package repository

import (
	"context"
	"fmt"
	"log"
)

// RollbackToHeight deletes replayable projection rows at or above deleteFrom
// and rewinds the checkpoint, all in one transaction. Markets and user
// positions are kept: their aggregates may go stale until the deleted range
// is re-projected, which the per-event dedupe keys make safe.
//
// Reorg recovery calls this with deleteFrom == checkpointHeight and the
// canonical hash at that height, so ingestion resumes at checkpointHeight+1.
// The operator tool rewinds one block further (checkpointHeight ==
// deleteFrom-1, empty hash) so the deleted range itself is re-ingested.
func (r *Repository) RollbackToHeight(ctx context.Context, deleteFrom, checkpointHeight uint64, checkpointHash string) error {
	log.Printf("[rollback] Deleting projection rows from height %d (checkpoint will be %d)", deleteFrom, checkpointHeight)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM transactions WHERE block_height >= $1", deleteFrom); err != nil {
		return fmt.Errorf("rollback transactions: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM interest_accrual_events WHERE block_height >= $1", deleteFrom); err != nil {
		return fmt.Errorf("rollback interest_accrual_events: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM market_snapshots WHERE block_height >= $1", deleteFrom); err != nil {
		return fmt.Errorf("rollback market_snapshots: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO indexer_state (id, last_processed_block, last_processed_hash, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET
			last_processed_block = EXCLUDED.last_processed_block,
			last_processed_hash = EXCLUDED.last_processed_hash,
			updated_at = NOW()`,
		checkpointHeight, checkpointHash); err != nil {
		return fmt.Errorf("rollback checkpoint: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	log.Printf("[rollback] Rollback complete, checkpoint at height %d", checkpointHeight)
	return nil
}
