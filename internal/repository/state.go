package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"lendscan/internal/models"
)

// GetIndexerState returns the checkpoint row, or nil when the indexer has
// never committed a block.
func (r *Repository) GetIndexerState(ctx context.Context) (*models.IndexerState, error) {
	var st models.IndexerState
	err := r.db.QueryRow(ctx, `
		SELECT last_processed_block, last_processed_hash, updated_at
		FROM indexer_state WHERE id = 1`).
		Scan(&st.LastProcessedBlock, &st.LastProcessedHash, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get indexer state: %w", err)
	}
	return &st, nil
}

// SaveIndexerState upserts the checkpoint after a block is fully processed.
func (r *Repository) SaveIndexerState(ctx context.Context, height uint64, blockHash string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO indexer_state (id, last_processed_block, last_processed_hash, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET
			last_processed_block = EXCLUDED.last_processed_block,
			last_processed_hash = EXCLUDED.last_processed_hash,
			updated_at = NOW()`,
		height, blockHash)
	if err != nil {
		return fmt.Errorf("save indexer state: %w", err)
	}
	return nil
}
