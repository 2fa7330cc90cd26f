package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"lendscan/internal/chain"
	"lendscan/internal/repository"
)

// Rewinds the projection so every replayable row at or above ROLLBACK_HEIGHT
// is deleted and the checkpoint sits just below it. The indexer re-projects
// the deleted range on its next cycle. Markets and positions are kept; the
// replay overwrites them.
//
// With RPC_ENDPOINT set, the checkpoint is re-anchored on the canonical block
// hash so hash verification stays active across the restart. Without it the
// checkpoint is stored hashless.
func main() {
	dbURL := strings.TrimSpace(os.Getenv("DB_URL"))
	if dbURL == "" {
		log.Fatal("DB_URL is required")
	}

	heightStr := strings.TrimSpace(os.Getenv("ROLLBACK_HEIGHT"))
	height, err := strconv.ParseUint(heightStr, 10, 64)
	if err != nil || height < 1 {
		log.Fatalf("ROLLBACK_HEIGHT must be a positive integer, got %q", heightStr)
	}

	repo, err := repository.NewRepository(dbURL)
	if err != nil {
		log.Fatalf("failed to init repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()

	checkpoint := height - 1
	checkpointHash := ""
	if endpoint := strings.TrimSpace(os.Getenv("RPC_ENDPOINT")); endpoint != "" && checkpoint >= 1 {
		client := chain.NewClient(endpoint)
		defer client.Close()

		fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		blk, err := client.Block(fetchCtx, checkpoint)
		cancel()
		if err != nil {
			log.Fatalf("failed to fetch canonical block %d: %v", checkpoint, err)
		}
		checkpointHash = blk.Hash
		log.Printf("canonical hash at %d: %s", checkpoint, checkpointHash)
	}

	st, err := repo.GetIndexerState(ctx)
	if err != nil {
		log.Fatalf("failed to read indexer state: %v", err)
	}
	if st == nil {
		log.Fatal("no indexer state found; nothing to roll back")
	}
	if st.LastProcessedBlock < height {
		log.Fatalf("checkpoint is at %d, below rollback height %d; nothing to do", st.LastProcessedBlock, height)
	}

	if err := repo.RollbackToHeight(ctx, height, checkpoint, checkpointHash); err != nil {
		log.Fatalf("rollback failed: %v", err)
	}

	fmt.Printf("Rolled back projection: deleted rows at height >= %d, checkpoint now %d.\n", height, checkpoint)
	fmt.Println("Restart the indexer (or wait for its next cycle) to re-project the range.")
}
