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
)

// Measures RPC latency against a node the way the indexer consumes it:
// status polls, sequential block fetches, and per-tx result fetches. Use the
// numbers to size batch_size and poll_interval_ms for a deployment.
func main() {
	endpoint := strings.TrimSpace(os.Getenv("RPC_ENDPOINT"))
	if endpoint == "" {
		log.Fatal("RPC_ENDPOINT is required")
	}
	blocks := getEnvUint("BENCH_BLOCKS", 20)
	if blocks < 1 {
		blocks = 1
	}

	client := chain.NewClient(endpoint)
	defer client.Close()

	ctx := context.Background()

	// 1. Status latency (the poll loop hits this every cycle).
	t0 := time.Now()
	status, err := client.Status(ctx)
	if err != nil {
		log.Fatalf("status: %v", err)
	}
	fmt.Printf("status: OK [%v] chain=%s tip=%d catching_up=%v\n",
		time.Since(t0), status.ChainID, status.LatestHeight, status.CatchingUp)

	if status.LatestHeight < blocks {
		log.Fatalf("tip %d is below the requested window of %d blocks", status.LatestHeight, blocks)
	}
	from := status.LatestHeight - blocks + 1

	// 2. Sequential block fetches, the shape of one catch-up batch.
	var (
		blockTotal time.Duration
		txHashes   []string
	)
	t0 = time.Now()
	for h := from; h <= status.LatestHeight; h++ {
		t := time.Now()
		blk, err := client.Block(ctx, h)
		d := time.Since(t)
		blockTotal += d
		if err != nil {
			log.Fatalf("block %d: %v", h, err)
		}
		txHashes = append(txHashes, blk.TxHashes...)
		if os.Getenv("VERBOSE") != "" {
			fmt.Printf("  block %d: [%v] txs=%d hash=%s\n", h, d, len(blk.TxHashes), blk.Hash)
		}
	}
	fmt.Printf("blocks [%d, %d]: [%v] avg=%v txs=%d\n",
		from, status.LatestHeight, blockTotal, blockTotal/time.Duration(blocks), len(txHashes))

	// 3. Per-tx result fetches over the same window.
	var txTotal time.Duration
	if len(txHashes) == 0 {
		fmt.Println("tx results: window carried no transactions, skipping")
	} else {
		fetched := 0
		for _, hash := range txHashes {
			t := time.Now()
			_, err := client.Tx(ctx, hash)
			d := time.Since(t)
			txTotal += d
			if err != nil {
				fmt.Printf("  tx %s: FAIL (%v) [%v]\n", hash, err, d)
				continue
			}
			fetched++
		}
		fmt.Printf("tx results: %d/%d OK [%v] avg=%v\n",
			fetched, len(txHashes), txTotal, txTotal/time.Duration(len(txHashes)))
	}

	// 4. Full cycle estimate: block fetch plus its tx results, per block.
	perBlock := (blockTotal + txTotal) / time.Duration(blocks)
	fmt.Printf("estimate: ~%v per block end to end; a batch of 100 would take ~%v\n",
		perBlock, perBlock*100)
}

func getEnvUint(key string, fallback uint64) uint64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
