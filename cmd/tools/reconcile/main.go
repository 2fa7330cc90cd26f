package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"lendscan/internal/repository"
)

// Compares each market's stored aggregates against the sum over its user
// positions and reports any drift. With APPLY=true the stored totals are
// overwritten from the position sums. MARKET_ID limits the check to one
// market.
func main() {
	dbURL := strings.TrimSpace(os.Getenv("DB_URL"))
	if dbURL == "" {
		log.Fatal("DB_URL is required")
	}
	apply := strings.EqualFold(os.Getenv("APPLY"), "true")
	onlyMarket := strings.TrimSpace(os.Getenv("MARKET_ID"))

	repo, err := repository.NewRepository(dbURL)
	if err != nil {
		log.Fatalf("failed to init repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()

	var ids []string
	if onlyMarket != "" {
		ids = []string{onlyMarket}
	} else {
		for offset := 0; ; offset += 200 {
			markets, err := repo.ListMarkets(ctx, "", "", "", false, 200, offset)
			if err != nil {
				log.Fatalf("failed to list markets: %v", err)
			}
			for _, m := range markets {
				ids = append(ids, m.ID)
			}
			if len(markets) < 200 {
				break
			}
		}
	}
	if len(ids) == 0 {
		log.Println("no markets found")
		return
	}

	drifted := 0
	repaired := 0
	for _, id := range ids {
		drift, err := repo.ComputeAggregateDrift(ctx, id)
		if err != nil {
			log.Fatalf("market %s: drift check failed: %v", id, err)
		}
		if drift == nil {
			log.Fatalf("market %s not found", id)
		}
		if drift.InSync() {
			continue
		}

		drifted++
		log.Printf("market %s drifted: supply_scaled stored=%s summed=%s | debt_scaled stored=%s summed=%s | collateral stored=%s summed=%s",
			id,
			drift.StoredSupplyScaled, drift.SummedSupplyScaled,
			drift.StoredDebtScaled, drift.SummedDebtScaled,
			drift.StoredCollateral, drift.SummedCollateral)

		if apply {
			if err := repo.RepairMarketAggregates(ctx, id); err != nil {
				log.Fatalf("market %s: repair failed: %v", id, err)
			}
			repaired++
			log.Printf("market %s repaired", id)
		}
	}

	fmt.Printf("reconcile done: markets=%d drifted=%d repaired=%d\n", len(ids), drifted, repaired)
	if drifted > 0 && !apply {
		fmt.Println("Run again with APPLY=true to overwrite stored aggregates from position sums.")
	}
}
