package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"lendscan/internal/api"
	"lendscan/internal/chain"
	"lendscan/internal/config"
	"lendscan/internal/eventbus"
	"lendscan/internal/indexer"
	"lendscan/internal/repository"
)

// BuildCommit is set at build time via -ldflags.
var BuildCommit = "dev"

func main() {
	// 1. Config
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to the yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Println("Initializing lendscan...")
	log.Printf("DB: %s", redactDatabaseURL(cfg.DatabaseURL))
	log.Printf("RPC: %s (chain %s)", cfg.RPCEndpoint, cfg.ChainID)
	log.Printf("Factory: %s", cfg.FactoryAddress)
	log.Printf("API Port: %d", cfg.APIPort)

	// 2. Dependencies
	repo, err := repository.NewRepository(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer repo.Close()

	// 2a. Auto-migration (skip with SKIP_MIGRATION=true for API-only containers)
	if os.Getenv("SKIP_MIGRATION") == "true" {
		log.Println("Database migration SKIPPED (SKIP_MIGRATION=true)")
	} else {
		log.Println("Running database migration...")
		if err := repo.Migrate(cfg.SchemaPath); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Database migration complete.")
	}

	chainClient := chain.NewClient(cfg.RPCEndpoint)
	defer chainClient.Close()

	verifyCtx, cancelVerify := context.WithTimeout(context.Background(), 15*time.Second)
	err = chainClient.VerifyChainID(verifyCtx, cfg.ChainID)
	cancelVerify()
	if err != nil {
		log.Fatalf("Chain verification failed: %v", err)
	}

	// 3. Services
	bus := eventbus.New()

	svc := indexer.NewService(chainClient, repo, bus, indexer.Config{
		FactoryAddress: cfg.FactoryAddress,
		StartHeight:    cfg.StartBlockHeight,
		BatchSize:      cfg.BatchSize,
		PollInterval:   cfg.PollInterval(),
		Debug:          cfg.DebugEnabled(),
	})

	api.BuildCommit = BuildCommit
	apiServer := api.NewServer(repo, chainClient, bus, strconv.Itoa(cfg.APIPort), cfg.StartBlockHeight, cfg.AdminJWTSecret)

	// 4. Run
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		log.Printf("Starting API server on :%d", cfg.APIPort)
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	indexerDone := make(chan error, 1)
	if os.Getenv("ENABLE_INDEXER") == "false" {
		log.Println("Indexer is DISABLED (ENABLE_INDEXER=false)")
	} else {
		go func() {
			indexerDone <- svc.Start(ctx)
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("Received %s, shutting down...", sig)
	case err := <-indexerDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Indexer stopped: %v", err)
		}
	}

	cancel()
	bus.Close()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("API shutdown: %v", err)
	}
	log.Println("Shutdown complete.")
}

func redactDatabaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err == nil && u.Scheme != "" {
		if u.User != nil {
			user := u.User.Username()
			if user == "" {
				user = "user"
			}
			u.User = url.UserPassword(user, "****")
		}
		// Avoid leaking secrets embedded in query params; keep only scheme/host/path for debugging.
		u.RawQuery = ""
		return u.String()
	}

	// Best-effort fallback for malformed/DSN-like URLs.
	re := regexp.MustCompile(`(?i)(postgres(?:ql)?://[^:/?#]+):([^@]+)@`)
	if re.MatchString(raw) {
		return re.ReplaceAllString(raw, `$1:****@`)
	}
	re = regexp.MustCompile(`(?i)(password=)([^\s]+)`)
	return re.ReplaceAllString(raw, `$1****`)
}
