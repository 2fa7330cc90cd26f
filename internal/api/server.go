package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"lendscan/internal/eventbus"
	"lendscan/internal/repository"
)

// BuildCommit is set by main to the git commit hash baked in at build time.
var BuildCommit = "dev"

// ChainStatus is the slice of the chain client the API needs.
type ChainStatus interface {
	LatestHeight(ctx context.Context) (uint64, error)
}

type Server struct {
	repo        *repository.Repository
	chain       ChainStatus
	hub         *Hub
	httpServer  *http.Server
	startBlock  uint64
	adminSecret []byte
	statusCache struct {
		mu        sync.Mutex
		payload   []byte
		expiresAt time.Time
	}
}

func NewServer(repo *repository.Repository, chainClient ChainStatus, bus *eventbus.Bus, port string, startBlock uint64, adminSecret string) *Server {
	r := mux.NewRouter()

	s := &Server{
		repo:        repo,
		chain:       chainClient,
		hub:         newHub(bus),
		startBlock:  startBlock,
		adminSecret: []byte(adminSecret),
	}

	r.Use(commonMiddleware)
	r.Use(rateLimitMiddleware)

	registerBaseRoutes(r, s)
	registerMarketRoutes(r, s)
	registerAdminRoutes(r, s)

	s.httpServer = &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	return s
}

func (s *Server) Start() error {
	go s.hub.run()
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.close()
	return s.httpServer.Shutdown(ctx)
}

func commonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.statusCache.mu.Lock()
	if time.Now().Before(s.statusCache.expiresAt) && len(s.statusCache.payload) > 0 {
		payload := s.statusCache.payload
		s.statusCache.mu.Unlock()
		w.Write(payload)
		return
	}
	s.statusCache.mu.Unlock()

	payload, err := s.buildStatusPayload(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.statusCache.mu.Lock()
	s.statusCache.payload = payload
	s.statusCache.expiresAt = time.Now().Add(2 * time.Second)
	s.statusCache.mu.Unlock()

	w.Write(payload)
}

func (s *Server) buildStatusPayload(ctx context.Context) ([]byte, error) {
	st, err := s.repo.GetIndexerState(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.repo.GetProjectionStats(ctx)
	if err != nil {
		return nil, err
	}

	indexer := map[string]interface{}{
		"start_block": s.startBlock,
	}
	if st != nil {
		indexer["last_processed_block"] = st.LastProcessedBlock
		indexer["last_processed_hash"] = st.LastProcessedHash
		indexer["updated_at"] = formatTime(st.UpdatedAt)
	}

	status := "ok"
	chainOut := map[string]interface{}{}
	tipCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	tip, err := s.chain.LatestHeight(tipCtx)
	cancel()
	if err != nil {
		status = "degraded"
		chainOut["error"] = err.Error()
	} else {
		chainOut["tip_height"] = tip
		if st != nil && tip >= st.LastProcessedBlock {
			indexer["lag"] = tip - st.LastProcessedBlock
		}
	}

	return json.Marshal(apiEnvelope{Data: map[string]interface{}{
		"status":     status,
		"version":    BuildCommit,
		"chain":      chainOut,
		"indexer":    indexer,
		"projection": stats,
	}})
}
