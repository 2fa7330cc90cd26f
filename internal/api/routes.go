package api

import "github.com/gorilla/mux"

func registerBaseRoutes(r *mux.Router, s *Server) {
	r.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")
	r.HandleFunc("/status", s.handleStatus).Methods("GET", "OPTIONS")
	r.HandleFunc("/ws", s.handleWebSocket).Methods("GET", "OPTIONS")
}

func registerMarketRoutes(r *mux.Router, s *Server) {
	// Fixed segments before the {id} catch-all.
	r.HandleFunc("/markets", s.handleListMarkets).Methods("GET", "OPTIONS")
	r.HandleFunc("/markets/count", s.handleCountMarkets).Methods("GET", "OPTIONS")
	r.HandleFunc("/markets/address/{address}", s.handleGetMarketByAddress).Methods("GET", "OPTIONS")
	r.HandleFunc("/markets/{id}", s.handleGetMarket).Methods("GET", "OPTIONS")
	r.HandleFunc("/markets/{id}/snapshots", s.handleMarketSnapshots).Methods("GET", "OPTIONS")
	r.HandleFunc("/markets/{id}/accruals", s.handleMarketAccruals).Methods("GET", "OPTIONS")
	r.HandleFunc("/markets/{id}/positions", s.handleMarketPositions).Methods("GET", "OPTIONS")
	r.HandleFunc("/markets/{id}/positions/{user}", s.handleMarketPosition).Methods("GET", "OPTIONS")
	r.HandleFunc("/markets/{id}/transactions", s.handleMarketTransactions).Methods("GET", "OPTIONS")

	r.HandleFunc("/positions/at-risk", s.handlePositionsAtRisk).Methods("GET", "OPTIONS")
	r.HandleFunc("/positions/{user}", s.handleUserPositions).Methods("GET", "OPTIONS")

	r.HandleFunc("/transactions", s.handleListTransactions).Methods("GET", "OPTIONS")
	r.HandleFunc("/transactions/{hash}", s.handleGetTransaction).Methods("GET", "OPTIONS")
}

func registerAdminRoutes(r *mux.Router, s *Server) {
	r.HandleFunc("/admin/rollback/{height}", s.requireAdmin(s.handleAdminRollback)).Methods("POST", "OPTIONS")
	r.HandleFunc("/admin/reconcile/{id}", s.requireAdmin(s.handleAdminReconcile)).Methods("POST", "OPTIONS")
}
