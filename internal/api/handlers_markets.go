package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// handleListMarkets handles GET /markets
func (s *Server) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r)
	q := r.URL.Query()
	curator := strings.TrimSpace(q.Get("curator"))
	collateralDenom := strings.TrimSpace(q.Get("collateral_denom"))
	debtDenom := strings.TrimSpace(q.Get("debt_denom"))
	enabledOnly := q.Get("enabled") == "true" || q.Get("enabled") == "1"

	markets, err := s.repo.ListMarkets(r.Context(), curator, collateralDenom, debtDenom, enabledOnly, limit, offset)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]map[string]interface{}, 0, len(markets))
	for _, m := range markets {
		out = append(out, marketToOutput(m))
	}
	writeAPIResponse(w, out, map[string]interface{}{"limit": limit, "offset": offset, "count": len(out)}, nil)
}

// handleCountMarkets handles GET /markets/count
func (s *Server) handleCountMarkets(w http.ResponseWriter, r *http.Request) {
	count, err := s.repo.CountMarkets(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAPIResponse(w, map[string]interface{}{"count": count}, nil, nil)
}

// handleGetMarket handles GET /markets/{id}
func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m, err := s.repo.GetMarket(r.Context(), id)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if m == nil {
		writeAPIError(w, http.StatusNotFound, "market not found")
		return
	}
	writeAPIResponse(w, marketToOutput(m), nil, nil)
}

// handleGetMarketByAddress handles GET /markets/address/{address}
func (s *Server) handleGetMarketByAddress(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["address"]
	m, err := s.repo.GetMarketByAddress(r.Context(), addr)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if m == nil {
		writeAPIError(w, http.StatusNotFound, "market not found")
		return
	}
	writeAPIResponse(w, marketToOutput(m), nil, nil)
}

// handleMarketSnapshots handles GET /markets/{id}/snapshots
func (s *Server) handleMarketSnapshots(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	limit, offset := parseLimitOffset(r)

	from, err := parseTimeParam(r.URL.Query().Get("from"))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid from: want RFC3339 or unix seconds")
		return
	}
	to, err := parseTimeParam(r.URL.Query().Get("to"))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid to: want RFC3339 or unix seconds")
		return
	}

	if ok := s.requireMarket(w, r, id); !ok {
		return
	}

	snaps, err := s.repo.ListSnapshots(r.Context(), id, from, to, limit, offset)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]map[string]interface{}, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, snapshotToOutput(snap))
	}
	writeAPIResponse(w, out, map[string]interface{}{"limit": limit, "offset": offset, "count": len(out)}, nil)
}

// handleMarketAccruals handles GET /markets/{id}/accruals
func (s *Server) handleMarketAccruals(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	limit, offset := parseLimitOffset(r)

	if ok := s.requireMarket(w, r, id); !ok {
		return
	}

	accruals, err := s.repo.ListAccruals(r.Context(), id, limit, offset)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]map[string]interface{}, 0, len(accruals))
	for _, a := range accruals {
		out = append(out, accrualToOutput(a))
	}
	writeAPIResponse(w, out, map[string]interface{}{"limit": limit, "offset": offset, "count": len(out)}, nil)
}

// handleMarketPositions handles GET /markets/{id}/positions
func (s *Server) handleMarketPositions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	limit, offset := parseLimitOffset(r)

	if ok := s.requireMarket(w, r, id); !ok {
		return
	}

	positions, err := s.repo.ListPositionsByMarket(r.Context(), id, limit, offset)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]map[string]interface{}, 0, len(positions))
	for _, p := range positions {
		out = append(out, positionToOutput(p))
	}
	writeAPIResponse(w, out, map[string]interface{}{"limit": limit, "offset": offset, "count": len(out)}, nil)
}

// handleMarketPosition handles GET /markets/{id}/positions/{user}
func (s *Server) handleMarketPosition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pos, err := s.repo.GetPosition(r.Context(), vars["id"], vars["user"])
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if pos == nil {
		writeAPIError(w, http.StatusNotFound, "position not found")
		return
	}
	writeAPIResponse(w, positionToOutput(pos), nil, nil)
}

// handleMarketTransactions handles GET /markets/{id}/transactions
func (s *Server) handleMarketTransactions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	limit, offset := parseLimitOffset(r)
	action := strings.TrimSpace(r.URL.Query().Get("action"))

	if ok := s.requireMarket(w, r, id); !ok {
		return
	}

	txs, err := s.repo.ListTransactions(r.Context(), id, "", action, limit, offset)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]map[string]interface{}, 0, len(txs))
	for _, t := range txs {
		out = append(out, transactionToOutput(t))
	}
	writeAPIResponse(w, out, map[string]interface{}{"limit": limit, "offset": offset, "count": len(out)}, nil)
}

// requireMarket 404s unknown market IDs so nested listings distinguish
// "no rows yet" from "no such market". Reports whether to continue.
func (s *Server) requireMarket(w http.ResponseWriter, r *http.Request, id string) bool {
	m, err := s.repo.GetMarket(r.Context(), id)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return false
	}
	if m == nil {
		writeAPIError(w, http.StatusNotFound, "market not found")
		return false
	}
	return true
}
