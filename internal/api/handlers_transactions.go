package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// handleListTransactions handles GET /transactions
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r)
	q := r.URL.Query()
	marketID := strings.TrimSpace(q.Get("market"))
	user := strings.TrimSpace(q.Get("user"))
	action := strings.TrimSpace(q.Get("action"))

	txs, err := s.repo.ListTransactions(r.Context(), marketID, user, action, limit, offset)
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

// handleGetTransaction handles GET /transactions/{hash}. One chain
// transaction can carry several financial events, so this returns the full
// list in log order.
func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	hash := mux.Vars(r)["hash"]

	txs, err := s.repo.ListTransactionsByHash(r.Context(), hash)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(txs) == 0 {
		writeAPIError(w, http.StatusNotFound, "transaction not found")
		return
	}
	out := make([]map[string]interface{}, 0, len(txs))
	for _, t := range txs {
		out = append(out, transactionToOutput(t))
	}
	writeAPIResponse(w, out, map[string]interface{}{"count": len(out)}, nil)
}
