package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// handleAdminRollback handles POST /admin/rollback/{height}. It deletes the
// replayable tables from {height} up and rewinds the checkpoint to
// {height}-1 with no hash, so the poll loop re-ingests the range without
// tripping reorg detection.
func (s *Server) handleAdminRollback(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseUint(mux.Vars(r)["height"], 10, 64)
	if err != nil || height == 0 {
		writeAPIError(w, http.StatusBadRequest, "height must be a positive integer")
		return
	}

	if err := s.repo.RollbackToHeight(r.Context(), height, height-1, ""); err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Printf("[api] Admin rollback: projection rewound to height %d", height-1)
	writeAPIResponse(w, map[string]interface{}{
		"deleted_from": height,
		"checkpoint":   height - 1,
	}, nil, nil)
}

// handleAdminReconcile handles POST /admin/reconcile/{id}. Reports drift
// between a market's totals and its position sums; with ?apply=true the
// totals are overwritten from the sums.
func (s *Server) handleAdminReconcile(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	apply := r.URL.Query().Get("apply") == "true"

	drift, err := s.repo.ComputeAggregateDrift(r.Context(), id)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if drift == nil {
		writeAPIError(w, http.StatusNotFound, "market not found")
		return
	}

	repaired := false
	if apply && !drift.InSync() {
		if err := s.repo.RepairMarketAggregates(r.Context(), id); err != nil {
			writeAPIError(w, http.StatusInternalServerError, err.Error())
			return
		}
		repaired = true
		log.Printf("[api] Admin reconcile: market %s aggregates repaired", id)
		drift, err = s.repo.ComputeAggregateDrift(r.Context(), id)
		if err != nil {
			writeAPIError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	writeAPIResponse(w, map[string]interface{}{
		"drift":    drift,
		"in_sync":  drift.InSync(),
		"repaired": repaired,
	}, nil, nil)
}
