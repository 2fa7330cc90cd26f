package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// handleUserPositions handles GET /positions/{user}
func (s *Server) handleUserPositions(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	limit, offset := parseLimitOffset(r)

	positions, err := s.repo.ListPositionsByUser(r.Context(), user, limit, offset)
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

// handlePositionsAtRisk handles GET /positions/at-risk
func (s *Server) handlePositionsAtRisk(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r)
	marketID := strings.TrimSpace(r.URL.Query().Get("market"))

	positions, err := s.repo.ListPositionsAtRisk(r.Context(), marketID, limit, offset)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]map[string]interface{}, 0, len(positions))
	for _, p := range positions {
		out = append(out, positionAtRiskToOutput(p))
	}
	writeAPIResponse(w, out, map[string]interface{}{"limit": limit, "offset": offset, "count": len(out)}, nil)
}
